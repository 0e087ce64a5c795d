package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateHMACSignature returns the hex encoded HMAC-SHA256 of payload
func GenerateHMACSignature(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the signature of payload and compares it in
// constant time. A "sha256=" prefix on signature is accepted.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected, err := GenerateHMACSignature(payload, secret)
	if err != nil {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
