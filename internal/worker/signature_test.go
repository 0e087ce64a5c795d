package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateHMACSignatureDeterministic(t *testing.T) {
	payload := []byte(`{"event":"deal.won","data":{"current":{"value":100}}}`)

	first, err := GenerateHMACSignature(payload, "secret-key")
	require.NoError(t, err)
	second, err := GenerateHMACSignature(payload, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed := append([]byte{}, payload...)
	changed[len(changed)-3] = '1'
	third, err := GenerateHMACSignature(changed, "secret-key")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	other, err := GenerateHMACSignature(payload, "another-key")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestGenerateHMACSignatureKnownVector(t *testing.T) {
	// RFC 4231 test case 2
	sig, err := GenerateHMACSignature([]byte("what do ya want for nothing?"), "Jefe")
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)
}

func TestGenerateHMACSignatureEmptySecret(t *testing.T) {
	_, err := GenerateHMACSignature([]byte("x"), "")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig, err := GenerateHMACSignature(payload, "k")
	require.NoError(t, err)

	assert.True(t, VerifySignature(payload, "k", sig))
	assert.True(t, VerifySignature(payload, "k", "sha256="+sig))
	assert.False(t, VerifySignature([]byte(`{"a":2}`), "k", sig))
	assert.False(t, VerifySignature(payload, "wrong", sig))
	assert.False(t, VerifySignature(payload, "k", ""))
}
