package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
)

// DeliveryResult represents the result of a webhook delivery attempt
type DeliveryResult struct {
	HTTPStatus      *int
	LatencyMs       int
	ResponseBody    string
	ResponseHeaders map[string]string
	Truncated       bool
	Error           error
	RetryAfter      string
}

// PostRequest describes one outbound call. Body is sent as-is.
type PostRequest struct {
	Method              string
	URL                 string
	Body                []byte
	Headers             map[string]string
	Timeout             time.Duration
	MaxResponseBodySize int
}

// DeliverWebhook performs the HTTP request and captures the response, reading
// at most MaxResponseBodySize characters of the body
func DeliverWebhook(ctx context.Context, client *http.Client, req PostRequest, logger *zap.Logger) *DeliveryResult {
	result := &DeliveryResult{}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		result.Error = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	startTime := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		result.LatencyMs = int(time.Since(startTime).Milliseconds())
		result.Error = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.HTTPStatus = &resp.StatusCode

	// A UTF-8 character takes at most 4 bytes
	limit := req.MaxResponseBodySize
	if limit <= 0 {
		limit = models.MaxResponseBodyChars
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(limit)*utf8.UTFMax+1))
	if readErr != nil {
		logger.Warn("Failed to read response body",
			zap.Error(readErr),
			zap.String("url", req.URL),
		)
	}
	result.LatencyMs = int(time.Since(startTime).Milliseconds())
	result.ResponseBody, result.Truncated = truncateChars(string(raw), limit)

	result.ResponseHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		result.ResponseHeaders[k] = resp.Header.Get(k)
	}
	result.RetryAfter = resp.Header.Get("Retry-After")

	return result
}

// truncateChars cuts s to at most limit characters
func truncateChars(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}
