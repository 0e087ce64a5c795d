package worker

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marminbh/automation-svc/internal/models"
)

func TestCalculateBackoffDelay(t *testing.T) {
	assert.Equal(t, 3*time.Minute, CalculateBackoffDelay(1))
	assert.Equal(t, 9*time.Minute, CalculateBackoffDelay(2))
	assert.Equal(t, 27*time.Minute, CalculateBackoffDelay(3))
	assert.Equal(t, 81*time.Minute, CalculateBackoffDelay(4))
	assert.Equal(t, 3*time.Minute, CalculateBackoffDelay(0))
	assert.Equal(t, 24*time.Hour, CalculateBackoffDelay(10))
}

func TestParseRetryAfterHeader(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	d, ok := ParseRetryAfterHeader("120", now)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, d)

	d, ok = ParseRetryAfterHeader(now.Add(time.Hour).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, d)

	_, ok = ParseRetryAfterHeader("-5", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfterHeader("soon", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfterHeader("", now)
	assert.False(t, ok)
}

func status(code int) *int { return &code }

func TestProcessDeliveryResultSchedule(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	failure := &DeliveryResult{HTTPStatus: status(500)}

	want := []time.Duration{3 * time.Minute, 9 * time.Minute, 27 * time.Minute}
	for i, delay := range want {
		out := ProcessDeliveryResult(failure, i+1, 3, now)
		require.Equal(t, models.DeliveryRetrying, out.Status, "attempt %d", i+1)
		require.NotNil(t, out.NextRetryAt)
		assert.Equal(t, now.Add(delay), *out.NextRetryAt)
		assert.Equal(t, "HTTP 500", *out.LastError)
	}

	out := ProcessDeliveryResult(failure, 4, 3, now)
	assert.Equal(t, models.DeliveryFailed, out.Status)
	assert.Nil(t, out.NextRetryAt)
	assert.Contains(t, *out.LastError, "Max retries reached")
}

func TestProcessDeliveryResultClassification(t *testing.T) {
	now := time.Now().UTC()

	out := ProcessDeliveryResult(&DeliveryResult{HTTPStatus: status(204)}, 1, 3, now)
	assert.Equal(t, models.DeliverySuccess, out.Status)
	assert.Nil(t, out.LastError)

	out = ProcessDeliveryResult(&DeliveryResult{HTTPStatus: status(301)}, 1, 3, now)
	assert.Equal(t, models.DeliveryRetrying, out.Status)

	out = ProcessDeliveryResult(&DeliveryResult{Error: errors.New("dial tcp: connection refused")}, 1, 3, now)
	assert.Equal(t, models.DeliveryRetrying, out.Status)
	assert.Contains(t, *out.LastError, "connection refused")

	out = ProcessDeliveryResult(&DeliveryResult{}, 1, 3, now)
	assert.Equal(t, "No HTTP status code received", *out.LastError)
}

func TestProcessDeliveryResultHonoursLongerRetryAfter(t *testing.T) {
	now := time.Now().UTC()

	out := ProcessDeliveryResult(&DeliveryResult{HTTPStatus: status(429), RetryAfter: "3600"}, 1, 3, now)
	assert.Equal(t, now.Add(time.Hour), *out.NextRetryAt)

	// a shorter hint never brings the retry forward
	out = ProcessDeliveryResult(&DeliveryResult{HTTPStatus: status(429), RetryAfter: "10"}, 1, 3, now)
	assert.Equal(t, now.Add(3*time.Minute), *out.NextRetryAt)
}
