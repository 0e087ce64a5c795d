package worker

import (
	"fmt"
	"net/http"
	"time"

	"github.com/marminbh/automation-svc/internal/models"
)

// AttemptOutcome is the state a delivery log row moves to after an attempt
type AttemptOutcome struct {
	Status      models.DeliveryStatus
	NextRetryAt *time.Time
	LastError   *string
}

// ProcessDeliveryResult classifies attempt number attempt. Any 2xx is a
// success. Every other outcome is retried while attempt <= maxRetries, at
// now + 3^attempt minutes, and fails terminally after that. A 429 with a
// Retry-After longer than the backoff waits for the server's hint instead.
func ProcessDeliveryResult(result *DeliveryResult, attempt, maxRetries int, now time.Time) AttemptOutcome {
	if result.Error == nil && result.HTTPStatus != nil && *result.HTTPStatus >= 200 && *result.HTTPStatus < 300 {
		return AttemptOutcome{Status: models.DeliverySuccess}
	}

	var errorMsg string
	switch {
	case result.Error != nil:
		errorMsg = fmt.Sprintf("Network error: %v", result.Error)
	case result.HTTPStatus == nil:
		errorMsg = "No HTTP status code received"
	case *result.HTTPStatus == http.StatusTooManyRequests:
		errorMsg = "Rate limited (429)"
	default:
		errorMsg = fmt.Sprintf("HTTP %d", *result.HTTPStatus)
	}

	if attempt > maxRetries {
		errorMsg = fmt.Sprintf("Max retries reached: %s", errorMsg)
		return AttemptOutcome{Status: models.DeliveryFailed, LastError: &errorMsg}
	}

	delay := CalculateBackoffDelay(attempt)
	if result.HTTPStatus != nil && *result.HTTPStatus == http.StatusTooManyRequests {
		if hint, ok := ParseRetryAfterHeader(result.RetryAfter, now); ok && hint > delay {
			delay = min(hint, maxBackoff)
		}
	}

	next := now.Add(delay)
	return AttemptOutcome{Status: models.DeliveryRetrying, NextRetryAt: &next, LastError: &errorMsg}
}
