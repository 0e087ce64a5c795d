package worker

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	backoffBase = 3
	maxBackoff  = 24 * time.Hour
)

// CalculateBackoffDelay returns the wait after failed attempt n (1-indexed):
// 3^n minutes, so 3m, 9m, 27m, ... capped at 24 hours.
func CalculateBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	minutes := math.Pow(backoffBase, float64(attempt))
	if minutes >= maxBackoff.Minutes() {
		return maxBackoff
	}
	return time.Duration(minutes) * time.Minute
}

// ParseRetryAfterHeader parses a Retry-After value given either as seconds or
// as an HTTP date
func ParseRetryAfterHeader(retryAfter string, now time.Time) (time.Duration, bool) {
	retryAfter = strings.TrimSpace(retryAfter)
	if retryAfter == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	when, err := http.ParseTime(retryAfter)
	if err != nil {
		return 0, false
	}
	if d := when.Sub(now); d > 0 {
		return d, true
	}
	return 0, false
}
