package worker

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marminbh/automation-svc/internal/models"
)

// CallRequest is a single outbound call made by a rule's call_webhook action.
// It is not logged or retried; failures are reported on the rule execution.
type CallRequest struct {
	URL     string
	Method  string
	Event   string
	Headers map[string]string
	Secret  string
	Body    []byte
}

// Call sends req once. The body is signed when a secret is configured.
func (s *Service) Call(ctx context.Context, req CallRequest) (*DeliveryResult, error) {
	headers := make(map[string]string, len(req.Headers)+4)
	for k, v := range req.Headers {
		if _, reserved := reservedHeaders[http.CanonicalHeaderKey(k)]; reserved {
			continue
		}
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers["User-Agent"] = s.userAgent()
	headers[HeaderEvent] = req.Event
	headers[HeaderTimestamp] = strconv.FormatInt(s.now().Unix(), 10)
	if req.Secret != "" {
		signature, err := GenerateHMACSignature(req.Body, req.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to sign payload: %w", err)
		}
		headers[HeaderSignature] = signature
	}

	result := DeliverWebhook(ctx, s.client, PostRequest{
		Method:              req.Method,
		URL:                 req.URL,
		Body:                req.Body,
		Headers:             headers,
		Timeout:             time.Duration(models.DefaultTimeoutMs) * time.Millisecond,
		MaxResponseBodySize: s.maxBody(),
	}, s.logger)

	if result.Error != nil {
		return result, result.Error
	}
	if *result.HTTPStatus < 200 || *result.HTTPStatus >= 300 {
		return result, fmt.Errorf("webhook returned HTTP %d", *result.HTTPStatus)
	}
	return result, nil
}
