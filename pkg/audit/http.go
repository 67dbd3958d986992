package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"piigate/pkg/model"
)

// HTTPSink POSTs one record per request to a remote collector. Calls go
// through a circuit breaker so a dead collector stops being dialed instead
// of stacking up timeouts in the emitter worker.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewHTTPSink(url string, headers map[string]string) *HTTPSink {
	return &HTTPSink{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "audit-http",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (h *HTTPSink) Write(ctx context.Context, rec *model.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = h.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range h.headers {
			req.Header.Set(k, v)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("audit sink returned status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}
