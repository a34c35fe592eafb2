// Package sink posts attendance records to the remote backend.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/okian/facecheck/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

// ErrRejected is returned when the backend answers with a non-2xx status.
var ErrRejected = errors.New("sink rejected record")

// Payload is the wire shape the backend expects.
type Payload struct {
	ID           string `json:"id"`
	AttendeeID   string `json:"attendeeId"`
	AttendeeName string `json:"attendeeName"`
	Timestamp    string `json:"timestamp"`
}

// PayloadOf converts a record to its wire shape.
func PayloadOf(r model.AttendanceRecord) Payload { //nolint:gocritic // hugeParam: records travel by value
	return Payload{
		ID:           r.ID,
		AttendeeID:   r.IdentityID,
		AttendeeName: r.IdentityName,
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// HTTPSink POSTs one JSON payload per record.
type HTTPSink struct {
	url    string
	client *http.Client
	logger logger.Logger
}

// Option applies a configuration option to the HTTPSink.
type Option func(*HTTPSink)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSink) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSink) {
		if c != nil {
			s.client = c
		}
	}
}

// New creates a sink posting to url.
func New(url string, opts ...Option) *HTTPSink {
	s := &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.Get().Named("sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts r once. The caller decides what to do with a failure; nothing
// is retried here.
func (s *HTTPSink) Send(ctx context.Context, r model.AttendanceRecord) (err error) { //nolint:gocritic // hugeParam: records travel by value
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordSinkDelivery(status, float64(time.Since(start).Milliseconds()))
	}()

	body, err := json.Marshal(PayloadOf(r))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post record: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	s.logger.Debug(ctx, "record delivered", logger.String("record", r.ID))
	return nil
}

// Discard drops every record. It stands in when no sink URL is configured.
type Discard struct{}

// Send implements the worker Sink.
func (Discard) Send(_ context.Context, _ model.AttendanceRecord) error { //nolint:gocritic // hugeParam: records travel by value
	metrics.RecordSinkDelivery("disabled", 0)
	return nil
}
