package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/facecheck/internal/domain/model"
)

// HTTPExtractor sends frames to a descriptor service.
//
// The service answers POSTed image bytes with {"face": null} when nothing is
// found, or {"face": {"box", "score", "landmarks", "descriptor"}} with a
// 128-value descriptor. 503 means the model is still loading.
type HTTPExtractor struct {
	url string
	options
	client *http.Client
}

type extractResponse struct {
	Face *faceJSON `json:"face"`
}

type faceJSON struct {
	Box        model.BoundingBox `json:"box"`
	Score      float64           `json:"score"`
	Landmarks  []model.Point     `json:"landmarks"`
	Descriptor []float32         `json:"descriptor"`
}

// NewHTTPExtractor creates an extractor posting to url.
func NewHTTPExtractor(url string, opts ...Option) *HTTPExtractor {
	e := &HTTPExtractor{url: url, options: defaultOptions()}
	for _, opt := range opts {
		opt(&e.options)
	}
	e.client = e.httpClient()
	return e
}

// Extract returns the detected face, or nil when there is none.
func (e *HTTPExtractor) Extract(ctx context.Context, frame model.Frame) (*model.Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	ct := frame.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractor, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrFrameNotReady
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractor, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrExtractor, err)
	}
	if out.Face == nil {
		return nil, nil
	}
	desc, err := model.DescriptorFromSlice(out.Face.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDescriptor, err)
	}
	return &model.Detection{
		Box:        out.Face.Box,
		Score:      out.Face.Score,
		Landmarks:  out.Face.Landmarks,
		Descriptor: desc,
	}, nil
}
