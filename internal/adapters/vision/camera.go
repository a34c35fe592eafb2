package vision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/logger"
)

// HTTPCamera reads still frames from a snapshot URL.
type HTTPCamera struct {
	url string
	options
	client *http.Client
}

// NewHTTPCamera creates a camera that GETs url for every frame.
func NewHTTPCamera(url string, opts ...Option) *HTTPCamera {
	c := &HTTPCamera{url: url, options: defaultOptions()}
	for _, opt := range opts {
		opt(&c.options)
	}
	c.client = c.httpClient()
	return c
}

// Frame fetches one snapshot.
func (c *HTTPCamera) Frame(ctx context.Context) (model.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return model.Frame{}, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %w", ErrFrameNotReady, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Frame{}, fmt.Errorf("camera status %d: %w", resp.StatusCode, ErrFrameNotReady)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %w", ErrFrameNotReady, err)
	}
	if len(data) == 0 {
		return model.Frame{}, fmt.Errorf("empty snapshot: %w", ErrFrameNotReady)
	}
	return Normalize(data, c.maxEdge)
}

// Ready blocks until the camera serves a frame or ctx ends.
func (c *HTTPCamera) Ready(ctx context.Context) error {
	for {
		_, err := c.Frame(ctx)
		if err == nil {
			return nil
		}
		c.logger.Debug(ctx, "camera not ready", logger.String("url", c.url), logger.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", err, ctx.Err())
		case <-time.After(c.readyBackoff):
		}
	}
}

// StaticSource serves the same image for every frame.
type StaticSource struct {
	frame model.Frame
}

// NewStaticSource wraps data, which must be an image.
func NewStaticSource(data []byte, opts ...Option) (*StaticSource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	frame, err := Normalize(data, o.maxEdge)
	if err != nil {
		return nil, err
	}
	return &StaticSource{frame: frame}, nil
}

// NewFileSource reads an image file into a StaticSource.
func NewFileSource(path string, opts ...Option) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src, err := NewStaticSource(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// Frame returns the stored image.
func (s *StaticSource) Frame(_ context.Context) (model.Frame, error) {
	f := s.frame
	f.CapturedAt = time.Now()
	return f, nil
}
