package vision

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/recognition"
)

// Pipeline samples faces from a live source; it is the registry's Sampler
// for camera registration.
type Pipeline struct {
	Source    recognition.FrameSource
	Extractor recognition.Extractor
}

// Sample reads one frame and extracts from it. A frame that is not ready
// counts as no face.
func (p Pipeline) Sample(ctx context.Context) (*model.Detection, error) {
	frame, err := p.Source.Frame(ctx)
	if errors.Is(err, ErrFrameNotReady) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	det, err := p.Extractor.Extract(ctx, frame)
	if errors.Is(err, ErrFrameNotReady) {
		return nil, nil
	}
	return det, err
}

// PhotoSampler extracts from a single photo. The photo is sent to the
// extractor once; later samples repeat the first answer.
type PhotoSampler struct {
	frame     model.Frame
	extractor recognition.Extractor

	mu   sync.Mutex
	done bool
	det  *model.Detection
}

// NewPhotoSampler normalizes data and returns a sampler over it.
func NewPhotoSampler(data []byte, extractor recognition.Extractor, opts ...Option) (*PhotoSampler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	frame, err := Normalize(data, o.maxEdge)
	if err != nil {
		return nil, err
	}
	return &PhotoSampler{frame: frame, extractor: extractor}, nil
}

// Sample implements the registry Sampler.
func (s *PhotoSampler) Sample(ctx context.Context) (*model.Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.det, nil
	}
	det, err := s.extractor.Extract(ctx, s.frame)
	if errors.Is(err, ErrFrameNotReady) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.det, s.done = det, true
	return det, nil
}
