package vision

import "errors"

// Sentinel kinds for vision adapter errors.
var (
	// ErrFrameNotReady means no usable frame yet; try again next poll.
	ErrFrameNotReady = errors.New("frame not ready")
	ErrNotImage      = errors.New("not an image")
	ErrBadDescriptor = errors.New("malformed descriptor")
	ErrExtractor     = errors.New("extractor request failed")
)
