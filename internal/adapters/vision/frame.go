// Package vision adapts cameras and descriptor extraction services to the
// recognition loop and the registry.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoders for Normalize
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/okian/facecheck/internal/domain/model"
)

// DefaultMaxEdge bounds the longer side of frames sent for extraction.
const DefaultMaxEdge = 640

const jpegQuality = 85

// Normalize sniffs data and wraps it in a Frame. Images whose longer edge
// exceeds maxEdge are downscaled and re-encoded as JPEG; maxEdge <= 0 keeps
// the original size.
func Normalize(data []byte, maxEdge int) (model.Frame, error) {
	if len(data) == 0 {
		return model.Frame{}, fmt.Errorf("empty body: %w", ErrNotImage)
	}
	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		return model.Frame{}, fmt.Errorf("%s: %w", mime, ErrNotImage)
	}
	frame := model.Frame{Data: data, ContentType: mime, CapturedAt: time.Now()}
	if maxEdge <= 0 {
		return frame, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %w", ErrNotImage, err)
	}
	if cfg.Width <= maxEdge && cfg.Height <= maxEdge {
		return frame, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Frame{}, fmt.Errorf("%w: %w", ErrNotImage, err)
	}
	w, h := scaled(cfg.Width, cfg.Height, maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return model.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	frame.Data = buf.Bytes()
	frame.ContentType = "image/jpeg"
	return frame, nil
}

func scaled(width, height, maxEdge int) (int, int) {
	if width >= height {
		return maxEdge, max(1, height*maxEdge/width)
	}
	return max(1, width*maxEdge/height), maxEdge
}
