package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoder for uploaded frames
	_ "image/png"
	"strings"
	"sync"
)

// DefaultMaxDimension caps the width and height of uploaded frames.
const DefaultMaxDimension = 4096

// ErrFrameTooLarge is returned for uploads whose declared size exceeds the
// frame store's limit. The check runs before any pixel data is decoded.
var ErrFrameTooLarge = errors.New("frame dimensions too large")

// VideoSource is a live video reference. Dimensions are zero until the
// stream's metadata is known.
type VideoSource interface {
	Dimensions() (width, height int)
	Frame() (image.Image, error)
}

// LatestFrame holds the most recent frame pushed by the client's camera.
type LatestFrame struct {
	maxDim int

	mu  sync.RWMutex
	img image.Image
}

func NewLatestFrame() *LatestFrame {
	return NewLatestFrameWithLimit(DefaultMaxDimension)
}

// NewLatestFrameWithLimit rejects uploads wider or taller than maxDim
// pixels. A non-positive maxDim uses DefaultMaxDimension.
func NewLatestFrameWithLimit(maxDim int) *LatestFrame {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &LatestFrame{maxDim: maxDim}
}

func (lf *LatestFrame) Update(img image.Image) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.img = img
}

// UpdateDataURL decodes a "data:image/...;base64," URL (or bare base64) and
// stores the decoded image.
func (lf *LatestFrame) UpdateDataURL(dataURL string) error {
	payload := dataURL
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return fmt.Errorf("malformed data URL")
		}
		payload = payload[comma+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("failed to decode frame payload: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode frame image: %w", err)
	}
	if cfg.Width > lf.maxDim || cfg.Height > lf.maxDim {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height, lf.maxDim, lf.maxDim)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode frame image: %w", err)
	}

	lf.Update(img)
	return nil
}

func (lf *LatestFrame) Dimensions() (int, int) {
	lf.mu.RLock()
	defer lf.mu.RUnlock()
	if lf.img == nil {
		return 0, 0
	}
	b := lf.img.Bounds()
	return b.Dx(), b.Dy()
}

func (lf *LatestFrame) Frame() (image.Image, error) {
	lf.mu.RLock()
	defer lf.mu.RUnlock()
	if lf.img == nil {
		return nil, ErrNoVideo
	}
	return lf.img, nil
}
