package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// ErrNoVideo is returned when the source is missing or not ready yet.
var ErrNoVideo = errors.New("no video available")

const DefaultQuality = 80

// EncodedImage is a compressed still of one video frame.
type EncodedImage struct {
	Data   []byte
	Width  int
	Height int
}

// DataURL renders the image the way the analyzer endpoint expects it.
func (e EncodedImage) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// Sampler captures stills from a VideoSource.
type Sampler struct {
	quality int
}

func NewSampler(quality int) *Sampler {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Sampler{quality: quality}
}

// Capture draws the current frame onto an off-screen canvas at the
// source's native resolution and JPEG-encodes it. The source is not
// modified.
func (s *Sampler) Capture(src VideoSource) (EncodedImage, error) {
	if src == nil {
		return EncodedImage{}, ErrNoVideo
	}
	width, height := src.Dimensions()
	if width <= 0 || height <= 0 {
		return EncodedImage{}, ErrNoVideo
	}

	img, err := src.Frame()
	if err != nil {
		if errors.Is(err, ErrNoVideo) {
			return EncodedImage{}, err
		}
		return EncodedImage{}, fmt.Errorf("failed to read frame: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: s.quality}); err != nil {
		return EncodedImage{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	return EncodedImage{Data: buf.Bytes(), Width: width, Height: height}, nil
}
