// Package media provides the frame source and the image re-encoder used by
// the RTP sender.
package media

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math"
)

// JPEGEncoder re-compresses JPEG frames at a given quality
type JPEGEncoder struct {
	buf bytes.Buffer
}

// NewJPEGEncoder creates an encoder
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{}
}

// Reencode decodes a JPEG frame and encodes it again with quality in [0,1].
// It is not safe for concurrent use.
func (e *JPEGEncoder) Reencode(frame []byte, quality float64) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

// JPEGQuality maps a [0,1] quality factor to the 1-100 scale of image/jpeg
func JPEGQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}
