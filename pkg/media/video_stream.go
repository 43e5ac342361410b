package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FrameLengthSize is the width of the ASCII decimal length prefix that
// precedes every frame in an MJPEG asset.
const FrameLengthSize = 5

var (
	// ErrEndOfStream is returned once the asset has no further frames
	ErrEndOfStream = errors.New("media: end of stream")
	// ErrFrameTooLarge is returned for frames above the configured maximum
	ErrFrameTooLarge = errors.New("media: frame too large")
)

// VideoStream reads length-prefixed frames sequentially
type VideoStream struct {
	name         string
	closer       io.Closer
	reader       *bufio.Reader
	maxFrameSize int
	frameNumber  int
}

// OpenVideoStream opens a frame asset on disk
func OpenVideoStream(path string, maxFrameSize int) (*VideoStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	vs := NewVideoStream(f, maxFrameSize)
	vs.name = path
	vs.closer = f
	return vs, nil
}

// NewVideoStream reads frames from r
func NewVideoStream(r io.Reader, maxFrameSize int) *VideoStream {
	return &VideoStream{
		reader:       bufio.NewReader(r),
		maxFrameSize: maxFrameSize,
	}
}

// NextFrame returns the next frame payload
func (vs *VideoStream) NextFrame() ([]byte, error) {
	prefix := make([]byte, FrameLengthSize)
	if _, err := io.ReadFull(vs.reader, prefix); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read frame %d length: %w", vs.frameNumber+1, err)
	}

	length, err := strconv.Atoi(strings.TrimSpace(string(prefix)))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("frame %d: invalid length prefix %q", vs.frameNumber+1, prefix)
	}
	if vs.maxFrameSize > 0 && length > vs.maxFrameSize {
		return nil, fmt.Errorf("%w: frame %d is %d bytes (max: %d)", ErrFrameTooLarge, vs.frameNumber+1, length, vs.maxFrameSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(vs.reader, frame); err != nil {
		return nil, fmt.Errorf("read frame %d: %w", vs.frameNumber+1, err)
	}

	vs.frameNumber++
	return frame, nil
}

// FrameNumber returns how many frames have been read
func (vs *VideoStream) FrameNumber() int {
	return vs.frameNumber
}

// Name returns the asset path, if opened from disk
func (vs *VideoStream) Name() string {
	return vs.name
}

// Close releases the underlying file
func (vs *VideoStream) Close() error {
	if vs.closer == nil {
		return nil
	}
	return vs.closer.Close()
}
