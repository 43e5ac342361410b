package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

type wireMessage interface {
	Bytes() []byte
}

// MessageWriter writes whole messages to the control connection. Each
// message is flushed before the call returns.
type MessageWriter struct {
	mu     sync.Mutex
	writer *bufio.Writer
}

// NewMessageWriter creates a new RTSP message writer
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{
		writer: bufio.NewWriter(w),
	}
}

// WriteRequest writes a request in the three-line form
func (mw *MessageWriter) WriteRequest(req *Request) error {
	if err := mw.write(req); err != nil {
		return fmt.Errorf("write %s request: %w", req.Method, err)
	}
	return nil
}

// WriteResponse writes a response
func (mw *MessageWriter) WriteResponse(resp *Response) error {
	if err := mw.write(resp); err != nil {
		return fmt.Errorf("write %d response: %w", resp.StatusCode, err)
	}
	return nil
}

func (mw *MessageWriter) write(msg wireMessage) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	if _, err := mw.writer.Write(msg.Bytes()); err != nil {
		return err
	}
	return mw.writer.Flush()
}
