package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MessageReader handles RTSP message parsing
type MessageReader struct {
	reader *bufio.Reader
}

// NewMessageReader creates a new RTSP message reader
func NewMessageReader(r io.Reader) *MessageReader {
	return &MessageReader{
		reader: bufio.NewReader(r),
	}
}

// ReadRequest reads the three lines of one request and parses them. Blank
// lines before the request line are skipped. Read failures wrap
// ErrTransport; parse failures wrap ErrProtocol or ErrFormat.
func (mr *MessageReader) ReadRequest() (*Request, error) {
	var requestLine string
	for requestLine == "" {
		line, err := mr.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: read request line: %w", ErrTransport, err)
		}
		requestLine = strings.TrimSpace(line)
	}

	cseqLine, err := mr.readLine()
	if err != nil {
		return nil, fmt.Errorf("%w: read CSeq line: %w", ErrTransport, err)
	}

	lastLine, err := mr.readLine()
	if err != nil {
		return nil, fmt.Errorf("%w: read last line: %w", ErrTransport, err)
	}

	return ParseRequest(requestLine, cseqLine, lastLine)
}

// ReadResponse reads a response written by this server: header lines up
// to the Session header, or up to Content-Length followed by the body.
func (mr *MessageReader) ReadResponse() (*Response, error) {
	line, err := mr.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read status line: %w", err)
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid status line: %s", line)
	}

	statusCode, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %s", parts[1])
	}

	response := &Response{
		Version:    parts[0],
		StatusCode: statusCode,
	}
	if len(parts) == 3 {
		response.StatusText = parts[2]
	}

	for {
		line, err := mr.readLine()
		if err != nil {
			return nil, fmt.Errorf("failed to read headers: %w", err)
		}

		colonIndex := strings.Index(line, ":")
		if colonIndex == -1 {
			return nil, fmt.Errorf("invalid header line: %s", line)
		}

		key := strings.TrimSpace(line[:colonIndex])
		value := strings.TrimSpace(line[colonIndex+1:])
		response.SetHeader(key, value)

		switch key {
		case HeaderSession:
			return response, nil
		case HeaderContentLength:
			contentLength, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid content length: %s", value)
			}
			response.Body = make([]byte, contentLength)
			if _, err := io.ReadFull(mr.reader, response.Body); err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			return response, nil
		}
	}
}

// readLine reads a line from the reader (removes \r\n)
func (mr *MessageReader) readLine() (string, error) {
	line, err := mr.reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	line = strings.TrimRight(line, "\r\n")
	return line, nil
}
