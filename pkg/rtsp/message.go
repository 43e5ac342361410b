package rtsp

import (
	"fmt"
	"strconv"
	"strings"
)

// Request represents an RTSP request
type Request struct {
	Method     string
	URI        string // resource named on the request line, if any
	CSeq       int
	ClientPort int // SETUP only: client RTP receive port
	SessionID  int // PLAY, PAUSE, TEARDOWN only
}

type header struct {
	key   string
	value string
}

// Response represents an RTSP response
type Response struct {
	Version    string
	StatusCode int
	StatusText string
	Headers    []header
	Body       []byte
}

// ParseRequest parses the three lines of a request: the request line, the
// CSeq line and a method dependent last line.
func ParseRequest(requestLine, cseqLine, lastLine string) (*Request, error) {
	tokens := strings.Fields(requestLine)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty request line", ErrProtocol)
	}

	req := &Request{Method: tokens[0]}
	switch req.Method {
	case MethodSetup, MethodPlay, MethodPause, MethodTeardown, MethodDescribe:
	default:
		return nil, fmt.Errorf("%w: unrecognized method %q", ErrProtocol, req.Method)
	}

	if len(tokens) > 1 && tokens[1] != RTSPVersion {
		req.URI = tokens[1]
	}
	if req.Method == MethodSetup && req.URI == "" {
		return nil, fmt.Errorf("%w: SETUP without resource", ErrFormat)
	}

	cseq, err := secondTokenInt(cseqLine)
	if err != nil {
		return nil, fmt.Errorf("%w: CSeq: %v", ErrFormat, err)
	}
	req.CSeq = cseq

	switch req.Method {
	case MethodSetup:
		port, err := parseClientPort(lastLine)
		if err != nil {
			return nil, fmt.Errorf("%w: Transport: %v", ErrFormat, err)
		}
		req.ClientPort = port
	case MethodDescribe:
		// last line carries nothing we use
	default:
		id, err := secondTokenInt(lastLine)
		if err != nil {
			return nil, fmt.Errorf("%w: Session: %v", ErrFormat, err)
		}
		req.SessionID = id
	}

	return req, nil
}

// secondTokenInt parses lines of the form "<Name>: <n>"
func secondTokenInt(line string) (int, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return 0, fmt.Errorf("missing value in %q", line)
	}
	return strconv.Atoi(tokens[1])
}

// parseClientPort extracts the client RTP port from a transport line. The
// port is the client_port parameter when present (first of a range),
// otherwise the last token of the line.
func parseClientPort(line string) (int, error) {
	if i := strings.Index(line, TransportClientKey); i >= 0 {
		value := strings.TrimLeft(line[i+len(TransportClientKey):], " \t")
		if j := strings.IndexAny(value, ";- \t"); j >= 0 {
			value = value[:j]
		}
		return parsePort(value)
	}

	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ';' || r == '='
	})
	if len(tokens) == 0 {
		return 0, fmt.Errorf("missing client port in %q", line)
	}
	return parsePort(tokens[len(tokens)-1])
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// String returns the request in its three-line wire form
func (r *Request) String() string {
	var sb strings.Builder

	if r.URI != "" {
		sb.WriteString(fmt.Sprintf("%s %s %s\r\n", r.Method, r.URI, RTSPVersion))
	} else {
		sb.WriteString(fmt.Sprintf("%s %s\r\n", r.Method, RTSPVersion))
	}
	sb.WriteString(fmt.Sprintf("%s: %d\r\n", HeaderCSeq, r.CSeq))

	switch r.Method {
	case MethodSetup:
		sb.WriteString(fmt.Sprintf("%s: %s;%s;%s%d\r\n", HeaderTransport, TransportRTPUDP, TransportUnicast, TransportClientKey, r.ClientPort))
	case MethodDescribe:
		sb.WriteString("Accept: " + ContentTypeSDP + "\r\n")
	default:
		sb.WriteString(fmt.Sprintf("%s: %d\r\n", HeaderSession, r.SessionID))
	}

	return sb.String()
}

// Bytes returns the byte representation of the request
func (r *Request) Bytes() []byte {
	return []byte(r.String())
}

// NewResponse creates a new RTSP response
func NewResponse(statusCode int) *Response {
	return &Response{
		Version:    RTSPVersion,
		StatusCode: statusCode,
		StatusText: getStatusText(statusCode),
	}
}

// SetHeader sets a header value, keeping insertion order
func (r *Response) SetHeader(key, value string) {
	for i := range r.Headers {
		if r.Headers[i].key == key {
			r.Headers[i].value = value
			return
		}
	}
	r.Headers = append(r.Headers, header{key: key, value: value})
}

// GetHeader gets a header value
func (r *Response) GetHeader(key string) string {
	for _, h := range r.Headers {
		if h.key == key {
			return h.value
		}
	}
	return ""
}

// SetCSeq sets the CSeq header
func (r *Response) SetCSeq(cseq int) {
	r.SetHeader(HeaderCSeq, strconv.Itoa(cseq))
}

// CSeq returns the CSeq header as an integer, or -1
func (r *Response) CSeq() int {
	cseq, err := strconv.Atoi(r.GetHeader(HeaderCSeq))
	if err != nil {
		return -1
	}
	return cseq
}

// String returns the string representation of the response. Header lines
// are not followed by a blank line; a body, if any, follows directly.
func (r *Response) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %d %s\r\n", r.Version, r.StatusCode, r.StatusText))

	for _, h := range r.Headers {
		sb.WriteString(fmt.Sprintf("%s: %s\r\n", h.key, h.value))
	}

	if len(r.Body) > 0 {
		sb.Write(r.Body)
	}

	return sb.String()
}

// Bytes returns the byte representation of the response
func (r *Response) Bytes() []byte {
	return []byte(r.String())
}

// getStatusText returns the standard status text for a status code
func getStatusText(statusCode int) string {
	switch statusCode {
	case StatusOK:
		return "OK"
	default:
		return "Unknown"
	}
}
