package rtsp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	cases := []struct {
		name  string
		lines [3]string
		want  Request
	}{
		{
			name:  "setup",
			lines: [3]string{"SETUP movie.Mjpeg RTSP/1.0", "CSeq: 1", "Transport: RTP/AVP;unicast;client_port=5000"},
			want:  Request{Method: MethodSetup, URI: "movie.Mjpeg", CSeq: 1, ClientPort: 5000},
		},
		{
			name:  "setup with port range",
			lines: [3]string{"SETUP movie.Mjpeg RTSP/1.0", "CSeq: 3", "Transport: RTP/AVP;unicast;client_port=5000-5001"},
			want:  Request{Method: MethodSetup, URI: "movie.Mjpeg", CSeq: 3, ClientPort: 5000},
		},
		{
			name:  "setup with trailing port",
			lines: [3]string{"SETUP movie.Mjpeg RTSP/1.0", "CSeq: 1", "Transport: RTP/UDP; client_port= 25000"},
			want:  Request{Method: MethodSetup, URI: "movie.Mjpeg", CSeq: 1, ClientPort: 25000},
		},
		{
			name:  "play",
			lines: [3]string{"PLAY movie.Mjpeg RTSP/1.0", "CSeq: 2", "Session: 123456"},
			want:  Request{Method: MethodPlay, URI: "movie.Mjpeg", CSeq: 2, SessionID: 123456},
		},
		{
			name:  "teardown without resource",
			lines: [3]string{"TEARDOWN RTSP/1.0", "CSeq: 9", "Session: 7"},
			want:  Request{Method: MethodTeardown, CSeq: 9, SessionID: 7},
		},
		{
			name:  "describe ignores last line",
			lines: [3]string{"DESCRIBE movie.Mjpeg RTSP/1.0", "CSeq: 4", "Accept: application/sdp"},
			want:  Request{Method: MethodDescribe, URI: "movie.Mjpeg", CSeq: 4},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseRequest(tc.lines[0], tc.lines[1], tc.lines[2])
			require.NoError(t, err)
			assert.Equal(t, tc.want, *req)
		})
	}
}

func TestParseRequestErrors(t *testing.T) {
	cases := []struct {
		name  string
		lines [3]string
		want  error
	}{
		{"unknown method", [3]string{"OPTIONS * RTSP/1.0", "CSeq: 1", ""}, ErrProtocol},
		{"empty request line", [3]string{"", "CSeq: 1", ""}, ErrProtocol},
		{"bad cseq", [3]string{"PLAY RTSP/1.0", "CSeq: one", "Session: 1"}, ErrFormat},
		{"missing cseq", [3]string{"PLAY RTSP/1.0", "CSeq:", "Session: 1"}, ErrFormat},
		{"bad session", [3]string{"PAUSE RTSP/1.0", "CSeq: 1", "Session: abc"}, ErrFormat},
		{"bad port", [3]string{"SETUP movie.Mjpeg RTSP/1.0", "CSeq: 1", "Transport: RTP/AVP;unicast;client_port=x"}, ErrFormat},
		{"port out of range", [3]string{"SETUP movie.Mjpeg RTSP/1.0", "CSeq: 1", "Transport: RTP/AVP;unicast;client_port=70000"}, ErrFormat},
		{"setup without resource", [3]string{"SETUP RTSP/1.0", "CSeq: 1", "Transport: client_port=5000"}, ErrFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest(tc.lines[0], tc.lines[1], tc.lines[2])
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReadRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewMessageWriter(&buf)

	setup := &Request{Method: MethodSetup, URI: "movie.Mjpeg", CSeq: 1, ClientPort: 5000}
	play := &Request{Method: MethodPlay, URI: "movie.Mjpeg", CSeq: 2, SessionID: 123456}
	require.NoError(t, w.WriteRequest(setup))
	buf.WriteString("\r\n")
	require.NoError(t, w.WriteRequest(play))

	r := NewMessageReader(&buf)
	got, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, setup, got)

	got, err = r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, play, got)

	_, err = r.ReadRequest()
	assert.ErrorIs(t, err, ErrTransport)
}

func TestResponseWireFormat(t *testing.T) {
	resp := NewResponse(StatusOK)
	resp.SetCSeq(5)
	resp.SetHeader(HeaderSession, "123456")

	assert.Equal(t, "RTSP/1.0 200 OK\r\nCSeq: 5\r\nSession: 123456\r\n", resp.String())

	parsed, err := NewMessageReader(strings.NewReader(resp.String())).ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, StatusOK, parsed.StatusCode)
	assert.Equal(t, 5, parsed.CSeq())
	assert.Equal(t, "123456", parsed.GetHeader(HeaderSession))
}

func TestDescribeResponseWireFormat(t *testing.T) {
	body := "v=0\r\n"
	resp := NewResponse(StatusOK)
	resp.SetCSeq(2)
	resp.SetHeader(HeaderContentBase, "movie.Mjpeg")
	resp.SetHeader(HeaderContentType, ContentTypeSDP)
	resp.SetHeader(HeaderContentLength, "5")
	resp.Body = []byte(body)

	assert.Equal(t, "RTSP/1.0 200 OK\r\nCSeq: 2\r\nContent-Base: movie.Mjpeg\r\n"+
		"Content-Type: application/sdp\r\nContent-Length: 5\r\nv=0\r\n", resp.String())

	parsed, err := NewMessageReader(strings.NewReader(resp.String())).ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, body, string(parsed.Body))
}
