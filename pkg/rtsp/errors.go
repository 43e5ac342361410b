package rtsp

import "errors"

var (
	// ErrProtocol marks a request with an unrecognized method. The request
	// is dropped and the session continues.
	ErrProtocol = errors.New("rtsp: protocol error")

	// ErrFormat marks a request whose required field does not parse. It is
	// fatal to the session.
	ErrFormat = errors.New("rtsp: format error")

	// ErrTransport marks an I/O failure on the control, RTP or RTCP channel,
	// or of the frame source. It is fatal to the session.
	ErrTransport = errors.New("rtsp: transport error")
)
