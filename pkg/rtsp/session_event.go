package rtsp

// StateChanged is emitted after every validated transition
type StateChanged struct {
	SessionId int
	From      SessionState
	To        SessionState
}

// SessionTerminated is emitted once TEARDOWN has released the session.
// The host shuts down on receipt.
type SessionTerminated struct {
	SessionId int
}

// SessionFailed carries a fatal error from the control loop, the frame
// sender or the RTCP listener.
type SessionFailed struct {
	SessionId int
	Err       error
}
