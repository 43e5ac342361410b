package rtsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"mjstream/pkg/rtcp"
	"mjstream/pkg/rtp"
	"mjstream/pkg/sched"
)

// SessionState represents the current state of an RTSP session
type SessionState int

const (
	StateInit SessionState = iota
	StateReady
	StatePlaying
	StateTerminated
)

// String returns the string representation of the session state
func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// validMethods lists the requests each state acts on. Anything else is
// dropped without a response.
var validMethods = map[SessionState]map[string]bool{
	StateInit:    {MethodSetup: true, MethodDescribe: true},
	StateReady:   {MethodPlay: true, MethodTeardown: true, MethodDescribe: true},
	StatePlaying: {MethodPause: true, MethodTeardown: true, MethodDescribe: true},
}

// SessionStats is a snapshot for periodic logging
type SessionStats struct {
	State        SessionState
	Resource     string
	FramesSent   int
	LossFraction float64
	Level        int
	SendDelay    time.Duration
}

// Session is the single streaming session of the server. The control loop
// in Run is the only writer of the state; the sender, the RTCP listener and
// the congestion controller run on their own schedules.
type Session struct {
	sessionId       int
	conn            net.Conn
	reader          *MessageReader
	writer          *MessageWriter
	config          RTSPConfig
	externalChannel chan<- any

	mu     sync.RWMutex
	state  SessionState
	echoId int // Session value of the last PLAY, PAUSE or TEARDOWN

	resource   string
	clientAddr *net.UDPAddr
	source     rtp.FrameSource
	rtpConn    net.PacketConn
	estimator  *rtcp.Estimator
	listener   *rtcp.Listener
	sender     *rtp.Sender
	controller *sched.Task

	releaseOnce sync.Once
}

// NewSession creates a session on an accepted control connection
func NewSession(conn net.Conn, config RTSPConfig, externalChannel chan<- any) *Session {
	return &Session{
		sessionId:       config.SessionID,
		conn:            conn,
		reader:          NewMessageReader(conn),
		writer:          NewMessageWriter(conn),
		config:          config,
		externalChannel: externalChannel,
		state:           StateInit,
		echoId:          config.SessionID,
	}
}

// ID returns the configured session id used in events
func (s *Session) ID() int {
	return s.sessionId
}

// EchoID returns the session id sent in responses. It starts as the
// configured id and follows the Session header of PLAY, PAUSE and TEARDOWN.
func (s *Session) EchoID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.echoId
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState records a transition; a terminated session stays terminated
func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	from := s.state
	if from == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	slog.Info("New RTSP state", "sessionId", s.sessionId, "from", from, "to", state)
	s.emit(StateChanged{SessionId: s.sessionId, From: from, To: state})
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SessionStats{State: s.state, Resource: s.resource}
	if s.sender != nil {
		stats.FramesSent = s.sender.FramesSent()
		stats.SendDelay = s.sender.SendDelay()
	}
	if s.estimator != nil {
		stats.LossFraction = s.estimator.LossFraction()
		stats.Level = s.estimator.Level()
	}
	return stats
}

// RTCPAddr returns the bound RTCP address once SETUP has completed
func (s *Session) RTCPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.LocalAddr()
}

// Run reads and dispatches requests until TEARDOWN or a fatal error. One
// request is fully handled before the next one is read.
func (s *Session) Run() error {
	slog.Info("RTSP session started", "sessionId", s.sessionId, "remoteAddr", s.conn.RemoteAddr())

	for s.State() != StateTerminated {
		request, err := s.reader.ReadRequest()
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				slog.Warn("Dropping RTSP request", "sessionId", s.sessionId, "err", err)
				continue
			}
			if s.State() == StateTerminated {
				return nil
			}
			s.release()
			return err
		}

		slog.Debug("RTSP request received", "sessionId", s.sessionId, "method", request.Method, "uri", request.URI, "cseq", request.CSeq)

		switch request.Method {
		case MethodPlay, MethodPause, MethodTeardown:
			s.mu.Lock()
			s.echoId = request.SessionID
			s.mu.Unlock()
		}

		if !validMethods[s.State()][request.Method] {
			slog.Info("Ignoring RTSP request not valid in this state", "sessionId", s.sessionId, "method", request.Method, "state", s.State())
			continue
		}

		if err := s.handleRequest(request); err != nil {
			slog.Error("Failed to handle RTSP request", "sessionId", s.sessionId, "method", request.Method, "err", err)
			s.release()
			return err
		}
	}

	return nil
}

// Stop terminates the session from outside the control loop
func (s *Session) Stop() {
	slog.Info("RTSP session stopping", "sessionId", s.sessionId)

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	s.release()
}

// handleRequest handles a specific RTSP request
func (s *Session) handleRequest(req *Request) error {
	switch req.Method {
	case MethodSetup:
		return s.handleSetup(req)
	case MethodPlay:
		return s.handlePlay(req)
	case MethodPause:
		return s.handlePause(req)
	case MethodTeardown:
		return s.handleTeardown(req)
	case MethodDescribe:
		return s.handleDescribe(req)
	default:
		return fmt.Errorf("%w: unhandled method %s", ErrProtocol, req.Method)
	}
}

// handleSetup answers SETUP, then opens the frame source and both UDP
// sockets. The RTCP listener stays idle until PLAY.
func (s *Session) handleSetup(req *Request) error {
	s.mu.Lock()
	s.resource = req.URI
	s.mu.Unlock()

	s.setState(StateReady)
	if err := s.sendOK(req); err != nil {
		return err
	}

	clientIP, err := remoteIP(s.conn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	source, err := s.config.OpenSource(req.URI)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrTransport, req.URI, err)
	}

	rtpConn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		closeSource(source)
		return fmt.Errorf("%w: open rtp socket: %w", ErrTransport, err)
	}

	rtcpConn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", s.config.RTCPPort))
	if err != nil {
		closeSource(source)
		closeWithLog(rtpConn)
		return fmt.Errorf("%w: open rtcp socket: %w", ErrTransport, err)
	}

	clientAddr := &net.UDPAddr{IP: clientIP, Port: req.ClientPort}
	estimator := rtcp.NewEstimator()
	listener := rtcp.NewListener(rtcpConn, estimator, s.config.RTCPInterval, s.config.RTCPPollTimeout, s.fail)
	sender := rtp.NewSender(rtp.SenderConfig{
		PayloadType: s.config.PayloadType,
		SSRC:        s.config.SSRC,
		FramePeriod: s.config.FramePeriod,
		VideoLength: s.config.VideoLength,
	}, rtpConn, clientAddr, source, s.config.Encoder, estimator, s.fail)
	sender.OnComplete(listener.Stop)

	s.mu.Lock()
	if s.state == StateTerminated {
		// stopped while setting up; release already ran without these
		s.mu.Unlock()
		if err := listener.Close(); err != nil {
			slog.Error("Error closing RTCP socket", "err", err)
		}
		closeWithLog(rtpConn)
		closeSource(source)
		slog.Info("RTSP session stopped during SETUP", "sessionId", s.sessionId)
		return nil
	}
	s.clientAddr = clientAddr
	s.source = source
	s.rtpConn = rtpConn
	s.estimator = estimator
	s.listener = listener
	s.sender = sender
	s.controller = sched.New("congestion-controller", s.config.ControlInterval, s.control)
	s.controller.Start()
	s.mu.Unlock()

	slog.Info("RTSP session set up", "sessionId", s.sessionId, "resource", req.URI,
		"clientRTP", clientAddr, "rtcp", rtcpConn.LocalAddr())
	return nil
}

// handlePlay starts or resumes the RTCP listener and the frame sender. The
// listener goes first so a sender that has already finished the video can
// stop it again.
func (s *Session) handlePlay(req *Request) error {
	if err := s.sendOK(req); err != nil {
		return err
	}

	s.listener.Start()
	s.sender.Start()
	s.setState(StatePlaying)
	return nil
}

// handlePause stops sending and listening; congestion state is kept
func (s *Session) handlePause(req *Request) error {
	if err := s.sendOK(req); err != nil {
		return err
	}

	s.sender.Stop()
	s.listener.Stop()
	s.setState(StateReady)
	return nil
}

// handleTeardown releases everything and tells the host to shut down
func (s *Session) handleTeardown(req *Request) error {
	slog.Info("Tearing down RTSP session", "sessionId", s.sessionId)

	if err := s.sendOK(req); err != nil {
		slog.Warn("Failed to answer TEARDOWN", "sessionId", s.sessionId, "err", err)
	}

	s.release()
	s.setState(StateTerminated)
	s.emit(SessionTerminated{SessionId: s.sessionId})
	return nil
}

// handleDescribe answers with a session description; state is unchanged
func (s *Session) handleDescribe(req *Request) error {
	s.mu.RLock()
	base := s.resource
	s.mu.RUnlock()
	if base == "" {
		base = req.URI
	}

	sdp := s.generateSDP()

	response := NewResponse(StatusOK)
	response.SetCSeq(req.CSeq)
	response.SetHeader(HeaderContentBase, base)
	response.SetHeader(HeaderContentType, ContentTypeSDP)
	response.SetHeader(HeaderContentLength, strconv.Itoa(len(sdp)))
	response.Body = []byte(sdp)

	return s.writeResponse(response)
}

// generateSDP builds the DESCRIBE body
func (s *Session) generateSDP() string {
	return fmt.Sprintf("v=0\r\nm=video %d RTP/AVP %d\r\na=control:streamid=%d\r\na=mimetype:string;\"video/%s\"\r\n",
		s.config.Port, s.config.PayloadType, s.EchoID(), s.config.MimeFormat)
}

// sendOK sends the 200 response shared by SETUP, PLAY, PAUSE and TEARDOWN
func (s *Session) sendOK(req *Request) error {
	response := NewResponse(StatusOK)
	response.SetCSeq(req.CSeq)
	response.SetHeader(HeaderSession, strconv.Itoa(s.EchoID()))

	return s.writeResponse(response)
}

func (s *Session) writeResponse(response *Response) error {
	if err := s.writer.WriteResponse(response); err != nil {
		return fmt.Errorf("%w: write response: %w", ErrTransport, err)
	}
	slog.Debug("RTSP response sent", "sessionId", s.sessionId, "cseq", response.GetHeader(HeaderCSeq))
	return nil
}

// control is the congestion controller tick: it retunes the send period
// only when the level changed since the previous tick.
func (s *Session) control(ctx context.Context) error {
	if adj, ok := s.estimator.Sample(); ok {
		slog.Info("Congestion level changed", "sessionId", s.sessionId, "from", adj.PreviousLevel, "to", adj.Level, "loss", s.estimator.LossFraction())
		s.sender.AdjustRate(adj.Level)
	}
	return nil
}

// fail reports a fatal error raised by a periodic task
func (s *Session) fail(err error) {
	if s.State() == StateTerminated {
		slog.Debug("Ignoring error after termination", "sessionId", s.sessionId, "err", err)
		return
	}
	if !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	slog.Error("RTSP session failed", "sessionId", s.sessionId, "err", err)
	s.emit(SessionFailed{SessionId: s.sessionId, Err: err})
}

// release stops every periodic task before closing the sockets, the frame
// source and the control connection.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.mu.RLock()
		controller, sender, listener := s.controller, s.sender, s.listener
		rtpConn, source := s.rtpConn, s.source
		s.mu.RUnlock()

		if controller != nil {
			controller.Stop()
		}
		if sender != nil {
			sender.Stop()
		}
		if listener != nil {
			if err := listener.Close(); err != nil {
				slog.Error("Error closing RTCP socket", "err", err)
			}
		}
		if rtpConn != nil {
			closeWithLog(rtpConn)
		}
		closeSource(source)
		closeWithLog(s.conn)

		slog.Info("RTSP session resources released", "sessionId", s.sessionId)
	})
}

func (s *Session) emit(event any) {
	if s.externalChannel == nil {
		return
	}
	select {
	case s.externalChannel <- event:
	default:
		slog.Warn("Dropping session event", "sessionId", s.sessionId, "event", fmt.Sprintf("%T", event))
	}
}

func remoteIP(conn net.Conn) (net.IP, error) {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP, nil
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("client address %q: %w", conn.RemoteAddr(), err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("client address %q is not an IP", conn.RemoteAddr())
	}
	return ip, nil
}

func closeSource(source rtp.FrameSource) {
	if c, ok := source.(io.Closer); ok {
		closeWithLog(c)
	}
}
