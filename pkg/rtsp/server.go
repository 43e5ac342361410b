package rtsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"mjstream/pkg/rtp"
)

// RTSPConfig represents RTSP server and session configuration
type RTSPConfig struct {
	Port            int
	SessionID       int
	RTCPPort        int
	RTCPInterval    time.Duration
	RTCPPollTimeout time.Duration
	ControlInterval time.Duration
	FramePeriod     time.Duration
	VideoLength     int
	PayloadType     uint8
	SSRC            uint32
	MimeFormat      string

	// OpenSource resolves the resource named in SETUP to a frame source
	OpenSource func(resource string) (rtp.FrameSource, error)
	// Encoder re-compresses frames while congestion is reported
	Encoder rtp.Encoder
}

// DefaultRTSPConfig returns the default settings without collaborators
func DefaultRTSPConfig() RTSPConfig {
	return RTSPConfig{
		Port:            DefaultRTSPPort,
		SessionID:       DefaultSessionID,
		RTCPPort:        DefaultRTCPPort,
		RTCPInterval:    400 * time.Millisecond,
		RTCPPollTimeout: 100 * time.Millisecond,
		ControlInterval: 400 * time.Millisecond,
		FramePeriod:     50 * time.Millisecond,
		VideoLength:     500,
		PayloadType:     rtp.PayloadTypeMJPEG,
		SSRC:            rtp.DefaultSSRC,
		MimeFormat:      "MJPEG",
	}
}

// Server accepts exactly one control connection and runs its session
type Server struct {
	config   RTSPConfig
	channel  chan<- any
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	session *Session
}

// NewServer creates a new RTSP server. Session events are sent to channel.
func NewServer(config RTSPConfig, channel chan<- any) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:  config,
		channel: channel,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts listening and accepts the single client in the background
func (s *Server) Start() error {
	ln, err := s.createListener()
	if err != nil {
		return err
	}
	s.listener = ln

	go s.acceptConnection(ln)

	slog.Info("RTSP server listening", "addr", ln.Addr())
	return nil
}

// Addr returns the control listener address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Session returns the active session, or nil before a client connected
func (s *Server) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Stop stops the RTSP server
func (s *Server) Stop() {
	slog.Info("RTSP Server stopping...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("Error closing RTSP listener", "err", err)
		}
	}

	if session := s.Session(); session != nil {
		session.Stop()
	}

	slog.Info("RTSP Server stopped successfully")
}

// createListener creates a TCP listener
func (s *Server) createListener() (net.Listener, error) {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("Error starting RTSP server", "err", err)
		return nil, fmt.Errorf("%w: listen %s: %w", ErrTransport, addr, err)
	}

	return ln, nil
}

// acceptConnection accepts one connection, closes the listener and runs
// the session until it ends.
func (s *Server) acceptConnection(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-s.ctx.Done():
			slog.Info("RTSP accept loop stopped (listener closed)")
		default:
			slog.Error("RTSP accept failed", "err", err)
			s.emit(SessionFailed{SessionId: s.config.SessionID, Err: fmt.Errorf("%w: accept: %w", ErrTransport, err)})
		}
		return
	}
	closeWithLog(ln)

	if s.ctx.Err() != nil {
		closeWithLog(conn)
		return
	}

	session := NewSession(conn, s.config, s.channel)
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	slog.Info("New RTSP session created", "sessionId", session.ID(), "remoteAddr", conn.RemoteAddr())

	if err := session.Run(); err != nil {
		s.emit(SessionFailed{SessionId: session.ID(), Err: err})
	}
}

func (s *Server) emit(event any) {
	if s.channel == nil {
		return
	}
	select {
	case s.channel <- event:
	default:
		slog.Warn("Dropping server event", "event", fmt.Sprintf("%T", event))
	}
}

// closeWithLog closes a resource with logging
func closeWithLog(c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Error closing resource", "err", err)
	}
}
