package mjstream

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"mjstream/pkg/media"
	"mjstream/pkg/rtp"
	"mjstream/pkg/rtsp"
)

// Server는 RTSP 서버를 띄우고 세션 이벤트를 처리합니다.
// 세션이 TEARDOWN 되거나 실패하면 프로세스가 종료됩니다.
type Server struct {
	config  *Config
	ticker  *time.Ticker
	rtsp    *rtsp.Server
	channel chan any
	done    chan struct{} // 종료 완료 신호 채널
	stop    chan struct{} // 이벤트 루프 종료 신호 채널

	stopOnce sync.Once
	mu       sync.Mutex
	err      error
}

func NewServer(config *Config) *Server {
	channel := make(chan any, 10)

	// 미디어 파일 소스와 JPEG 재인코더 연결
	settings := config.RTSPSettings()
	settings.OpenSource = func(resource string) (rtp.FrameSource, error) {
		stream, err := media.OpenVideoStream(filepath.Join(config.Stream.MediaDir, resource), config.Stream.MaxFrameSize)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
	settings.Encoder = media.NewJPEGEncoder()

	return &Server{
		config:  config,
		channel: channel,
		rtsp:    rtsp.NewServer(settings, channel),
		ticker:  newStatsTicker(config.Logging.StatsIntervalMs),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// newStatsTicker는 통계 로그가 꺼져 있으면 멈춘 티커를 반환합니다.
func newStatsTicker(intervalMs int) *time.Ticker {
	if intervalMs <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
}

func (s *Server) Start() error {
	slog.Info("Start Server", "rtspPort", s.config.RTSP.Port, "rtcpPort", s.config.RTCP.Port, "mediaDir", s.config.Stream.MediaDir)
	if err := s.rtsp.Start(); err != nil {
		return fmt.Errorf("start rtsp server: %w", err)
	}

	// 이벤트 루프를 고루틴으로 시작
	go s.eventLoop()
	return nil
}

// Addr returns the RTSP listener address
func (s *Server) Addr() string {
	if addr := s.rtsp.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Done is closed when the server has shut down, either through Stop or
// because the session ended.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop은 서버를 종료합니다. 여러 번 호출해도 안전합니다.
func (s *Server) Stop() {
	s.shutdown(nil)
}

func (s *Server) shutdown(err error) {
	s.stopOnce.Do(func() {
		slog.Info("Stopping mjstream server...")

		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		// 1. RTSP 서버 및 세션 종료
		s.rtsp.Stop()

		// 2. 티커 종료
		s.ticker.Stop()

		// 3. 이벤트 루프 종료
		close(s.stop)

		slog.Info("mjstream server stopped successfully")
		close(s.done)
	})
}

func (s *Server) eventLoop() {
	for {
		select {
		case data := <-s.channel:
			s.channelHandler(data)
		case <-s.ticker.C:
			s.logStats()
		case <-s.stop:
			slog.Info("mjstream event loop stopping...")
			return
		}
	}
}

func (s *Server) channelHandler(data any) {
	switch v := data.(type) {
	case rtsp.StateChanged:
		slog.Debug("Session state changed", "sessionId", v.SessionId, "from", v.From, "to", v.To)
	case rtsp.SessionTerminated:
		slog.Info("Session terminated, shutting down", "sessionId", v.SessionId)
		go s.shutdown(nil)
	case rtsp.SessionFailed:
		slog.Error("Session failed, shutting down", "sessionId", v.SessionId, "err", v.Err)
		go s.shutdown(v.Err)
	default:
		slog.Warn("Unknown event type", "type", fmt.Sprintf("%T", data))
	}
}

func (s *Server) logStats() {
	session := s.rtsp.Session()
	if session == nil {
		slog.Info("Waiting for RTSP client")
		return
	}

	stats := session.Stats()
	slog.Info("Session stats",
		"state", stats.State,
		"resource", stats.Resource,
		"framesSent", stats.FramesSent,
		"loss", stats.LossFraction,
		"level", stats.Level,
		"sendDelay", stats.SendDelay)
}
