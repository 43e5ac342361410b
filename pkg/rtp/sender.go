package rtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mjstream/pkg/sched"
)

// FrameSource yields frame payloads in order
type FrameSource interface {
	NextFrame() ([]byte, error)
}

// Encoder re-compresses a frame at a quality in [0,1]
type Encoder interface {
	Reencode(frame []byte, quality float64) ([]byte, error)
}

// LevelSource reports the current congestion level (0-4)
type LevelSource interface {
	Level() int
}

// SenderConfig holds the stream parameters of a Sender
type SenderConfig struct {
	PayloadType uint8
	SSRC        uint32
	FramePeriod time.Duration
	VideoLength int
}

// Sender sends one frame per tick to a single client as RTP over UDP.
// Frames are re-encoded at reduced quality while congestion is reported,
// and the tick period stretches with the congestion level.
type Sender struct {
	config  SenderConfig
	conn    net.PacketConn
	dest    net.Addr
	source  FrameSource
	encoder Encoder
	levels  LevelSource
	task    *sched.Task

	framesSent atomic.Int64
	sendDelay  atomic.Int64

	mu         sync.Mutex
	onComplete func()
}

// NewSender creates an idle sender. onError receives fatal failures of the
// frame source, the encoder or the socket.
func NewSender(config SenderConfig, conn net.PacketConn, dest net.Addr, source FrameSource, encoder Encoder, levels LevelSource, onError func(error)) *Sender {
	s := &Sender{
		config:  config,
		conn:    conn,
		dest:    dest,
		source:  source,
		encoder: encoder,
		levels:  levels,
	}
	s.sendDelay.Store(int64(config.FramePeriod))

	opts := []sched.Option{sched.WithImmediateStart()}
	if onError != nil {
		opts = append(opts, sched.WithErrorHandler(onError))
	}
	s.task = sched.New("rtp-sender", config.FramePeriod, s.tick, opts...)

	return s
}

// OnComplete registers a callback run once the whole video has been sent
func (s *Sender) OnComplete(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// Start starts or resumes sending
func (s *Sender) Start() {
	s.task.Start()
}

// Stop pauses sending and waits for an in-flight frame
func (s *Sender) Stop() {
	s.task.Stop()
}

// Running reports whether the send timer is active
func (s *Sender) Running() bool {
	return s.task.Running()
}

// FramesSent returns the number of frames transmitted so far
func (s *Sender) FramesSent() int {
	return int(s.framesSent.Load())
}

// SendDelay returns the current frame send period
func (s *Sender) SendDelay() time.Duration {
	return time.Duration(s.sendDelay.Load())
}

// DelayFor returns the send period for a congestion level: the frame
// period plus a tenth of it per level.
func DelayFor(framePeriod time.Duration, level int) time.Duration {
	return framePeriod + time.Duration(level)*(framePeriod/10)
}

// AdjustRate reconfigures the send period for a new congestion level
func (s *Sender) AdjustRate(level int) {
	delay := DelayFor(s.config.FramePeriod, level)
	s.sendDelay.Store(int64(delay))
	s.task.SetPeriod(delay)
	slog.Info("Send delay changed", "level", level, "delay", delay)
}

// Quality returns the re-encode quality for a congestion level
func Quality(level int) float64 {
	return 1.0 - float64(level)*0.2
}

func (s *Sender) tick(ctx context.Context) error {
	sent := int(s.framesSent.Load())
	if sent >= s.config.VideoLength {
		slog.Info("Video fully sent", "frames", sent)
		s.mu.Lock()
		fn := s.onComplete
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
		return sched.ErrStop
	}

	frame, err := s.source.NextFrame()
	if err != nil {
		return fmt.Errorf("frame %d of %d: %w", sent+1, s.config.VideoLength, err)
	}

	if level := s.levels.Level(); level > 0 {
		quality := Quality(level)
		frame, err = s.encoder.Reencode(frame, quality)
		if err != nil {
			return fmt.Errorf("re-encode frame %d at quality %.1f: %w", sent+1, quality, err)
		}
	}

	seq := sent + 1
	timestamp := uint32(seq) * uint32(s.config.FramePeriod/time.Millisecond)
	data := Encode(s.config.PayloadType, uint16(seq), timestamp, s.config.SSRC, frame)

	if _, err := s.conn.WriteTo(data, s.dest); err != nil {
		return fmt.Errorf("send rtp frame %d: %w", seq, err)
	}

	s.framesSent.Store(int64(seq))
	slog.Debug("RTP packet sent", "seq", seq, "ts", timestamp, "frameSize", len(frame), "dest", s.dest)
	return nil
}
