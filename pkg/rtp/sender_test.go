package rtp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterSource struct {
	mu    sync.Mutex
	n     int
	limit int
}

func (s *counterSource) NextFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.n >= s.limit {
		return nil, errors.New("end of stream")
	}
	s.n++
	return []byte(fmt.Sprintf("frame-%d", s.n)), nil
}

type recordingEncoder struct {
	mu        sync.Mutex
	qualities []float64
}

func (e *recordingEncoder) Reencode(frame []byte, quality float64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.qualities = append(e.qualities, quality)
	return []byte(fmt.Sprintf("%s@%.1f", frame, quality)), nil
}

func (e *recordingEncoder) Qualities() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.qualities...)
}

type fixedLevel struct{ level atomic.Int32 }

func (l *fixedLevel) Level() int { return int(l.level.Load()) }

type senderHarness struct {
	sender   *Sender
	receiver *net.UDPConn
	encoder  *recordingEncoder
	levels   *fixedLevel
	errs     chan error
}

func newSenderHarness(t *testing.T, source FrameSource, videoLength int) *senderHarness {
	t.Helper()

	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = receiver.Close() })

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	h := &senderHarness{
		receiver: receiver,
		encoder:  &recordingEncoder{},
		levels:   &fixedLevel{},
		errs:     make(chan error, 1),
	}
	h.sender = NewSender(SenderConfig{
		PayloadType: PayloadTypeMJPEG,
		SSRC:        DefaultSSRC,
		FramePeriod: 2 * time.Millisecond,
		VideoLength: videoLength,
	}, conn, receiver.LocalAddr(), source, h.encoder, h.levels, func(err error) { h.errs <- err })
	t.Cleanup(h.sender.Stop)

	return h
}

func (h *senderHarness) receive(t *testing.T) *RTPPacket {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, h.receiver.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := h.receiver.ReadFromUDP(buf)
	require.NoError(t, err)
	packet, err := Decode(buf[:n])
	require.NoError(t, err)
	return packet
}

func TestSenderSendsWholeVideoThenStops(t *testing.T) {
	h := newSenderHarness(t, &counterSource{}, 5)

	completed := make(chan struct{})
	h.sender.OnComplete(func() { close(completed) })
	h.sender.Start()

	for i := 1; i <= 5; i++ {
		packet := h.receive(t)
		assert.Equal(t, uint16(i), packet.Header.SequenceNumber)
		assert.Equal(t, uint32(i*2), packet.Header.Timestamp)
		assert.Equal(t, uint8(PayloadTypeMJPEG), packet.Header.PayloadType)
		assert.Equal(t, fmt.Sprintf("frame-%d", i), string(packet.Payload))
	}

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback not called")
	}
	require.Eventually(t, func() bool { return !h.sender.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 5, h.sender.FramesSent())

	require.NoError(t, h.receiver.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, _, err := h.receiver.ReadFromUDP(make([]byte, 2048))
	assert.Error(t, err, "no traffic after the last frame")
	assert.Empty(t, h.encoder.Qualities())
}

func TestSenderReencodesUnderCongestion(t *testing.T) {
	h := newSenderHarness(t, &counterSource{}, 1)
	h.levels.level.Store(2)
	h.sender.Start()

	packet := h.receive(t)
	assert.Equal(t, "frame-1@0.6", string(packet.Payload))
	qualities := h.encoder.Qualities()
	require.Len(t, qualities, 1)
	assert.InDelta(t, 0.6, qualities[0], 1e-9)
}

func TestSenderSourceFailureIsFatal(t *testing.T) {
	h := newSenderHarness(t, &counterSource{limit: 2}, 10)
	h.sender.Start()

	h.receive(t)
	h.receive(t)

	select {
	case err := <-h.errs:
		assert.ErrorContains(t, err, "end of stream")
	case <-time.After(2 * time.Second):
		t.Fatal("source failure not reported")
	}
	require.Eventually(t, func() bool { return !h.sender.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 2, h.sender.FramesSent())
}

func TestSenderPauseResume(t *testing.T) {
	h := newSenderHarness(t, &counterSource{}, 100)
	h.sender.Start()
	h.receive(t)
	h.sender.Stop()

	sent := h.sender.FramesSent()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sent, h.sender.FramesSent())

	h.sender.Start()
	require.Eventually(t, func() bool { return h.sender.FramesSent() > sent }, time.Second, time.Millisecond)
}

func TestAdjustRate(t *testing.T) {
	h := newSenderHarness(t, &counterSource{}, 1)
	assert.Equal(t, 2*time.Millisecond, h.sender.SendDelay())

	h.sender.AdjustRate(4)
	assert.Equal(t, 2*time.Millisecond+4*200*time.Microsecond, h.sender.SendDelay())
}

func TestDelayForAndQuality(t *testing.T) {
	period := 50 * time.Millisecond
	for level, want := range []time.Duration{50, 55, 60, 65, 70} {
		assert.Equal(t, want*time.Millisecond, DelayFor(period, level))
	}

	assert.InDelta(t, 0.8, Quality(1), 1e-9)
	assert.InDelta(t, 0.6, Quality(2), 1e-9)
	assert.InDelta(t, 0.2, Quality(4), 1e-9)
}
