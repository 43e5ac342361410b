package rtcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"mjstream/pkg/sched"
)

// MaxPacketSize is the receive buffer size for RTCP datagrams
const MaxPacketSize = 512

// Listener polls an RTCP socket on a fixed period and feeds decoded
// reports to an Estimator.
type Listener struct {
	conn        net.PacketConn
	estimator   *Estimator
	pollTimeout time.Duration
	buf         []byte
	task        *sched.Task
}

// NewListener creates an idle listener. onError receives fatal socket
// errors; a nil handler only logs them.
func NewListener(conn net.PacketConn, estimator *Estimator, interval, pollTimeout time.Duration, onError func(error)) *Listener {
	l := &Listener{
		conn:        conn,
		estimator:   estimator,
		pollTimeout: pollTimeout,
		buf:         make([]byte, MaxPacketSize),
	}

	opts := []sched.Option{sched.WithImmediateStart()}
	if onError != nil {
		opts = append(opts, sched.WithErrorHandler(onError))
	}
	l.task = sched.New("rtcp-listener", interval, l.poll, opts...)

	return l
}

// Start begins polling
func (l *Listener) Start() {
	l.task.Start()
}

// Stop pauses polling. Estimator state is kept.
func (l *Listener) Stop() {
	l.task.Stop()
}

// Running reports whether the listener is polling
func (l *Listener) Running() bool {
	return l.task.Running()
}

// Close stops polling and closes the socket
func (l *Listener) Close() error {
	l.task.Stop()
	return l.conn.Close()
}

// LocalAddr returns the bound RTCP address
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// poll performs one receive with a short deadline. A timeout means no
// report arrived this cycle; malformed reports are skipped.
func (l *Listener) poll(ctx context.Context) error {
	if err := l.conn.SetReadDeadline(time.Now().Add(l.pollTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return sched.ErrStop
		}
		return fmt.Errorf("set rtcp read deadline: %w", err)
	}

	n, addr, err := l.conn.ReadFrom(l.buf)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			slog.Debug("No RTCP report this cycle")
			return nil
		case errors.Is(err, net.ErrClosed):
			return sched.ErrStop
		default:
			return fmt.Errorf("receive rtcp: %w", err)
		}
	}

	report, err := Decode(l.buf[:n])
	if err != nil {
		slog.Warn("Skipping RTCP packet", "from", addr, "size", n, "err", err)
		return nil
	}

	l.estimator.Observe(report)
	return nil
}
