// Package rtcp turns receiver reports into a congestion level.
package rtcp

import (
	"errors"
	"fmt"

	"github.com/pion/rtcp"
)

// ErrMalformedPacket is returned for RTCP data that carries no usable
// reception report.
var ErrMalformedPacket = errors.New("rtcp: malformed packet")

// Report holds the fields of the first reception report block found in an
// RTCP packet.
type Report struct {
	ReporterSSRC   uint32
	SourceSSRC     uint32
	LossFraction   float64 // fraction lost since the previous report, 0.0-1.0
	CumulativeLost uint32
	HighestSeq     uint32
	Jitter         uint32
}

// Decode parses a (possibly compound) RTCP packet and returns the first
// reception report of a receiver or sender report.
func Decode(data []byte) (Report, error) {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	for _, packet := range packets {
		var reporter uint32
		var blocks []rtcp.ReceptionReport

		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			reporter, blocks = p.SSRC, p.Reports
		case *rtcp.SenderReport:
			reporter, blocks = p.SSRC, p.Reports
		default:
			continue
		}

		if len(blocks) == 0 {
			continue
		}

		block := blocks[0]
		return Report{
			ReporterSSRC:   reporter,
			SourceSSRC:     block.SSRC,
			LossFraction:   float64(block.FractionLost) / 256.0,
			CumulativeLost: block.TotalLost,
			HighestSeq:     block.LastSequenceNumber,
			Jitter:         block.Jitter,
		}, nil
	}

	return Report{}, fmt.Errorf("%w: no reception report in %d packet(s)", ErrMalformedPacket, len(packets))
}

// String returns a string representation of the report
func (r Report) String() string {
	return fmt.Sprintf("RTCP{SSRC:%d FractionLost:%.3f CumLost:%d HighSeq:%d Jitter:%d}",
		r.ReporterSSRC, r.LossFraction, r.CumulativeLost, r.HighestSeq, r.Jitter)
}
