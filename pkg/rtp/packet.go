package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RTPHeader represents the RTP packet header
type RTPHeader struct {
	Version        uint8  // 2 bits: Version (V)
	Padding        bool   // 1 bit: Padding (P)
	Extension      bool   // 1 bit: Extension (X)
	CSRCCount      uint8  // 4 bits: CSRC count (CC)
	Marker         bool   // 1 bit: Marker (M)
	PayloadType    uint8  // 7 bits: Payload type (PT)
	SequenceNumber uint16 // 16 bits: Sequence number
	Timestamp      uint32 // 32 bits: Timestamp
	SSRC           uint32 // 32 bits: SSRC identifier
}

// RTPPacket represents a complete RTP packet
type RTPPacket struct {
	Header  *RTPHeader
	Payload []byte
}

// Constants for RTP
const (
	HeaderSize = 12 // fixed header, no CSRC list or extension
	Version    = 2

	// DefaultMaxSize is the default limit for a single frame payload
	DefaultMaxSize = 20000
)

// PayloadTypeMJPEG is the RFC 3551 static JPEG payload type
const PayloadTypeMJPEG = 26

// DefaultSSRC identifies this server as the synchronization source.
const DefaultSSRC uint32 = 1337

// ErrMalformedPacket is returned when a buffer cannot hold an RTP header.
var ErrMalformedPacket = errors.New("rtp: malformed packet")

// NewRTPPacket creates a new RTP packet
func NewRTPPacket(payloadType uint8, sequenceNumber uint16, timestamp uint32, ssrc uint32, payload []byte) *RTPPacket {
	return &RTPPacket{
		Header: &RTPHeader{
			Version:        Version,
			PayloadType:    payloadType & 0x7F,
			SequenceNumber: sequenceNumber,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
}

// Encode builds the wire form of a packet: a 12-byte big-endian header
// followed by the payload verbatim. The payload size is not checked.
func Encode(payloadType uint8, sequenceNumber uint16, timestamp uint32, ssrc uint32, payload []byte) []byte {
	return NewRTPPacket(payloadType, sequenceNumber, timestamp, ssrc, payload).Marshal()
}

// Decode parses a wire buffer. SSRC is left zero.
func Decode(data []byte) (*RTPPacket, error) {
	p := &RTPPacket{}
	if err := p.Unmarshal(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal serializes the RTP packet to bytes
func (p *RTPPacket) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))

	// First byte: V(2) + P(1) + X(1) + CC(4)
	buf[0] = (p.Header.Version << 6) |
		(boolToBit(p.Header.Padding) << 5) |
		(boolToBit(p.Header.Extension) << 4) |
		(p.Header.CSRCCount & 0x0F)

	// Second byte: M(1) + PT(7)
	buf[1] = (boolToBit(p.Header.Marker) << 7) | (p.Header.PayloadType & 0x7F)

	binary.BigEndian.PutUint16(buf[2:4], p.Header.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Header.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.Header.SSRC)

	copy(buf[HeaderSize:], p.Payload)

	return buf
}

// Unmarshal deserializes bytes to RTP packet.
//
// Only version, payload type, sequence number, timestamp and payload are
// read back. The SSRC bytes are skipped and the field stays zero, so
// receivers must not rely on it.
func (p *RTPPacket) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes (min: %d)", ErrMalformedPacket, len(data), HeaderSize)
	}

	p.Header = &RTPHeader{
		Version:        data[0] >> 6,
		PayloadType:    data[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
	}

	p.Payload = make([]byte, len(data)-HeaderSize)
	copy(p.Payload, data[HeaderSize:])

	return nil
}

// String returns a string representation of the RTP packet
func (p *RTPPacket) String() string {
	return fmt.Sprintf("RTP{V:%d PT:%d Seq:%d TS:%d PayloadLen:%d}",
		p.Header.Version,
		p.Header.PayloadType,
		p.Header.SequenceNumber,
		p.Header.Timestamp,
		len(p.Payload))
}

// boolToBit converts boolean to bit (0 or 1)
func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
