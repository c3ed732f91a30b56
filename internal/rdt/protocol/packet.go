// Package protocol implements the wire format for the reliable sender's
// DATA/ACK/FIN packets.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed on-wire header size in bytes: SeqNo(4) +
	// AckNo(4) + Flags(1) + DataSize(2).
	HeaderSize = 11

	// MSS is the maximum segment size assumed for the underlying path.
	MSS = 1500

	// UDPHdrSize and IPHdrSize are subtracted from MSS to leave room for
	// the transport and network headers the datagram actually carries.
	UDPHdrSize = 8
	IPHdrSize  = 20

	// PayloadMax is the maximum DATA payload per packet once header
	// overhead is subtracted from MSS.
	PayloadMax = MSS - UDPHdrSize - IPHdrSize - HeaderSize

	// MaxWindow bounds both the congestion window and the retransmission
	// ring's capacity (CAP >= MaxWindow rules out slot aliasing).
	MaxWindow = 100

	// InitialSSThresh is the slow-start threshold a fresh sender starts at.
	InitialSSThresh = 64
)

func init() {
	if PayloadMax <= 0 {
		panic("protocol: PayloadMax must be positive; header overhead exceeds MSS")
	}
}

// Flag identifies the kind of a packet. Unlike a bitmask, exactly one flag
// applies to a given packet.
type Flag uint8

const (
	DATA Flag = iota
	ACK
	FIN
)

func (f Flag) String() string {
	switch f {
	case DATA:
		return "DATA"
	case ACK:
		return "ACK"
	case FIN:
		return "FIN"
	default:
		return "UNKNOWN"
	}
}

// Header is the fixed four-field packet header described by the wire
// format: a byte offset for the first payload byte, the next expected byte
// offset (cumulative ACK), a flag, and the payload length.
type Header struct {
	SeqNo    uint32
	AckNo    uint32
	Flags    Flag
	DataSize uint16
}

// Packet pairs a header with its payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewDataPacket builds a DATA packet for the given stream offset.
func NewDataPacket(seqNo uint32, payload []byte) *Packet {
	return &Packet{
		Header: Header{
			SeqNo:    seqNo,
			Flags:    DATA,
			DataSize: uint16(len(payload)),
		},
		Payload: payload,
	}
}

// NewAckPacket builds a pure cumulative ACK carrying no payload.
func NewAckPacket(ackNo uint32) *Packet {
	return &Packet{Header: Header{AckNo: ackNo, Flags: ACK}}
}

// NewFinPacket builds the terminal end-of-stream marker. Per the wire
// format, receivers must distinguish FIN by flag, not by seqno.
func NewFinPacket() *Packet {
	return &Packet{Header: Header{SeqNo: 0, Flags: FIN}}
}

// Validate checks the invariants the wire format places on a packet: DATA
// payload length must be in [1, PayloadMax], and ACK/FIN carry none.
func (p *Packet) Validate() error {
	if int(p.Header.DataSize) != len(p.Payload) {
		return fmt.Errorf("protocol: data_size %d does not match payload length %d", p.Header.DataSize, len(p.Payload))
	}
	switch p.Header.Flags {
	case DATA:
		if p.Header.DataSize < 1 || int(p.Header.DataSize) > PayloadMax {
			return fmt.Errorf("protocol: DATA data_size %d outside [1,%d]", p.Header.DataSize, PayloadMax)
		}
	case ACK, FIN:
		if p.Header.DataSize != 0 {
			return fmt.Errorf("protocol: %s packet must carry no payload, got %d bytes", p.Header.Flags, p.Header.DataSize)
		}
	default:
		return fmt.Errorf("protocol: unknown flag %d", p.Header.Flags)
	}
	return nil
}

// Marshal serializes the packet to its wire representation: the fixed
// header followed by the payload bytes.
func (p *Packet) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], p.Header.SeqNo)
	binary.BigEndian.PutUint32(buf[4:8], p.Header.AckNo)
	buf[8] = byte(p.Header.Flags)
	binary.BigEndian.PutUint16(buf[9:11], p.Header.DataSize)
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// Unmarshal parses a packet from its wire representation.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("protocol: packet too small: need %d bytes, got %d", HeaderSize, len(data))
	}
	h := Header{
		SeqNo:    binary.BigEndian.Uint32(data[0:4]),
		AckNo:    binary.BigEndian.Uint32(data[4:8]),
		Flags:    Flag(data[8]),
		DataSize: binary.BigEndian.Uint16(data[9:11]),
	}
	rest := data[HeaderSize:]
	if int(h.DataSize) > len(rest) {
		return nil, fmt.Errorf("protocol: declared data_size %d exceeds remaining %d bytes", h.DataSize, len(rest))
	}
	payload := make([]byte, h.DataSize)
	copy(payload, rest[:h.DataSize])
	p := &Packet{Header: h, Payload: payload}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
