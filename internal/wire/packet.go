package wire

import (
	"errors"
	"fmt"
)

// ErrMalformedPacket is returned when a packet does not fit the 64 byte
// envelope or its size field disagrees with the bytes received.
var ErrMalformedPacket = errors.New("wire: malformed packet")

// Header is the first 4 bytes of every packet. Size counts the header
// itself plus the payload, which is what the firmware expects.
type Header struct {
	Module  Module
	Command Command
	Index   uint8
	Size    uint8
}

// Packet is one request or reply. It never leaves the protocol client.
type Packet struct {
	Header
	Payload []byte
}

// NewPacket builds a request. The payload is copied.
func NewPacket(m Module, c Command, index uint8, payload []byte) (*Packet, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrMalformedPacket, len(payload), MaxPayload)
	}
	p := &Packet{
		Header: Header{
			Module:  m,
			Command: c,
			Index:   index,
			Size:    uint8(HeaderSize + len(payload)),
		},
		Payload: append([]byte(nil), payload...),
	}
	return p, nil
}

// MarshalBinary returns the Size bytes written to the transport.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrMalformedPacket, len(p.Payload), MaxPayload)
	}
	b := make([]byte, HeaderSize+len(p.Payload))
	b[0] = byte(p.Module)
	b[1] = byte(p.Command)
	b[2] = p.Index
	b[3] = byte(len(b))
	copy(b[HeaderSize:], p.Payload)
	return b, nil
}

// ParsePacket decodes a received buffer. Bytes past Size are ignored so a
// zero padded 64 byte read is accepted.
func ParsePacket(b []byte) (*Packet, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedPacket, len(b))
	}
	size := int(b[3])
	if size < HeaderSize || size > MaxPacket {
		return nil, fmt.Errorf("%w: size field %d", ErrMalformedPacket, size)
	}
	if size > len(b) {
		return nil, fmt.Errorf("%w: size field %d but only %d bytes", ErrMalformedPacket, size, len(b))
	}
	return &Packet{
		Header: Header{
			Module:  Module(b[0]),
			Command: Command(b[1]),
			Index:   b[2],
			Size:    b[3],
		},
		Payload: append([]byte(nil), b[HeaderSize:size]...),
	}, nil
}

// Is reports whether p is a reply to (m, c).
func (p *Packet) Is(m Module, c Command) bool {
	return p.Module == m && p.Command == c
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s/%d[%d] %d bytes", p.Module, p.Command, p.Index, len(p.Payload))
}
