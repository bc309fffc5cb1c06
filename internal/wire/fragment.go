package wire

import (
	"bytes"
	"fmt"
)

// Fragment splits an array of elemSize records into as many packets as
// needed. Each packet's Index is the position of its first element.
func Fragment(m Module, c Command, data []byte, elemSize int) ([]*Packet, error) {
	if elemSize <= 0 || elemSize > MaxPayload {
		return nil, fmt.Errorf("%w: element of %d bytes", ErrMalformedPacket, elemSize)
	}
	total := len(data) / elemSize
	perPacket := MaxPayload / elemSize
	var out []*Packet
	for idx := 0; idx < total; idx += perPacket {
		n := perPacket
		if total-idx < n {
			n = total - idx
		}
		if idx > 0xFF {
			return nil, fmt.Errorf("%w: element index %d overflows", ErrMalformedPacket, idx)
		}
		p, err := NewPacket(m, c, uint8(idx), data[idx*elemSize:(idx+n)*elemSize])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Assembler rebuilds an array from fragmented replies.
type Assembler struct {
	buf      []byte
	seen     []bool
	elemSize int
	total    int
	got      int
}

func NewAssembler(total, elemSize int) *Assembler {
	return &Assembler{
		buf:      make([]byte, total*elemSize),
		seen:     make([]bool, total),
		elemSize: elemSize,
		total:    total,
	}
}

// Add copies the payload of p at its Index and returns how many elements
// it supplied that had not arrived before. Elements past the expected
// count are dropped.
func (a *Assembler) Add(p *Packet) int {
	idx := int(p.Index)
	if idx >= a.total {
		return 0
	}
	avail := (a.total - idx) * a.elemSize
	size := len(p.Payload)
	if size > avail {
		size = avail
	}
	copy(a.buf[idx*a.elemSize:], p.Payload[:size])
	fresh := 0
	for i := idx; i < idx+size/a.elemSize; i++ {
		if !a.seen[i] {
			a.seen[i] = true
			fresh++
		}
	}
	a.got += fresh
	return fresh
}

// Done reports whether the expected number of elements has arrived.
func (a *Assembler) Done() bool { return a.got >= a.total }

func (a *Assembler) Bytes() []byte { return a.buf }

// Bitmask packs one bit per output, bit i for output i.
func Bitmask(flags []bool) uint32 {
	var bm uint32
	for i, f := range flags {
		if i >= 32 {
			break
		}
		if f {
			bm |= 1 << uint(i)
		}
	}
	return bm
}

// Bools unpacks the first n bits of bm.
func Bools(bm uint32, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n && i < 32; i++ {
		out[i] = bm&(1<<uint(i)) != 0
	}
	return out
}

// CString returns b up to its first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// StringPayload NUL terminates s, truncating it to fit one packet.
func StringPayload(s string) []byte {
	if len(s) > MaxPayload-1 {
		s = s[:MaxPayload-1]
	}
	return append([]byte(s), 0)
}

// Names packs names into IONameLen byte fields. Longer names are cut and
// shorter ones are NUL padded.
func Names(names []string) []byte {
	b := make([]byte, len(names)*IONameLen)
	for i, n := range names {
		copy(b[i*IONameLen:(i+1)*IONameLen], n)
	}
	return b
}

// ParseNames splits a packed name array.
func ParseNames(b []byte) []string {
	out := make([]string, len(b)/IONameLen)
	for i := range out {
		out[i] = CString(b[i*IONameLen : (i+1)*IONameLen])
	}
	return out
}

// Fixed16 packs normalized values as big-endian Q1.15.
func Fixed16(values []float64) []byte {
	b := make([]byte, 2*len(values))
	for i, v := range values {
		x := uint16(ToFixed(v))
		b[2*i] = byte(x >> 8)
		b[2*i+1] = byte(x)
	}
	return b
}

// ParseFixed16 is the inverse of Fixed16.
func ParseFixed16(b []byte) []float64 {
	out := make([]float64, len(b)/2)
	for i := range out {
		out[i] = FromFixed(int16(uint16(b[2*i])<<8 | uint16(b[2*i+1])))
	}
	return out
}
