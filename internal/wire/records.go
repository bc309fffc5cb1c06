package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Positions travel as signed Q1.15 fixed point: 32768 is a full 1.0.
const fixedScale = 32768

// ToFixed converts a normalized value, saturating outside [-1, 1).
func ToFixed(v float64) int16 {
	x := v * fixedScale
	switch {
	case x >= math.MaxInt16:
		return math.MaxInt16
	case x <= math.MinInt16:
		return math.MinInt16
	}
	return int16(x)
}

// FromFixed converts a wire position back to a normalized value.
func FromFixed(raw int16) float64 {
	return float64(raw) / fixedScale
}

// InputCalib is the calibration of one input channel. Callers keep
// Min <= Mid <= Max; the firmware does not check it.
type InputCalib struct {
	Min int16
	Mid int16
	Max int16
}

// OutputCalib maps normalized commands to raw ticks. Angle180 is the number
// of ticks for half a turn; a negative value means the output is reversed.
type OutputCalib struct {
	Min      int16
	Max      int16
	Angle180 int16
	Subtrim  int16
}

// Reversed reports whether the sign of Angle180 flips the direction.
func (c OutputCalib) Reversed() bool { return c.Angle180 < 0 }

// Raw returns the tick commanded by the normalized value v.
func (c OutputCalib) Raw(v float64) int16 {
	return int16(math.Round(float64(c.Subtrim) + v*float64(c.Angle180)))
}

// Range returns the normalized positions reached at Min and Max. The pair
// is not reordered, so a reversed output yields left > right.
func (c OutputCalib) Range() (left, right float64) {
	if c.Angle180 == 0 {
		return 0, 0
	}
	a := float64(c.Angle180)
	sub := float64(c.Subtrim)
	return (float64(c.Min) - sub) / a, (float64(c.Max) - sub) / a
}

// SlotType tags what a flash slot holds. Values are ASCII packed in a u32.
type SlotType uint32

const (
	SlotUninit      SlotType = 0xFFFFFFFF
	SlotEmpty       SlotType = 0x4E4F4E45 // NONE
	SlotIOSettings  SlotType = 0x53455555
	SlotOutSequence SlotType = 0x4F534551 // OSEQ
	SlotInSequence  SlotType = 0x49534551 // ISEQ
)

func (t SlotType) String() string {
	switch t {
	case SlotUninit:
		return "uninit"
	case SlotEmpty:
		return "empty"
	case SlotIOSettings:
		return "io_settings"
	case SlotOutSequence:
		return "out_sequence"
	case SlotInSequence:
		return "in_sequence"
	}
	return "0x" + strconv.FormatUint(uint64(t), 16)
}

// SlotDescLen is the description field of a flash slot header.
const SlotDescLen = 50

// SlotHeader is the descriptor the board keeps for each flash slot.
type SlotHeader struct {
	Type SlotType
	Desc [SlotDescLen]byte
	Size uint32
}

// NewSlotHeader truncates desc to fit and keeps room for a terminator.
func NewSlotHeader(t SlotType, desc string, size uint32) SlotHeader {
	h := SlotHeader{Type: t, Size: size}
	copy(h.Desc[:SlotDescLen-1], desc)
	return h
}

// Description returns Desc up to the first NUL.
func (h SlotHeader) Description() string { return CString(h.Desc[:]) }

// Frame is one step of a stored or live sequence. Position[i] only means
// something when bit i of ActiveBM is set.
type Frame struct {
	Duration uint32 // ms
	ActiveBM uint32
	Position [MaxOutputs]int16
}

// FrameFromPoints expands a sparse output->position map. Outputs outside
// [0, MaxOutputs) are dropped.
func FrameFromPoints(durationMs uint32, points map[int]float64) Frame {
	f := Frame{Duration: durationMs}
	for no, v := range points {
		if no < 0 || no >= MaxOutputs {
			continue
		}
		f.ActiveBM |= 1 << uint(no)
		f.Position[no] = ToFixed(v)
	}
	return f
}

// Points returns the active outputs as a sparse map.
func (f Frame) Points() map[int]float64 {
	m := make(map[int]float64)
	for i := 0; i < MaxOutputs; i++ {
		if f.ActiveBM&(1<<uint(i)) != 0 {
			m[i] = FromFixed(f.Position[i])
		}
	}
	return m
}

// Sizes of the records on the wire.
var (
	InputCalibSize  = binary.Size(InputCalib{})
	OutputCalibSize = binary.Size(OutputCalib{})
	SlotHeaderSize  = binary.Size(SlotHeader{})
	FrameSize       = binary.Size(Frame{})
)

// Marshal encodes a fixed size record or a slice of them.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes b into the fixed size record (or slice) v points to.
func Unmarshal(b []byte, v any) error {
	if n := binary.Size(v); n < 0 || n > len(b) {
		return fmt.Errorf("%w: %d bytes cannot hold %T", ErrMalformedPacket, len(b), v)
	}
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, v); err != nil {
		return fmt.Errorf("wire: decode %T: %w", v, err)
	}
	return nil
}
