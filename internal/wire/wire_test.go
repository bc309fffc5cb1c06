package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/coreman2200/openscb/internal/wire"
)

func TestPacketMarshalCountsHeaderInSize(t *testing.T) {
	p, err := NewPacket(SeqCtrl, CmdUploadSlotStart, 3, []byte{0x00, 0x05})
	require.NoError(t, err)

	b, err := p.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x01, 0x03, 0x06, 0x00, 0x05}, b)
}

func TestPacketRejectsOversizedPayload(t *testing.T) {
	_, err := NewPacket(SysConf, CmdSetOutputName, 0, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = NewPacket(SysConf, CmdSetOutputName, 0, make([]byte, MaxPayload))
	assert.NoError(t, err)
}

var TestParsePacket = []struct {
	Name string
	In   []byte
	Err  bool
}{
	{"short", []byte{1, 2}, true},
	{"size below header", []byte{1, 1, 0, 3}, true},
	{"size above packet", append([]byte{1, 1, 0, 65}, make([]byte, 61)...), true},
	{"truncated", []byte{1, 1, 0, 8, 'a'}, true},
	{"padded", append([]byte{1, 1, 0, 7, '0', '.', '2'}, make([]byte, 57)...), false},
}

func TestParsePacketBounds(t *testing.T) {
	for _, tc := range TestParsePacket {
		t.Run(tc.Name, func(t *testing.T) {
			p, err := ParsePacket(tc.In)
			if tc.Err {
				assert.ErrorIs(t, err, ErrMalformedPacket)
				return
			}
			require.NoError(t, err)
			assert.True(t, p.Is(System, CmdReqSoftVersion))
			assert.Equal(t, "0.2", string(p.Payload))
		})
	}
}

var TestFixedPoint = []struct {
	In     float64
	Expect int16
}{
	{0, 0},
	{0.5, 16384},
	{-0.5, -16384},
	{1, 32767},
	{-1, -32768},
	{3, 32767},
	{-3, -32768},
}

func TestToFixedSaturates(t *testing.T) {
	for _, tc := range TestFixedPoint {
		assert.Equal(t, tc.Expect, ToFixed(tc.In), "ToFixed(%v)", tc.In)
	}
	assert.Equal(t, 0.5, FromFixed(16384))
	assert.Equal(t, -1.0, FromFixed(-32768))
}

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, 6, InputCalibSize)
	assert.Equal(t, 8, OutputCalibSize)
	assert.Equal(t, 58, SlotHeaderSize)
	assert.Equal(t, 56, FrameSize)
}

func TestOutputCalibEncoding(t *testing.T) {
	b, err := Marshal([]OutputCalib{{Min: 1000, Max: 4000, Angle180: -3000, Subtrim: 2500}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0xE8, 0x0F, 0xA0, 0xF4, 0x48, 0x09, 0xC4}, b)

	got := make([]OutputCalib, 1)
	require.NoError(t, Unmarshal(b, got))
	assert.True(t, got[0].Reversed())
	assert.Equal(t, int16(1000), got[0].Raw(0.5))
}

func TestOutputRange(t *testing.T) {
	c := OutputCalib{Min: 1000, Max: 4000, Angle180: 3000, Subtrim: 2500}
	left, right := c.Range()
	assert.Equal(t, -0.5, left)
	assert.Equal(t, 0.5, right)
	assert.LessOrEqual(t, left, 0.0)
	assert.GreaterOrEqual(t, right, 0.0)

	left, right = OutputCalib{Min: 1000, Max: 4000}.Range()
	assert.Zero(t, left)
	assert.Zero(t, right)
}

func TestSlotHeaderRoundTrip(t *testing.T) {
	h := NewSlotHeader(SlotOutSequence, "wave", 3)
	b, err := Marshal(h)
	require.NoError(t, err)
	require.Len(t, b, SlotHeaderSize)
	assert.Equal(t, []byte{'O', 'S', 'E', 'Q'}, b[:4])

	var got SlotHeader
	require.NoError(t, Unmarshal(b, &got))
	assert.Equal(t, "wave", got.Description())
	assert.Equal(t, uint32(3), got.Size)
	assert.Equal(t, "out_sequence", got.Type.String())
	assert.Equal(t, "0x1234", SlotType(0x1234).String())
}

func TestFrameFromPoints(t *testing.T) {
	f := FrameFromPoints(1500, map[int]float64{0: 0.5, 3: -0.25, 30: 1})
	assert.Equal(t, uint32(0b1001), f.ActiveBM)
	assert.Equal(t, int16(16384), f.Position[0])
	assert.Equal(t, int16(-8192), f.Position[3])
	assert.Equal(t, map[int]float64{0: 0.5, 3: -0.25}, f.Points())

	b, err := Marshal(f)
	require.NoError(t, err)
	require.Len(t, b, FrameSize)
	assert.Equal(t, []byte{0, 0, 0x05, 0xDC, 0, 0, 0, 0x09}, b[:8])
}

func TestFragmentNames(t *testing.T) {
	names := make([]string, MaxOutputs)
	for i := range names {
		names[i] = string(rune('A' + i))
	}
	pkts, err := Fragment(SysConf, CmdSetOutputName, Names(names), IONameLen)
	require.NoError(t, err)
	require.Len(t, pkts, 8)
	for i, p := range pkts {
		assert.Equal(t, uint8(i*3), p.Index)
		assert.Len(t, p.Payload, 3*IONameLen)
	}

	a := NewAssembler(MaxOutputs, IONameLen)
	for _, p := range pkts {
		a.Add(p)
	}
	assert.True(t, a.Done())
	assert.Equal(t, names, ParseNames(a.Bytes()))
}

func TestAssemblerClampsToExpectedCount(t *testing.T) {
	p, err := NewPacket(Core, CmdReqOutputValue, 0, Fixed16(make([]float64, 30)))
	require.NoError(t, err)

	a := NewAssembler(8, 2)
	assert.Equal(t, 8, a.Add(p))
	assert.True(t, a.Done())
	assert.Len(t, ParseFixed16(a.Bytes()), 8)

	late, _ := NewPacket(Core, CmdReqOutputValue, 9, []byte{0, 1})
	assert.Zero(t, a.Add(late))
}

func TestAssemblerCountsDuplicatesOnce(t *testing.T) {
	first, _ := NewPacket(Core, CmdReqOutputValue, 0, []byte{0, 1, 0, 2})
	again, _ := NewPacket(Core, CmdReqOutputValue, 1, []byte{0, 3})
	rest, _ := NewPacket(Core, CmdReqOutputValue, 2, []byte{0, 4})

	a := NewAssembler(3, 2)
	assert.Equal(t, 2, a.Add(first))
	assert.Zero(t, a.Add(again))
	assert.Zero(t, a.Add(first))
	assert.False(t, a.Done())

	assert.Equal(t, 1, a.Add(rest))
	assert.True(t, a.Done())
	assert.Equal(t, []byte{0, 1, 0, 3, 0, 4}, a.Bytes())
}

func TestBitmask(t *testing.T) {
	flags := []bool{true, false, true, true}
	assert.Equal(t, uint32(0b1101), Bitmask(flags))
	assert.Equal(t, flags, Bools(0b1101, 4))
}

func TestStringPayloadTruncates(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	b := StringPayload(string(long))
	assert.Len(t, b, MaxPayload)
	assert.Equal(t, byte(0), b[len(b)-1])
	assert.Equal(t, []byte{'o', 'k', 0}, StringPayload("ok"))
}
