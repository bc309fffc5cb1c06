package project

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/sequence"
	"github.com/coreman2200/openscb/internal/wire"
)

func sampleSettings() board.Settings {
	return board.Settings{
		Names:   []string{"pan", "tilt"},
		Speeds:  []uint8{0, 7},
		Calib:   []wire.OutputCalib{{Min: 1000, Max: 4000, Angle180: -3000, Subtrim: 2500}, {Min: 1, Max: 2, Angle180: 3, Subtrim: 4}},
		Enabled: []bool{true, false},
	}
}

func TestWriteLayout(t *testing.T) {
	seqs := make([]*sequence.Sequence, board.SequenceSlots)
	for i := range seqs {
		seqs[i] = sequence.New()
	}
	seqs[2].SetDescription("wave")
	seqs[2].AddFrame(0.5, map[int]float64{1: 0.25}, "a")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleSettings(), seqs))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2+board.SequenceSlots)
	assert.Equal(t, Header, lines[0])
	assert.JSONEq(t, `[["pan","tilt"],[0,7],[[1000,4000,-3000,2500],[1,2,3,4]],[true,false]]`, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `[0,"`), lines[2])
	assert.True(t, strings.HasPrefix(lines[4], `[2,"`), lines[4])
}

func TestRoundTrip(t *testing.T) {
	seqs := []*sequence.Sequence{sequence.New(), sequence.New()}
	seqs[1].SetDescription("bow")
	seqs[1].AddFrame(1, map[int]float64{0: -0.5}, "down")
	seqs[1].AddFrame(2, map[int]float64{0: 0.5}, "up")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleSettings(), seqs))
	p, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, sampleSettings(), p.Settings)
	assert.Equal(t, []int{2}, p.Slots())
	seq := p.Sequences[2]
	assert.Equal(t, "bow", seq.Description())
	require.Equal(t, 2, seq.Len())
	assert.Equal(t, "up", seq.Frames()[1].Name())
	assert.Equal(t, map[int]float64{0: 0.5}, seq.Frames()[1].Points())
}

func TestReadErrors(t *testing.T) {
	settings := `[["a"],[0],[[1,2,3,4]],[true]]`
	cases := []struct {
		name, text, want string
	}{
		{"empty", "", "unrecognized file format"},
		{"header", "OpenSCB 0.1 Project\n" + settings, "unrecognized file format"},
		{"settings", Header + "\n[1,2]\n", "line 2"},
		{"no settings", Header + "\n", "missing settings"},
		{"slot json", Header + "\n" + settings + "\n[0,\"[\\\"d\\\"]\"]\n[1, nope]\n", "line 4"},
		{"slot range", Header + "\n" + settings + "\n[15,\"[\\\"d\\\"]\"]\n", "line 3"},
		{"sequence", Header + "\n" + settings + "\n[0,\"[\\\"d\\\",[\\\"f\\\"]]\"]\n", "line 3"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(c.text))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestReadHeaderSentinel(t *testing.T) {
	_, err := Read(strings.NewReader("hello\n"))
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestExportImport(t *testing.T) {
	src := board.New(scb.NewSim(zerolog.Nop()))
	require.NoError(t, src.Connect())
	require.NoError(t, src.SetOutputName(0, "hip"))
	require.NoError(t, src.SetOutputEnabled(true, 0))
	seq := sequence.New()
	seq.SetDescription("kick")
	seq.AddFrame(0.4, map[int]float64{0: 0.75}, "")
	require.NoError(t, src.CopySequence(7, seq))

	var buf bytes.Buffer
	require.NoError(t, Export(src, &buf))

	sim := scb.NewSim(zerolog.Nop())
	dst := board.New(sim)
	require.NoError(t, dst.Connect())
	p, err := Import(dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, p.Slots())

	assert.Equal(t, "hip", dst.OutputName(0))
	assert.Equal(t, []int{0}, dst.EnabledOutputs())
	got, _ := dst.Sequence(7)
	assert.Equal(t, "kick", got.Description())
	assert.Equal(t, 1, got.Len())

	slots, err := sim.FlashOverview()
	require.NoError(t, err)
	assert.Equal(t, wire.SlotIOSettings, slots[0].Type)
	assert.Equal(t, wire.SlotOutSequence, slots[7].Type)
	assert.Equal(t, "kick", slots[7].Description())
}

func TestImportBadFileLeavesBoard(t *testing.T) {
	b := board.New(scb.NewSim(zerolog.Nop()))
	require.NoError(t, b.Connect())
	before := b.Settings()

	_, err := Import(b, strings.NewReader(Header+"\n[[\"x\"],[0],[],[true]]\n[0, broken\n"))
	require.Error(t, err)
	assert.Equal(t, before, b.Settings())
}

func TestImportClearsSlotsEmptyInFile(t *testing.T) {
	b := board.New(scb.NewSim(zerolog.Nop()))
	require.NoError(t, b.Connect())
	old := sequence.New()
	old.AddFrame(1, map[int]float64{0: 0.5}, "")
	require.NoError(t, b.CopySequence(3, old))
	require.NoError(t, b.CopySequence(5, old))
	require.NoError(t, b.SaveAllToFlash())

	seqs := make([]*sequence.Sequence, 4)
	seqs[0] = sequence.New()
	seqs[0].AddFrame(0.2, map[int]float64{0: 0.1}, "")
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, b.Settings(), seqs))

	p, err := Import(b, &buf)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, p.Slots())

	require.NoError(t, b.UpdateValues())
	for slot, want := range map[int]int{1: 1, 3: 0, 5: 0} {
		got, _ := b.Sequence(slot)
		assert.Equal(t, want, got.Len(), "slot %d", slot)
	}
}
