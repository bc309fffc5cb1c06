package editor_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/editor"
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/sequence"
)

func setup(t *testing.T) (*editor.Editor, *board.Board, *editor.MemoryClipboard) {
	t.Helper()
	b := board.New(scb.NewSim(zerolog.Nop()))
	require.NoError(t, b.Connect())
	clip := &editor.MemoryClipboard{}
	return editor.New(b, clip, zerolog.Nop()), b, clip
}

func TestSetCurrentRebindsExplicitly(t *testing.T) {
	e, b, _ := setup(t)
	var got []editor.Event
	e.Subscribe(func(ev editor.Event) { got = append(got, ev) })

	require.NoError(t, e.SetCurrent(4))
	assert.Equal(t, 4, e.Slot())
	e.Edit(func(seq *sequence.Sequence) { seq.SetDescription("four") })
	s4, _ := b.Sequence(4)
	assert.Equal(t, "four", s4.Description())

	assert.ErrorIs(t, e.SetCurrent(0), board.ErrNoSuchSlot)
	assert.Equal(t, 4, e.Slot())

	e.Rebind()
	assert.Equal(t, []editor.Event{
		{Kind: editor.SlotChanged, Slot: 4},
		{Kind: editor.SlotChanged, Slot: 4},
	}, got)
}

func TestCopyPasteJSON(t *testing.T) {
	e, _, clip := setup(t)
	var frames []*sequence.Frame
	e.Edit(func(seq *sequence.Sequence) {
		frames = append(frames, seq.AddFrame(1, map[int]float64{0: 0.5}, "a"))
		frames = append(frames, seq.AddFrame(2, map[int]float64{0: -0.5}, "b"))
		seq.SetSelected(frames...)
	})
	require.NoError(t, e.Copy())
	text, _ := clip.ReadAll()
	assert.Contains(t, text, `"a"`)

	require.NoError(t, e.Paste(10))
	seq := e.Current()
	require.Equal(t, 4, seq.Len())
	last := seq.Frames()[3]
	assert.Equal(t, 11.0, last.Time())
	assert.Equal(t, "b", last.Name())
	e.Edit(func(seq *sequence.Sequence) { assert.Len(t, seq.Selected(), 2) })
}

func TestPasteOutputTableRows(t *testing.T) {
	e, b, clip := setup(t)
	require.NoError(t, b.SetOutputName(2, "wrist"))
	require.NoError(t, clip.WriteAll("1\t#fff\tA\t0\t0.25\t0.25\n1\t#fff\twrist\t0\t-0.5\t-0.5\n"))

	require.NoError(t, e.Paste(3))
	seq := e.Current()
	require.Equal(t, 1, seq.Len())
	f := seq.Frames()[0]
	assert.Equal(t, 3.0, f.Time())
	assert.Equal(t, map[int]float64{0: 0.25, 2: -0.5}, f.Points())
	e.Edit(func(seq *sequence.Sequence) { assert.Same(t, seq.Frames()[0], seq.Highlighted()) })
}

func TestCurrentIsACopy(t *testing.T) {
	e, _, _ := setup(t)
	e.Current().AddFrame(1, map[int]float64{0: 1}, "")
	assert.Zero(t, e.Current().Len())
}

func TestEditRacesBoardRefresh(t *testing.T) {
	e, b, _ := setup(t)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, b.UpdateValues())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			e.Edit(func(seq *sequence.Sequence) { seq.AddFrame(float64(i), map[int]float64{0: 0.1}, "") })
			if err := e.Play(false, time.Now()); err != nil {
				assert.ErrorIs(t, err, sequence.ErrEmptySequence)
			}
			assert.NoError(t, e.Stop())
		}
	}()
	wg.Wait()
}

func TestPasteGarbageLeavesSequence(t *testing.T) {
	e, _, clip := setup(t)
	e.Edit(func(seq *sequence.Sequence) { seq.AddFrame(0, nil, "") })

	for _, text := range []string{"", "hello", "a\tb\tc", "1\t2\tA\t4\t5\tnan?"} {
		require.NoError(t, clip.WriteAll(text))
		assert.ErrorIs(t, e.Paste(1), editor.ErrUnrecognizedClipboard, text)
	}
	assert.Equal(t, 1, e.Current().Len())
}

func TestCopyToSlotAndClear(t *testing.T) {
	e, b, _ := setup(t)
	e.Edit(func(seq *sequence.Sequence) {
		seq.SetDescription("jump")
		seq.AddFrame(0.5, map[int]float64{1: 1}, "")
	})
	require.NoError(t, e.CopyToSlot(9))
	s9, _ := b.Sequence(9)
	assert.Equal(t, "jump", s9.Description())
	assert.Equal(t, 1, s9.Len())

	e.Clear()
	assert.Zero(t, e.Current().Len())
	assert.Equal(t, 1, s9.Len())

	assert.ErrorIs(t, e.CopyToSlot(16), board.ErrNoSuchSlot)
}

func TestUploadCurrent(t *testing.T) {
	e, b, _ := setup(t)
	require.NoError(t, e.SetCurrent(2))
	e.Edit(func(seq *sequence.Sequence) {
		seq.SetDescription("wave")
		seq.AddFrame(1, map[int]float64{0: 0}, "")
	})
	require.NoError(t, e.Upload())
	assert.Equal(t, "wave", b.FlashSlots()[2].Description())
	require.NoError(t, e.PlayOnBoard())
}

func TestPreviewPlayback(t *testing.T) {
	e, b, _ := setup(t)
	var states []sequence.PlayerState
	e.Subscribe(func(ev editor.Event) {
		if ev.Kind == editor.PlayerChanged {
			states = append(states, ev.State)
		}
	})

	assert.ErrorIs(t, e.Play(false, time.Now()), sequence.ErrEmptySequence)

	e.Edit(func(seq *sequence.Sequence) {
		seq.AddFrame(0, map[int]float64{0: 1}, "")
		seq.AddFrame(0.1, map[int]float64{0: -1}, "")
	})
	t0 := time.Now()
	require.NoError(t, e.Play(false, t0))
	assert.Equal(t, sequence.Playing, e.State())

	require.NoError(t, e.Tick(t0.Add(50*time.Millisecond)))
	require.NoError(t, b.UpdatePosition())
	assert.InDelta(t, -1, b.OutputValue(0), 1e-3)

	require.NoError(t, e.Tick(t0.Add(200*time.Millisecond)))
	assert.Equal(t, sequence.Stopped, e.State())
	require.NoError(t, b.UpdatePosition())
	assert.Zero(t, b.OutputValue(0))

	assert.Equal(t, []sequence.PlayerState{sequence.Playing, sequence.Stopped}, states)
}
