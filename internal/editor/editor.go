// Package editor binds one flash slot sequence at a time for editing,
// clipboard exchange and preview playback.
package editor

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/openscb/internal/event"
	"github.com/coreman2200/openscb/internal/sequence"
)

// ErrUnrecognizedClipboard is returned by Paste when the clipboard holds
// neither sequence JSON nor output table rows.
var ErrUnrecognizedClipboard = errors.New("editor: clipboard holds no frames")

// Columns of an output table row copied as tab separated text.
const (
	colName = 2
	colGoal = 5
)

// Board is what the editor needs from the board facade.
type Board interface {
	WithSequence(slot int, f func(seq *sequence.Sequence)) error
	Sequence(slot int) (*sequence.Sequence, error)
	CopySequence(slot int, src *sequence.Sequence) error
	FindOutputName(name string) int
	LoadFrame(d time.Duration, points map[int]float64) error
	DisableFrame() error
	UploadSequence(slot int, seq *sequence.Sequence) error
	PlaySequenceSlot(id int) error
}

type EventKind int

const (
	SlotChanged EventKind = iota
	PlayerChanged
)

type Event struct {
	Kind  EventKind
	Slot  int
	State sequence.PlayerState
}

// Editor holds the current slot explicitly; switching slots always goes
// through SetCurrent or Rebind.
type Editor struct {
	mu     sync.Mutex
	board  Board
	clip   Clipboard
	log    zerolog.Logger
	slot   int
	player *sequence.SafePlayer
	events event.List[Event]
}

func New(b Board, clip Clipboard, log zerolog.Logger) *Editor {
	e := &Editor{board: b, clip: clip, log: log, slot: 1}
	e.player = sequence.NewSafePlayer(sequence.Hooks{
		LoadFrame:    b.LoadFrame,
		DisableFrame: b.DisableFrame,
		StateChanged: func(s sequence.PlayerState) {
			e.log.Debug().Str("state", string(s)).Msg("player")
			e.events.Emit(Event{Kind: PlayerChanged, Slot: e.Slot(), State: s})
		},
	})
	return e
}

func (e *Editor) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.events.Subscribe(fn)
}

// Player is the preview player. Hosts tick it through With.
func (e *Editor) Player() *sequence.SafePlayer { return e.player }

func (e *Editor) Slot() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot
}

// Current returns a copy of the sequence of the current slot.
func (e *Editor) Current() *sequence.Sequence {
	seq, err := e.board.Sequence(e.Slot())
	if err != nil {
		return sequence.New()
	}
	return seq
}

// with runs f on the live sequence of the current slot.
func (e *Editor) with(f func(seq *sequence.Sequence)) {
	if err := e.board.WithSequence(e.Slot(), f); err != nil {
		e.log.Warn().Err(err).Msg("editor slot")
	}
}

// SetCurrent switches editing to slot.
func (e *Editor) SetCurrent(slot int) error {
	if err := e.board.WithSequence(slot, func(*sequence.Sequence) {}); err != nil {
		return err
	}
	e.mu.Lock()
	e.slot = slot
	e.mu.Unlock()
	e.events.Emit(Event{Kind: SlotChanged, Slot: slot})
	return nil
}

// Rebind re-announces the current slot after the board reloaded its
// sequences.
func (e *Editor) Rebind() {
	e.events.Emit(Event{Kind: SlotChanged, Slot: e.Slot()})
}

// Edit runs f on the current sequence with the board locked. f must not
// call back into the board.
func (e *Editor) Edit(f func(seq *sequence.Sequence)) {
	e.with(func(seq *sequence.Sequence) {
		f(seq)
		seq.CheckUpdate()
	})
}

// Play previews a copy of the current sequence on the board.
func (e *Editor) Play(loop bool, now time.Time) error {
	seq := e.Current()
	var err error
	e.player.With(func(p *sequence.Player) { err = p.Play(seq, loop, now) })
	return err
}

func (e *Editor) Stop() error {
	var err error
	e.player.With(func(p *sequence.Player) { err = p.Stop() })
	return err
}

func (e *Editor) Tick(now time.Time) error {
	var err error
	e.player.With(func(p *sequence.Player) { err = p.Tick(now) })
	return err
}

func (e *Editor) State() sequence.PlayerState {
	var s sequence.PlayerState
	e.player.With(func(p *sequence.Player) { s = p.State })
	return s
}

// Copy puts the selected frames on the clipboard as JSON.
func (e *Editor) Copy() error {
	var data []byte
	var err error
	e.with(func(seq *sequence.Sequence) { data, err = seq.SelectedToJSON() })
	if err != nil {
		return err
	}
	return e.clip.WriteAll(string(data))
}

// Paste inserts the clipboard frames so the first lands at at. Rows
// copied from an output table become one frame holding their goals.
func (e *Editor) Paste(at float64) error {
	text, err := e.clip.ReadAll()
	if err != nil {
		return err
	}
	var imported bool
	e.with(func(seq *sequence.Sequence) {
		_, err := seq.ImportJSON([]byte(text), &at)
		imported = err == nil
	})
	if imported {
		return nil
	}
	points, ok := e.parseRows(text)
	if !ok {
		return ErrUnrecognizedClipboard
	}
	e.with(func(seq *sequence.Sequence) { seq.SetSelected(seq.AddFrame(at, points, "")) })
	return nil
}

func (e *Editor) parseRows(text string) (map[int]float64, bool) {
	points := map[int]float64{}
	for _, row := range strings.Split(strings.TrimRight(text, "\r\n"), "\n") {
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) <= colGoal {
			return nil, false
		}
		goal, err := strconv.ParseFloat(strings.TrimSpace(cols[colGoal]), 64)
		if err != nil {
			return nil, false
		}
		out := e.board.FindOutputName(cols[colName])
		if out < 0 {
			e.log.Warn().Str("name", cols[colName]).Msg("pasted row names no output")
			continue
		}
		points[out] = goal
	}
	return points, len(points) > 0
}

// CopyToSlot replaces slot dst with a copy of the current sequence.
func (e *Editor) CopyToSlot(dst int) error {
	return e.board.CopySequence(dst, e.Current())
}

// Clear removes every frame of the current sequence.
func (e *Editor) Clear() {
	e.Edit(func(seq *sequence.Sequence) { seq.RemoveAllFrames() })
}

// Upload writes the current sequence to its flash slot.
func (e *Editor) Upload() error {
	return e.board.UploadSequence(e.Slot(), e.Current())
}

// PlayOnBoard plays the stored copy of the current slot on the board.
func (e *Editor) PlayOnBoard() error {
	return e.board.PlaySequenceSlot(e.Slot())
}
