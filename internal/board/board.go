// Package board keeps one consistent view of the servo controller for every
// consumer in the process. Reads are served from a cache that is refreshed
// explicitly; writes go to the device first and reach the cache only when
// they succeed.
package board

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/openscb/internal/event"
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/sequence"
	"github.com/coreman2200/openscb/internal/wire"
)

// SequenceSlots is the number of flash slots holding sequences. Slot 0
// holds the IO settings.
const SequenceSlots = wire.FlashSlots - 1

// CalibRawRelease is the tick sent with CalibRawOff when a raw preview ends.
const CalibRawRelease = 2500

// ErrNoSuchSlot is returned for sequence slots outside 1..SequenceSlots.
var ErrNoSuchSlot = errors.New("board: no such sequence slot")

// EventKind enumerates board notifications.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	PositionUpdated
	InputUpdated
	SettingsUpdated
	EnabledChanged
	SequencesUpdated
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case PositionUpdated:
		return "position_updated"
	case InputUpdated:
		return "input_updated"
	case SettingsUpdated:
		return "settings_updated"
	case EnabledChanged:
		return "enabled_changed"
	case SequencesUpdated:
		return "sequences_updated"
	}
	return "unknown"
}

// Event is delivered to board subscribers once the board lock is released.
// Slot is set when a single flash slot changed.
type Event struct {
	Kind EventKind
	Slot int
}

type Option func(*Board)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Board) { b.log = l }
}

// Board is the cached facade over an scb.Client. All methods are safe for
// concurrent use; device exchanges are serialized by one lock.
type Board struct {
	mu      sync.Mutex
	client  scb.Client
	log     zerolog.Logger
	events  event.List[Event]
	pending []Event

	version  string
	counted  bool
	inputNb  int
	outputNb int

	names       []string
	enabled     []bool
	prevEnabled []bool
	controlled  []bool
	speed       []uint8
	goal        []float64
	values      []float64
	inputs      []float64
	inCalib     []wire.InputCalib
	outCalib    []wire.OutputCalib
	slots       []wire.SlotHeader
	seqs        [SequenceSlots]*sequence.Sequence
}

func New(client scb.Client, opts ...Option) *Board {
	b := &Board{client: client, log: zerolog.Nop()}
	for i := range b.seqs {
		b.seqs[i] = sequence.New()
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers fn for every board notification.
func (b *Board) Subscribe(fn func(Event)) (unsubscribe func()) {
	return b.events.Subscribe(fn)
}

func (b *Board) notify(k EventKind) { b.pending = append(b.pending, Event{Kind: k}) }

// do runs f under the board lock when a session is open. Without one the
// call is a no-op, so nothing reaches the cache that the device never saw.
func (b *Board) do(f func() error) error {
	return b.locked(func() error {
		if !b.client.Connected() {
			return nil
		}
		return f()
	})
}

// locked runs f under the board lock and then delivers what f queued. A
// connection problem also queues Disconnected since the client has already
// dropped the session.
func (b *Board) locked(f func() error) error {
	b.mu.Lock()
	err := f()
	var cp *scb.ConnectionProblem
	if errors.As(err, &cp) {
		b.log.Error().Err(err).Int("code", cp.Code).Msg("board connection lost")
		b.notify(Disconnected)
	}
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, e := range pending {
		b.events.Emit(e)
	}
	return err
}

// Connect opens the session, rejects incompatible firmware, loads every
// cached value and puts the board in normal mode.
func (b *Board) Connect() error {
	return b.locked(func() error {
		if err := b.client.Connect(); err != nil {
			return err
		}
		ok, version, err := b.client.CheckFirmwareVersion()
		if err != nil {
			return err
		}
		b.version = version
		if !ok {
			b.client.Close()
			return &scb.IncompatibleVersion{Firmware: version, Client: wire.ProtocolVersion}
		}
		b.counted = false
		if err := b.updateValues(); err != nil {
			return err
		}
		if err := b.client.SetMode(scb.ModeNormal); err != nil {
			return err
		}
		b.log.Info().Str("firmware", version).Int("outputs", b.outputNb).Int("inputs", b.inputNb).Msg("board ready")
		b.notify(Connected)
		return nil
	})
}

func (b *Board) Close() error {
	return b.locked(func() error {
		err := b.client.Close()
		b.notify(Disconnected)
		return err
	})
}

func (b *Board) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client.Connected()
}

// Version is the firmware version seen by the last Connect.
func (b *Board) Version() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

func (b *Board) counts() error {
	if b.counted {
		return nil
	}
	in, err := b.client.InputCount()
	if err != nil {
		return err
	}
	out, err := b.client.OutputCount()
	if err != nil {
		return err
	}
	b.inputNb, b.outputNb = in, out
	b.counted = b.client.Connected()
	return nil
}

func (b *Board) InputCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputNb
}

func (b *Board) OutputCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputNb
}

// UpdateValues re-reads every cached array and the flash overview, then
// rebuilds the slot sequences from flash. It does nothing while
// disconnected, leaving the cache and unsaved sequences as they are.
func (b *Board) UpdateValues() error {
	return b.do(b.updateValues)
}

type snapshot struct {
	enabled  []bool
	inputs   []float64
	names    []string
	values   []float64
	goal     []float64
	speed    []uint8
	inCalib  []wire.InputCalib
	outCalib []wire.OutputCalib
	slots    []wire.SlotHeader
	frames   [SequenceSlots][]wire.Frame
}

func (b *Board) read() (*snapshot, error) {
	c := b.client
	s := &snapshot{}
	var err error
	if s.enabled, err = c.OutputEnabled(b.outputNb); err != nil {
		return nil, err
	}
	if s.inputs, err = c.InputValues(b.inputNb); err != nil {
		return nil, err
	}
	if s.names, err = c.OutputNames(b.outputNb); err != nil {
		return nil, err
	}
	if s.values, err = c.OutputValues(b.outputNb); err != nil {
		return nil, err
	}
	if s.goal, err = c.OutputGoal(b.outputNb); err != nil {
		return nil, err
	}
	if s.speed, err = c.OutputSpeed(b.outputNb); err != nil {
		return nil, err
	}
	if s.inCalib, err = c.InputCalibration(b.inputNb); err != nil {
		return nil, err
	}
	if s.outCalib, err = c.OutputCalibration(b.outputNb); err != nil {
		return nil, err
	}
	if s.slots, err = c.FlashOverview(); err != nil {
		return nil, err
	}
	for i := range s.frames {
		id := i + 1
		if id >= len(s.slots) || s.slots[id].Type != wire.SlotOutSequence {
			continue
		}
		if s.frames[i], err = c.DownloadSequence(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (b *Board) updateValues() error {
	if err := b.counts(); err != nil {
		return err
	}
	s, err := b.read()
	if err != nil {
		return err
	}
	b.enabled = s.enabled
	b.prevEnabled = append([]bool(nil), s.enabled...)
	b.controlled = make([]bool, b.outputNb)
	b.inputs = s.inputs
	b.names = s.names
	b.values = s.values
	b.goal = s.goal
	b.speed = s.speed
	b.inCalib = s.inCalib
	b.outCalib = s.outCalib
	b.slots = s.slots
	for i, frames := range s.frames {
		b.seqs[i].CopyFrom(hydrate(b.slotDesc(i+1), frames))
	}
	b.notify(SettingsUpdated)
	b.notify(EnabledChanged)
	b.notify(SequencesUpdated)
	return nil
}

func (b *Board) slotDesc(id int) string {
	if id < len(b.slots) {
		return b.slots[id].Description()
	}
	return ""
}

// hydrate turns flash frames, timed by duration, into a sequence timed by
// absolute seconds.
func hydrate(desc string, frames []wire.Frame) *sequence.Sequence {
	seq := sequence.New()
	if len(frames) == 0 {
		return seq
	}
	seq.SetDescription(desc)
	t := 0.0
	for i, f := range frames {
		t += float64(f.Duration) / 1000
		seq.AddFrame(t, f.Points(), fmt.Sprintf("Frame %d", i+1))
	}
	return seq
}

// UpdatePosition polls output and input values and notifies only when
// they differ from the cache.
func (b *Board) UpdatePosition() error {
	return b.do(func() error {
		if err := b.counts(); err != nil {
			return err
		}
		values, err := b.client.OutputValues(b.outputNb)
		if err != nil {
			return err
		}
		if !equal(values, b.values) {
			b.values = values
			b.notify(PositionUpdated)
		}
		inputs, err := b.client.InputValues(b.inputNb)
		if err != nil {
			return err
		}
		if !equal(inputs, b.inputs) {
			b.inputs = inputs
			b.notify(InputUpdated)
		}
		return nil
	})
}

func equal[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DebugMessage reads the board debug channel. "" means nothing arrived.
func (b *Board) DebugMessage(timeout time.Duration) (string, error) {
	var msg string
	err := b.do(func() error {
		var err error
		msg, err = b.client.DebugMessage(timeout)
		return err
	})
	return msg, err
}

// RestartToBootloader reboots into DFU mode. The session ends.
func (b *Board) RestartToBootloader() error {
	return b.do(func() error {
		if err := b.client.RestartToBootloader(); err != nil {
			return err
		}
		b.notify(Disconnected)
		return nil
	})
}

func (b *Board) SetMode(m scb.Mode) error {
	return b.do(func() error { return b.client.SetMode(m) })
}
