package board

import (
	"math"
	"time"

	"github.com/coreman2200/openscb/internal/sequence"
	"github.com/coreman2200/openscb/internal/wire"
)

// Settings is the part of the board configuration that travels in
// project files and slot 0.
type Settings struct {
	Names   []string
	Speeds  []uint8
	Calib   []wire.OutputCalib
	Enabled []bool
}

// Settings returns a copy of the cached settings.
func (b *Board) Settings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Settings{
		Names:   clone(b.names),
		Speeds:  clone(b.speed),
		Calib:   clone(b.outCalib),
		Enabled: clone(b.enabled),
	}
}

// ApplySettings uploads s and caches it.
func (b *Board) ApplySettings(s Settings) error {
	return b.do(func() error {
		s = Settings{Names: clone(s.Names), Speeds: clone(s.Speeds), Calib: clone(s.Calib), Enabled: clone(s.Enabled)}
		if err := b.client.SetOutputNames(s.Names); err != nil {
			return err
		}
		if err := b.client.SetOutputCalibration(s.Calib); err != nil {
			return err
		}
		if err := b.client.SetOutputSpeed(s.Speeds); err != nil {
			return err
		}
		if err := b.client.SetOutputEnabled(s.Enabled); err != nil {
			return err
		}
		b.names, b.outCalib, b.speed, b.enabled = s.Names, s.Calib, s.Speeds, s.Enabled
		b.notify(SettingsUpdated)
		b.notify(EnabledChanged)
		return nil
	})
}

// UploadSettings pushes the cached settings back to the board.
func (b *Board) UploadSettings() error {
	return b.ApplySettings(b.Settings())
}

func (b *Board) StoreSettings(slot int) error {
	return b.do(func() error {
		if err := b.client.StoreSettingsToSlot(slot); err != nil {
			return err
		}
		return b.refreshSlot(slot)
	})
}

func (b *Board) LoadSettings(slot int) error {
	return b.do(func() error { return b.client.LoadSettingsFromSlot(slot) })
}

// LoadFrame previews points on the board, reached after d.
func (b *Board) LoadFrame(d time.Duration, points map[int]float64) error {
	if d < 0 {
		d = 0
	}
	return b.do(func() error { return b.client.LoadFrame(uint32(d.Milliseconds()), points) })
}

func (b *Board) DisableFrame() error {
	return b.do(b.client.DisableFrame)
}

// PlaySequenceSlot starts the sequence stored in flash slot id on the
// board itself.
func (b *Board) PlaySequenceSlot(id int) error {
	return b.do(func() error { return b.client.PlaySequenceSlot(id) })
}

// WithSequence runs f on the sequence bound to flash slot 1..SequenceSlots
// under the board lock. f must not call back into the board.
func (b *Board) WithSequence(slot int, f func(seq *sequence.Sequence)) error {
	if slot < 1 || slot > SequenceSlots {
		return ErrNoSuchSlot
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f(b.seqs[slot-1])
	return nil
}

// Sequence returns a copy of the sequence bound to flash slot
// 1..SequenceSlots.
func (b *Board) Sequence(slot int) (*sequence.Sequence, error) {
	var c *sequence.Sequence
	err := b.WithSequence(slot, func(seq *sequence.Sequence) { c = seq.Clone() })
	return c, err
}

// Sequences returns copies of the slot sequences, index i for flash slot
// i+1.
func (b *Board) Sequences() []*sequence.Sequence {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*sequence.Sequence, len(b.seqs))
	for i, seq := range b.seqs {
		out[i] = seq.Clone()
	}
	return out
}

// CopySequence replaces the content of slot with a copy of src.
func (b *Board) CopySequence(slot int, src *sequence.Sequence) error {
	return b.WithSequence(slot, func(dst *sequence.Sequence) { dst.CopyFrom(src) })
}

// UploadSequence writes seq to flash slot. Frame durations are the time
// from the previous frame, the first one counting from zero.
func (b *Board) UploadSequence(slot int, seq *sequence.Sequence) error {
	return b.do(func() error { return b.upload(slot, seq) })
}

func (b *Board) upload(slot int, seq *sequence.Sequence) error {
	frames := seq.Frames()
	if err := b.client.UploadSequenceStart(slot, len(frames)); err != nil {
		return err
	}
	prev := 0.0
	for i, f := range frames {
		if err := b.client.UploadSequenceFrame(i, durationMs(f.Time()-prev), f.Points()); err != nil {
			return err
		}
		prev = f.Time()
	}
	if err := b.client.UploadSequenceEnd(seq.Description()); err != nil {
		return err
	}
	return b.refreshSlot(slot)
}

func durationMs(seconds float64) uint32 {
	ms := math.Round(seconds * 1000)
	if ms <= 0 {
		return 0
	}
	if ms >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}

// DownloadSequence reads the frames of slot when it holds a sequence.
func (b *Board) DownloadSequence(slot int) ([]wire.Frame, error) {
	var frames []wire.Frame
	err := b.do(func() error {
		h, ok := at(b.slots, slot)
		if !ok || h.Type != wire.SlotOutSequence {
			return nil
		}
		var err error
		frames, err = b.client.DownloadSequence(slot)
		return err
	})
	return frames, err
}

// SaveAllToFlash stores the settings in slot 0 and every slot sequence in
// its slot. Empty sequences are written as zero frame uploads so a cleared
// slot does not come back from flash.
func (b *Board) SaveAllToFlash() error {
	return b.do(func() error {
		if err := b.client.StoreSettingsToSlot(0); err != nil {
			return err
		}
		if err := b.refreshSlot(0); err != nil {
			return err
		}
		for i, seq := range b.seqs {
			if err := b.upload(i+1, seq); err != nil {
				return err
			}
		}
		return nil
	})
}

// FlashSlots returns the cached slot headers.
func (b *Board) FlashSlots() []wire.SlotHeader {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.slots)
}

// RefreshFlash re-reads every slot header.
func (b *Board) RefreshFlash() error {
	return b.do(func() error {
		slots, err := b.client.FlashOverview()
		if err != nil {
			return err
		}
		b.slots = slots
		b.notify(SequencesUpdated)
		return nil
	})
}

func (b *Board) SetFlashSlotDescription(slot int, desc string) error {
	return b.do(func() error {
		if err := b.client.SetFlashSlotDescription(slot, desc); err != nil {
			return err
		}
		return b.refreshSlot(slot)
	})
}

func (b *Board) refreshSlot(slot int) error {
	h, err := b.client.FlashSlot(slot)
	if err != nil {
		return err
	}
	if !b.client.Connected() {
		return nil
	}
	if slot >= len(b.slots) {
		slots := make([]wire.SlotHeader, wire.FlashSlots)
		copy(slots, b.slots)
		b.slots = slots
	}
	b.slots[slot] = h
	b.pending = append(b.pending, Event{Kind: SequencesUpdated, Slot: slot})
	return nil
}
