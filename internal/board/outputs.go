package board

import (
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/wire"
)

// NoName is returned by OutputName for outputs that do not exist.
const NoName = "None"

func at[T any](s []T, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s) {
		return zero, false
	}
	return s[i], true
}

func clone[T any](s []T) []T { return append([]T(nil), s...) }

func (b *Board) OutputNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.names)
}

func (b *Board) OutputName(out int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := at(b.names, out); ok {
		return n
	}
	return NoName
}

// FindOutputName returns the first output called name, or -1.
func (b *Board) FindOutputName(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.names {
		if n == name {
			return i
		}
	}
	return -1
}

// OutputValues returns the last polled output positions.
func (b *Board) OutputValues() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.values)
}

func (b *Board) OutputValue(out int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.values, out)
	return v
}

func (b *Board) InputValues() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.inputs)
}

func (b *Board) InputValue(in int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.inputs, in)
	return v
}

func (b *Board) OutputGoal(out int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.goal, out)
	return v
}

func (b *Board) OutputSpeed(out int) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.speed, out)
	return v
}

func (b *Board) OutputEnabled(out int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.enabled, out)
	return v
}

// EnabledOutputs lists the enabled outputs in ascending order.
func (b *Board) EnabledOutputs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for i := 0; i < b.outputNb && i < len(b.enabled); i++ {
		if b.enabled[i] {
			out = append(out, i)
		}
	}
	return out
}

func (b *Board) OutputControlled(out int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, _ := at(b.controlled, out)
	return v
}

func (b *Board) OutputCalib(out int) wire.OutputCalib {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _ := at(b.outCalib, out)
	return c
}

func (b *Board) InputCalib(in int) wire.InputCalib {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _ := at(b.inCalib, in)
	return c
}

// OutputRange is the normalized travel of out, (min-subtrim)/angle180 to
// (max-subtrim)/angle180. The bounds are not reordered for reversed
// outputs.
func (b *Board) OutputRange(out int) (left, right float64) {
	return b.OutputCalib(out).Range()
}

// SetOutputName renames one output on the board.
func (b *Board) SetOutputName(out int, name string) error {
	return b.do(func() error {
		if _, ok := at(b.names, out); !ok {
			return scb.ErrOutOfRange
		}
		names := clone(b.names)
		names[out] = name
		if err := b.client.SetOutputNames(names); err != nil {
			return err
		}
		b.names = names
		b.notify(SettingsUpdated)
		return nil
	})
}

func (b *Board) SetOutputSpeed(out int, speed uint8) error {
	return b.do(func() error {
		if _, ok := at(b.speed, out); !ok {
			return scb.ErrOutOfRange
		}
		s := clone(b.speed)
		s[out] = speed
		if err := b.client.SetOutputSpeed(s); err != nil {
			return err
		}
		b.speed = s
		b.notify(SettingsUpdated)
		return nil
	})
}

// SetOutputGoal moves one output under host control.
func (b *Board) SetOutputGoal(out int, v float64) error {
	return b.do(func() error {
		if _, ok := at(b.goal, out); !ok {
			return scb.ErrOutOfRange
		}
		if err := b.client.SetOneOutputGoal(out, v); err != nil {
			return err
		}
		b.goal[out] = v
		return nil
	})
}

func (b *Board) writeEnabled(e []bool) error {
	if err := b.client.SetOutputEnabled(e); err != nil {
		return err
	}
	b.enabled = e
	b.notify(EnabledChanged)
	return nil
}

// SetOutputEnabled enables or disables the listed outputs.
func (b *Board) SetOutputEnabled(enabled bool, outs ...int) error {
	return b.do(func() error {
		e := clone(b.enabled)
		for _, o := range outs {
			if _, ok := at(e, o); !ok {
				return scb.ErrOutOfRange
			}
			e[o] = enabled
		}
		return b.writeEnabled(e)
	})
}

// DisableAllOutputs remembers the current enabled set for
// EnableAllOutputs, unless nothing is enabled.
func (b *Board) DisableAllOutputs() error {
	return b.do(func() error {
		prev := b.prevEnabled
		for _, on := range b.enabled {
			if on {
				prev = clone(b.enabled)
				break
			}
		}
		if err := b.writeEnabled(make([]bool, b.outputNb)); err != nil {
			return err
		}
		b.prevEnabled = prev
		return nil
	})
}

// EnableAllOutputs restores the set saved by DisableAllOutputs.
func (b *Board) EnableAllOutputs() error {
	return b.do(func() error { return b.writeEnabled(clone(b.prevEnabled)) })
}

// SetOutputControlled hands out to or back from host control.
func (b *Board) SetOutputControlled(out int, controlled bool) error {
	return b.do(func() error {
		c := clone(b.controlled)
		if _, ok := at(c, out); !ok {
			return scb.ErrOutOfRange
		}
		c[out] = controlled
		if err := b.client.SetOutputControlled(c); err != nil {
			return err
		}
		b.controlled = c
		return nil
	})
}

// SetOutputCalib replaces the calibration of one output.
func (b *Board) SetOutputCalib(out int, c wire.OutputCalib) error {
	return b.do(func() error {
		calib := clone(b.outCalib)
		if _, ok := at(calib, out); !ok {
			return scb.ErrOutOfRange
		}
		calib[out] = c
		return b.writeOutCalib(calib)
	})
}

func (b *Board) SetOutputCalibration(c []wire.OutputCalib) error {
	return b.do(func() error { return b.writeOutCalib(clone(c)) })
}

func (b *Board) writeOutCalib(c []wire.OutputCalib) error {
	if err := b.client.SetOutputCalibration(c); err != nil {
		return err
	}
	b.outCalib = c
	b.notify(SettingsUpdated)
	return nil
}

func (b *Board) SetInputCalibration(c []wire.InputCalib) error {
	return b.do(func() error {
		c = clone(c)
		if err := b.client.SetInputCalibration(c); err != nil {
			return err
		}
		b.inCalib = c
		b.notify(SettingsUpdated)
		return nil
	})
}

// InputCalibSetCenter takes the current inputs as center and reloads the
// input calibration.
func (b *Board) InputCalibSetCenter() error {
	return b.do(func() error {
		if err := b.client.InputCalibSetCenter(); err != nil {
			return err
		}
		c, err := b.client.InputCalibration(b.inputNb)
		if err != nil {
			return err
		}
		b.inCalib = c
		b.notify(SettingsUpdated)
		return nil
	})
}

// SetCalibRaw drives out to a raw tick for live calibration.
func (b *Board) SetCalibRaw(out int, raw int16) error {
	return b.do(func() error { return b.client.SetOutputCalibRaw(out, raw) })
}

// DisableCalibRaw ends a raw calibration preview.
func (b *Board) DisableCalibRaw() error {
	return b.do(func() error { return b.client.SetOutputCalibRaw(scb.CalibRawOff, CalibRawRelease) })
}
