package scb

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/openscb/internal/wire"
)

// Capacity of the simulated debug channel. The oldest message is dropped
// when it is full.
const simDebugQueue = 64

type simSettings struct {
	names    []string
	speeds   []uint8
	enabled  []bool
	inCalib  []wire.InputCalib
	outCalib []wire.OutputCalib
}

// Sim is an in-memory board. Every call succeeds at once and every
// operation is echoed on the debug channel.
type Sim struct {
	mu        sync.Mutex
	log       zerolog.Logger
	connected bool
	fail      int
	debug     chan string

	inputs     []float64
	outputs    []float64
	goal       []float64
	speeds     []uint8
	names      []string
	enabled    []bool
	controlled []bool
	inCalib    []wire.InputCalib
	outCalib   []wire.OutputCalib
	inMap      []uint8
	outMap     []uint8
	mode       Mode
	frameOn    bool

	slots     [wire.FlashSlots]wire.SlotHeader
	sequences [wire.FlashSlots][]wire.Frame
	settings  map[int]simSettings

	uploadSlot   int
	uploadFrames []wire.Frame
}

func NewSim(log zerolog.Logger) *Sim {
	s := &Sim{
		log:        log,
		debug:      make(chan string, simDebugQueue),
		inputs:     make([]float64, wire.MaxInputs),
		outputs:    make([]float64, wire.MaxOutputs),
		goal:       make([]float64, wire.MaxOutputs),
		speeds:     make([]uint8, wire.MaxOutputs),
		names:      make([]string, wire.MaxOutputs),
		enabled:    make([]bool, wire.MaxOutputs),
		controlled: make([]bool, wire.MaxOutputs),
		inCalib:    make([]wire.InputCalib, wire.MaxInputs),
		outCalib:   make([]wire.OutputCalib, wire.MaxOutputs),
		inMap:      make([]uint8, wire.MaxInputs),
		outMap:     make([]uint8, wire.MaxOutputs),
		settings:   map[int]simSettings{},
		uploadSlot: -1,
	}
	for i := range s.names {
		s.names[i] = string(rune('A' + i))
		s.outCalib[i] = wire.OutputCalib{Min: 1000, Max: 4000, Angle180: 3000, Subtrim: 2500}
		s.outMap[i] = uint8(i)
	}
	for i := range s.inCalib {
		s.inCalib[i] = wire.InputCalib{Min: 1000, Mid: 2000, Max: 3000}
		s.inMap[i] = uint8(i)
	}
	for i := range s.slots {
		s.slots[i] = wire.NewSlotHeader(wire.SlotEmpty, "", 0)
	}
	return s
}

// Fail makes the next call report a connection problem with code.
func (s *Sim) Fail(code int) {
	s.mu.Lock()
	s.fail = code
	s.mu.Unlock()
}

// SetInputValues moves the simulated inputs.
func (s *Sim) SetInputValues(v []float64) {
	s.mu.Lock()
	copy(s.inputs, v)
	s.mu.Unlock()
}

func (s *Sim) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.log.Debug().Str("msg", msg).Msg("sim")
	for {
		select {
		case s.debug <- msg:
			return
		default:
			select {
			case <-s.debug:
			default:
			}
		}
	}
}

func (s *Sim) call(op string, f func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	if s.fail != 0 {
		code := s.fail
		s.fail = 0
		s.connected = false
		s.logf("Board disconnected")
		return &ConnectionProblem{Code: code, Err: fmt.Errorf("simulated failure during %s", op)}
	}
	f()
	return nil
}

func head[T any](src []T, n int) []T {
	n = clampCount(n, len(src))
	return append([]T(nil), src[:n]...)
}

func (s *Sim) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.logf("Board connected")
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.connected = false
		s.logf("Board disconnected")
	}
	return nil
}

func (s *Sim) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sim) CheckFirmwareVersion() (bool, string, error) {
	var ok bool
	var v string
	err := s.call("version", func() {
		s.logf("Board simulation")
		ok, v = true, wire.ProtocolVersion
	})
	return ok, v, err
}

func (s *Sim) RestartToBootloader() error {
	return s.call("bootloader", func() {
		s.logf("Restarting to bootloader")
		s.connected = false
	})
}

// DebugMessage waits up to timeout for a queued message.
func (s *Sim) DebugMessage(timeout time.Duration) (string, error) {
	if !s.Connected() {
		return "", nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-s.debug:
		return m, nil
	case <-t.C:
		return "", nil
	}
}

func (s *Sim) SetMode(m Mode) error {
	return s.call("set mode", func() {
		s.mode = m
		s.logf("Setting board mode: %d", m)
	})
}

func (s *Sim) InputCount() (n int, err error) {
	err = s.call("input count", func() { n = len(s.inputs) })
	return
}

func (s *Sim) OutputCount() (n int, err error) {
	err = s.call("output count", func() { n = len(s.outputs) })
	return
}

func (s *Sim) InputValues(n int) (v []float64, err error) {
	err = s.call("input values", func() { v = head(s.inputs, n) })
	return
}

func (s *Sim) InputCalibration(n int) (c []wire.InputCalib, err error) {
	err = s.call("input calibration", func() { c = head(s.inCalib, n) })
	return
}

func (s *Sim) SetInputCalibration(c []wire.InputCalib) error {
	return s.call("set input calibration", func() { copy(s.inCalib, c) })
}

func (s *Sim) InputCalibSetCenter() error {
	return s.call("input center", func() {
		for i, v := range s.inputs {
			s.inCalib[i].Mid = s.inCalib[i].Min + int16(float64(s.inCalib[i].Max-s.inCalib[i].Min)*(v+1)/2)
		}
		s.logf("Input calibration centered")
	})
}

func (s *Sim) InputMapping(n int) (m []uint8, err error) {
	err = s.call("input mapping", func() { m = head(s.inMap, n) })
	return
}

func (s *Sim) SetInputMapping(m []uint8) error {
	return s.call("set input mapping", func() { copy(s.inMap, m) })
}

func (s *Sim) OutputValues(n int) (v []float64, err error) {
	err = s.call("output values", func() { v = head(s.outputs, n) })
	return
}

func (s *Sim) OutputGoal(n int) (v []float64, err error) {
	err = s.call("output goal", func() { v = head(s.goal, n) })
	return
}

// SetOutputGoal moves the simulated outputs straight to their goal.
func (s *Sim) SetOutputGoal(goal []float64) error {
	return s.call("set goal", func() {
		copy(s.goal, goal)
		copy(s.outputs, goal)
	})
}

func (s *Sim) SetOneOutputGoal(out int, v float64) error {
	if _, err := index(out, wire.MaxOutputs); err != nil {
		return err
	}
	return s.call("set one goal", func() {
		s.goal[out] = v
		s.outputs[out] = v
	})
}

func (s *Sim) OutputSpeed(n int) (v []uint8, err error) {
	err = s.call("output speed", func() { v = head(s.speeds, n) })
	return
}

func (s *Sim) SetOutputSpeed(v []uint8) error {
	return s.call("set speed", func() { copy(s.speeds, v) })
}

func (s *Sim) OutputNames(n int) (v []string, err error) {
	err = s.call("output names", func() { v = head(s.names, n) })
	return
}

func (s *Sim) SetOutputNames(names []string) error {
	return s.call("set names", func() {
		for i, n := range names {
			if i >= len(s.names) {
				break
			}
			if len(n) > wire.IONameLen {
				n = n[:wire.IONameLen]
			}
			s.names[i] = n
		}
	})
}

func (s *Sim) OutputEnabled(n int) (v []bool, err error) {
	err = s.call("output enabled", func() { v = head(s.enabled, n) })
	return
}

func (s *Sim) SetOutputEnabled(e []bool) error {
	return s.call("set enabled", func() { copy(s.enabled, e) })
}

func (s *Sim) OutputControlled(n int) (v []bool, err error) {
	err = s.call("output controlled", func() { v = head(s.controlled, n) })
	return
}

func (s *Sim) SetOutputControlled(c []bool) error {
	return s.call("set controlled", func() { copy(s.controlled, c) })
}

func (s *Sim) OutputCalibration(n int) (c []wire.OutputCalib, err error) {
	err = s.call("output calibration", func() { c = head(s.outCalib, n) })
	return
}

func (s *Sim) SetOutputCalibration(c []wire.OutputCalib) error {
	return s.call("set output calibration", func() { copy(s.outCalib, c) })
}

func (s *Sim) SetOutputCalibRaw(out int, raw int16) error {
	return s.call("calib raw", func() { s.logf("Out %d raw: %d", out, raw) })
}

func (s *Sim) OutputMapping(n int) (m []uint8, err error) {
	err = s.call("output mapping", func() { m = head(s.outMap, n) })
	return
}

func (s *Sim) SetOutputMapping(m []uint8) error {
	return s.call("set output mapping", func() { copy(s.outMap, m) })
}

// LoadFrame jumps the active outputs to their frame positions.
func (s *Sim) LoadFrame(durationMs uint32, points map[int]float64) error {
	f := wire.FrameFromPoints(durationMs, points)
	return s.call("load frame", func() {
		s.frameOn = true
		for no, v := range f.Points() {
			s.outputs[no] = v
		}
	})
}

func (s *Sim) DisableFrame() error {
	return s.call("disable frame", func() {
		s.frameOn = false
		copy(s.outputs, s.goal)
	})
}

func (s *Sim) PlaySequenceSlot(id int) error {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return err
	}
	return s.call("play slot", func() { s.logf("Playing sequence in slotid: %d", id) })
}

func (s *Sim) UploadSequenceStart(id, frames int) error {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return err
	}
	if frames < 0 || frames > wire.MaxSequenceFrames {
		return fmt.Errorf("%w: %d frames", ErrOutOfRange, frames)
	}
	return s.call("upload start", func() {
		s.logf("Saving sequence start: %d", id)
		s.uploadSlot = id
		s.uploadFrames = make([]wire.Frame, frames)
	})
}

func (s *Sim) UploadSequenceFrame(idx int, durationMs uint32, points map[int]float64) error {
	return s.call("upload frame", func() {
		s.logf("* Saving sequence frame: %d", idx)
		if s.uploadSlot < 0 || idx < 0 || idx >= len(s.uploadFrames) {
			return
		}
		s.uploadFrames[idx] = wire.FrameFromPoints(durationMs, points)
	})
}

func (s *Sim) UploadSequenceEnd(desc string) error {
	return s.call("upload end", func() {
		s.logf("Saving sequence end")
		if s.uploadSlot < 0 {
			return
		}
		s.slots[s.uploadSlot] = wire.NewSlotHeader(wire.SlotOutSequence, desc, uint32(len(s.uploadFrames)))
		s.sequences[s.uploadSlot] = s.uploadFrames
		s.uploadSlot, s.uploadFrames = -1, nil
	})
}

func (s *Sim) DownloadSequence(id int) (f []wire.Frame, err error) {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return nil, err
	}
	err = s.call("download", func() {
		s.logf("Downloading sequence: %d", id)
		f = append([]wire.Frame(nil), s.sequences[id]...)
	})
	return
}

func (s *Sim) StoreSettingsToSlot(id int) error {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return err
	}
	return s.call("store settings", func() {
		s.logf("Saving settings to slot")
		s.settings[id] = simSettings{
			names:    head(s.names, len(s.names)),
			speeds:   head(s.speeds, len(s.speeds)),
			enabled:  head(s.enabled, len(s.enabled)),
			inCalib:  head(s.inCalib, len(s.inCalib)),
			outCalib: head(s.outCalib, len(s.outCalib)),
		}
		s.slots[id] = wire.NewSlotHeader(wire.SlotIOSettings, "Settings", 0)
		s.sequences[id] = nil
	})
}

func (s *Sim) LoadSettingsFromSlot(id int) error {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return err
	}
	return s.call("load settings", func() {
		s.logf("Loading settings from slot")
		st, ok := s.settings[id]
		if !ok {
			return
		}
		copy(s.names, st.names)
		copy(s.speeds, st.speeds)
		copy(s.enabled, st.enabled)
		copy(s.inCalib, st.inCalib)
		copy(s.outCalib, st.outCalib)
	})
}

func (s *Sim) FlashOverview() (h []wire.SlotHeader, err error) {
	err = s.call("flash overview", func() { h = head(s.slots[:], len(s.slots)) })
	return
}

func (s *Sim) FlashSlot(id int) (h wire.SlotHeader, err error) {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return h, err
	}
	err = s.call("flash slot", func() { h = s.slots[id] })
	return
}

func (s *Sim) SetFlashSlotDescription(id int, desc string) error {
	if _, err := index(id, wire.FlashSlots); err != nil {
		return err
	}
	return s.call("slot description", func() {
		s.slots[id] = wire.NewSlotHeader(s.slots[id].Type, desc, s.slots[id].Size)
	})
}
