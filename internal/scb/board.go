package scb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/openscb/internal/transport"
	"github.com/coreman2200/openscb/internal/wire"
)

// ErrOutOfRange is returned for slot or channel numbers the protocol
// cannot address.
var ErrOutOfRange = errors.New("scb: index out of range")

// Unrelated packets skipped while waiting for one reply before giving up.
const maxStray = 32

// Board drives a real board. Exchanges are serialized by an internal
// mutex so concurrent callers queue instead of interleaving packets.
type Board struct {
	mu   sync.Mutex
	bus  transport.Bus
	link transport.Link
	log  zerolog.Logger
	rx   [wire.MaxPacket]byte
}

func NewBoard(bus transport.Bus, log zerolog.Logger) *Board {
	return &Board{bus: bus, log: log}
}

// Connect opens the single attached board.
func (b *Board) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()

	n, err := b.bus.Count(transport.Board)
	if err != nil {
		return fmt.Errorf("scb: enumerate boards: %w", err)
	}
	switch {
	case n == 0:
		boot, err := b.bus.Count(transport.Bootloader)
		if err != nil {
			return fmt.Errorf("scb: enumerate bootloaders: %w", err)
		}
		if boot > 0 {
			return ErrBoardInBootloaderMode
		}
		return ErrDeviceNotFound
	case n > 1:
		return ErrTwoOrMoreBoards
	}

	link, err := b.bus.Open()
	if err != nil {
		return problem(err)
	}
	b.link = link
	b.log.Info().Str("link", link.String()).Msg("board connected")
	return nil
}

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Board) closeLocked() error {
	if b.link == nil {
		return nil
	}
	err := b.link.Close()
	b.link = nil
	b.log.Info().Msg("board disconnected")
	return err
}

func (b *Board) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link != nil
}

// call runs f with the session locked. It is a no-op without a session and
// tears the session down when f hits a connection problem.
func (b *Board) call(op string, f func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return nil
	}
	err := f()
	var cp *ConnectionProblem
	if errors.As(err, &cp) {
		b.log.Warn().Err(err).Str("op", op).Int("code", cp.Code).Msg("exchange failed")
		b.closeLocked()
	}
	return err
}

func problem(err error) error {
	code := -1
	var se *transport.StatusError
	if errors.As(err, &se) {
		code = se.Code
	}
	return &ConnectionProblem{Code: code, Err: err}
}

func (b *Board) send(p *wire.Packet) error {
	w, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if err := b.link.Tx(w, nil); err != nil {
		return problem(err)
	}
	return nil
}

func (b *Board) request(m wire.Module, c wire.Command, index uint8, payload []byte) error {
	p, err := wire.NewPacket(m, c, index, payload)
	if err != nil {
		return err
	}
	return b.send(p)
}

func (b *Board) recv() (*wire.Packet, error) {
	if err := b.link.Tx(nil, b.rx[:]); err != nil {
		return nil, problem(err)
	}
	p, err := wire.ParsePacket(b.rx[:])
	if err != nil {
		return nil, problem(err)
	}
	return p, nil
}

// reply waits for the answer to (m, c), dropping anything else.
func (b *Board) reply(m wire.Module, c wire.Command) (*wire.Packet, error) {
	for i := 0; i < maxStray; i++ {
		p, err := b.recv()
		if err != nil {
			return nil, err
		}
		if p.Is(m, c) {
			return p, nil
		}
		b.log.Debug().Stringer("packet", p).Msg("skipping unrelated packet")
	}
	return nil, problem(fmt.Errorf("no reply to %s/%d", m, c))
}

// fetch requests an array of n elements and reassembles the fragments.
func (b *Board) fetch(m wire.Module, c wire.Command, n, elemSize int) ([]byte, error) {
	if err := b.request(m, c, 0, nil); err != nil {
		return nil, err
	}
	return b.collect(m, c, wire.NewAssembler(n, elemSize))
}

// collect reads fragments into a until it is complete. Replies that add
// nothing new count as stray, so a board repeating itself cannot keep the
// client waiting forever.
func (b *Board) collect(m wire.Module, c wire.Command, a *wire.Assembler) ([]byte, error) {
	for stalled := 0; !a.Done(); {
		p, err := b.reply(m, c)
		if err != nil {
			return nil, err
		}
		if a.Add(p) == 0 {
			if stalled++; stalled >= maxStray {
				return nil, problem(fmt.Errorf("%s/%d: fragments do not advance", m, c))
			}
		}
	}
	return a.Bytes(), nil
}

func (b *Board) push(m wire.Module, c wire.Command, data []byte, elemSize int) error {
	pkts, err := wire.Fragment(m, c, data, elemSize)
	if err != nil {
		return err
	}
	for _, p := range pkts {
		if err := b.send(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Board) fetchBitmask(m wire.Module, c wire.Command, n int) ([]bool, error) {
	if err := b.request(m, c, 0, nil); err != nil {
		return nil, err
	}
	p, err := b.reply(m, c)
	if err != nil {
		return nil, err
	}
	if len(p.Payload) < 4 {
		return nil, problem(fmt.Errorf("%w: bitmask reply of %d bytes", wire.ErrMalformedPacket, len(p.Payload)))
	}
	return wire.Bools(binary.BigEndian.Uint32(p.Payload), n), nil
}

func (b *Board) pushBitmask(m wire.Module, c wire.Command, flags []bool) error {
	if len(flags) > wire.MaxOutputs {
		flags = flags[:wire.MaxOutputs]
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, wire.Bitmask(flags))
	return b.request(m, c, 0, payload)
}

func clampCount(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

func index(v, limit int) (uint8, error) {
	if v < 0 || v >= limit {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, v, limit)
	}
	return uint8(v), nil
}

// CheckFirmwareVersion compares the firmware version with ProtocolVersion.
func (b *Board) CheckFirmwareVersion() (bool, string, error) {
	var version string
	err := b.call("version", func() error {
		if err := b.request(wire.System, wire.CmdReqSoftVersion, 0, nil); err != nil {
			return err
		}
		p, err := b.reply(wire.System, wire.CmdReqSoftVersion)
		if err != nil {
			return err
		}
		version = wire.CString(p.Payload)
		return nil
	})
	return err == nil && version == wire.ProtocolVersion, version, err
}

// RestartToBootloader reboots the board into DFU mode and drops the
// session since the device leaves the bus.
func (b *Board) RestartToBootloader() error {
	return b.call("bootloader", func() error {
		if err := b.request(wire.System, wire.CmdRestartBootloader, 0, nil); err != nil {
			return err
		}
		b.closeLocked()
		return nil
	})
}

func (b *Board) DebugMessage(timeout time.Duration) (string, error) {
	var msg string
	err := b.call("debug", func() error {
		buf := make([]byte, wire.MaxPacket)
		n, err := b.link.ReadDebug(buf, timeout)
		if errors.Is(err, transport.ErrTimeout) {
			return nil
		}
		if err != nil {
			return problem(err)
		}
		msg = wire.CString(buf[:n])
		return nil
	})
	return msg, err
}

func (b *Board) SetMode(m Mode) error {
	return b.call("set mode", func() error {
		return b.request(wire.Core, wire.CmdSetCoreMode, uint8(m), nil)
	})
}

func (b *Board) count(op string, c wire.Command, max int) (int, error) {
	var n int
	err := b.call(op, func() error {
		v, err := b.fetch(wire.Core, c, 1, 1)
		if err != nil {
			return err
		}
		n = clampCount(int(v[0]), max)
		return nil
	})
	return n, err
}

func (b *Board) InputCount() (int, error) {
	return b.count("input count", wire.CmdReqInputNb, wire.MaxInputs)
}

func (b *Board) OutputCount() (int, error) {
	return b.count("output count", wire.CmdReqOutputNb, wire.MaxOutputs)
}

func (b *Board) fixedArray(op string, m wire.Module, c wire.Command, n, max int) ([]float64, error) {
	n = clampCount(n, max)
	if n == 0 {
		return nil, nil
	}
	var out []float64
	err := b.call(op, func() error {
		v, err := b.fetch(m, c, n, 2)
		if err != nil {
			return err
		}
		out = wire.ParseFixed16(v)
		return nil
	})
	return out, err
}

func (b *Board) byteArray(op string, m wire.Module, c wire.Command, n, max int) ([]uint8, error) {
	n = clampCount(n, max)
	if n == 0 {
		return nil, nil
	}
	var out []uint8
	err := b.call(op, func() error {
		v, err := b.fetch(m, c, n, 1)
		out = v
		return err
	})
	return out, err
}

func (b *Board) pushArray(op string, m wire.Module, c wire.Command, data []byte, elemSize int) error {
	return b.call(op, func() error {
		return b.push(m, c, data, elemSize)
	})
}

func (b *Board) InputValues(n int) ([]float64, error) {
	return b.fixedArray("input values", wire.Core, wire.CmdReqInputValue, n, wire.MaxInputs)
}

func (b *Board) InputCalibration(n int) ([]wire.InputCalib, error) {
	n = clampCount(n, wire.MaxInputs)
	if n == 0 {
		return nil, nil
	}
	var out []wire.InputCalib
	err := b.call("input calibration", func() error {
		v, err := b.fetch(wire.SysConf, wire.CmdReqInputCalibValue, n, wire.InputCalibSize)
		if err != nil {
			return err
		}
		out = make([]wire.InputCalib, n)
		return wire.Unmarshal(v, out)
	})
	return out, err
}

func (b *Board) SetInputCalibration(c []wire.InputCalib) error {
	data, err := wire.Marshal(c)
	if err != nil {
		return err
	}
	return b.pushArray("set input calibration", wire.SysConf, wire.CmdSetInputCalibValue, data, wire.InputCalibSize)
}

func (b *Board) InputCalibSetCenter() error {
	return b.call("input center", func() error {
		return b.request(wire.CoreCalibration, wire.CmdSetInputCalibCenter, 0, nil)
	})
}

func (b *Board) InputMapping(n int) ([]uint8, error) {
	return b.byteArray("input mapping", wire.SysConf, wire.CmdReqInputMapping, n, wire.MaxInputs)
}

func (b *Board) SetInputMapping(m []uint8) error {
	return b.pushArray("set input mapping", wire.SysConf, wire.CmdSetInputMapping, m, 1)
}

func (b *Board) OutputValues(n int) ([]float64, error) {
	return b.fixedArray("output values", wire.Core, wire.CmdReqOutputValue, n, wire.MaxOutputs)
}

func (b *Board) OutputGoal(n int) ([]float64, error) {
	return b.fixedArray("output goal", wire.APICtrl, wire.CmdReqOutputGoal, n, wire.MaxOutputs)
}

func (b *Board) SetOutputGoal(goal []float64) error {
	return b.pushArray("set goal", wire.APICtrl, wire.CmdSetOutputGoal, wire.Fixed16(goal), 2)
}

func (b *Board) SetOneOutputGoal(out int, v float64) error {
	idx, err := index(out, wire.MaxOutputs)
	if err != nil {
		return err
	}
	return b.call("set one goal", func() error {
		return b.request(wire.APICtrl, wire.CmdSetOutputGoal, idx, wire.Fixed16([]float64{v}))
	})
}

func (b *Board) OutputSpeed(n int) ([]uint8, error) {
	return b.byteArray("output speed", wire.SysConf, wire.CmdReqOutputMaxSpeed, n, wire.MaxOutputs)
}

func (b *Board) SetOutputSpeed(s []uint8) error {
	return b.pushArray("set speed", wire.SysConf, wire.CmdSetOutputMaxSpeed, s, 1)
}

func (b *Board) OutputNames(n int) ([]string, error) {
	n = clampCount(n, wire.MaxOutputs)
	if n == 0 {
		return nil, nil
	}
	var out []string
	err := b.call("output names", func() error {
		v, err := b.fetch(wire.SysConf, wire.CmdReqOutputName, n, wire.IONameLen)
		if err != nil {
			return err
		}
		out = wire.ParseNames(v)
		return nil
	})
	return out, err
}

func (b *Board) SetOutputNames(names []string) error {
	return b.pushArray("set names", wire.SysConf, wire.CmdSetOutputName, wire.Names(names), wire.IONameLen)
}

func (b *Board) OutputEnabled(n int) ([]bool, error) {
	var out []bool
	err := b.call("output enabled", func() error {
		var err error
		out, err = b.fetchBitmask(wire.SysConf, wire.CmdReqOutputActiveBM, clampCount(n, wire.MaxOutputs))
		return err
	})
	return out, err
}

func (b *Board) SetOutputEnabled(e []bool) error {
	return b.call("set enabled", func() error {
		return b.pushBitmask(wire.SysConf, wire.CmdSetOutputActiveBM, e)
	})
}

func (b *Board) OutputControlled(n int) ([]bool, error) {
	var out []bool
	err := b.call("output controlled", func() error {
		var err error
		out, err = b.fetchBitmask(wire.APICtrl, wire.CmdReqControlBM, clampCount(n, wire.MaxOutputs))
		return err
	})
	return out, err
}

func (b *Board) SetOutputControlled(c []bool) error {
	return b.call("set controlled", func() error {
		return b.pushBitmask(wire.APICtrl, wire.CmdSetControlBM, c)
	})
}

func (b *Board) OutputCalibration(n int) ([]wire.OutputCalib, error) {
	n = clampCount(n, wire.MaxOutputs)
	if n == 0 {
		return nil, nil
	}
	var out []wire.OutputCalib
	err := b.call("output calibration", func() error {
		v, err := b.fetch(wire.SysConf, wire.CmdReqOutputCalibValue, n, wire.OutputCalibSize)
		if err != nil {
			return err
		}
		out = make([]wire.OutputCalib, n)
		return wire.Unmarshal(v, out)
	})
	return out, err
}

func (b *Board) SetOutputCalibration(c []wire.OutputCalib) error {
	data, err := wire.Marshal(c)
	if err != nil {
		return err
	}
	return b.pushArray("set output calibration", wire.SysConf, wire.CmdSetOutputCalibValue, data, wire.OutputCalibSize)
}

// SetOutputCalibRaw drives one output to a raw tick for live calibration.
// out == CalibRawOff ends the preview.
func (b *Board) SetOutputCalibRaw(out int, raw int16) error {
	if out != CalibRawOff {
		if _, err := index(out, wire.MaxOutputs); err != nil {
			return err
		}
	}
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(raw))
	return b.call("calib raw", func() error {
		return b.request(wire.CoreCalibration, wire.CmdSetOutputCalibRaw, uint8(out), payload)
	})
}

func (b *Board) OutputMapping(n int) ([]uint8, error) {
	return b.byteArray("output mapping", wire.SysConf, wire.CmdReqOutputMapping, n, wire.MaxOutputs)
}

func (b *Board) SetOutputMapping(m []uint8) error {
	return b.pushArray("set output mapping", wire.SysConf, wire.CmdSetOutputMapping, m, 1)
}

func (b *Board) frame(op string, m wire.Module, c wire.Command, idx uint8, durationMs uint32, points map[int]float64) error {
	data, err := wire.Marshal(wire.FrameFromPoints(durationMs, points))
	if err != nil {
		return err
	}
	return b.call(op, func() error {
		return b.request(m, c, idx, data)
	})
}

// LoadFrame pushes a transient frame that the board reaches in durationMs.
func (b *Board) LoadFrame(durationMs uint32, points map[int]float64) error {
	return b.frame("load frame", wire.PosCtrl, wire.CmdLoadFrame, 0, durationMs, points)
}

// DisableFrame returns the outputs to goal tracking.
func (b *Board) DisableFrame() error {
	return b.call("disable frame", func() error {
		return b.request(wire.PosCtrl, wire.CmdDisableFrame, 0, nil)
	})
}

func (b *Board) slotCommand(op string, m wire.Module, c wire.Command, id int, payload []byte) error {
	idx, err := index(id, wire.FlashSlots)
	if err != nil {
		return err
	}
	return b.call(op, func() error {
		return b.request(m, c, idx, payload)
	})
}

func (b *Board) PlaySequenceSlot(id int) error {
	return b.slotCommand("play slot", wire.SeqCtrl, wire.CmdPlaySlot, id, nil)
}

// UploadSequenceStart opens a three step upload: start, one call per
// frame, end.
func (b *Board) UploadSequenceStart(id, frames int) error {
	if frames < 0 || frames > wire.MaxSequenceFrames {
		return fmt.Errorf("%w: %d frames", ErrOutOfRange, frames)
	}
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(frames))
	return b.slotCommand("upload start", wire.SeqCtrl, wire.CmdUploadSlotStart, id, payload)
}

func (b *Board) UploadSequenceFrame(idx int, durationMs uint32, points map[int]float64) error {
	i, err := index(idx, wire.MaxSequenceFrames)
	if err != nil {
		return err
	}
	return b.frame("upload frame", wire.SeqCtrl, wire.CmdUploadSlotFrame, i, durationMs, points)
}

func (b *Board) UploadSequenceEnd(desc string) error {
	return b.call("upload end", func() error {
		return b.request(wire.SeqCtrl, wire.CmdUploadSlotEnd, 0, wire.StringPayload(desc))
	})
}

// DownloadSequence returns at most MaxSequenceFrames frames of slot id.
func (b *Board) DownloadSequence(id int) ([]wire.Frame, error) {
	idx, err := index(id, wire.FlashSlots)
	if err != nil {
		return nil, err
	}
	var frames []wire.Frame
	err = b.call("download", func() error {
		if err := b.request(wire.SeqCtrl, wire.CmdDownloadSlot, idx, nil); err != nil {
			return err
		}
		p, err := b.reply(wire.SeqCtrl, wire.CmdDownloadSlot)
		if err != nil {
			return err
		}
		if len(p.Payload) < 2 {
			return problem(fmt.Errorf("%w: frame count reply of %d bytes", wire.ErrMalformedPacket, len(p.Payload)))
		}
		n := clampCount(int(binary.BigEndian.Uint16(p.Payload)), wire.MaxSequenceFrames)
		if n == 0 {
			return nil
		}
		data, err := b.collect(wire.SeqCtrl, wire.CmdDownloadSlotFrame, wire.NewAssembler(n, wire.FrameSize))
		if err != nil {
			return err
		}
		frames = make([]wire.Frame, n)
		return wire.Unmarshal(data, frames)
	})
	return frames, err
}

func (b *Board) StoreSettingsToSlot(id int) error {
	return b.slotCommand("store settings", wire.SysConf, wire.CmdSaveSysConf, id, nil)
}

func (b *Board) LoadSettingsFromSlot(id int) error {
	return b.slotCommand("load settings", wire.SysConf, wire.CmdLoadSysConf, id, nil)
}

// FlashOverview returns the headers of all flash slots.
func (b *Board) FlashOverview() ([]wire.SlotHeader, error) {
	var out []wire.SlotHeader
	err := b.call("flash overview", func() error {
		v, err := b.fetch(wire.UserFlash, wire.CmdReqOverviewAll, wire.FlashSlots, wire.SlotHeaderSize)
		if err != nil {
			return err
		}
		out = make([]wire.SlotHeader, wire.FlashSlots)
		return wire.Unmarshal(v, out)
	})
	return out, err
}

func (b *Board) FlashSlot(id int) (wire.SlotHeader, error) {
	var h wire.SlotHeader
	idx, err := index(id, wire.FlashSlots)
	if err != nil {
		return h, err
	}
	err = b.call("flash slot", func() error {
		if err := b.request(wire.UserFlash, wire.CmdReqOverview, idx, nil); err != nil {
			return err
		}
		p, err := b.reply(wire.UserFlash, wire.CmdReqOverview)
		if err != nil {
			return err
		}
		return wire.Unmarshal(p.Payload, &h)
	})
	return h, err
}

func (b *Board) SetFlashSlotDescription(id int, desc string) error {
	return b.slotCommand("slot description", wire.UserFlash, wire.CmdSetDescription, id, wire.StringPayload(desc))
}
