// Package scb is the host side binding of the servo controller board.
//
// Client is implemented by Board, which talks to hardware through a
// transport.Bus, and by Sim, an in-memory stand-in. All calls block until
// the exchange completes. While no session is open every call returns
// zero values and a nil error.
package scb

import (
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/openscb/internal/wire"
)

// Mode is the operating mode of the board core.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeOutputCalib
	ModeInputCalib
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeOutputCalib:
		return "output_calib"
	case ModeInputCalib:
		return "input_calib"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// CalibRawOff is the output number that ends a raw calibration preview.
const CalibRawOff = 0xFF

// Connection errors. They need the user to act before retrying.
var (
	ErrDeviceNotFound        = errors.New("scb: no board found")
	ErrTwoOrMoreBoards       = errors.New("scb: two or more boards connected")
	ErrBoardInBootloaderMode = errors.New("scb: board is in bootloader mode")
)

// ConnectionProblem is returned when an exchange fails. The session has
// already been closed when the caller sees it.
type ConnectionProblem struct {
	Code int
	Err  error
}

func (e *ConnectionProblem) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scb: connection problem (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("scb: connection problem (%d)", e.Code)
}

func (e *ConnectionProblem) Unwrap() error { return e.Err }

// IncompatibleVersion is returned when the firmware speaks another
// protocol version than this binding.
type IncompatibleVersion struct {
	Firmware string
	Client   string
}

func (e *IncompatibleVersion) Error() string {
	return fmt.Sprintf("scb: firmware version %q is incompatible with %q", e.Firmware, e.Client)
}

// Session covers connection lifecycle and system commands.
type Session interface {
	Connect() error
	Close() error
	Connected() bool
	CheckFirmwareVersion() (compatible bool, version string, err error)
	RestartToBootloader() error
	// DebugMessage returns "" when nothing arrived within timeout.
	DebugMessage(timeout time.Duration) (string, error)
	SetMode(m Mode) error
}

// Inputs reads and configures input channels.
type Inputs interface {
	InputCount() (int, error)
	InputValues(n int) ([]float64, error)
	InputCalibration(n int) ([]wire.InputCalib, error)
	SetInputCalibration(c []wire.InputCalib) error
	InputCalibSetCenter() error
	InputMapping(n int) ([]uint8, error)
	SetInputMapping(m []uint8) error
}

// Outputs reads and configures servo outputs.
type Outputs interface {
	OutputCount() (int, error)
	OutputValues(n int) ([]float64, error)
	OutputGoal(n int) ([]float64, error)
	SetOutputGoal(goal []float64) error
	SetOneOutputGoal(out int, v float64) error
	OutputSpeed(n int) ([]uint8, error)
	SetOutputSpeed(s []uint8) error
	OutputNames(n int) ([]string, error)
	SetOutputNames(names []string) error
	OutputEnabled(n int) ([]bool, error)
	SetOutputEnabled(e []bool) error
	OutputControlled(n int) ([]bool, error)
	SetOutputControlled(c []bool) error
	OutputCalibration(n int) ([]wire.OutputCalib, error)
	SetOutputCalibration(c []wire.OutputCalib) error
	SetOutputCalibRaw(out int, raw int16) error
	OutputMapping(n int) ([]uint8, error)
	SetOutputMapping(m []uint8) error
}

// Sequences covers live frames, sequence slots and flash storage.
type Sequences interface {
	LoadFrame(durationMs uint32, points map[int]float64) error
	DisableFrame() error
	PlaySequenceSlot(id int) error
	UploadSequenceStart(id, frames int) error
	UploadSequenceFrame(idx int, durationMs uint32, points map[int]float64) error
	UploadSequenceEnd(desc string) error
	DownloadSequence(id int) ([]wire.Frame, error)
	StoreSettingsToSlot(id int) error
	LoadSettingsFromSlot(id int) error
	FlashOverview() ([]wire.SlotHeader, error)
	FlashSlot(id int) (wire.SlotHeader, error)
	SetFlashSlotDescription(id int, desc string) error
}

// Client is everything the board exposes.
type Client interface {
	Session
	Inputs
	Outputs
	Sequences
}

var (
	_ Client = (*Board)(nil)
	_ Client = (*Sim)(nil)
)
