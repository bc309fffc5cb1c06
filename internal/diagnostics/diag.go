// Package diagnostics turns board activity into messages for operators.
package diagnostics

import (
	"errors"
	"time"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/scb"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Debug wraps one line of the board debug channel.
func Debug(msg string) Diagnostic {
	return Diagnostic{Time: time.Now(), Severity: Info, Code: "BOARD.DEBUG", Summary: msg}
}

// FromEvent describes connection changes. Other events give ok false.
func FromEvent(e board.Event) (d Diagnostic, ok bool) {
	switch e.Kind {
	case board.Connected:
		return Diagnostic{Time: time.Now(), Severity: Info, Code: "BOARD.CONNECTED", Summary: "Board connected"}, true
	case board.Disconnected:
		return Diagnostic{
			Time:           time.Now(),
			Severity:       Warn,
			Code:           "BOARD.DISCONNECTED",
			Summary:        "Board disconnected",
			LikelyCauses:   []string{"USB cable unplugged", "board reset or entered bootloader"},
			SuggestedFixes: []string{"check the cable and power", "reconnect from the control channel"},
		}, true
	}
	return Diagnostic{}, false
}

// FromError classifies err from a board call.
func FromError(err error) Diagnostic {
	d := Diagnostic{Time: time.Now(), Severity: Err, Code: "BOARD.ERROR", Summary: "Board call failed", Detail: err.Error()}
	var cp *scb.ConnectionProblem
	var iv *scb.IncompatibleVersion
	switch {
	case errors.Is(err, scb.ErrDeviceNotFound):
		d.Code, d.Summary = "BOARD.NOT_FOUND", "No board found"
		d.SuggestedFixes = []string{"plug the board in", "check udev permissions on the serial device"}
	case errors.Is(err, scb.ErrTwoOrMoreBoards):
		d.Code, d.Summary = "BOARD.AMBIGUOUS", "More than one board found"
		d.SuggestedFixes = []string{"unplug all boards but one", "select a port with serial.port"}
	case errors.Is(err, scb.ErrBoardInBootloaderMode):
		d.Code, d.Summary = "BOARD.BOOTLOADER", "Board is in bootloader mode"
		d.SuggestedFixes = []string{"flash a firmware or power cycle the board"}
	case errors.As(err, &iv):
		d.Code, d.Summary = "BOARD.VERSION", "Incompatible firmware"
		d.Evidence = map[string]any{"firmware": iv.Firmware, "client": iv.Client}
	case errors.As(err, &cp):
		d.Code, d.Summary = "BOARD.CONNECTION", "Connection problem"
		d.Evidence = map[string]any{"code": cp.Code}
	}
	return d
}
