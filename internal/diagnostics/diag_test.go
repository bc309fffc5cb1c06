package diagnostics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/scb"
)

func TestFromEvent(t *testing.T) {
	d, ok := FromEvent(board.Event{Kind: board.Disconnected})
	assert.True(t, ok)
	assert.Equal(t, Warn, d.Severity)
	assert.Equal(t, "BOARD.DISCONNECTED", d.Code)

	_, ok = FromEvent(board.Event{Kind: board.PositionUpdated})
	assert.False(t, ok)
}

func TestFromError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("connect: %w", scb.ErrDeviceNotFound), "BOARD.NOT_FOUND"},
		{scb.ErrTwoOrMoreBoards, "BOARD.AMBIGUOUS"},
		{scb.ErrBoardInBootloaderMode, "BOARD.BOOTLOADER"},
		{&scb.IncompatibleVersion{Firmware: "0.1", Client: "0.2"}, "BOARD.VERSION"},
		{&scb.ConnectionProblem{Code: -110}, "BOARD.CONNECTION"},
		{fmt.Errorf("other"), "BOARD.ERROR"},
	}
	for _, c := range cases {
		d := FromError(c.err)
		assert.Equal(t, c.code, d.Code, c.err.Error())
		assert.Equal(t, Err, d.Severity)
	}
}

func TestDebug(t *testing.T) {
	d := Debug("Board connected")
	assert.Equal(t, "BOARD.DEBUG", d.Code)
	assert.Equal(t, "Board connected", d.Summary)
}
