// Package transport moves raw packets between the host and the board.
//
// A Link is a periph conn.Conn: Tx(w, nil) writes one packet and Tx(nil, r)
// reads one packet into r, which is always MaxPacket bytes long.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3"
)

// Status codes reported by the transport, negative like libusb's.
const (
	StatusIO      = -5
	StatusNoDev   = -19
	StatusTimeout = -110
)

// ErrTimeout is returned by ReadDebug when nothing arrived in time.
var ErrTimeout = errors.New("transport: timeout")

// StatusError carries the signed status of a failed exchange.
type StatusError struct {
	Code int
	Op   string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s failed (%d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("transport: %s failed (%d)", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Link is an open session with one board.
type Link interface {
	conn.Conn
	io.Closer
	// ReadDebug reads one message from the asynchronous debug channel.
	ReadDebug(p []byte, timeout time.Duration) (int, error)
}

// Kind selects which devices Count looks for.
type Kind int

const (
	Board Kind = iota
	Bootloader
)

func (k Kind) String() string {
	if k == Bootloader {
		return "bootloader"
	}
	return "board"
}

// Bus finds and opens boards.
type Bus interface {
	Count(k Kind) (int, error)
	Open() (Link, error)
}
