package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"periph.io/x/conn/v3"

	"github.com/coreman2200/openscb/internal/wire"
)

// SerialConfig selects the port the board is reached through. With Port
// empty the board is found by its USB ids.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	DebugPort   string        `yaml:"debug_port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Baud:        57600,
		ReadTimeout: 500 * time.Millisecond,
	}
}

// port is the part of serial.Port a link uses.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialBus enumerates and opens boards over go.bug.st/serial.
type SerialBus struct {
	cfg SerialConfig

	list func() ([]*enumerator.PortDetails, error)
	open func(name string, mode *serial.Mode) (port, error)
}

func NewSerialBus(cfg SerialConfig) *SerialBus {
	def := DefaultSerialConfig()
	if cfg.Baud <= 0 {
		cfg.Baud = def.Baud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	return &SerialBus{
		cfg:  cfg,
		list: enumerator.GetDetailedPortsList,
		open: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}
}

func matchID(s string, id uint16) bool {
	return strings.EqualFold(s, fmt.Sprintf("%04X", id))
}

func (b *SerialBus) ports(k Kind) ([]string, error) {
	ports, err := b.list()
	if err != nil {
		return nil, fmt.Errorf("transport: enumerate ports: %w", err)
	}
	vid, pid := uint16(wire.BoardVID), uint16(wire.BoardPID)
	if k == Bootloader {
		vid, pid = wire.BootloaderVID, wire.BootloaderPID
	}
	var names []string
	for _, p := range ports {
		if p.IsUSB && matchID(p.VID, vid) && matchID(p.PID, pid) {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// Count reports how many devices of kind k are attached. A configured port
// counts as exactly one board.
func (b *SerialBus) Count(k Kind) (int, error) {
	if b.cfg.Port != "" {
		if k == Board {
			return 1, nil
		}
		return 0, nil
	}
	names, err := b.ports(k)
	return len(names), err
}

func (b *SerialBus) Open() (Link, error) {
	name := b.cfg.Port
	if name == "" {
		names, err := b.ports(Board)
		if err != nil {
			return nil, err
		}
		if len(names) != 1 {
			return nil, &StatusError{Code: StatusNoDev, Op: "open"}
		}
		name = names[0]
	}
	mode := &serial.Mode{BaudRate: b.cfg.Baud}
	p, err := b.open(name, mode)
	if err != nil {
		return nil, &StatusError{Code: StatusNoDev, Op: "open " + name, Err: err}
	}
	l := &serialLink{name: name, port: p, timeout: b.cfg.ReadTimeout}
	if b.cfg.DebugPort != "" {
		d, err := b.open(b.cfg.DebugPort, mode)
		if err != nil {
			p.Close()
			return nil, &StatusError{Code: StatusNoDev, Op: "open " + b.cfg.DebugPort, Err: err}
		}
		l.debug = d
	}
	return l, nil
}

// serialLink frames packets on a byte stream using the header size byte.
type serialLink struct {
	mu      sync.Mutex
	name    string
	port    port
	debug   port
	timeout time.Duration
}

func (l *serialLink) String() string { return "serial:" + l.name }

func (l *serialLink) Duplex() conn.Duplex { return conn.Half }

func (l *serialLink) Tx(w, r []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return &StatusError{Code: StatusNoDev, Op: "tx", Err: errors.New("link closed")}
	}
	if len(w) > 0 {
		if _, err := l.port.Write(w); err != nil {
			return &StatusError{Code: StatusIO, Op: "write", Err: err}
		}
	}
	if len(r) > 0 {
		return l.readPacket(r)
	}
	return nil
}

func (l *serialLink) readPacket(r []byte) error {
	if len(r) < wire.MaxPacket {
		return &StatusError{Code: StatusIO, Op: "read", Err: io.ErrShortBuffer}
	}
	deadline := time.Now().Add(l.timeout)
	if err := readFull(l.port, r[:wire.HeaderSize], deadline); err != nil {
		return err
	}
	size := int(r[3])
	if size < wire.HeaderSize || size > wire.MaxPacket {
		return &StatusError{Code: StatusIO, Op: "read", Err: fmt.Errorf("bad size byte %d", size)}
	}
	if err := readFull(l.port, r[wire.HeaderSize:size], deadline); err != nil {
		return err
	}
	for i := size; i < len(r); i++ {
		r[i] = 0
	}
	return nil
}

func readFull(p port, b []byte, deadline time.Time) error {
	for got := 0; got < len(b); {
		left := time.Until(deadline)
		if left <= 0 {
			return &StatusError{Code: StatusTimeout, Op: "read"}
		}
		if err := p.SetReadTimeout(left); err != nil {
			return &StatusError{Code: StatusIO, Op: "read", Err: err}
		}
		n, err := p.Read(b[got:])
		if err != nil {
			return &StatusError{Code: StatusIO, Op: "read", Err: err}
		}
		got += n
	}
	return nil
}

// ReadDebug reads one NUL or newline terminated message from the debug
// port. Without a debug port it reports a timeout straight away.
func (l *serialLink) ReadDebug(p []byte, timeout time.Duration) (int, error) {
	l.mu.Lock()
	d := l.debug
	l.mu.Unlock()
	if d == nil {
		return 0, ErrTimeout
	}
	if err := d.SetReadTimeout(timeout); err != nil {
		return 0, &StatusError{Code: StatusIO, Op: "debug", Err: err}
	}
	n, err := d.Read(p)
	if err != nil {
		return 0, &StatusError{Code: StatusIO, Op: "debug", Err: err}
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return n, nil
}

func (l *serialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.port != nil {
		err = l.port.Close()
		l.port = nil
	}
	if l.debug != nil {
		if derr := l.debug.Close(); err == nil {
			err = derr
		}
		l.debug = nil
	}
	return err
}
