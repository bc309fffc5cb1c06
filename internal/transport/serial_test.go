package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/coreman2200/openscb/internal/wire"
)

// fakePort serves bytes from in and records writes. An empty read returns
// 0, nil like a serial port whose read timeout expired.
type fakePort struct {
	in      bytes.Buffer
	out     bytes.Buffer
	closed  bool
	timeout time.Duration
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		time.Sleep(f.timeout)
		return 0, nil
	}
	return f.in.Read(p)
}
func (f *fakePort) Write(p []byte) (int, error)          { return f.out.Write(p) }
func (f *fakePort) Close() error                         { f.closed = true; return nil }
func (f *fakePort) SetReadTimeout(t time.Duration) error { f.timeout = t; return nil }

func testBus(cfg SerialConfig, ports []*enumerator.PortDetails, opened map[string]*fakePort) *SerialBus {
	b := NewSerialBus(cfg)
	b.list = func() ([]*enumerator.PortDetails, error) { return ports, nil }
	b.open = func(name string, mode *serial.Mode) (port, error) {
		p, ok := opened[name]
		if !ok {
			return nil, errors.New("no such port")
		}
		return p, nil
	}
	return b
}

func TestSerialBusCountsByUSBIds(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "03eb", PID: "a380"},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "03EB", PID: "2FF6"},
		{Name: "/dev/ttyS0"},
	}
	b := testBus(SerialConfig{}, ports, nil)

	n, err := b.Count(Board)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.Count(Bootloader)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSerialBusConfiguredPort(t *testing.T) {
	p := &fakePort{}
	b := testBus(SerialConfig{Port: "/dev/ttyUSB0"}, nil, map[string]*fakePort{"/dev/ttyUSB0": p})

	n, _ := b.Count(Board)
	assert.Equal(t, 1, n)
	n, _ = b.Count(Bootloader)
	assert.Zero(t, n)

	l, err := b.Open()
	require.NoError(t, err)
	assert.Equal(t, "serial:/dev/ttyUSB0", l.String())
	require.NoError(t, l.Close())
	assert.True(t, p.closed)
}

func TestSerialLinkFramesPackets(t *testing.T) {
	p := &fakePort{}
	// Two replies back to back in one stream.
	p.in.Write([]byte{1, 1, 0, 7, '0', '.', '2'})
	p.in.Write([]byte{2, 2, 0, 5, 24})
	l := &serialLink{name: "x", port: p, timeout: 50 * time.Millisecond}

	req := []byte{1, 1, 0, 4}
	r := make([]byte, wire.MaxPacket)
	require.NoError(t, l.Tx(req, r))
	assert.Equal(t, req, p.out.Bytes())

	pkt, err := wire.ParsePacket(r)
	require.NoError(t, err)
	assert.Equal(t, "0.2", string(pkt.Payload))

	require.NoError(t, l.Tx(nil, r))
	pkt, err = wire.ParsePacket(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{24}, pkt.Payload)
}

func TestSerialLinkTimeoutCarriesStatus(t *testing.T) {
	l := &serialLink{name: "x", port: &fakePort{}, timeout: 5 * time.Millisecond}
	err := l.Tx(nil, make([]byte, wire.MaxPacket))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StatusTimeout, se.Code)
}

func TestSerialLinkWithoutDebugPortTimesOut(t *testing.T) {
	l := &serialLink{name: "x", port: &fakePort{}}
	_, err := l.ReadDebug(make([]byte, 64), time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
