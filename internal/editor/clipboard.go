package editor

import (
	"sync"

	"github.com/atotto/clipboard"
)

// Clipboard is the text clipboard the editor copies frames through.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard is the desktop clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Available reports whether the host has a usable clipboard.
func (SystemClipboard) Available() bool { return !clipboard.Unsupported }

// MemoryClipboard keeps the text in process, for headless hosts.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (m *MemoryClipboard) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *MemoryClipboard) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

// DefaultClipboard returns the system clipboard when there is one.
func DefaultClipboard() Clipboard {
	if (SystemClipboard{}).Available() {
		return SystemClipboard{}
	}
	return &MemoryClipboard{}
}
