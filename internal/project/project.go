// Package project reads and writes .scb project files: the output
// settings followed by one line per non empty sequence slot.
package project

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/sequence"
	"github.com/coreman2200/openscb/internal/wire"
)

const Header = "OpenSCB 0.2 Project"

// maxLine bounds one line of the file. A full sequence is well below.
const maxLine = 4 << 20

var ErrBadHeader = errors.New("project: unrecognized file format")

// Project is the decoded content of a project file. Sequences is keyed by
// flash slot, 1..board.SequenceSlots.
type Project struct {
	Settings  board.Settings
	Sequences map[int]*sequence.Sequence
}

// Facade is the part of the board facade projects move through.
type Facade interface {
	Settings() board.Settings
	Sequences() []*sequence.Sequence
	ApplySettings(s board.Settings) error
	CopySequence(slot int, src *sequence.Sequence) error
	SaveAllToFlash() error
}

type settingsJSON struct {
	names   []string
	speeds  []int
	calib   [][4]int16
	enabled []bool
}

func (s settingsJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.names, s.speeds, s.calib, s.enabled})
}

func (s *settingsJSON) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("settings have %d fields, want 4", len(raw))
	}
	for i, dst := range []any{&s.names, &s.speeds, &s.calib, &s.enabled} {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeSettings(s board.Settings) settingsJSON {
	out := settingsJSON{names: s.Names, enabled: s.Enabled}
	for _, v := range s.Speeds {
		out.speeds = append(out.speeds, int(v))
	}
	for _, c := range s.Calib {
		out.calib = append(out.calib, [4]int16{c.Min, c.Max, c.Angle180, c.Subtrim})
	}
	return out
}

func (s settingsJSON) decode() board.Settings {
	out := board.Settings{Names: s.names, Enabled: s.enabled}
	for _, v := range s.speeds {
		out.Speeds = append(out.Speeds, uint8(v))
	}
	for _, c := range s.calib {
		out.Calib = append(out.Calib, wire.OutputCalib{Min: c[0], Max: c[1], Angle180: c[2], Subtrim: c[3]})
	}
	return out
}

// Write encodes settings and seqs, index i holding flash slot i+1. Empty
// sequences get a line too so a restore clears their slot.
func Write(w io.Writer, settings board.Settings, seqs []*sequence.Sequence) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header)
	line, err := json.Marshal(encodeSettings(settings))
	if err != nil {
		return err
	}
	bw.Write(line)
	for i, seq := range seqs {
		if seq == nil {
			seq = sequence.New()
		}
		data, err := seq.MarshalJSON()
		if err != nil {
			return fmt.Errorf("slot %d: %w", i+1, err)
		}
		line, err := json.Marshal([]any{i, string(data)})
		if err != nil {
			return err
		}
		bw.WriteByte('\n')
		bw.Write(line)
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// Read decodes a project file. Nothing is returned unless every line
// parses.
func Read(r io.Reader) (*Project, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, ErrBadHeader
	}
	if strings.TrimRight(sc.Text(), "\r") != Header {
		return nil, ErrBadHeader
	}

	p := &Project{Sequences: map[int]*sequence.Sequence{}}
	n := 1
	haveSettings := false
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !haveSettings {
			var s settingsJSON
			if err := json.Unmarshal([]byte(text), &s); err != nil {
				return nil, fmt.Errorf("project: line %d: %w", n, err)
			}
			p.Settings = s.decode()
			haveSettings = true
			continue
		}
		slot, seq, err := parseSlot(text)
		if err != nil {
			return nil, fmt.Errorf("project: line %d: %w", n, err)
		}
		p.Sequences[slot] = seq
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !haveSettings {
		return nil, fmt.Errorf("project: line %d: missing settings", n+1)
	}
	return p, nil
}

func parseSlot(text string) (int, *sequence.Sequence, error) {
	var line []json.RawMessage
	if err := json.Unmarshal([]byte(text), &line); err != nil {
		return 0, nil, err
	}
	if len(line) != 2 {
		return 0, nil, fmt.Errorf("slot line has %d fields, want 2", len(line))
	}
	var idx int
	var data string
	if err := json.Unmarshal(line[0], &idx); err != nil {
		return 0, nil, err
	}
	if idx < 0 || idx >= board.SequenceSlots {
		return 0, nil, fmt.Errorf("slot index %d: %w", idx, board.ErrNoSuchSlot)
	}
	if err := json.Unmarshal(line[1], &data); err != nil {
		return 0, nil, err
	}
	seq := sequence.New()
	if err := seq.UnmarshalJSON([]byte(data)); err != nil {
		return 0, nil, err
	}
	return idx + 1, seq, nil
}

// Slots returns the flash slots p holds frames for, in increasing order.
func (p *Project) Slots() []int {
	slots := make([]int, 0, len(p.Sequences))
	for s, seq := range p.Sequences {
		if seq.Len() > 0 {
			slots = append(slots, s)
		}
	}
	sort.Ints(slots)
	return slots
}

// Export writes the settings and sequences of f.
func Export(f Facade, w io.Writer) error {
	return Write(w, f.Settings(), f.Sequences())
}

// Import reads a project, applies it to f and stores everything in flash.
// A file that does not parse leaves f untouched.
func Import(f Facade, r io.Reader) (*Project, error) {
	p, err := Read(r)
	if err != nil {
		return nil, err
	}
	if err := Apply(f, p); err != nil {
		return p, err
	}
	return p, nil
}

// Apply pushes p to f and saves it to flash. Slots p has no line for are
// cleared.
func Apply(f Facade, p *Project) error {
	if err := f.ApplySettings(p.Settings); err != nil {
		return err
	}
	for slot := 1; slot <= board.SequenceSlots; slot++ {
		seq, ok := p.Sequences[slot]
		if !ok {
			seq = sequence.New()
		}
		if err := f.CopySequence(slot, seq); err != nil {
			return err
		}
	}
	return f.SaveAllToFlash()
}
