package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrBadJSON wraps every import failure. The sequence is left untouched.
var ErrBadJSON = errors.New("sequence: malformed json")

// The text form is [desc, [name, time, {"<output>": value, ...}], ...].

func framesJSON(desc string, frames []*Frame) ([]byte, error) {
	values := make([]any, 0, len(frames)+1)
	values = append(values, desc)
	for _, f := range frames {
		values = append(values, []any{f.name, f.time, f.point})
	}
	return json.Marshal(values)
}

func (s *Sequence) MarshalJSON() ([]byte, error) { return s.AllToJSON() }

// AllToJSON encodes the description and every frame.
func (s *Sequence) AllToJSON() ([]byte, error) { return framesJSON(s.desc, s.frames) }

// SelectedToJSON encodes the description and the selected frames.
func (s *Sequence) SelectedToJSON() ([]byte, error) { return framesJSON(s.desc, s.selection) }

type importedFrame struct {
	name   string
	time   float64
	points map[int]float64
}

func parseJSON(data []byte) (string, []importedFrame, error) {
	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("%w: missing description", ErrBadJSON)
	}
	var desc string
	if err := json.Unmarshal(values[0], &desc); err != nil {
		return "", nil, fmt.Errorf("%w: description: %v", ErrBadJSON, err)
	}
	frames := make([]importedFrame, 0, len(values)-1)
	for i, raw := range values[1:] {
		var tuple []json.RawMessage
		if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) != 3 {
			return "", nil, fmt.Errorf("%w: frame %d is not [name, time, points]", ErrBadJSON, i)
		}
		var (
			f   importedFrame
			pts map[string]float64
		)
		if err := json.Unmarshal(tuple[0], &f.name); err != nil {
			return "", nil, fmt.Errorf("%w: frame %d name: %v", ErrBadJSON, i, err)
		}
		if err := json.Unmarshal(tuple[1], &f.time); err != nil {
			return "", nil, fmt.Errorf("%w: frame %d time: %v", ErrBadJSON, i, err)
		}
		if err := json.Unmarshal(tuple[2], &pts); err != nil {
			return "", nil, fmt.Errorf("%w: frame %d points: %v", ErrBadJSON, i, err)
		}
		f.points = make(map[int]float64, len(pts))
		for k, v := range pts {
			no, err := strconv.Atoi(k)
			if err != nil {
				return "", nil, fmt.Errorf("%w: frame %d output %q", ErrBadJSON, i, k)
			}
			f.points[no] = v
		}
		frames = append(frames, f)
	}
	return desc, frames, nil
}

// ImportJSON adds the frames of data through AddFrame and selects them.
// With a non nil offset the imported frames are shifted so the first one
// lands at *offset. The description is replaced.
func (s *Sequence) ImportJSON(data []byte, offset *float64) ([]*Frame, error) {
	desc, frames, err := parseJSON(data)
	if err != nil {
		return nil, err
	}
	s.desc = desc
	added := make([]*Frame, 0, len(frames))
	for _, f := range frames {
		t := f.time
		if offset != nil {
			t = *offset + f.time - frames[0].time
		}
		added = append(added, s.AddFrame(t, f.points, f.name))
	}
	s.SetSelected(added...)
	return added, nil
}

// UnmarshalJSON replaces the content of s with data.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	if _, _, err := parseJSON(data); err != nil {
		return err
	}
	if s.visible == nil {
		s.visible = map[int]bool{}
	}
	s.RemoveAllFrames()
	_, err := s.ImportJSON(data, nil)
	return err
}
