package sequence

import (
	"math"
	"sort"
)

func New() *Sequence {
	return &Sequence{visible: map[int]bool{}}
}

// Clone returns a deep copy without selection or visibility state.
func (s *Sequence) Clone() *Sequence {
	c := New()
	c.desc = s.desc
	for _, f := range s.frames {
		c.frames = append(c.frames, f.clone(c))
	}
	return c
}

// CopyFrom replaces the description and frames of s with copies of src's.
// Subscribers of s are kept, selection is cleared.
func (s *Sequence) CopyFrom(src *Sequence) {
	if src == s {
		return
	}
	for _, f := range s.frames {
		f.seq = nil
	}
	s.frames = nil
	for _, f := range src.frames {
		s.frames = append(s.frames, f.clone(s))
	}
	s.desc = src.desc
	s.selection = nil
	s.highlighted = nil
	s.emit(SequenceChanged)
}

// Subscribe registers fn for every notification of s.
func (s *Sequence) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.Subscribe(fn)
}

func (s *Sequence) emit(k EventKind) { s.events.Emit(Event{Kind: k}) }

func (s *Sequence) Description() string { return s.desc }

func (s *Sequence) SetDescription(desc string) { s.desc = desc }

// Frames returns the frames in time order. The slice is a copy.
func (s *Sequence) Frames() []*Frame {
	return append([]*Frame(nil), s.frames...)
}

func (s *Sequence) Len() int { return len(s.frames) }

// Duration is the time of the last frame, 0 when empty.
func (s *Sequence) Duration() float64 {
	if len(s.frames) == 0 {
		return 0
	}
	return s.frames[len(s.frames)-1].time
}

func (s *Sequence) owns(f *Frame) bool {
	for _, o := range s.frames {
		if o == f {
			return true
		}
	}
	return false
}

func (s *Sequence) nearest(t float64) *Frame {
	var best *Frame
	dist := math.Inf(1)
	for _, f := range s.frames {
		if d := math.Abs(f.time - t); d < dist {
			best, dist = f, d
		}
	}
	return best
}

// AddFrame inserts a frame at t. Its points start as a copy of the
// nearest frame's and are overlaid with points. Every output in points is
// also added, with the given value, to existing frames lacking it so all
// frames keep driving the same outputs.
func (s *Sequence) AddFrame(t float64, points map[int]float64, name string) *Frame {
	f := newFrame(s, t, name)
	if n := s.nearest(t); n != nil {
		for no, v := range n.point {
			f.point[no] = v
		}
	}
	for no, v := range points {
		f.point[no] = v
		for _, o := range s.frames {
			o.AddPoint(no, v)
		}
	}
	s.frames = append(s.frames, f)
	s.resort()
	s.emit(SequenceChanged)
	return f
}

// RemoveFrame detaches f and drops it from the selection.
func (s *Sequence) RemoveFrame(f *Frame) bool {
	for i, o := range s.frames {
		if o != f {
			continue
		}
		s.frames = append(s.frames[:i], s.frames[i+1:]...)
		f.seq = nil
		s.unselect(f)
		s.emit(SequenceChanged)
		return true
	}
	return false
}

func (s *Sequence) RemoveAllFrames() {
	for _, f := range s.frames {
		f.seq = nil
	}
	s.frames = nil
	s.selection = nil
	s.highlighted = nil
	s.emit(SequenceChanged)
}

func (s *Sequence) unselect(f *Frame) {
	for i, o := range s.selection {
		if o == f {
			s.selection = append(s.selection[:i:i], s.selection[i+1:]...)
			break
		}
	}
	if s.highlighted == f {
		s.highlighted = nil
		if len(s.selection) > 0 {
			s.highlighted = s.selection[0]
		}
		s.emit(HighlightChanged)
	}
}

// AddOutput adds output no with value v to every frame lacking it.
func (s *Sequence) AddOutput(no int, v float64) {
	for _, f := range s.frames {
		f.AddPoint(no, v)
	}
	s.emit(SequenceChanged)
}

func (s *Sequence) RemoveOutput(no int) {
	for _, f := range s.frames {
		f.RemovePoint(no)
	}
	s.emit(SequenceChanged)
}

// ChangeOutput rekeys output from to to in every frame.
func (s *Sequence) ChangeOutput(from, to int) {
	if from == to {
		return
	}
	for _, f := range s.frames {
		f.ChangePoint(from, to)
	}
	s.emit(SequenceChanged)
}

// ReverseFrames mirrors the time axis. Frame content stays with its list
// position, so the first frame takes the last time and so on.
func (s *Sequence) ReverseFrames() {
	if len(s.frames) < 2 {
		return
	}
	tmin, tmax := s.frames[0].time, s.frames[len(s.frames)-1].time
	for _, f := range s.frames {
		t := tmin + tmax - f.time
		if t != f.time {
			f.time = t
			f.dirty = true
		}
	}
	s.timeUpdated()
}

// Outputs is the union of outputs driven by any frame, ascending.
func (s *Sequence) Outputs() []int {
	seen := map[int]bool{}
	var out []int
	for _, f := range s.frames {
		for no := range f.point {
			if !seen[no] {
				seen[no] = true
				out = append(out, no)
			}
		}
	}
	sort.Ints(out)
	return out
}

// Visible reports whether output no is shown. Outputs default to visible.
func (s *Sequence) Visible(no int) bool {
	v, ok := s.visible[no]
	return !ok || v
}

func (s *Sequence) SetVisible(no int, visible bool) {
	if s.Visible(no) == visible {
		return
	}
	s.visible[no] = visible
	s.events.Emit(Event{Kind: VisibilityChanged, Output: no})
	s.emit(SequenceChanged)
}

// Selected returns the selected frames in selection order.
func (s *Sequence) Selected() []*Frame {
	return append([]*Frame(nil), s.selection...)
}

// SetSelected replaces the selection with the frames of s among frames.
// The first one becomes highlighted. Nothing is emitted when the
// selection does not change.
func (s *Sequence) SetSelected(frames ...*Frame) {
	var sel []*Frame
	for _, f := range frames {
		if s.owns(f) {
			sel = append(sel, f)
		}
	}
	if sameFrames(sel, s.selection) {
		return
	}
	s.selection = sel
	var h *Frame
	if len(sel) > 0 {
		h = sel[0]
	}
	if h != s.highlighted {
		s.highlighted = h
		s.emit(HighlightChanged)
	}
	s.emit(SelectionChanged)
}

func sameFrames(a, b []*Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Highlighted is the frame under focus, or nil.
func (s *Sequence) Highlighted() *Frame { return s.highlighted }

func (s *Sequence) SetHighlighted(f *Frame) {
	if f != nil && !s.owns(f) {
		return
	}
	if f == s.highlighted {
		return
	}
	s.highlighted = f
	s.emit(HighlightChanged)
}

// CheckUpdate publishes pending frame edits.
func (s *Sequence) CheckUpdate() {
	for _, f := range s.frames {
		f.CheckUpdate()
	}
}

func (s *Sequence) timeUpdated() {
	s.resort()
	s.emit(SequenceChanged)
}

func (s *Sequence) resort() {
	sort.SliceStable(s.frames, func(i, j int) bool { return s.frames[i].time < s.frames[j].time })
}
