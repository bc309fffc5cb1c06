package sequence

import "sort"

func newFrame(seq *Sequence, t float64, name string) *Frame {
	if name == "" {
		name = DefaultFrameName
	}
	return &Frame{seq: seq, name: name, time: t, point: map[int]float64{}}
}

func (f *Frame) clone(seq *Sequence) *Frame {
	c := newFrame(seq, f.time, f.name)
	for no, v := range f.point {
		c.point[no] = v
	}
	return c
}

func (f *Frame) Name() string { return f.name }

func (f *Frame) SetName(name string) {
	if name == f.name {
		return
	}
	f.name = name
	f.dirty = true
}

// Time is the absolute frame time in seconds.
func (f *Frame) Time() float64 { return f.time }

// SetTime moves the frame and re-sorts its sequence.
func (f *Frame) SetTime(t float64) {
	if t == f.time {
		return
	}
	f.time = t
	f.dirty = true
	if f.seq != nil {
		f.seq.timeUpdated()
	}
}

func (f *Frame) HasPoint(no int) bool {
	_, ok := f.point[no]
	return ok
}

func (f *Frame) Point(no int) (float64, bool) {
	v, ok := f.point[no]
	return v, ok
}

// SetPoint marks the frame dirty; CheckUpdate publishes the change.
func (f *Frame) SetPoint(no int, v float64) {
	if old, ok := f.point[no]; ok && old == v {
		return
	}
	f.point[no] = v
	f.dirty = true
}

// AddPoint adds output no unless the frame already drives it.
func (f *Frame) AddPoint(no int, v float64) {
	if f.HasPoint(no) {
		return
	}
	f.point[no] = v
	f.emit()
}

func (f *Frame) RemovePoint(no int) {
	if !f.HasPoint(no) {
		return
	}
	delete(f.point, no)
	f.emit()
}

// ChangePoint moves the value of output from to output to.
func (f *Frame) ChangePoint(from, to int) {
	v, ok := f.point[from]
	if from == to || !ok {
		return
	}
	delete(f.point, from)
	f.point[to] = v
	f.emit()
}

// Points returns a copy of the output to position map.
func (f *Frame) Points() map[int]float64 {
	out := make(map[int]float64, len(f.point))
	for no, v := range f.point {
		out[no] = v
	}
	return out
}

// Outputs lists the driven outputs in ascending order.
func (f *Frame) Outputs() []int {
	out := make([]int, 0, len(f.point))
	for no := range f.point {
		out = append(out, no)
	}
	sort.Ints(out)
	return out
}

// VisibleOutputs is Outputs filtered by the sequence visibility flags.
func (f *Frame) VisibleOutputs() []int {
	out := f.Outputs()
	if f.seq == nil {
		return out
	}
	vis := out[:0]
	for _, no := range out {
		if f.seq.Visible(no) {
			vis = append(vis, no)
		}
	}
	return vis
}

// Dirty reports edits not yet published by CheckUpdate.
func (f *Frame) Dirty() bool { return f.dirty }

// CheckUpdate publishes one FrameChanged for all edits since the last call.
func (f *Frame) CheckUpdate() {
	if !f.dirty {
		return
	}
	f.dirty = false
	f.emit()
}

func (f *Frame) emit() {
	if f.seq != nil {
		f.seq.events.Emit(Event{Kind: FrameChanged, Frame: f})
	}
}
