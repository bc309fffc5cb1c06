package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func times(s *Sequence) []float64 {
	var out []float64
	for _, f := range s.Frames() {
		out = append(out, f.Time())
	}
	return out
}

func record(s *Sequence) *[]Event {
	var got []Event
	s.Subscribe(func(e Event) { got = append(got, e) })
	return &got
}

func count(events []Event, k EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestAddFrameToEmptySequence(t *testing.T) {
	s := New()
	f := s.AddFrame(1.5, nil, "")
	assert.Empty(t, f.Points())
	assert.Equal(t, DefaultFrameName, f.Name())

	g := New().AddFrame(0, map[int]float64{3: 0.25}, "x")
	assert.Equal(t, map[int]float64{3: 0.25}, g.Points())
}

func TestAddFrameSeedsAndPropagates(t *testing.T) {
	s := New()
	old := s.AddFrame(2, map[int]float64{1: -0.2}, "old")
	f := s.AddFrame(5, map[int]float64{0: 0.5}, "new")

	require.Equal(t, 2, s.Len())
	assert.Equal(t, map[int]float64{0: 0.5, 1: -0.2}, f.Points())
	assert.Equal(t, map[int]float64{0: 0.5, 1: -0.2}, old.Points())
}

func TestAddFrameSeedsFromNearest(t *testing.T) {
	s := New()
	s.AddFrame(0, map[int]float64{0: 0}, "a")
	b := s.AddFrame(10, nil, "b")
	b.SetPoint(0, 1)

	f := s.AddFrame(8, nil, "c")
	v, _ := f.Point(0)
	assert.Equal(t, 1.0, v)

	// Equidistant: the earlier entry in the list wins.
	g := s.AddFrame(4, nil, "d")
	v, _ = g.Point(0)
	assert.Equal(t, 0.0, v)

	assert.Equal(t, []float64{0, 4, 8, 10}, times(s))
}

func TestPropagationKeepsExistingValues(t *testing.T) {
	s := New()
	a := s.AddFrame(0, map[int]float64{0: 0.1}, "a")
	s.AddFrame(1, map[int]float64{0: 0.9}, "b")
	v, _ := a.Point(0)
	assert.Equal(t, 0.1, v)
}

func TestReverseFramesMirrorsTime(t *testing.T) {
	s := New()
	a := s.AddFrame(0, map[int]float64{0: -1}, "a")
	b := s.AddFrame(1, nil, "b")
	c := s.AddFrame(3, nil, "c")
	b.SetPoint(0, 0)
	c.SetPoint(0, 1)

	s.ReverseFrames()

	assert.Equal(t, 3.0, a.Time())
	assert.Equal(t, 2.0, b.Time())
	assert.Equal(t, 0.0, c.Time())
	assert.Equal(t, []*Frame{c, b, a}, s.Frames())

	v, _ := a.Point(0)
	assert.Equal(t, -1.0, v)
}

func TestSetTimeResorts(t *testing.T) {
	s := New()
	a := s.AddFrame(0, nil, "a")
	b := s.AddFrame(1, nil, "b")
	got := record(s)

	a.SetTime(2)
	assert.Equal(t, []*Frame{b, a}, s.Frames())
	assert.Equal(t, 1, count(*got, SequenceChanged))

	a.SetTime(2)
	assert.Equal(t, 1, count(*got, SequenceChanged))
}

func TestCheckUpdateBatchesEdits(t *testing.T) {
	s := New()
	f := s.AddFrame(0, map[int]float64{0: 0}, "a")
	got := record(s)

	for i := 0; i < 10; i++ {
		f.SetPoint(0, float64(i)/10)
	}
	assert.True(t, f.Dirty())
	assert.Zero(t, count(*got, FrameChanged))

	s.CheckUpdate()
	s.CheckUpdate()
	assert.Equal(t, 1, count(*got, FrameChanged))
	assert.Same(t, f, (*got)[0].Frame)
	assert.False(t, f.Dirty())
}

func TestOutputEdits(t *testing.T) {
	s := New()
	a := s.AddFrame(0, map[int]float64{0: 0, 1: 1}, "a")
	b := s.AddFrame(1, nil, "b")

	s.ChangeOutput(1, 4)
	assert.Equal(t, []int{0, 4}, s.Outputs())
	assert.Equal(t, []int{0, 4}, b.Outputs())

	s.RemoveOutput(0)
	assert.Equal(t, map[int]float64{4: 1}, a.Points())

	s.AddOutput(7, 0.3)
	assert.Equal(t, []int{4, 7}, s.Outputs())
}

func TestVisibility(t *testing.T) {
	s := New()
	f := s.AddFrame(0, map[int]float64{0: 0, 1: 0}, "a")
	got := record(s)

	assert.True(t, s.Visible(1))
	s.SetVisible(1, false)
	s.SetVisible(1, false)
	assert.False(t, s.Visible(1))
	assert.Equal(t, []int{0}, f.VisibleOutputs())
	require.Equal(t, 1, count(*got, VisibilityChanged))
	assert.Equal(t, 1, (*got)[0].Output)
}

func TestSetSelectedIsIdempotent(t *testing.T) {
	s := New()
	a := s.AddFrame(0, nil, "a")
	b := s.AddFrame(1, nil, "b")
	got := record(s)

	s.SetSelected(b, a)
	s.SetSelected(b, a)
	assert.Equal(t, 1, count(*got, SelectionChanged))
	assert.Same(t, b, s.Highlighted())

	foreign := New().AddFrame(0, nil, "x")
	s.SetSelected(foreign)
	assert.Empty(t, s.Selected())
	assert.Nil(t, s.Highlighted())
	assert.Equal(t, 2, count(*got, SelectionChanged))
}

func TestRemoveFrameDropsSelection(t *testing.T) {
	s := New()
	a := s.AddFrame(0, nil, "a")
	b := s.AddFrame(1, nil, "b")
	s.SetSelected(a, b)

	assert.True(t, s.RemoveFrame(a))
	assert.False(t, s.RemoveFrame(a))
	assert.Equal(t, []*Frame{b}, s.Selected())
	assert.Same(t, b, s.Highlighted())

	// A detached frame no longer reaches the sequence.
	a.SetTime(9)
	assert.Equal(t, []float64{1}, times(s))
}

func TestJSONRoundTrip(t *testing.T) {
	s := New()
	s.SetDescription("wave")
	s.AddFrame(0, map[int]float64{0: -0.5, 3: 0.25}, "start")
	s.AddFrame(1.5, map[int]float64{0: 0.5}, "mid")
	s.AddFrame(3, map[int]float64{3: -1}, "end")

	data, err := s.AllToJSON()
	require.NoError(t, err)

	r := New()
	added, err := r.ImportJSON(data, nil)
	require.NoError(t, err)
	require.Len(t, added, 3)
	assert.Equal(t, "wave", r.Description())
	assert.Equal(t, added, r.Selected())

	want, got := s.Frames(), r.Frames()
	for i := range want {
		assert.Equal(t, want[i].Name(), got[i].Name())
		assert.Equal(t, want[i].Time(), got[i].Time())
		assert.Equal(t, want[i].Points(), got[i].Points())
	}
}

func TestJSONShape(t *testing.T) {
	s := New()
	s.SetDescription("d")
	s.AddFrame(1, map[int]float64{2: 0.5}, "f")
	data, err := s.AllToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["d", ["f", 1, {"2": 0.5}]]`, string(data))
}

func TestImportAtOffset(t *testing.T) {
	s := New()
	offset := 10.0
	_, err := s.ImportJSON([]byte(`["", ["a", 2, {"0": 0}], ["b", 3.5, {"0": 1}]]`), &offset)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11.5}, times(s))
}

func TestSelectedToJSON(t *testing.T) {
	s := New()
	s.AddFrame(0, map[int]float64{0: 0}, "a")
	b := s.AddFrame(1, nil, "b")
	s.SetSelected(b)
	data, err := s.SelectedToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["", ["b", 1, {"0": 0}]]`, string(data))
}

var TestBadJSONCases = []string{
	`not json`,
	`[]`,
	`[1]`,
	`["d", ["a", 1]]`,
	`["d", ["a", "one", {}]]`,
	`["d", ["a", 1, {"x": 0}]]`,
	`["d", ["a", 1, {"0": 0}], 7]`,
}

func TestBadJSONLeavesSequenceUntouched(t *testing.T) {
	for _, in := range TestBadJSONCases {
		t.Run(in, func(t *testing.T) {
			s := New()
			s.SetDescription("keep")
			s.AddFrame(0, map[int]float64{0: 0}, "a")

			_, err := s.ImportJSON([]byte(in), nil)
			assert.ErrorIs(t, err, ErrBadJSON)
			assert.Equal(t, "keep", s.Description())
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestUnmarshalReplaces(t *testing.T) {
	s := New()
	s.AddFrame(7, nil, "gone")
	require.NoError(t, s.UnmarshalJSON([]byte(`["x", ["a", 1, {"0": 0}]]`)))
	assert.Equal(t, []float64{1}, times(s))
	assert.Equal(t, "x", s.Description())
}

func TestClone(t *testing.T) {
	s := New()
	s.SetDescription("d")
	f := s.AddFrame(0, map[int]float64{0: 1}, "a")
	c := s.Clone()
	f.SetPoint(0, -1)

	require.Equal(t, 1, c.Len())
	v, _ := c.Frames()[0].Point(0)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, "d", c.Description())
}
