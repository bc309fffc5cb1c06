// Package tests holds bring-up motion patterns for checking wiring and
// calibration of the enabled outputs.
package tests

import (
	"fmt"
	"time"
)

type Kind string

const (
	None        Kind = ""
	OutputSweep Kind = "output_sweep" // one output at a time: low, high, center
	RangeCheck  Kind = "range_check"  // all outputs to their range ends, then center
	CenterAll   Kind = "center_all"
)

// DefaultHold is how long each step is held.
const DefaultHold = 500 * time.Millisecond

// sweep is the goal sequence of OutputSweep.
var sweep = [...]float64{-0.5, 0.5, 0}

// ParseKind accepts the names of the patterns above.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case OutputSweep, RangeCheck, CenterAll:
		return k, nil
	}
	return None, fmt.Errorf("tests: unknown pattern %q", s)
}

type Plan struct {
	Kind Kind
	Hold time.Duration
}

// Target is the board the pattern moves.
type Target interface {
	EnabledOutputs() []int
	OutputRange(out int) (left, right float64)
	SetOutputGoal(out int, v float64) error
}

type Runner struct {
	plan Plan
	step int
	outs []int
	next time.Time
}

func NewRunner(plan Plan) *Runner {
	if plan.Hold <= 0 {
		plan.Hold = DefaultHold
	}
	return &Runner{plan: plan}
}

func (r *Runner) Kind() Kind { return r.plan.Kind }

// Step moves the target once the hold of the previous step is over. It
// returns false when the pattern is complete.
func (r *Runner) Step(t Target, now time.Time) (bool, error) {
	if r.step == 0 {
		r.outs = t.EnabledOutputs()
	} else if now.Before(r.next) {
		return true, nil
	}

	var goals map[int]float64
	switch r.plan.Kind {
	case OutputSweep:
		i := r.step / len(sweep)
		if i >= len(r.outs) {
			return false, nil
		}
		goals = map[int]float64{r.outs[i]: sweep[r.step%len(sweep)]}
	case RangeCheck:
		if r.step >= 3 {
			return false, nil
		}
		goals = map[int]float64{}
		for _, out := range r.outs {
			left, right := t.OutputRange(out)
			goals[out] = [...]float64{left, right, 0}[r.step]
		}
	case CenterAll:
		if r.step >= 1 {
			return false, nil
		}
		goals = map[int]float64{}
		for _, out := range r.outs {
			goals[out] = 0
		}
	default:
		return false, nil
	}

	for out, v := range goals {
		if err := t.SetOutputGoal(out, v); err != nil {
			return false, err
		}
	}
	r.step++
	r.next = now.Add(r.plan.Hold)
	return true, nil
}
