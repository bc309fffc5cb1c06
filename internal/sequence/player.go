package sequence

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// DefaultTickRate is the cadence the host should call Tick at.
const DefaultTickRate = 50 * physic.Hertz

// ErrEmptySequence is returned by Play for a sequence without frames.
var ErrEmptySequence = errors.New("sequence: nothing to play")

// NewPlayer constructs a stopped Player with the provided hooks.
func NewPlayer(h Hooks) *Player {
	return &Player{State: Stopped, hooks: h}
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// Play snapshots seq and loads its first frame. Later edits to seq do not
// affect a running playback. A playback already running is stopped first.
func (p *Player) Play(seq *Sequence, loop bool, now time.Time) error {
	if seq == nil || seq.Len() == 0 {
		return ErrEmptySequence
	}
	if err := p.Stop(); err != nil {
		return err
	}
	p.frames = p.frames[:0]
	for _, f := range seq.frames {
		p.frames = append(p.frames, keyframe{at: seconds(f.time), points: f.Points()})
	}
	p.loop = loop
	p.setState(Playing)
	return p.rewind(now)
}

func (p *Player) rewind(now time.Time) error {
	p.start = now
	first := p.frames[0]
	p.next = first.at
	return p.load(first.at, first.points)
}

// Tick advances playback to now. Each frame is loaded once, when the
// playhead passes the time of the frame before it.
func (p *Player) Tick(now time.Time) error {
	if p.State != Playing {
		return nil
	}
	elapsed := now.Sub(p.start)
	if elapsed > p.next {
		for _, f := range p.frames {
			if elapsed < f.at {
				p.next = f.at
				if err := p.load(f.at-elapsed, f.points); err != nil {
					return err
				}
				break
			}
		}
	}
	if elapsed > p.frames[len(p.frames)-1].at {
		if p.loop {
			return p.rewind(now)
		}
		return p.Stop()
	}
	return nil
}

// Stop returns the outputs to goal tracking. It does nothing when
// already stopped.
func (p *Player) Stop() error {
	if p.State == Stopped {
		return nil
	}
	p.setState(Stopped)
	p.frames = p.frames[:0]
	if p.hooks.DisableFrame != nil {
		return p.hooks.DisableFrame()
	}
	return nil
}

// Elapsed is the playhead position at now, 0 when stopped.
func (p *Player) Elapsed(now time.Time) time.Duration {
	if p.State != Playing {
		return 0
	}
	return now.Sub(p.start)
}

func (p *Player) load(remaining time.Duration, points map[int]float64) error {
	if p.hooks.LoadFrame == nil {
		return nil
	}
	return p.hooks.LoadFrame(remaining, points)
}

func (p *Player) setState(s PlayerState) {
	if p.State == s {
		return
	}
	p.State = s
	if p.hooks.StateChanged != nil {
		p.hooks.StateChanged(s)
	}
}

// SafePlayer serializes access to a Player shared between goroutines.
type SafePlayer struct {
	mu sync.Mutex
	P  *Player
}

func NewSafePlayer(h Hooks) *SafePlayer {
	return &SafePlayer{P: NewPlayer(h)}
}

func (s *SafePlayer) With(f func(p *Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.P)
}
