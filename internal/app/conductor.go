package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/openscb/internal/board"
	diag "github.com/coreman2200/openscb/internal/diagnostics"
	"github.com/coreman2200/openscb/internal/editor"
	"github.com/coreman2200/openscb/internal/tests"
)

const (
	// debugTimeout bounds the wait for a debug line on each poll.
	debugTimeout = 10 * time.Millisecond
	// maxDebugPerPoll keeps a chatty board from starving the poll loop.
	maxDebugPerPoll = 8
	reconnectEvery  = 2 * time.Second
)

// Conductor polls the board and ticks the preview player.
type Conductor struct {
	Board  *board.Board
	Editor *editor.Editor

	poll, tick time.Duration
	publish    func(diag.Diagnostic)
	log        zerolog.Logger

	lastAttempt time.Time
	lastErr     string

	mu   sync.Mutex
	test *tests.Runner
}

func NewConductor(b *board.Board, ed *editor.Editor, poll, tick time.Duration, publish func(diag.Diagnostic), log zerolog.Logger) *Conductor {
	if poll <= 0 {
		poll = 40 * time.Millisecond
	}
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}
	if publish == nil {
		publish = func(diag.Diagnostic) {}
	}
	return &Conductor{Board: b, Editor: ed, poll: poll, tick: tick, publish: publish, log: log}
}

func (c *Conductor) Run(ctx context.Context) {
	poll := time.NewTicker(c.poll)
	defer poll.Stop()
	tick := time.NewTicker(c.tick)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-poll.C:
			c.Poll(now)
		case now := <-tick.C:
			if err := c.Editor.Tick(now); err != nil {
				c.report(err)
			}
		}
	}
}

// Poll runs one poll step: reconnect when the session is gone, otherwise
// refresh positions and drain the debug channel.
func (c *Conductor) Poll(now time.Time) {
	if !c.Board.Connected() {
		if now.Sub(c.lastAttempt) < reconnectEvery {
			return
		}
		c.lastAttempt = now
		if err := c.Board.Connect(); err != nil {
			c.report(err)
			return
		}
		c.lastErr = ""
	}
	if err := c.Board.UpdatePosition(); err != nil {
		c.report(err)
		return
	}
	c.stepTest(now)
	for i := 0; i < maxDebugPerPoll; i++ {
		msg, err := c.Board.DebugMessage(debugTimeout)
		if err != nil {
			c.report(err)
			return
		}
		if msg == "" {
			return
		}
		c.log.Debug().Str("msg", msg).Msg("board")
		c.publish(diag.Debug(msg))
	}
}

// RunTest starts a bring-up pattern, replacing any running one.
func (c *Conductor) RunTest(k tests.Kind) {
	c.mu.Lock()
	c.test = tests.NewRunner(tests.Plan{Kind: k})
	c.mu.Unlock()
	c.publish(diag.Diagnostic{Time: time.Now(), Severity: diag.Info, Code: "TEST.RUNNING", Summary: "Running test", Detail: string(k)})
}

func (c *Conductor) stepTest(now time.Time) {
	c.mu.Lock()
	r := c.test
	c.mu.Unlock()
	if r == nil {
		return
	}
	more, err := r.Step(c.Board, now)
	if more && err == nil {
		return
	}
	c.mu.Lock()
	if c.test == r {
		c.test = nil
	}
	c.mu.Unlock()
	if err != nil {
		c.report(err)
		return
	}
	c.publish(diag.Diagnostic{Time: time.Now(), Severity: diag.Info, Code: "TEST.DONE", Summary: "Test complete", Detail: string(r.Kind())})
}

// report publishes err unless it repeats the previous one.
func (c *Conductor) report(err error) {
	if err.Error() == c.lastErr {
		return
	}
	c.lastErr = err.Error()
	c.log.Warn().Err(err).Msg("board")
	c.publish(diag.FromError(err))
}
