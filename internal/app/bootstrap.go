package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/config"
	diag "github.com/coreman2200/openscb/internal/diagnostics"
	"github.com/coreman2200/openscb/internal/editor"
	"github.com/coreman2200/openscb/internal/event"
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/transport"
)

type Core struct {
	Board     *board.Board
	Editor    *editor.Editor
	Conductor *Conductor
	Started   time.Time

	diags  event.List[diag.Diagnostic]
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient builds the protocol client for cfg.Backend.
func NewClient(cfg *config.Config, log zerolog.Logger) scb.Client {
	switch cfg.Backend {
	case config.Sim:
		return scb.NewSim(log.With().Str("backend", "sim").Logger())
	case config.Serial:
		return scb.NewBoard(transport.NewSerialBus(cfg.Serial), log)
	default:
		sc := cfg.Serial
		sc.Port = ""
		return scb.NewBoard(transport.NewSerialBus(sc), log)
	}
}

// InitCore wires the facade, the editor and the conductor loops around
// client. The board is connected once here and again by the conductor
// whenever the session drops.
func InitCore(ctx context.Context, cfg *config.Config, client scb.Client, log zerolog.Logger) *Core {
	b := board.New(client, board.WithLogger(log))
	ed := editor.New(b, editor.DefaultClipboard(), log)
	c := &Core{Board: b, Editor: ed, Started: time.Now(), done: make(chan struct{})}

	b.Subscribe(func(e board.Event) {
		if d, ok := diag.FromEvent(e); ok {
			c.Publish(d)
		}
		if e.Kind == board.SequencesUpdated && e.Slot == 0 {
			ed.Rebind()
		}
	})
	ed.Subscribe(func(e editor.Event) {
		if e.Kind == editor.PlayerChanged {
			c.Publish(diag.Diagnostic{Time: time.Now(), Severity: diag.Info, Code: "PLAYER." + strings.ToUpper(string(e.State)), Summary: "Preview " + string(e.State), Evidence: map[string]any{"slot": e.Slot}})
		}
	})

	if err := b.Connect(); err != nil {
		log.Warn().Err(err).Msg("connect failed")
		c.Publish(diag.FromError(err))
	}

	tick := physic.Frequency(cfg.TickRate).Period()
	c.Conductor = NewConductor(b, ed, cfg.PollInterval, tick, c.Publish, log)

	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		c.Conductor.Run(ctx)
	}()
	return c
}

// SubscribeDiagnostics registers fn for every published diagnostic.
func (c *Core) SubscribeDiagnostics(fn func(diag.Diagnostic)) (unsubscribe func()) {
	return c.diags.Subscribe(fn)
}

func (c *Core) Publish(d diag.Diagnostic) { c.diags.Emit(d) }

// Close stops the loops, stops preview playback and closes the board.
func (c *Core) Close() error {
	c.cancel()
	<-c.done
	if err := c.Editor.Stop(); err != nil {
		return err
	}
	return c.Board.Close()
}
