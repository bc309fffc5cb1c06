// Command seqsim previews one sequence of a project file against the
// simulated board and prints every frame the player loads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/project"
	"github.com/coreman2200/openscb/internal/scb"
	"github.com/coreman2200/openscb/internal/sequence"
)

func main() {
	var projectPath string
	var slot int
	var loop bool
	rate := sequence.DefaultTickRate
	flag.StringVar(&projectPath, "project", "", "path to an .scb project file")
	flag.IntVar(&slot, "slot", 1, "sequence slot to play")
	flag.BoolVar(&loop, "loop", false, "loop until interrupted")
	flag.Var(&rate, "tick", "player tick rate")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if projectPath == "" {
		log.Fatal().Msg("provide -project path to a project file")
	}

	f, err := os.Open(projectPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open project")
	}
	p, err := project.Read(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("read project")
	}

	b := board.New(scb.NewSim(zerolog.Nop()))
	if err := b.Connect(); err != nil {
		log.Fatal().Err(err).Msg("connect sim")
	}
	if err := project.Apply(b, p); err != nil {
		log.Fatal().Err(err).Msg("apply project")
	}
	seq, err := b.Sequence(slot)
	if err != nil {
		log.Fatal().Err(err).Int("slot", slot).Msg("sequence")
	}

	start := time.Now()
	player := sequence.NewPlayer(sequence.Hooks{
		LoadFrame: func(d time.Duration, points map[int]float64) error {
			fmt.Printf("[%7.3fs] load  %-6v %v\n", time.Since(start).Seconds(), d, names(b, points))
			return b.LoadFrame(d, points)
		},
		DisableFrame: func() error {
			fmt.Printf("[%7.3fs] disable\n", time.Since(start).Seconds())
			return b.DisableFrame()
		},
		StateChanged: func(s sequence.PlayerState) {
			log.Info().Str("state", string(s)).Int("slot", slot).Msg("player")
		},
	})
	if err := player.Play(seq, loop, start); err != nil {
		log.Fatal().Err(err).Int("slot", slot).Msg("play")
	}

	ticker := time.NewTicker(rate.Period())
	defer ticker.Stop()
	for now := range ticker.C {
		if err := player.Tick(now); err != nil {
			log.Fatal().Err(err).Msg("tick")
		}
		if player.State == sequence.Stopped {
			fmt.Printf("done at t=%.3fs\n", time.Since(start).Seconds())
			return
		}
	}
}

func names(b *board.Board, points map[int]float64) map[string]float64 {
	out := make(map[string]float64, len(points))
	for no, v := range points {
		out[fmt.Sprintf("%d:%s", no, b.OutputName(no))] = v
	}
	return out
}
