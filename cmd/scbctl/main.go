// Command scbctl runs one-shot commands against a servo controller board.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/openscb/internal/app"
	"github.com/coreman2200/openscb/internal/board"
	"github.com/coreman2200/openscb/internal/config"
)

const usage = `usage: scbctl [flags] <command>

commands:
  info           firmware and output table
  flash          flash slot overview
  play N         play stored sequence slot N on the board
  stop           kill switch: disable every output
  export FILE    write settings and sequences to a project file
  import FILE    load a project file and store it in flash
  bootloader     restart the board into its bootloader
  debug          print board debug messages until interrupted

flags:
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	backend := flag.String("backend", "", "backend: usb | serial | sim (overrides config)")
	port := flag.String("port", "", "serial port (implies backend serial)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Debug().Err(err).Msg("no config; using defaults")
		cfg = config.Default()
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *port != "" {
		cfg.Backend, cfg.Serial.Port = config.Serial, *port
	}

	b := board.New(app.NewClient(cfg, log.Logger), board.WithLogger(log.Logger))
	if err := b.Connect(); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer b.Close()

	if err := run(b, flag.Args()); err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("failed")
		b.Close()
		os.Exit(1)
	}
}

func run(b *board.Board, args []string) error {
	arg := func(i int) (string, error) {
		if len(args) <= i {
			return "", fmt.Errorf("%s: missing argument", args[0])
		}
		return args[i], nil
	}
	switch args[0] {
	case "info":
		fmt.Println(renderInfo(b))
	case "flash":
		fmt.Println(renderFlash(b.FlashSlots()))
	case "play":
		s, err := arg(1)
		if err != nil {
			return err
		}
		slot, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("play: %w", err)
		}
		return b.PlaySequenceSlot(slot)
	case "stop":
		return b.DisableAllOutputs()
	case "export":
		path, err := arg(1)
		if err != nil {
			return err
		}
		return exportProject(b, path)
	case "import":
		path, err := arg(1)
		if err != nil {
			return err
		}
		return importProject(b, path)
	case "bootloader":
		return b.RestartToBootloader()
	case "debug":
		return streamDebug(b)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func streamDebug(b *board.Board) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		msg, err := b.DebugMessage(100 * time.Millisecond)
		if err != nil {
			return err
		}
		if msg != "" {
			fmt.Println(debugStyle.Render(time.Now().Format("15:04:05.000")), msg)
		}
	}
}
