package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/openscb/internal/app"
	"github.com/coreman2200/openscb/internal/config"
	"github.com/coreman2200/openscb/internal/project"
	"github.com/coreman2200/openscb/internal/ws"
)

func main() {
	// ---- Flags (config.yaml is read first, flags given explicitly win) ----
	def := config.Default()
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		backend    = flag.String("backend", def.Backend, "backend: usb | serial | sim")
		port       = flag.String("port", "", "serial port, for backend serial")
		baud       = flag.Int("baud", def.Serial.Baud, "serial baud rate")
		poll       = flag.Duration("poll", def.PollInterval, "board poll interval")
		tickRate   = physic.Frequency(def.TickRate)
		addr       = flag.String("addr", def.Addr, "HTTP listen address")
		level      = flag.String("log-level", def.LogLevel, "log level")
		projPath   = flag.String("project", "", "project file loaded after connecting")
		simOnly    = flag.Bool("sim-only", false, "force the simulated board")
	)
	flag.Var(&tickRate, "tick", "preview player tick rate, e.g. 50Hz")
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	cfg := config.Default()
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = c
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["backend"] {
		cfg.Backend = *backend
	}
	if set["port"] {
		cfg.Serial.Port = *port
	}
	if set["baud"] {
		cfg.Serial.Baud = *baud
	}
	if set["poll"] {
		cfg.PollInterval = *poll
	}
	if set["tick"] {
		cfg.TickRate = config.Frequency(tickRate)
	}
	if set["addr"] {
		cfg.Addr = *addr
	}
	if set["log-level"] {
		cfg.LogLevel = *level
	}
	if set["project"] {
		cfg.Project = *projPath
	}
	if *simOnly {
		cfg.Backend = config.Sim
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level; using info")
	} else {
		zerolog.SetGlobalLevel(lvl)
	}

	// ---- Core ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core := app.InitCore(ctx, cfg, app.NewClient(cfg, log.Logger), log.Logger)
	state := ws.NewState(core)

	if cfg.Project != "" {
		if err := loadProject(core, cfg.Project); err != nil {
			log.Warn().Err(err).Str("project", cfg.Project).Msg("project load failed")
		} else {
			log.Info().Str("project", cfg.Project).Msg("project loaded")
		}
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", state.HandlePositionWS)
	mux.HandleFunc("/diag", state.HandleDiagWS)
	mux.HandleFunc("/control", state.HandleControlWS)
	mux.HandleFunc("/health", state.HandleHealth)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	_ = srv.Close()
	state.Close()
	if err := core.Close(); err != nil {
		log.Warn().Err(err).Msg("board close")
	}
}

func loadProject(core *app.Core, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = project.Import(core.Board, f)
	return err
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
