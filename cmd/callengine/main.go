package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/api"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/config"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/dialogue"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/ivr"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/logging"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/mock"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/redact"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/runner"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logger, logCloser := logging.InitLogger(cfg.Log)
	slog.SetDefault(logger)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	if err := run(cfg, logger, logCloser); err != nil {
		logger.Error("callengine_exit", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, logCloser io.Closer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	personas, err := persona.NewRegistry(cfg.Personas)
	if err != nil {
		return err
	}
	snap, err := cfg.Snapshot()
	if err != nil {
		return err
	}
	settingsStore, err := settings.NewStore(snap)
	if err != nil {
		return err
	}

	deps, err := openBackends(cfg, logger)
	if err != nil {
		return err
	}

	providers := provider.NewDefaultRegistry(mock.LLMConfig{
		ResponseText: cfg.Providers.Mock.ResponseText,
		Rules:        cfg.Providers.Mock.Rules,
	}).WithBreaker(cfg.Providers.Breaker.Threshold, cfg.Providers.Breaker.Cooldown)

	analyzer := supervisor.New(logging.NewComponentLogger(logger, "supervisor"))
	if cfg.Supervisor.Window > 0 {
		analyzer.Window = cfg.Supervisor.Window
	}
	if cfg.Supervisor.Timeout > 0 {
		analyzer.Timeout = cfg.Supervisor.Timeout
	}

	router := escalation.NewRouter(settingsStore, logging.NewComponentLogger(logger, "escalation"),
		escalation.WithObserver(deps.observer),
		escalation.WithTimeout(cfg.Escalation.Timeout))

	store := session.NewStore(session.WithGrace(cfg.Session.Grace))
	svc := dialogue.NewService(cfg.Dialogue, dialogue.Deps{
		Store:     store,
		Personas:  personas,
		Settings:  settingsStore,
		Providers: providers,
		Analyzer:  analyzer,
		Escalator: router,
		Archive:   deps.archive,
		Events:    deps.events,
		Observer:  deps.observer,
		Logger:    logging.NewComponentLogger(logger, "dialogue"),
	})

	auth, err := api.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	bridge := ivr.NewBridge(svc, personas, settingsStore, logging.NewComponentLogger(logger, "ivr"),
		ivr.WithLegTimeout(cfg.IVR.LegTimeout))
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewServer(svc, personas, settingsStore, auth, logging.NewComponentLogger(logger, "api"), api.WithMount(bridge)).Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	lr := runner.NewLifecycleRunner(runner.DrainFunc(func(dctx context.Context) error {
		stopSweep()
		err := server.Shutdown(dctx)
		deps.close(logger)
		_ = logCloser.Close()
		return err
	}), runner.Hooks{
		OnStart: func() error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", server.Addr, err)
			}
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http_server_failed", slog.String("error", err.Error()))
					stop()
				}
			}()
			go svc.RunSweeper(sweepCtx, cfg.Session.SweepInterval)
			logger.Info("callengine_started",
				slog.String("addr", server.Addr),
				slog.String("environment", cfg.Environment),
				slog.Int("personas", personas.Len()),
				slog.String("default_llm", llmTag(snap)),
				slog.Bool("telephony_complete", snap.Telephony.Complete()),
				slog.String("archive", cfg.Archive.Backend))
			return nil
		},
		OnStop: func() { logger.Info("callengine_stopped") },
	}, cfg.HTTP.ShutdownTimeout)
	lr.Banner = os.Stdout
	return lr.Run(ctx)
}
