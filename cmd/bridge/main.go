package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-workflow-bridge/auth"
	"github.com/jrsteele09/go-workflow-bridge/auth/sessions"
	"github.com/jrsteele09/go-workflow-bridge/internal/config"
	"github.com/jrsteele09/go-workflow-bridge/internal/metrics"
	"github.com/jrsteele09/go-workflow-bridge/probe"
	"github.com/jrsteele09/go-workflow-bridge/server"
	"github.com/jrsteele09/go-workflow-bridge/token/store"
	"github.com/jrsteele09/go-workflow-bridge/token/store/filestore"
	"github.com/jrsteele09/go-workflow-bridge/token/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	var envFile, probeMode string
	flag.StringVar(&envFile, "env", ".env", "Optional .env file read before the environment")
	flag.StringVar(&probeMode, "probe", "", "Run one connectivity test (fast or full), print JSON and exit")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg)

	if probeMode != "" {
		os.Exit(runProbe(cfg, logger, probeMode))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("error running server")
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("app", cfg.GetAppName()).Logger()
	if cfg.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger
}

func run(cfg config.Config, logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(cfg.GetAppName())

	ctx := context.Background()
	flow, err := auth.NewFlowFromConfig(ctx, cfg, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("auth flow: %w", err)
	}
	st, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	mt := metrics.New()
	handler, err := server.New(cfg, flow, sessions.NewInMemoryRepo(flow.SessionLifetime(), time.Now), st,
		server.WithMetrics(mt),
		server.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv, logger) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

// newStore picks the token store backend named in the configuration.
func newStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.GetTokenStore() {
	case "", "file":
		return filestore.New(cfg.GetTokenStorePath()), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		return redisstore.New(client, cfg.GetRedisKey()), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown token store %q", cfg.GetTokenStore())
}

func runProbe(cfg config.Config, logger zerolog.Logger, rawMode string) int {
	mode, err := probe.ParseMode(rawMode)
	if err != nil {
		logger.Error().Err(err).Msg("invalid probe mode")
		return 2
	}
	endpoints, err := probe.ConfiguredEndpoints(cfg.GetProbeEndpointsFile(), cfg.GetBaseURL(), cfg.GetSiteURL())
	if err != nil {
		logger.Error().Err(err).Msg("loading probe endpoints")
		return 2
	}

	prober := probe.NewProber(probe.WithConcurrency(cfg.GetProbeConcurrency()), probe.WithLogger(logger))
	results := prober.RunMode(context.Background(), endpoints, mode, cfg.GetProbeFastTimeout(), cfg.GetProbeFullTimeout())
	summary := probe.Summarize(results)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"mode": mode, "results": results, "summary": summary})
	if summary.Blocked {
		return 1
	}
	return 0
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
