package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/ecoguard/internal/config"
	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/metrics"
	"codeberg.org/mutker/ecoguard/internal/pid"
	"codeberg.org/mutker/ecoguard/internal/pipeline"
	"codeberg.org/mutker/ecoguard/internal/render"
	"codeberg.org/mutker/ecoguard/internal/server"
	"codeberg.org/mutker/ecoguard/internal/store"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/transport"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	pidFile := pid.New("", pid.DefaultName)
	if err := pidFile.Write(); err != nil {
		var coded errors.Coded
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Str("pid_file", pidFile.Path()).Msg("Failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}
	defer cleanup(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		var coded errors.Coded
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("error in main loop")
		} else {
			logger.Error().Err(err).Msg("error in main loop")
		}
	}
}

func cleanup(pidFile *pid.File) {
	if err := pidFile.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	errFactory := errors.New()
	log := logger.Default()

	collector, err := metrics.NewService(metrics.Config{Enabled: cfg.Metrics})
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer collector.Close()

	st := store.New(telemetry.Placeholder(telemetry.WideBins))
	hub := server.NewHub(log)

	trigger, err := render.NewTrigger(cfg.RenderRate, st.Get, hub.Broadcast)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	session, err := transport.Connect(ctx, cfg.Broker, transport.Options{
		ClientID:             cfg.ClientID,
		RejectUnauthorized:   cfg.RejectUnauthorized,
		Topic:                cfg.Topic,
		KeepAlive:            cfg.KeepAlive,
		ConnectTimeout:       cfg.ConnectTimeout,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		ConnectRetry:         true,
		CAFile:               cfg.CAFile,
		Username:             cfg.Username,
		Password:             cfg.Password,
		Logger:               log,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer session.Close()

	p := pipeline.New(st, trigger, log, collector, pipeline.Options{QueueSize: cfg.QueueSize})
	p.Attach(session)

	srv := server.New(st, hub, server.Options{
		Addr:    cfg.Listen,
		Log:     log,
		Metrics: collector,
		Status:  session.State,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe(ctx)
		cancel()
	}()

	logger.Info().
		Str("broker", cfg.Broker).
		Str("topic", cfg.Topic).
		Str("listen", cfg.Listen).
		Float64("render_rate", cfg.RenderRate).
		Msg("Monitoring turbine telemetry")

	if err := p.Run(ctx); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}

	cancel()
	return <-srvErr
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
