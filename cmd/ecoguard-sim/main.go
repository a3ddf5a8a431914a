// Command ecoguard-sim publishes synthetic turbine telemetry for local
// development of the monitor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/transport"
	"github.com/spf13/pflag"
)

type options struct {
	broker             string
	turbine            string
	interval           time.Duration
	bins               int
	wear               float64
	rejectUnauthorized bool
	logLevel           string
}

func parseFlags(args []string) (options, error) {
	var o options

	fs := pflag.NewFlagSet("ecoguard-sim", pflag.ContinueOnError)
	fs.StringVar(&o.broker, "broker", "tcp://localhost:1883", "Broker endpoint")
	fs.StringVar(&o.turbine, "turbine", "T-01", "Turbine id to publish as")
	fs.DurationVar(&o.interval, "interval", time.Second, "Publish interval")
	fs.IntVar(&o.bins, "bins", telemetry.WideBins, "Spectrum length")
	fs.Float64Var(&o.wear, "wear", 0, "Severity growth per minute, 0 keeps the machine healthy")
	fs.BoolVar(&o.rejectUnauthorized, "reject-unauthorized", true, "Verify the broker TLS certificate")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.interval <= 0 {
		return o, fmt.Errorf("interval must be positive, got %s", o.interval)
	}
	if o.bins < 0 {
		return o, fmt.Errorf("bins must not be negative, got %d", o.bins)
	}
	if o.turbine == "" {
		return o, fmt.Errorf("turbine must not be empty")
	}

	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Printf("invalid arguments: %v\n", err)
		os.Exit(2)
	}

	logger.Init(opts.logLevel, logger.IsService())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, opts); err != nil {
		logger.Error().Err(err).Msg("simulator stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	topts := transport.DefaultOptions()
	topts.RejectUnauthorized = opts.rejectUnauthorized
	topts.ConnectRetry = true
	topts.Logger = logger.Default()

	session, err := transport.Connect(ctx, opts.broker, topts)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer session.Close()

	topic := fmt.Sprintf("ecoguard/turbine/%s/data", opts.turbine)
	gen := newGenerator(opts.turbine, opts.bins, opts.wear, time.Now().UnixNano())

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	logger.Info().Str("topic", topic).Dur("interval", opts.interval).Msg("Publishing synthetic telemetry")

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			f := gen.next(now)
			payload, err := telemetry.Encode(f)
			if err != nil {
				return err
			}
			if err := session.Publish(topic, payload, false); err != nil {
				logger.Warn().Err(err).Msg("Publish failed")
				continue
			}
			logger.Debug().
				Str("health_zone", f.HealthZone).
				Str("rms", telemetry.FormatRMS(f)).
				Msg("Published")
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
