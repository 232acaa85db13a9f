// Command radard serves the radar front-end control session over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rjboer/radarcore/internal/app"
	"github.com/rjboer/radarcore/internal/archive"
	"github.com/rjboer/radarcore/internal/config"
	"github.com/rjboer/radarcore/internal/dsp"
	"github.com/rjboer/radarcore/internal/generator"
	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/mdns"
	"github.com/rjboer/radarcore/internal/telemetry"
	"github.com/rjboer/radarcore/internal/transport"
)

func main() {
	os.Exit(cli(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr))
}

// cli runs the daemon and returns the process exit code. Every deferred
// release has run by the time it returns.
func cli(parent context.Context, args []string, lookup config.Lookup, stderr io.Writer) int {
	cfg, err := config.Parse("radard", args, lookup)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "radard: parse config: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(stderr, "radard: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, nil, err
	}
	out, err := logging.Open(cfg.Output, logging.FileOptions{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, nil, err
	}
	return logging.New(level, format, out), out.Close, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closeLog()
	logging.SetDefault(logger)

	hwd, err := selectBackend(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	defer hwd.Close()
	logger.Info("hardware ready", logging.F("backend", cfg.Hardware.Backend), logging.F("core_base", fmt.Sprintf("0x%08x", cfg.Hardware.CoreBase)))

	reporters, closeReporters, err := buildReporters(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeReporters()

	var tone *dsp.ToneEstimator
	if cfg.Generator.ToneBlock > 0 {
		tone = dsp.NewToneEstimator(cfg.Generator.ToneBlock, generator.FCLKKHz)
	}

	engineOpts := generator.Options{
		PollInterval:   cfg.Generator.PollInterval,
		CaptureTimeout: cfg.Generator.CaptureTimeout,
		Logger:         logger,
	}
	orch := app.NewOrchestrator(func() (app.Engine, error) {
		return generator.New(hwd.regs, hwd.dma, cfg.Hardware.CoreBase, engineOpts), nil
	}, app.Options{
		MailboxSize: cfg.Generator.MailboxSize,
		Logger:      logger,
		Reporter:    reporters,
		Tone:        tone,
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if cfg.MDNS.Enabled {
		ann, err := announce(cfg.MDNS, ln.Addr())
		if err != nil {
			logger.Warn("mDNS announce failed", logging.F("error", err))
		} else {
			defer ann.Shutdown()
			logger.Info("announced", logging.F("service", mdns.ServiceType))
		}
	}

	return transport.NewServer(orch, logger).Serve(ctx, ln)
}

func buildReporters(ctx context.Context, cfg *config.Config, logger logging.Logger) (telemetry.MultiReporter, func(), error) {
	reporters := telemetry.MultiReporter{telemetry.NewLogReporter(logger)}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Telemetry.WebAddr != "" {
		hub := telemetry.NewHub(cfg.Telemetry.HistoryLimit, logger)
		reporters = append(reporters, hub)
		web := telemetry.NewWebServer(cfg.Telemetry.WebAddr, hub, logger)
		go func() {
			if err := web.Start(ctx); err != nil {
				logger.Error("web telemetry stopped", logging.F("error", err))
			}
		}()
	}
	if cfg.MQTT.Enabled {
		m := telemetry.NewMQTTReporter(cfg.MQTT.MQTTConfig, logger)
		reporters = append(reporters, m)
		closers = append(closers, m.Close)
	}
	if cfg.Archive.Dir != "" {
		a, err := archive.NewParquet(cfg.Archive.Dir, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		reporters = append(reporters, a)
		closers = append(closers, func() { a.Close() })
	}
	return reporters, closeAll, nil
}

func announce(cfg config.MDNSConfig, addr net.Addr) (*mdns.Announcement, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("cannot announce %s", addr)
	}
	instance := cfg.Instance
	if instance == "" {
		host, _ := os.Hostname()
		instance = "radard on " + host
	}
	return mdns.Announce(instance, tcp.Port, []string{"path=" + transport.ControlPath})
}
