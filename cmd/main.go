// Command sweepguard watches a compromised wallet and sweeps every deposit to a safe address
// before anyone else can spend it.
//
// Usage:
//
//	sweepguard                          (configuration from .env and the environment)
//	sweepguard -config sweepguard.yaml  (non-secret settings from yaml)
//	sweepguard -check                   (validate configuration, probe endpoints, exit)
//	sweepguard -setup                   (interactive wizard)
//
// Required environment variables:
//
//	RPC_URL, COMPROMISED_WALLET_ADDRESS, SAFE_WALLET_ADDRESS, COMPROMISED_WALLET_PRIVATE_KEY
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/sweepguard/config"
	"github.com/vadiminshakov/sweepguard/internal/clients"
	"github.com/vadiminshakov/sweepguard/internal/commands"
	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/logging"
	"github.com/vadiminshakov/sweepguard/internal/metrics"
	"github.com/vadiminshakov/sweepguard/internal/notify"
	"github.com/vadiminshakov/sweepguard/internal/rpcpool"
	"github.com/vadiminshakov/sweepguard/internal/services/sweeper"
	"github.com/vadiminshakov/sweepguard/internal/setup"
	"github.com/vadiminshakov/sweepguard/internal/storage/sweeps"
)

const shutdownNotifyTimeout = 10 * time.Second

type signalError struct {
	sig os.Signal
}

func (e signalError) Error() string {
	return "received " + e.sig.String()
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, opts, err := config.Get()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.Setup {
		wizardLogger, _ := logging.New("warn", "")
		setupOpts, err := setup.RunTUI(context.Background(), wizardLogger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if cfg, err = config.Load(setupOpts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	pool, err := rpcpool.New(cfg.RPCURLs)
	if err != nil {
		logger.Error("Invalid endpoint configuration", zap.Error(err))
		return 1
	}
	client := clients.NewEthClient(pool, cfg.RPCTimeout)
	defer client.Close()

	if opts.Check {
		if err := setup.RunCheck(context.Background(), os.Stdout, cfg, client); err != nil {
			logger.Error("Check failed", zap.Error(err))
			return 1
		}
		return 0
	}

	m := metrics.New()
	notifier := newNotifier(cfg, logger, m)

	history := sweeper.NewHistory(cfg.HistoryLimit)
	engineOpts := []sweeper.Option{sweeper.WithHistory(history), sweeper.WithMetrics(m)}
	if cfg.JournalDir != "" {
		store, err := sweeps.NewWALStore(cfg.JournalDir)
		if err != nil {
			logger.Error("Failed to open sweep journal", zap.Error(err))
			return 1
		}
		defer store.Close()

		restored, err := store.Sweeps()
		if err != nil {
			logger.Error("Failed to replay sweep journal", zap.Error(err))
			return 1
		}
		for _, r := range restored {
			history.Append(r)
		}
		logger.Info("Sweep journal replayed", zap.Int("sweeps", len(restored)), zap.String("dir", cfg.JournalDir))
		engineOpts = append(engineOpts, sweeper.WithJournal(store))
	}

	engine := sweeper.New(cfg, client, pool, notifier, logger.Named("sweeper"), engineOpts...)
	handler := commands.NewHandler(engine, notifier, cfg.ExplorerTxURL, logger.Named("commands"))

	var (
		metricsServer   *metrics.Server
		metricsListener net.Listener
	)
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, m, engine.Healthy)
		if metricsListener, err = metricsServer.Listen(); err != nil {
			logger.Error("Metrics endpoint unavailable",
				zap.Error(domain.ConfigurationError("invalid %s: %v", config.EnvMetricsAddr, err)))
			return 1
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		select {
		case sig := <-signals:
			return signalError{sig: sig}
		case <-ctx.Done():
			return nil
		}
	})
	g.Go(supervise("notifier", func() error { return notifier.Run(ctx) }))
	g.Go(supervise("sweeper", func() error {
		if err := engine.Start(ctx); err != nil {
			return err
		}
		return engine.Run(ctx)
	}))
	g.Go(supervise("commands", func() error { return handler.Run(ctx, notifier.Commands()) }))
	if metricsServer != nil {
		g.Go(supervise("metrics", func() error {
			return serveMetrics(ctx, metricsServer, metricsListener, logger)
		}))
	}

	err = g.Wait()

	code, reason := 0, "stopped"
	var sigErr signalError
	switch {
	case errors.As(err, &sigErr):
		reason = sigErr.Error()
		logger.Info("Shutting down", zap.String("signal", sigErr.sig.String()))
	case err != nil && !errors.Is(err, context.Canceled):
		code, reason = 1, "fatal error: "+err.Error()
		logger.Error("Sweeper stopped", zap.Error(err))
	}

	notifyCtx, cancel := context.WithTimeout(context.Background(), shutdownNotifyTimeout)
	defer cancel()
	if err := notifier.SendNow(notifyCtx, notify.ShutdownMessage(reason, time.Now())); err != nil {
		logger.Error("Failed to send shutdown notification", zap.Error(err))
	}
	return code
}

func newNotifier(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) notify.Channel {
	if !cfg.TelegramEnabled() {
		return notify.NewLogNotifier(logger.Named("notify"))
	}
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger.Named("telegram"), m)
	if err != nil {
		logger.Error("Telegram unavailable, notifications go to the log only", zap.Error(err))
		return notify.NewLogNotifier(logger.Named("notify"))
	}
	return tg
}

// serveMetrics runs the metrics endpoint. Its failure is logged and never stops the sweeper.
func serveMetrics(ctx context.Context, srv *metrics.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error("Metrics endpoint stopped", zap.Error(err))
	}
	return nil
}

// supervise turns a panic in fn into an error so the group shuts down cleanly.
func supervise(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	}
}
