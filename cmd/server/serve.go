package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/duewatch/internal/clock"
	"github.com/t77yq/duewatch/internal/config"
	"github.com/t77yq/duewatch/internal/monitor"
	"github.com/t77yq/duewatch/internal/notify"
	"github.com/t77yq/duewatch/internal/scheduler"
	"github.com/t77yq/duewatch/internal/service"
	"github.com/t77yq/duewatch/internal/source"
	"github.com/t77yq/duewatch/internal/storage"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled evaluator and the feed request/reply service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// Setup signal handling for graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
					cancel()
				case <-ctx.Done():
				}
			}()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	nc, err := connectNATS(cfg, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	history, err := storage.NewSQLiteFeedHistory(logger, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to create feed history storage: %w", err)
	}
	defer history.Close()

	loader := source.NewLoader(source.NewClient(cfg.Backend, logger), logger)

	var channels []notify.Channel
	if cfg.Notify.Email.Enabled {
		channels = append(channels, notify.NewEmailChannel(logger, cfg.Notify.Email))
	}

	clk := clock.RealClock{}
	evaluator := monitor.NewEvaluator(logger, js, loader, history, clk, cfg.Classifier, channels...)
	if err := evaluator.Setup(ctx); err != nil {
		return fmt.Errorf("failed to set up evaluator: %w", err)
	}

	feedService := service.NewFeedService(nc, evaluator, history, logger)
	if err := feedService.Start(ctx); err != nil {
		return err
	}
	defer feedService.Stop()

	if cfg.Metrics.Enabled {
		collector := monitor.NewMetricsCollector(js, evaluator, cfg.Metrics.Interval, logger)
		if err := collector.Start(ctx); err != nil {
			return err
		}
		defer collector.Stop()
	}

	cronScheduler := scheduler.NewCronScheduler(logger)
	if err := cronScheduler.AddJob(scheduler.JobEvaluate, cfg.Schedule.Evaluate, scheduler.EvaluateJob(evaluator)); err != nil {
		return err
	}
	if err := cronScheduler.AddJob(scheduler.JobCleanup, cfg.Schedule.Cleanup,
		scheduler.CleanupJob(history, clk, cfg.Schedule.Retention, logger)); err != nil {
		return err
	}

	// first feed right away instead of waiting for the first tick
	if err := cronScheduler.Trigger(ctx, scheduler.JobEvaluate); err != nil {
		logger.Warn("Initial evaluation failed", zap.Error(err))
	}

	cronScheduler.Start(ctx)
	defer cronScheduler.Stop()

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("Server shutting down gracefully")
	return nil
}

func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	servers := nats.DefaultURL
	if len(cfg.NATS.URLs) > 0 {
		servers = strings.Join(cfg.NATS.URLs, ",")
	}

	// Connect with retry
	var nc *nats.Conn
	var err error
	maxRetries := cfg.NATS.ConnectRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(servers, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", maxRetries, err)
}
