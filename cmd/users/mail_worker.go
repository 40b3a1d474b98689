// AngelaMos | 2026
// mail_worker.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/users-service/internal/broker"
	"github.com/carterperez-dev/templates/users-service/internal/config"
	"github.com/carterperez-dev/templates/users-service/internal/metrics"
	"github.com/carterperez-dev/templates/users-service/internal/notify"
)

func newMailWorkerCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued emails through Mailgun",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts, config.ValidateMailWorker)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(),
				syscall.SIGINT,
				syscall.SIGTERM,
			)
			defer stop()

			return runMailWorker(ctx, cfg, logger, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091",
		"address serving worker metrics; empty disables")

	return cmd
}

func runMailWorker(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	metricsAddr string,
) error {
	var recorder *metrics.Metrics
	if cfg.Metrics.Enabled && metricsAddr != "" {
		registry := metrics.NewRegistry()
		recorder = metrics.NewMetrics(registry)

		metricsSrv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.Handler(registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			//nolint:errcheck // best-effort on exit
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	mq, err := broker.Dial(ctx, cfg.Broker, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := mq.Close(); closeErr != nil {
			logger.Error("broker close error", "error", closeErr)
		}
	}()

	if err := mq.DeclareQueue(cfg.Broker.EmailQueue); err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	consumer := fmt.Sprintf("mail-worker-%s-%d", hostname, os.Getpid())

	deliveries, cancelConsumer, err := mq.Consume(
		cfg.Broker.EmailQueue,
		consumer,
		cfg.Broker.Prefetch,
	)
	if err != nil {
		return err
	}
	defer func() {
		if cancelErr := cancelConsumer(); cancelErr != nil {
			logger.Warn("consumer cancel error", "error", cancelErr)
		}
	}()

	worker := notify.NewWorker(notify.WorkerConfig{
		Sender: notify.Instrumented(
			notify.NewMailgunSender(cfg.Mail),
			config.MailDriverMailgun,
			recorder,
		),
		MaxAttempts: cfg.Mail.MaxAttempts,
		SendTimeout: cfg.Mail.SendTimeout,
		Logger:      logger,
	})

	logger.Info("mail worker started",
		"queue", cfg.Broker.EmailQueue,
		"consumer", consumer,
		"prefetch", cfg.Broker.Prefetch,
	)

	if err := worker.Run(ctx, deliveries); err != nil {
		return err
	}

	logger.Info("mail worker stopped")
	return nil
}
