// AngelaMos | 2026
// worker.go

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/carterperez-dev/templates/users-service/internal/core"
)

// Worker drains EmailJobs from a delivery channel and hands each to a
// Sender, retrying transient failures with exponential backoff. A job that
// cannot be decoded, or that exhausts its attempts, is rejected without
// requeue so it lands in the dead-letter exchange when one is bound.
type Worker struct {
	sender      Sender
	maxAttempts int
	baseBackoff time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger
}

type WorkerConfig struct {
	Sender      Sender
	MaxAttempts int
	BaseBackoff time.Duration
	SendTimeout time.Duration
	Logger      *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		sender:      cfg.Sender,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		sendTimeout: sendTimeout(cfg.SendTimeout),
		logger:      cfg.Logger,
	}
}

// Run processes deliveries until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle processes a single delivery and acks or rejects it.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	var job EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.To == "" {
		w.logger.Error("discarding malformed email job",
			"delivery_tag", d.DeliveryTag,
			"error", err,
		)
		w.settle(d, d.Nack(false, false))
		return
	}

	if err := w.deliver(ctx, job); err != nil {
		if ctx.Err() != nil {
			w.logger.Info("requeueing email job on shutdown", "job_id", job.ID)
			w.settle(d, d.Nack(false, true))
			return
		}
		core.LogError(w.logger, "email job failed", oops.
			Code("MAIL_JOB_FAILED").
			With("job_id", job.ID, "attempts", w.maxAttempts).
			Wrap(err))
		w.settle(d, d.Nack(false, false))
		return
	}

	w.logger.Info("email job delivered", "job_id", job.ID)
	w.settle(d, d.Ack(false))
}

func (w *Worker) deliver(ctx context.Context, job EmailJob) error {
	backoff := retry.WithMaxRetries(
		uint64(w.maxAttempts-1), //nolint:gosec // G115: maxAttempts is clamped positive
		retry.NewExponential(w.baseBackoff),
	)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
		defer cancel()

		if err := w.sender.Send(sendCtx, job.To, job.Subject, job.Text); err != nil {
			w.logger.Warn("email send attempt failed",
				"job_id", job.ID,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (w *Worker) settle(d amqp.Delivery, err error) {
	if err != nil {
		w.logger.Error("settle delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}
