// AngelaMos | 2026
// sender.go

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

// Sender delivers a plain-text message. Implementations block until the
// message is handed off and report any failure to the caller.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type EmailRecorder interface {
	RecordEmail(driver, outcome string)
}

// LogSender records that a message would have been sent. The body is
// never logged since it carries single-use tokens.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email suppressed by log mailer",
		"to", to,
		"subject", subject,
		"body_bytes", len(body),
	)
	return nil
}

type instrumented struct {
	next     Sender
	driver   string
	recorder EmailRecorder
}

// Instrumented counts every Send by driver and outcome.
func Instrumented(next Sender, driver string, recorder EmailRecorder) Sender {
	if recorder == nil {
		return next
	}
	return &instrumented{next: next, driver: driver, recorder: recorder}
}

func (s *instrumented) Send(ctx context.Context, to, subject, body string) error {
	err := s.next.Send(ctx, to, subject, body)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.recorder.RecordEmail(s.driver, outcome)
	return err
}

// NewSender builds the sender selected by cfg.Driver. publisher is only
// consulted for the queue driver.
func NewSender(
	cfg config.MailConfig,
	brokerCfg config.BrokerConfig,
	publisher JobPublisher,
	logger *slog.Logger,
) (Sender, error) {
	switch cfg.Driver {
	case "", config.MailDriverLog:
		return NewLogSender(logger), nil
	case config.MailDriverMailgun:
		return NewMailgunSender(cfg), nil
	case config.MailDriverQueue:
		if publisher == nil {
			return nil, oops.Code("MAIL_QUEUE_UNAVAILABLE").
				Errorf("queue mail driver requires a broker")
		}
		return NewQueueSender(publisher, brokerCfg.EmailQueue), nil
	default:
		return nil, oops.Code("MAIL_DRIVER_UNKNOWN").
			With("driver", cfg.Driver).
			Errorf("unknown mail driver %q", cfg.Driver)
	}
}

func sendTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
