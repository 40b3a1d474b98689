// AngelaMos | 2026
// mailgun.go

package notify

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/samber/oops"

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

type MailgunSender struct {
	client  *mailgun.MailgunImpl
	from    string
	timeout time.Duration
}

func NewMailgunSender(cfg config.MailConfig) *MailgunSender {
	client := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey)
	if cfg.MailgunAPIBase != "" {
		client.SetAPIBase(cfg.MailgunAPIBase)
	}

	return &MailgunSender{
		client:  client,
		from:    cfg.From,
		timeout: sendTimeout(cfg.SendTimeout),
	}
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, body string) error {
	msg := s.client.NewMessage(s.from, subject, body, to)

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, _, err := s.client.Send(sendCtx, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("driver", config.MailDriverMailgun).
			Wrap(err)
	}
	return nil
}
