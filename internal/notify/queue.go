// AngelaMos | 2026
// queue.go

package notify

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// EmailJob is the queue payload consumed by the mail worker.
type EmailJob struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// JobPublisher publishes a JSON payload and waits for broker confirmation.
type JobPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, v any) error
}

// QueueSender hands messages to the mail worker through a durable queue.
// Send returns once the broker has confirmed the job, not once it is
// delivered.
type QueueSender struct {
	publisher JobPublisher
	queue     string
}

func NewQueueSender(publisher JobPublisher, queue string) *QueueSender {
	return &QueueSender{publisher: publisher, queue: queue}
}

func (s *QueueSender) Send(ctx context.Context, to, subject, body string) error {
	job := EmailJob{
		ID:        ulid.Make().String(),
		To:        to,
		Subject:   subject,
		Text:      body,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.publisher.PublishJSON(ctx, "", s.queue, job); err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").
			With("queue", s.queue, "job_id", job.ID).
			Wrap(err)
	}
	return nil
}
