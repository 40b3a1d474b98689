// AngelaMos | 2026
// events.go

package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

const (
	TypeUserStatusChanged       = "user.status_changed"
	RoutingKeyUserStatusChanged = "users.user.status_changed"
)

// UserStatusChanged is emitted after a user's isActive flag is persisted
// with a new value. Consumers in other contexts react asynchronously.
type UserStatusChanged struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	IsActive   bool      `json:"is_active"`
	OccurredAt time.Time `json:"occurred_at"`
}

type JSONPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, v any) error
}

type EventRecorder interface {
	RecordEvent(event, outcome string)
}

// Publisher sends domain events to a topic exchange.
type Publisher struct {
	publisher JSONPublisher
	exchange  string
	recorder  EventRecorder
	now       func() time.Time
}

func NewPublisher(publisher JSONPublisher, exchange string, recorder EventRecorder) *Publisher {
	return &Publisher{
		publisher: publisher,
		exchange:  exchange,
		recorder:  recorder,
		now:       time.Now,
	}
}

func (p *Publisher) PublishUserStatusChanged(
	ctx context.Context,
	userID string,
	isActive bool,
) error {
	event := UserStatusChanged{
		EventID:    ulid.Make().String(),
		Type:       TypeUserStatusChanged,
		UserID:     userID,
		IsActive:   isActive,
		OccurredAt: p.now().UTC(),
	}

	err := p.publisher.PublishJSON(ctx, p.exchange, RoutingKeyUserStatusChanged, event)
	p.record(TypeUserStatusChanged, err)
	if err != nil {
		return oops.Code("EVENT_PUBLISH_FAILED").
			With("event_id", event.EventID, "event_type", event.Type).
			Wrap(err)
	}
	return nil
}

func (p *Publisher) record(event string, err error) {
	if p.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.recorder.RecordEvent(event, outcome)
}

// LogPublisher stands in when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishUserStatusChanged(
	ctx context.Context,
	userID string,
	isActive bool,
) error {
	p.logger.InfoContext(ctx, "user status changed (no broker configured)",
		"user_id", userID,
		"is_active", isActive,
	)
	return nil
}
