// AngelaMos | 2026
// broker.go

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

var (
	ErrClosed        = errors.New("broker connection closed")
	ErrPublishNacked = errors.New("broker rejected publish")
)

// Broker owns one AMQP connection and a confirm-mode publishing channel.
// Consumers get their own channel so a slow consumer never blocks publishes.
type Broker struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	pubCh  *amqp.Channel
	logger *slog.Logger
}

// Dial connects with exponential backoff, since the broker is often still
// starting when the service comes up.
func Dial(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.DialAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := retry.WithMaxRetries(
		uint64(attempts-1), //nolint:gosec // G115: attempts is clamped positive above
		retry.NewExponential(500*time.Millisecond),
	)

	var conn *amqp.Connection
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		c, dialErr := amqp.Dial(cfg.URL)
		if dialErr != nil {
			logger.Warn("broker not ready", "error", dialErr)
			return retry.RetryableError(dialErr)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, oops.Code("BROKER_DIAL_FAILED").Wrap(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // channel error takes precedence
		return nil, oops.Code("BROKER_CHANNEL_FAILED").Wrap(err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()   //nolint:errcheck // confirm error takes precedence
		_ = conn.Close() //nolint:errcheck // confirm error takes precedence
		return nil, oops.Code("BROKER_CONFIRM_FAILED").Wrap(err)
	}

	return &Broker{conn: conn, pubCh: ch, logger: logger}, nil
}

// DeclareQueue declares a durable, non-exclusive queue.
func (b *Broker) DeclareQueue(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.pubCh.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return oops.Code("BROKER_DECLARE_FAILED").With("queue", name).Wrap(err)
	}
	return nil
}

// DeclareExchange declares a durable exchange of the given kind.
func (b *Broker) DeclareExchange(name, kind string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pubCh.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return oops.Code("BROKER_DECLARE_FAILED").With("exchange", name).Wrap(err)
	}
	return nil
}

// Publish sends a persistent message and waits for the broker to confirm it.
func (b *Broker) Publish(
	ctx context.Context,
	exchange, routingKey string,
	msg amqp.Publishing,
) error {
	if b.conn.IsClosed() {
		return oops.Code("BROKER_PUBLISH_FAILED").Wrap(ErrClosed)
	}

	msg.DeliveryMode = amqp.Persistent
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	confirm, err := b.pubCh.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		false,
		false,
		msg,
	)
	b.mu.Unlock()
	if err != nil {
		return oops.Code("BROKER_PUBLISH_FAILED").
			With("exchange", exchange, "routing_key", routingKey).
			Wrap(err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return oops.Code("BROKER_PUBLISH_FAILED").
			With("exchange", exchange, "routing_key", routingKey).
			Wrap(err)
	}
	if !acked {
		return oops.Code("BROKER_PUBLISH_NACKED").
			With("exchange", exchange, "routing_key", routingKey).
			Wrap(ErrPublishNacked)
	}

	return nil
}

// PublishJSON encodes v and publishes it with a JSON content type.
func (b *Broker) PublishJSON(
	ctx context.Context,
	exchange, routingKey string,
	v any,
) error {
	body, err := json.Marshal(v)
	if err != nil {
		return oops.Code("BROKER_ENCODE_FAILED").Wrap(err)
	}

	return b.Publish(ctx, exchange, routingKey, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Consume opens a dedicated channel with the given prefetch and starts a
// manual-ack consumer on queue. The returned close func cancels the
// consumer and closes its channel.
func (b *Broker) Consume(
	queue, consumer string,
	prefetch int,
) (<-chan amqp.Delivery, func() error, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, oops.Code("BROKER_CHANNEL_FAILED").Wrap(err)
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close() //nolint:errcheck // qos error takes precedence
			return nil, nil, oops.Code("BROKER_QOS_FAILED").Wrap(err)
		}
	}

	deliveries, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close() //nolint:errcheck // consume error takes precedence
		return nil, nil, oops.Code("BROKER_CONSUME_FAILED").With("queue", queue).Wrap(err)
	}

	closeFn := func() error {
		if err := ch.Cancel(consumer, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
		return nil
	}

	return deliveries, closeFn, nil
}

func (b *Broker) Ping(_ context.Context) error {
	if b == nil || b.conn == nil || b.conn.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (b *Broker) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		b.logger.Warn("close broker channel", "error", err)
	}
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return oops.Code("BROKER_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
