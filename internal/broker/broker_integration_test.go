// AngelaMos | 2026
// broker_integration_test.go

//go:build integration

package broker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carterperez-dev/templates/users-service/internal/broker"
	"github.com/carterperez-dev/templates/users-service/internal/config"
)

func startRabbit(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:4-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor: wait.ForLog("Server startup complete").
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, "5672/tcp", "amqp")
	require.NoError(t, err)
	return endpoint
}

func TestBroker_PublishAndConsume(t *testing.T) {
	url := startRabbit(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := broker.Dial(ctx, config.BrokerConfig{URL: url, DialAttempts: 5}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.DeclareQueue("users.test"))

	payload := map[string]string{"to": "alice@example.com"}
	require.NoError(t, b.PublishJSON(ctx, "", "users.test", payload))

	deliveries, closeFn, err := b.Consume("users.test", "broker-test", 1)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	select {
	case d := <-deliveries:
		assert.Equal(t, "application/json", d.ContentType)
		var got map[string]string
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, payload, got)
		require.NoError(t, d.Ack(false))
	case <-ctx.Done():
		t.Fatal("no delivery before timeout")
	}
}

func TestBroker_ClosedConnection(t *testing.T) {
	url := startRabbit(t)
	ctx := context.Background()

	b, err := broker.Dial(ctx, config.BrokerConfig{URL: url, DialAttempts: 5}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	require.ErrorIs(t, b.Ping(ctx), broker.ErrClosed)
	require.ErrorIs(t, b.PublishJSON(ctx, "", "users.test", "x"), broker.ErrClosed)
}
