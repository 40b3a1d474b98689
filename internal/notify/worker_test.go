// AngelaMos | 2026
// worker_test.go

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type settlement struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) results() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, job any) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func newTestWorker(sender Sender, attempts int) *Worker {
	return NewWorker(WorkerConfig{
		Sender:      sender,
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		SendTimeout: time.Second,
	})
}

func TestWorker_AcksDeliveredJob(t *testing.T) {
	ack := &fakeAcknowledger{}
	sender := &fakeSender{}
	w := newTestWorker(sender, 3)

	w.Handle(context.Background(), delivery(t, ack, 1, EmailJob{ID: "j1", To: "a@x.com", Subject: "s", Text: "b"}))

	assert.Equal(t, []settlement{{tag: 1, acked: true}}, ack.results())
	assert.Equal(t, 1, sender.count())
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	ack := &fakeAcknowledger{}
	sender := &fakeSender{failures: 2, err: errors.New("503")}
	w := newTestWorker(sender, 3)

	w.Handle(context.Background(), delivery(t, ack, 7, EmailJob{ID: "j", To: "a@x.com"}))

	assert.Equal(t, []settlement{{tag: 7, acked: true}}, ack.results())
	assert.Equal(t, 1, sender.count())
}

func TestWorker_RejectsAfterExhaustingAttempts(t *testing.T) {
	ack := &fakeAcknowledger{}
	sender := &fakeSender{failures: 5, err: errors.New("503")}
	w := newTestWorker(sender, 2)

	w.Handle(context.Background(), delivery(t, ack, 3, EmailJob{ID: "j", To: "a@x.com"}))

	assert.Equal(t, []settlement{{tag: 3, requeue: false}}, ack.results())
	assert.Equal(t, 0, sender.count())
}

func TestWorker_RejectsMalformedJob(t *testing.T) {
	ack := &fakeAcknowledger{}
	w := newTestWorker(&fakeSender{}, 1)

	w.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 9, Body: []byte("{not json")})
	w.Handle(context.Background(), delivery(t, ack, 10, EmailJob{ID: "no-recipient"}))

	assert.Equal(t, []settlement{{tag: 9}, {tag: 10}}, ack.results())
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ack := &fakeAcknowledger{}
	sender := &fakeSender{}
	w := newTestWorker(sender, 1)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- delivery(t, ack, 1, EmailJob{ID: "a", To: "a@x.com"})
	deliveries <- delivery(t, ack, 2, EmailJob{ID: "b", To: "b@x.com"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, deliveries) }()

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RunReturnsWhenChannelCloses(t *testing.T) {
	w := newTestWorker(&fakeSender{}, 1)
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	assert.NoError(t, w.Run(context.Background(), deliveries))
}
