// AngelaMos | 2026
// notify_test.go

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

type sentMessage struct {
	to, subject, body string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures int
	err      error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to, subject, body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePublisher struct {
	exchange, key string
	payload       any
	err           error
}

func (f *fakePublisher) PublishJSON(_ context.Context, exchange, key string, v any) error {
	f.exchange, f.key, f.payload = exchange, key, v
	return f.err
}

type emailCounter struct {
	outcomes []string
}

func (c *emailCounter) RecordEmail(driver, outcome string) {
	c.outcomes = append(c.outcomes, driver+":"+outcome)
}

func TestConfirmationLink_EscapesQuery(t *testing.T) {
	link, err := ConfirmationLink(
		"http://localhost:8080/api/auth/confirm-email",
		"alice+test@x.com",
		"abc-_123",
	)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/api/auth/confirm-email", u.Path)
	assert.Equal(t, "alice+test@x.com", u.Query().Get("email"))
	assert.Equal(t, "abc-_123", u.Query().Get("token"))
	assert.Contains(t, link, "alice%2Btest%40x.com")
}

func TestConfirmationLink_KeepsExistingQuery(t *testing.T) {
	link, err := ConfirmationLink("https://app.example.com/confirm?lang=en", "a@x.com", "t")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "t", u.Query().Get("token"))
}

func TestResetBody(t *testing.T) {
	assert.Equal(t, "Use this token: tok", ResetBody("tok", ""))
	assert.Contains(t, ResetBody("tok", "https://app/reset?token=tok"), "https://app/reset?token=tok")
}

func TestQueueSender_PublishesJob(t *testing.T) {
	pub := &fakePublisher{}
	sender := NewQueueSender(pub, "users.email")

	require.NoError(t, sender.Send(context.Background(), "a@x.com", "Subject", "Body"))

	assert.Equal(t, "", pub.exchange)
	assert.Equal(t, "users.email", pub.key)
	job, ok := pub.payload.(EmailJob)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", job.To)
	assert.Equal(t, "Body", job.Text)
	assert.Len(t, job.ID, 26)
}

func TestQueueSender_PropagatesFailure(t *testing.T) {
	boom := errors.New("nacked")
	sender := NewQueueSender(&fakePublisher{err: boom}, "users.email")

	err := sender.Send(context.Background(), "a@x.com", "s", "b")
	assert.ErrorIs(t, err, boom)
}

func TestInstrumented_RecordsOutcome(t *testing.T) {
	counter := &emailCounter{}
	inner := &fakeSender{failures: 1, err: errors.New("down")}
	sender := Instrumented(inner, "mailgun", counter)

	require.Error(t, sender.Send(context.Background(), "a@x.com", "s", "b"))
	require.NoError(t, sender.Send(context.Background(), "a@x.com", "s", "b"))

	assert.Equal(t, []string{"mailgun:error", "mailgun:success"}, counter.outcomes)
}

func TestNewSender_SelectsDriver(t *testing.T) {
	s, err := NewSender(config.MailConfig{Driver: config.MailDriverLog}, config.BrokerConfig{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	_, err = NewSender(config.MailConfig{Driver: config.MailDriverQueue}, config.BrokerConfig{}, nil, nil)
	assert.Error(t, err)

	s, err = NewSender(
		config.MailConfig{Driver: config.MailDriverQueue},
		config.BrokerConfig{EmailQueue: "q"},
		&fakePublisher{},
		nil,
	)
	require.NoError(t, err)
	assert.IsType(t, &QueueSender{}, s)

	_, err = NewSender(config.MailConfig{Driver: "pigeon"}, config.BrokerConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestMailgunSender_PostsMessage(t *testing.T) {
	var (
		gotPath string
		gotTo   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTo = r.FormValue("to")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":      "<20260101.1@mg.example.com>",
			"message": "Queued. Thank you.",
		})
	}))
	defer srv.Close()

	sender := NewMailgunSender(config.MailConfig{
		From:           "Users <no-reply@mg.example.com>",
		MailgunDomain:  "mg.example.com",
		MailgunAPIKey:  "key-test",
		MailgunAPIBase: srv.URL + "/v3",
		SendTimeout:    5 * time.Second,
	})

	require.NoError(t, sender.Send(context.Background(), "alice@x.com", "Hi", "Body"))
	assert.True(t, strings.HasSuffix(gotPath, "/mg.example.com/messages"), gotPath)
	assert.Equal(t, "alice@x.com", gotTo)
}
