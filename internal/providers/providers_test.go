package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
)

func newTestTelegram(sender *fakeSender) *Telegram {
	tg := NewTelegram("default-token", 100, logging.NewDiscard())
	tg.retryDelay = time.Millisecond
	tg.newBot = func(token string) (messageSender, error) {
		sender.mu.Lock()
		sender.tokens = append(sender.tokens, token)
		sender.mu.Unlock()
		return sender, nil
	}
	return tg
}

func TestTelegram_SendUsesContactPointChat(t *testing.T) {
	sender := &fakeSender{}
	tg := newTestTelegram(sender)
	cp := models.ContactPoint{Type: models.ChannelTelegram, Configuration: map[string]interface{}{"chat_id": float64(12345)}}

	n := models.Notification{Title: "Task overdue", Body: "Ship beta is 2 days late", Severity: models.SeverityCritical}
	require.NoError(t, tg.Send(context.Background(), n, cp))
	require.NoError(t, tg.Send(context.Background(), n, cp))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(12345), sender.sent[0].ChatID)
	assert.Equal(t, "[CRITICAL] Task overdue\nShip beta is 2 days late", sender.sent[0].Text)
	assert.Equal(t, []string{"default-token"}, sender.tokens, "bot is reused per token")
}

func TestTelegram_RetriesTransientFailures(t *testing.T) {
	sender := &fakeSender{failures: 2}
	tg := newTestTelegram(sender)
	cp := models.ContactPoint{Configuration: map[string]interface{}{"chat_id": "@team", "bot_token": "own"}}

	require.NoError(t, tg.Send(context.Background(), models.Notification{Title: "x"}, cp))
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, "@team", sender.sent[0].ChatID)
	assert.Equal(t, []string{"own"}, sender.tokens)
}

func TestTelegram_GivesUpAfterAttempts(t *testing.T) {
	sender := &fakeSender{failures: 10}
	tg := newTestTelegram(sender)
	cp := models.ContactPoint{Configuration: map[string]interface{}{"chat_id": "42"}}

	err := tg.Send(context.Background(), models.Notification{Title: "x"}, cp)
	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)
}

func TestTelegram_InvalidConfiguration(t *testing.T) {
	tg := newTestTelegram(&fakeSender{})
	err := tg.Send(context.Background(), models.Notification{}, models.ContactPoint{Configuration: map[string]interface{}{}})
	assert.ErrorContains(t, err, "chat_id")

	tg.defaultToken = ""
	err = tg.Send(context.Background(), models.Notification{}, models.ContactPoint{Configuration: map[string]interface{}{"chat_id": "1"}})
	assert.ErrorContains(t, err, "bot_token")
}

func TestKafkaChannel(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewKafkaChannel(pub, "project.alerts")
	n := models.Notification{TenantID: "t1", Title: "Blocked"}

	require.NoError(t, ch.Send(context.Background(), n, models.ContactPoint{}))
	require.NoError(t, ch.Send(context.Background(), n, models.ContactPoint{Configuration: map[string]interface{}{"topic": "custom"}}))

	require.Len(t, pub.topics, 2)
	assert.Equal(t, "project.alerts", pub.topics[0])
	assert.Equal(t, "custom", pub.topics[1])
	assert.Equal(t, "t1", pub.keys[0])

	assert.Error(t, NewKafkaChannel(nil, "x").Send(context.Background(), n, models.ContactPoint{}))
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []*bot.SendMessageParams
	tokens   []string
	calls    int
	failures int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("telegram 502")
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

type fakePublisher struct {
	topics []string
	keys   []string
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, _ any) error {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	return nil
}
