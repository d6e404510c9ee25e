package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
	"project-alert-service/internal/utils"
)

// telegramConfig holds the contact point configuration of a Telegram channel.
// BotToken falls back to the service-wide token.
type telegramConfig struct {
	BotToken string      `json:"bot_token"`
	ChatID   interface{} `json:"chat_id"`
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram delivers notifications through the Telegram Bot API.
type Telegram struct {
	defaultToken string
	limiter      *rate.Limiter
	logger       *logging.Logger
	attempts     int
	retryDelay   time.Duration

	mu     sync.Mutex
	bots   map[string]messageSender
	newBot func(token string) (messageSender, error)
}

// NewTelegram returns a provider sharing one rate limiter across all chats.
func NewTelegram(defaultToken string, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Telegram{
		defaultToken: defaultToken,
		limiter:      rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:       logger,
		attempts:     3,
		retryDelay:   time.Second,
		bots:         make(map[string]messageSender),
		newBot: func(token string) (messageSender, error) {
			return bot.New(token, bot.WithSkipGetMe())
		},
	}
}

// Send delivers n to the chat configured on cp.
func (t *Telegram) Send(ctx context.Context, n models.Notification, cp models.ContactPoint) error {
	cfg, err := parseTelegramConfig(cp)
	if err != nil {
		return err
	}
	token := cfg.BotToken
	if token == "" {
		token = t.defaultToken
	}
	if token == "" {
		return fmt.Errorf("missing bot_token for contact point %s", uuid.UUID(cp.ID))
	}
	chatID, err := normalizeChatID(cfg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat_id for contact point %s: %w", uuid.UUID(cp.ID), err)
	}

	b, err := t.botFor(token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot for contact point %s: %w", uuid.UUID(cp.ID), err)
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   FormatText(n),
	}
	return utils.Retry(ctx, t.logger, t.attempts, t.retryDelay, func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit wait: %w", err)
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %v: %w", chatID, err)
		}
		return nil
	})
}

func (t *Telegram) botFor(token string) (messageSender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := t.newBot(token)
	if err != nil {
		return nil, err
	}
	t.bots[token] = b
	return b, nil
}

func parseTelegramConfig(cp models.ContactPoint) (telegramConfig, error) {
	var cfg telegramConfig
	raw, err := json.Marshal(cp.Configuration)
	if err != nil {
		return cfg, fmt.Errorf("failed to marshal configuration for contact point %s: %w", uuid.UUID(cp.ID), err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid Telegram configuration for contact point %s: %w", uuid.UUID(cp.ID), err)
	}
	return cfg, nil
}

// normalizeChatID accepts a numeric id or a "@channel" username.
func normalizeChatID(v interface{}) (interface{}, error) {
	switch id := v.(type) {
	case float64:
		if id == 0 {
			return nil, fmt.Errorf("chat_id is zero")
		}
		return int64(id), nil
	case string:
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("chat_id is empty")
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n, nil
		}
		return id, nil
	case nil:
		return nil, fmt.Errorf("chat_id is missing")
	default:
		return nil, fmt.Errorf("unsupported chat_id type %T", v)
	}
}

// FormatText renders a notification as plain text.
func FormatText(n models.Notification) string {
	var sb strings.Builder
	sb.WriteString("[" + strings.ToUpper(n.Severity) + "] " + n.Title)
	if n.Body != "" {
		sb.WriteString("\n" + n.Body)
	}
	return sb.String()
}
