// Package notify delivers fire-and-forget messages to the user. Run
// reports and guardrail alerts go through here; delivery failure is
// logged and swallowed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/httpx"
)

// Notifier sends one text message. Markdown-style markup is allowed; the
// channel decides how much of it survives.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Noop discards everything. Used when no channel is configured.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(ctx context.Context, message string) error { return nil }

// Telegram sends messages through the Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	http    *httpx.Client
	logger  *zap.Logger
}

// NewTelegram builds a Telegram notifier from configuration.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		baseURL: "https://api.telegram.org",
		http:    httpx.New(15*time.Second, logger),
		logger:  logger,
	}
}

// FromConfig returns a Telegram notifier when a token is configured, or a
// Noop otherwise.
func FromConfig(cfg config.TelegramConfig, logger *zap.Logger) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return Noop{}
	}
	return NewTelegram(cfg, logger)
}

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	if _, err := t.http.PostJSON(ctx, url, body, nil); err != nil {
		t.logger.Warn("telegram delivery failed", zap.Error(err))
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
