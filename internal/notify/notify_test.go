package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Elore26/assistant/internal/config"
)

func TestFromConfig(t *testing.T) {
	n := FromConfig(config.TelegramConfig{}, nil)
	if _, ok := n.(Noop); !ok {
		t.Errorf("missing token should yield Noop, got %T", n)
	}

	n = FromConfig(config.TelegramConfig{BotToken: "abc", ChatID: "123"}, nil)
	if _, ok := n.(*Telegram); !ok {
		t.Errorf("full config should yield *Telegram, got %T", n)
	}
}

func TestTelegram_Notify(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "token123", ChatID: "chat456"}, nil)
	tg.baseURL = srv.URL

	if err := tg.Notify(context.Background(), "*career* finished its run"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(gotPath, "bottoken123") {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "chat456" || gotBody["text"] != "*career* finished its run" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestNoop_Notify(t *testing.T) {
	if err := (Noop{}).Notify(context.Background(), "ignored"); err != nil {
		t.Errorf("Noop must never fail: %v", err)
	}
}
