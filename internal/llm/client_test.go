package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/types"
)

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(config.LLMConfig{
		Endpoint:       url,
		APIKey:         "test-key",
		Model:          "gpt-4o-mini",
		TimeoutSeconds: 5,
	}, nil)
}

func TestChat_TextResponse(t *testing.T) {
	var gotAuth string
	var gotReq wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"all done"},"finish_reason":"stop"}],
			"usage":{"total_tokens":42}
		}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Chat(context.Background(), Request{
		Messages:  []types.Message{{Role: "user", Content: "hello"}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "all done" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %v", resp.ToolCalls)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("request model = %q", gotReq.Model)
	}
}

func TestChat_ToolCallResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"signal_peek","arguments":"{\"hours_back\":12}"}},
				{"id":"call_2","type":"function","function":{"name":"budget_status","arguments":""}}
			]},"finish_reason":"tool_calls"}],
			"usage":{"total_tokens":100}
		}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Chat(context.Background(), Request{
		Messages: []types.Message{{Role: "user", Content: "check signals"}},
		Tools:    []ToolSpec{{Name: "signal_peek", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "signal_peek" || resp.ToolCalls[0].ID != "call_1" {
		t.Errorf("first call: %+v", resp.ToolCalls[0])
	}
	if got := resp.ToolCalls[0].Args["hours_back"]; got != float64(12) {
		t.Errorf("hours_back = %v", got)
	}
	if len(resp.ToolCalls[1].Args) != 0 {
		t.Errorf("empty arguments should parse to empty map, got %v", resp.ToolCalls[1].Args)
	}
}

func TestChat_MalformedToolCallDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"broken","arguments":"{not json"}},
				{"id":"call_2","type":"function","function":{"name":"fine","arguments":"{}"}}
			]},"finish_reason":"tool_calls"}],
			"usage":{"total_tokens":10}
		}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Chat(context.Background(), Request{
		Messages: []types.Message{{Role: "user", Content: "go"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "fine" {
		t.Errorf("malformed call should be dropped, got %+v", resp.ToolCalls)
	}
}

func TestChat_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), Request{
		Messages: []types.Message{{Role: "user", Content: "hello"}},
	})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("want service error, got %v", err)
	}
}

func TestChat_RoundTripsToolResults(t *testing.T) {
	var gotReq wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"total_tokens":5}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), Request{
		Messages: []types.Message{
			{Role: "assistant", ToolCalls: []types.ToolCall{{ID: "call_1", Name: "signal_peek", Args: map[string]any{"limit": 5}}}},
			{Role: "tool", ToolCallID: "call_1", Name: "signal_peek", Content: `{"success":true}`},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("got %d wire messages, want 2", len(gotReq.Messages))
	}
	tc := gotReq.Messages[0].ToolCalls
	if len(tc) != 1 || tc[0].Function.Name != "signal_peek" {
		t.Fatalf("assistant tool call not round-tripped: %+v", tc)
	}
	if !strings.Contains(tc[0].Function.Arguments, `"limit":5`) {
		t.Errorf("arguments not serialized: %q", tc[0].Function.Arguments)
	}
	if gotReq.Messages[1].ToolCallID != "call_1" {
		t.Errorf("tool message lost its call id: %+v", gotReq.Messages[1])
	}
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("career", "a career development agent", "find relevant openings", []string{"signal_peek", "http_fetch"})
	for _, want := range []string{"career", "find relevant openings", "signal_peek, http_fetch"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
