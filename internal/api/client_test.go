package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ads/ads-cli/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		Model:        "deepseek-chat",
		SystemPrompt: "You are a helpful assistant.",
	}
}

// --- non-streaming ---

func TestChat_ParsesContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Hello there."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	resp, err := client.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello there." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 16 || resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 4 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChat_SendsAuthAndRequestBody(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if _, err := client.Chat(context.Background(), "what is a goroutine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected Authorization header: %q", gotAuth)
	}
	if gotBody.Model != "deepseek-chat" {
		t.Errorf("unexpected model: %q", gotBody.Model)
	}
	if gotBody.Stream {
		t.Error("Chat must not request streaming")
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", gotBody.Messages)
	}
	if gotBody.Messages[1].Content != "what is a goroutine" {
		t.Errorf("unexpected user message: %q", gotBody.Messages[1].Content)
	}
}

func TestChat_APIErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"message": "insufficient balance"}}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Chat(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "insufficient balance") {
		t.Errorf("expected upstream message in error, got: %v", err)
	}
}

func TestChat_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Chat(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected status and body in error, got: %v", err)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if _, err := client.Chat(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestChat_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(testConfig(srv.URL))
	if _, err := client.Chat(context.Background(), "hi"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestRequestJSON_Shape(t *testing.T) {
	client := NewClient(testConfig("http://example.invalid"))
	payload, err := client.RequestJSON("ping", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded chatRequest
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if !decoded.Stream {
		t.Error("expected stream: true")
	}
	if decoded.Messages[0].Content != "You are a helpful assistant." {
		t.Errorf("unexpected system message: %q", decoded.Messages[0].Content)
	}
}

// --- streaming ---

// sseHandler writes the given lines as a streamed response, flushing
// after every write so the client sees separate chunks.
func sseHandler(t *testing.T, pieces ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Error("streaming request must set stream: true")
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer is not a flusher")
			return
		}
		for _, p := range pieces {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
	}
}

func TestChatStream_EmitsFragmentsInOrder(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n",
	))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	var out bytes.Buffer
	if err := client.ChatStream(context.Background(), "hi", false, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", out.String())
	}
}

func TestChatStream_ReassemblesSplitLines(t *testing.T) {
	// One event record delivered across three transport chunks.
	srv := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"del",
		"ta\":{\"content\":\"whole\"",
		"}}]}\ndata: [DONE]\n",
	))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	var out bytes.Buffer
	if err := client.ChatStream(context.Background(), "hi", false, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "whole" {
		t.Errorf("expected %q, got %q", "whole", out.String())
	}
}

func TestChatStream_OverflowAbortsStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		strings.Repeat("x", streamBufCap*2), // no newline in sight
		"\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n",
	))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	var out bytes.Buffer
	err := client.ChatStream(context.Background(), "hi", false, &out)
	if !errors.Is(err, ErrStreamBufferOverflow) {
		t.Fatalf("expected ErrStreamBufferOverflow, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no fragment may be emitted after overflow, got %q", out.String())
	}
}

func TestChatStream_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	var out bytes.Buffer
	err := client.ChatStream(context.Background(), "hi", false, &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestChatStream_SinkFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"lost\"}}]}\n",
		"data: [DONE]\n",
	))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if err := client.ChatStream(context.Background(), "hi", false, &failWriter{}); err != nil {
		t.Fatalf("sink failure must not fail the stream, got: %v", err)
	}
}

func TestChatStream_ReportUsageCompletes(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, "data: [DONE]\n"))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	var out bytes.Buffer
	if err := client.ChatStream(context.Background(), "hi", true, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
