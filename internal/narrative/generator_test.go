package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func chatHandler(t *testing.T, content string, capture *chatRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestGenerate_MissingCredential(t *testing.T) {
	g := NewGenerator(Config{Timeout: time.Second}, testLogger())

	_, err := g.Generate(context.Background(), "AMD")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(chatHandler(t, "AMD analyst text", &captured))
	defer srv.Close()

	g := NewGenerator(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}, testLogger())

	text, err := g.Generate(context.Background(), "AMD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "AMD analyst text" {
		t.Fatalf("unexpected text %q", text)
	}
	if captured.Model != "test-model" {
		t.Fatalf("model not forwarded: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, "AMD") {
		t.Fatalf("user prompt must mention the ticker: %q", captured.Messages[1].Content)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "overloaded"},
		})
	}))
	defer srv.Close()

	g := NewGenerator(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, testLogger())

	_, err := g.Generate(context.Background(), "AMD")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status-carrying error, got %v", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	g := NewGenerator(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	}, testLogger())

	_, err := g.Generate(context.Background(), "AMD")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestGenerate_EnrichmentFailureDoesNotFail(t *testing.T) {
	var captured chatRequest
	llm := httptest.NewServer(chatHandler(t, "text", &captured))
	defer llm.Close()

	// market-data endpoint that always errors
	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer market.Close()

	g := NewGenerator(Config{
		APIKey:            "test-key",
		BaseURL:           llm.URL,
		Timeout:           2 * time.Second,
		MarketDataKey:     "md-key",
		MarketDataBaseURL: market.URL,
		EnrichTimeout:     time.Second,
	}, testLogger())

	text, err := g.Generate(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("enrichment failure must not fail generation: %v", err)
	}
	if text != "text" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGenerate_EnrichmentAddsContext(t *testing.T) {
	var captured chatRequest
	llm := httptest.NewServer(chatHandler(t, "text", &captured))
	defer llm.Close()

	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			if r.URL.Query().Get("token") != "md-key" {
				t.Errorf("missing token param")
			}
			_ = json.NewEncoder(w).Encode(map[string]float64{"c": 123.45, "d": 1.5, "dp": 1.23})
		case "/company-news":
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"headline": "NVDA ships new chip"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer market.Close()

	g := NewGenerator(Config{
		APIKey:            "test-key",
		BaseURL:           llm.URL,
		Timeout:           2 * time.Second,
		MarketDataKey:     "md-key",
		MarketDataBaseURL: market.URL,
		EnrichTimeout:     time.Second,
	}, testLogger())

	if _, err := g.Generate(context.Background(), "NVDA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := captured.Messages[1].Content
	if !strings.Contains(prompt, "123.45") || !strings.Contains(prompt, "NVDA ships new chip") {
		t.Fatalf("enrichment missing from prompt: %q", prompt)
	}
}

func TestFallbackText_Labeled(t *testing.T) {
	text := FallbackText("AMD")
	if !strings.Contains(text, "AMD") {
		t.Fatal("fallback must mention the ticker")
	}
	if !strings.Contains(text, "template") {
		t.Fatal("fallback must be clearly labeled as a template")
	}
}
