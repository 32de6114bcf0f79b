// Package narrative turns a ticker symbol into analyst text by calling a
// chat-completions LLM endpoint, optionally enriched with recent quote and
// news data from a market-data provider.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMissingCredential means the LLM API key is absent. This is a fatal
// configuration error; callers must not retry.
var ErrMissingCredential = errors.New("llm api key not configured")

const systemPrompt = `You are a senior equity research analyst. Write a concise, ` +
	`well-structured earnings briefing for the requested company. Cover the ` +
	`business model, latest financial performance, key growth drivers and ` +
	`investor takeaways. Use clear section headings. Neutral tone, no ` +
	`investment advice.`

// Config carries the knobs the generator needs; zero values for the
// market-data fields disable enrichment.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	MarketDataKey     string
	MarketDataBaseURL string
	EnrichTimeout     time.Duration
}

// Generator produces narrative text for one ticker per call. It holds no
// per-order state.
type Generator struct {
	cfg    Config
	client *http.Client
	log    *logrus.Entry
}

func NewGenerator(cfg Config, log *logrus.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.WithField("component", "narrative"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns analyst text for ticker. Enrichment failures are logged
// and swallowed; LLM failures are returned to the caller, which decides on
// the fallback policy.
func (g *Generator) Generate(ctx context.Context, ticker string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", ErrMissingCredential
	}

	userPrompt := fmt.Sprintf("Write an earnings briefing for %s.", ticker)
	if extra := g.enrich(ctx, ticker); extra != "" {
		userPrompt += "\n\nRecent market context:\n" + extra
	}

	reqBody := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error.Message
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		return "", fmt.Errorf("llm error (status %d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm returned no content")
	}

	return parsed.Choices[0].Message.Content, nil
}

// enrich fetches a recent quote and headlines under its own short timeout.
// Any failure here degrades to an empty context block, never an error.
func (g *Generator) enrich(ctx context.Context, ticker string) string {
	if g.cfg.MarketDataKey == "" {
		return ""
	}

	enrichCtx, cancel := context.WithTimeout(ctx, g.cfg.EnrichTimeout)
	defer cancel()

	var parts []string
	if quote := g.fetchQuote(enrichCtx, ticker); quote != "" {
		parts = append(parts, quote)
	}
	if news := g.fetchNews(enrichCtx, ticker); news != "" {
		parts = append(parts, news)
	}
	return strings.Join(parts, "\n")
}

type quoteResponse struct {
	Current float64 `json:"c"`
	Change  float64 `json:"d"`
	Percent float64 `json:"dp"`
}

func (g *Generator) fetchQuote(ctx context.Context, ticker string) string {
	q := url.Values{"symbol": {ticker}, "token": {g.cfg.MarketDataKey}}
	var quote quoteResponse
	if err := g.getJSON(ctx, "/quote?"+q.Encode(), &quote); err != nil {
		g.log.WithError(err).Warn("quote enrichment failed, continuing without it")
		return ""
	}
	if quote.Current == 0 {
		return ""
	}
	return fmt.Sprintf("Latest quote: %.2f (%+.2f, %+.2f%%)", quote.Current, quote.Change, quote.Percent)
}

type newsItem struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

func (g *Generator) fetchNews(ctx context.Context, ticker string) string {
	now := time.Now()
	q := url.Values{
		"symbol": {ticker},
		"from":   {now.AddDate(0, 0, -7).Format("2006-01-02")},
		"to":     {now.Format("2006-01-02")},
		"token":  {g.cfg.MarketDataKey},
	}
	var items []newsItem
	if err := g.getJSON(ctx, "/company-news?"+q.Encode(), &items); err != nil {
		g.log.WithError(err).Warn("news enrichment failed, continuing without it")
		return ""
	}

	var lines []string
	for i, it := range items {
		if i == 5 {
			break
		}
		if it.Headline != "" {
			lines = append(lines, "- "+it.Headline)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Recent headlines:\n" + strings.Join(lines, "\n")
}

func (g *Generator) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(g.cfg.MarketDataBaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FallbackText is the static template narrative substituted when the LLM is
// unavailable. The label keeps degraded decks distinguishable downstream.
func FallbackText(ticker string) string {
	return fmt.Sprintf(`%[1]s Earnings Briefing (template edition)

Note: this briefing was generated from a static template because the
narrative service was unavailable.

# Company Overview
%[1]s overview, business model and segments.

# Latest Financial Performance
Revenue, margins and earnings trends for %[1]s from the most recent filings.

# Growth Drivers
Key products, markets and strategic initiatives behind %[1]s growth.

# Investor Takeaways
What to watch in upcoming %[1]s reports. Informational only, not investment
advice.`, ticker)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
