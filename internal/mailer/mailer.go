// Package mailer delivers the finished report to the customer through a
// transactional email API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMissingCredential means the email API key is absent (fatal
// configuration error).
var ErrMissingCredential = errors.New("email api key not configured")

const sendTimeout = 10 * time.Second

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, sans-serif; background-color: #faf9f6; padding: 40px 20px;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 16px; padding: 40px;">
    <h1 style="margin: 0 0 16px; color: #1a1a1a;">Your {{.Ticker}} Report is Ready</h1>
    <p style="color: #525252; line-height: 1.6;">
      We've generated a comprehensive earnings analysis for <strong>{{.Ticker}}</strong>.
      Click the button below to download your report.
    </p>
    <p style="text-align: center; margin: 32px 0;">
      <a href="{{.DeckURL}}" style="display: inline-block; padding: 16px 32px; background-color: #1a1a1a; color: #faf9f6; text-decoration: none; border-radius: 12px;">Download Report</a>
    </p>
    <p style="font-size: 14px; color: #737373;">
      This report was generated by AI using the latest available financial data.
      For informational purposes only — not investment advice.
    </p>
  </div>
</body>
</html>`))

type Config struct {
	APIKey  string
	BaseURL string
	From    string
}

type Client struct {
	cfg    Config
	client *http.Client
	log    *logrus.Entry
}

func NewClient(cfg Config, log *logrus.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.WithField("component", "mailer"),
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SendReport emails the deck link for ticker to the given address and
// returns the provider's message id.
func (c *Client) SendReport(ctx context.Context, to, ticker, deckURL string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingCredential
	}

	var html bytes.Buffer
	if err := reportTmpl.Execute(&html, struct {
		Ticker  string
		DeckURL string
	}{Ticker: ticker, DeckURL: deckURL}); err != nil {
		return "", fmt.Errorf("render report email: %w", err)
	}

	payload, err := json.Marshal(sendRequest{
		From:    c.cfg.From,
		To:      []string{to},
		Subject: fmt.Sprintf("Your %s Earnings Report is Ready", ticker),
		HTML:    html.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read send response: %w", err)
	}

	var parsed sendResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("email provider error: %s", msg)
	}

	c.log.WithFields(logrus.Fields{"to": to, "ticker": ticker, "id": parsed.ID}).Info("report email sent")
	return parsed.ID, nil
}
