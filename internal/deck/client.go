// Package deck talks to the external slide-generation provider: submit a
// generation job, check its status. The polling loop belongs to the
// orchestrator, not here.
package deck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingCredential means the provider API key is absent (fatal
	// configuration error).
	ErrMissingCredential = errors.New("deck api key not configured")
	// ErrNoJobID means the provider accepted the request but returned no
	// job identifier. A protocol violation, not retryable.
	ErrNoJobID = errors.New("provider response missing job id")
)

// Job status values as reported by PollJob.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is the ephemeral state of one in-flight generation, owned by the
// caller for the duration of one order.
type Job struct {
	JobID       string
	SubmittedAt time.Time
	PollAttempt int
}

// JobStatus is the result of a single status check.
type JobStatus struct {
	Status  string
	DeckURL string
	Err     string
	Raw     map[string]interface{}
}

type Config struct {
	APIKey        string
	BaseURL       string
	ExportAs      string
	Theme         string
	CreateTimeout time.Duration
	PollTimeout   time.Duration
}

// Client holds no state between calls beyond configuration.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg, client: &http.Client{}}
}

type createRequest struct {
	InputText   string        `json:"inputText"`
	TextMode    string        `json:"textMode"`
	Format      string        `json:"format"`
	ExportAs    string        `json:"exportAs,omitempty"`
	ThemeName   string        `json:"themeName,omitempty"`
	TextOptions createOptions `json:"textOptions"`
}

type createOptions struct {
	Language string `json:"language"`
}

type createResponse struct {
	GenerationID string `json:"generationId"`
	ID           string `json:"id"`
}

// CreateJob submits narrative text for rendering and returns the provider's
// job id. Non-2xx responses propagate as errors; the caller decides whether
// to retry.
func (c *Client) CreateJob(ctx context.Context, ticker, text string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingCredential
	}

	payload, err := json.Marshal(createRequest{
		InputText:   text,
		TextMode:    "preserve",
		Format:      "presentation",
		ExportAs:    c.cfg.ExportAs,
		ThemeName:   c.cfg.Theme,
		TextOptions: createOptions{Language: "en"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CreateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create job for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read create response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	jobID := parsed.GenerationID
	if jobID == "" {
		jobID = parsed.ID
	}
	if jobID == "" {
		return "", ErrNoJobID
	}
	return jobID, nil
}

type pollResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	ExportURL string `json:"exportUrl"`
	PDFURL    string `json:"pdfUrl"`
	URL       string `json:"url"`
	GammaURL  string `json:"gammaUrl"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// PollJob performs one time-bounded status check. Provider field names vary
// between versions, so both the status and the export URL are read from the
// first populated variant.
func (c *Client) PollJob(ctx context.Context, jobID string) (*JobStatus, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingCredential
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/generations/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed pollResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	status := parsed.Status
	if status == "" {
		status = parsed.State
	}

	out := &JobStatus{Raw: raw}
	switch status {
	case "completed", "done":
		out.Status = JobCompleted
		out.DeckURL = firstNonEmpty(parsed.ExportURL, parsed.PDFURL, parsed.URL, parsed.GammaURL)
	case "failed", "error":
		out.Status = JobFailed
		out.Err = firstNonEmpty(parsed.Error, parsed.Message, "generation failed")
	default:
		out.Status = JobPending
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
