// Package payments builds hosted-checkout URLs and parses inbound payment
// webhooks. Providers are opaque HTTP endpoints; no payment protocol is
// implemented here.
package payments

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured means the selected provider is missing credentials or a
// checkout URL. Fatal configuration error, never retried.
var ErrNotConfigured = errors.New("payment provider not configured")

const checkoutTimeout = 15 * time.Second

// Provider names accepted in Config.Provider.
const (
	ProviderCreem = "creem"
	ProviderBagel = "bagel"
)

type Config struct {
	Provider string

	CreemAPIKey     string
	CreemProductID  string
	CreemAPIBase    string
	CreemSuccessURL string
	CreemTestMode   bool

	BagelCheckoutURL string
	SiteURL          string
}

// Checkout is the outcome of a checkout-creation call.
type Checkout struct {
	Provider    string `json:"provider"`
	CheckoutURL string `json:"checkoutUrl"`
	OrderID     string `json:"orderId"`
}

type Service struct {
	cfg    Config
	client *http.Client
	log    *logrus.Entry
}

func NewService(cfg Config, log *logrus.Logger) *Service {
	return &Service{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.WithField("component", "payments"),
	}
}

// CreateCheckout returns a hosted checkout URL carrying the ticker and
// order id so the payment webhook can route the paid event back to the
// right order.
func (s *Service) CreateCheckout(ctx context.Context, ticker, orderID, origin string) (*Checkout, error) {
	if origin == "" {
		origin = s.cfg.SiteURL
	}
	switch s.cfg.Provider {
	case ProviderCreem:
		return s.creemCheckout(ctx, ticker, orderID, origin)
	default:
		return s.bagelCheckout(ticker, orderID)
	}
}

func (s *Service) bagelCheckout(ticker, orderID string) (*Checkout, error) {
	base := s.cfg.BagelCheckoutURL
	if base == "" {
		return nil, fmt.Errorf("%w: bagel checkout url missing", ErrNotConfigured)
	}

	params := url.Values{"ticker": {ticker}, "orderId": {orderID}}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return &Checkout{
		Provider:    ProviderBagel,
		CheckoutURL: base + sep + params.Encode(),
		OrderID:     orderID,
	}, nil
}

type creemRequest struct {
	ProductID  string            `json:"product_id"`
	RequestID  string            `json:"request_id,omitempty"`
	SuccessURL string            `json:"success_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type creemResponse struct {
	CheckoutURL string `json:"checkout_url"`
	URL         string `json:"url"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

func (s *Service) creemCheckout(ctx context.Context, ticker, orderID, origin string) (*Checkout, error) {
	if s.cfg.CreemTestMode {
		mock := fmt.Sprintf("%s/?paid=1&ticker=%s&orderId=%s",
			strings.TrimRight(origin, "/"), url.QueryEscape(ticker), url.QueryEscape(orderID))
		s.log.WithField("orderId", orderID).Info("creem test mode, returning mock checkout url")
		return &Checkout{Provider: ProviderCreem, CheckoutURL: mock, OrderID: orderID}, nil
	}

	if s.cfg.CreemAPIKey == "" || s.cfg.CreemProductID == "" {
		return nil, fmt.Errorf("%w: creem api key or product id missing", ErrNotConfigured)
	}

	successURL := s.cfg.CreemSuccessURL
	if successURL != "" {
		successURL = strings.ReplaceAll(successURL, "{{ticker}}", url.QueryEscape(ticker))
		successURL = strings.ReplaceAll(successURL, "{{orderId}}", url.QueryEscape(orderID))
	} else if strings.HasPrefix(origin, "https://") {
		successURL = fmt.Sprintf("%s/?paid=1&ticker=%s&orderId=%s",
			strings.TrimRight(origin, "/"), url.QueryEscape(ticker), url.QueryEscape(orderID))
	}

	payload, err := json.Marshal(creemRequest{
		ProductID:  s.cfg.CreemProductID,
		RequestID:  "deckflow_" + ticker + "_" + uuid.NewString(),
		SuccessURL: successURL,
		Metadata:   map[string]string{"ticker": ticker, "orderId": orderID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, checkoutTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(s.cfg.CreemAPIBase, "/")+"/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.cfg.CreemAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("creem request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read creem response: %w", err)
	}

	var parsed creemResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode creem response (status %d): %w", resp.StatusCode, err)
	}

	checkoutURL := parsed.CheckoutURL
	if checkoutURL == "" {
		checkoutURL = parsed.URL
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || checkoutURL == "" {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("creem error: %s", msg)
	}

	return &Checkout{Provider: ProviderCreem, CheckoutURL: checkoutURL, OrderID: orderID}, nil
}
