// Package poller implements client-side order polling: ask for an order's
// status on an interval until it reaches a terminal state or the attempt
// budget runs out.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briefingdeck/deckflow/internal/orders"
)

// ErrPollBudgetExhausted means the order was still running after the last
// allowed status check.
var ErrPollBudgetExhausted = errors.New("order is taking longer than expected")

// StatusFunc fetches the current record for an order. A nil record with a
// nil error means the order is not visible yet.
type StatusFunc func(ctx context.Context, orderID string) (*orders.Record, error)

// Poller repeatedly checks an order until it settles.
type Poller struct {
	Status      StatusFunc
	Interval    time.Duration
	MaxAttempts int
}

func New(status StatusFunc) *Poller {
	return &Poller{Status: status, Interval: 10 * time.Second, MaxAttempts: 30}
}

// Wait blocks until the order reaches a terminal state, the attempt budget
// is spent, or ctx is done. Transient status errors burn an attempt rather
// than aborting the wait.
func (p *Poller) Wait(ctx context.Context, orderID string) (*orders.Record, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 30
	}

	var last *orders.Record
	for i := 0; i < attempts; i++ {
		rec, err := p.Status(ctx, orderID)
		if err == nil && rec != nil {
			if rec.Terminal() {
				return rec, nil
			}
			last = rec
		}

		// no delay once the final check has been spent
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, ErrPollBudgetExhausted
}

// HTTPStatus returns a StatusFunc backed by the order service's
// GET /orders/{orderId} endpoint. A 202 response means the order is still
// initializing and maps to (nil, nil).
func HTTPStatus(baseURL string, client *http.Client) StatusFunc {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")

	return func(ctx context.Context, orderID string) (*orders.Record, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/orders/"+orderID, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusOK:
			var rec orders.Record
			if err := json.Unmarshal(body, &rec); err != nil {
				return nil, fmt.Errorf("decoding order status: %w", err)
			}
			return &rec, nil
		case http.StatusAccepted:
			return nil, nil
		default:
			return nil, fmt.Errorf("order status request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
}
