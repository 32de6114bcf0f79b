package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/briefingdeck/deckflow/internal/orders"
)

func TestWait_TerminalStopsPolling(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, orderID string) (*orders.Record, error) {
		calls++
		if calls < 3 {
			return &orders.Record{OrderID: orderID, Status: orders.StatusProcessing}, nil
		}
		return &orders.Record{OrderID: orderID, Status: orders.StatusCompleted, OK: true, DeckURL: "https://example.com/d.pdf"}, nil
	})
	p.Interval = time.Millisecond
	p.MaxAttempts = 10

	rec, err := p.Wait(context.Background(), "AMD_1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if rec.Status != orders.StatusCompleted {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if calls != 3 {
		t.Fatalf("polled %d times, want 3", calls)
	}
}

func TestWait_BudgetExhausted(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, orderID string) (*orders.Record, error) {
		calls++
		return &orders.Record{OrderID: orderID, Status: orders.StatusProcessing}, nil
	})
	p.Interval = time.Millisecond
	p.MaxAttempts = 4

	rec, err := p.Wait(context.Background(), "AMD_1")
	if !errors.Is(err, ErrPollBudgetExhausted) {
		t.Fatalf("expected ErrPollBudgetExhausted, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("polled %d times, want 4", calls)
	}
	if rec == nil || rec.Status != orders.StatusProcessing {
		t.Fatalf("last seen record missing: %+v", rec)
	}
}

func TestWait_NoDelayAfterFinalAttempt(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, orderID string) (*orders.Record, error) {
		calls++
		return &orders.Record{OrderID: orderID, Status: orders.StatusProcessing}, nil
	})
	p.Interval = time.Hour
	p.MaxAttempts = 1

	start := time.Now()
	_, err := p.Wait(context.Background(), "AMD_1")
	if !errors.Is(err, ErrPollBudgetExhausted) {
		t.Fatalf("expected ErrPollBudgetExhausted, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("polled %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("slept a full interval after the last check: %v", elapsed)
	}
}

func TestWait_TransientErrorsTolerated(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, orderID string) (*orders.Record, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return &orders.Record{OrderID: orderID, Status: orders.StatusFailed}, nil
	})
	p.Interval = time.Millisecond
	p.MaxAttempts = 5

	rec, err := p.Wait(context.Background(), "AMD_1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if rec.Status != orders.StatusFailed {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	p := New(func(ctx context.Context, orderID string) (*orders.Record, error) {
		return &orders.Record{OrderID: orderID, Status: orders.StatusProcessing}, nil
	})
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Wait(ctx, "AMD_1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/AMD_1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"orderId":"AMD_1","ticker":"AMD","status":"completed","ok":true,"deckUrl":"https://example.com/d.pdf"}`))
		case "/orders/AMD_new":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"ok":false,"status":"processing"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}
	}))
	defer srv.Close()

	status := HTTPStatus(srv.URL, srv.Client())
	ctx := context.Background()

	rec, err := status(ctx, "AMD_1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Status != orders.StatusCompleted || rec.DeckURL != "https://example.com/d.pdf" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec, err = status(ctx, "AMD_new")
	if err != nil || rec != nil {
		t.Fatalf("202 must map to (nil, nil), got %+v err=%v", rec, err)
	}

	if _, err = status(ctx, "AMD_err"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
