package validation

import "testing"

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		Ticker:  "nvda",
		Email:   "user@example.com",
		OrderID: "NVDA_1720000000000_a1b2c3d4",
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_TickerCleansEmpty(t *testing.T) {
	v := New()

	for _, ticker := range []string{"   ", "##!", "---", " !? "} {
		req := CreateOrderRequest{Ticker: ticker}
		if err := v.Struct(req); err == nil {
			t.Fatalf("expected validation error for ticker %q, got nil", ticker)
		}
	}
}

func TestCreateOrderRequest_MissingTicker(t *testing.T) {
	v := New()

	if err := v.Struct(CreateOrderRequest{Email: "user@example.com"}); err == nil {
		t.Fatal("expected validation error for missing ticker, got nil")
	}
}

func TestCreateOrderRequest_BadEmail(t *testing.T) {
	v := New()

	req := CreateOrderRequest{Ticker: "AMD", Email: "not-an-email"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for malformed email, got nil")
	}
}

func TestPayRequest(t *testing.T) {
	v := New()

	if err := v.Struct(PayRequest{Ticker: "AMD"}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if err := v.Struct(PayRequest{}); err == nil {
		t.Fatal("expected validation error for missing ticker, got nil")
	}
	if err := v.Struct(PayRequest{Ticker: "##!"}); err == nil {
		t.Fatal("expected validation error for punctuation-only ticker, got nil")
	}
}
