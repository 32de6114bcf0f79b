package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/briefingdeck/deckflow/internal/orders"
)

// New returns a configured validator with custom struct-level validation
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// `required` alone accepts whitespace and punctuation-only tickers;
	// the struct-level check rejects anything that cleans to empty.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(payStructValidation, PayRequest{})

	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if orders.CleanTicker(req.Ticker) == "" {
		sl.ReportError(req.Ticker, "ticker", "Ticker", "ticker_cleans_empty", "")
	}
}

func payStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PayRequest)
	if orders.CleanTicker(req.Ticker) == "" {
		sl.ReportError(req.Ticker, "ticker", "Ticker", "ticker_cleans_empty", "")
	}
}
