package validation

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	Ticker  string `json:"ticker" validate:"required"`           // stock symbol, normalized server-side
	Email   string `json:"email" validate:"omitempty,email"`     // optional delivery address for the report
	OrderID string `json:"orderId" validate:"omitempty,max=128"` // client-supplied id for idempotent retries
}

// PayRequest is the payload for POST /pay. Checkout needs only the ticker;
// the order id is minted here so the payment webhook can hand it back.
type PayRequest struct {
	Ticker string `json:"ticker" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
}
