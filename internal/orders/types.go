package orders

// Order statuses. An order is created as processing and makes exactly one
// terminal transition, to completed or failed.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Record is the lifecycle of one deck-generation order.
type Record struct {
	OrderID     string                 `json:"orderId" dynamodbav:"order_id"` // PK, immutable
	Ticker      string                 `json:"ticker,omitempty" dynamodbav:"ticker,omitempty"`
	Email       string                 `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Status      string                 `json:"status" dynamodbav:"status"`
	OK          bool                   `json:"ok" dynamodbav:"ok"`
	DeckURL     string                 `json:"deckUrl,omitempty" dynamodbav:"deck_url,omitempty"`
	Message     string                 `json:"message,omitempty" dynamodbav:"message,omitempty"`
	Error       string                 `json:"error,omitempty" dynamodbav:"error,omitempty"`
	StartedAt   int64                  `json:"startedAt,omitempty" dynamodbav:"started_at,omitempty"`     // epoch ms
	CompletedAt int64                  `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"` // epoch ms
	Source      string                 `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Raw         map[string]interface{} `json:"-" dynamodbav:"raw,omitempty"` // provider payload, diagnostics only
}

// Terminal reports whether the record has reached a final state.
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Clone returns a copy that does not alias the receiver's Raw map. Stores
// hand out clones so callers can never mutate shared state in place.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Raw != nil {
		cp.Raw = make(map[string]interface{}, len(r.Raw))
		for k, v := range r.Raw {
			cp.Raw[k] = v
		}
	}
	return &cp
}
