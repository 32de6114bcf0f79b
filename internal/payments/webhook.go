package payments

// WebhookEvent is the normalized shape of an inbound payment notification.
// Field names vary between providers and versions, so extraction is
// deliberately forgiving.
type WebhookEvent struct {
	Type    string
	Status  string
	Paid    bool
	Ticker  string
	OrderID string
	Email   string
	Raw     map[string]interface{}
}

// ParseWebhook normalizes a raw payment webhook payload. It never fails:
// an unrecognizable payload yields an event with Paid=false, which callers
// acknowledge and ignore.
func ParseWebhook(payload map[string]interface{}) *WebhookEvent {
	ev := &WebhookEvent{Raw: payload}
	if payload == nil {
		return ev
	}

	ev.Type = str(payload, "event", "eventType", "type", "event_type")
	if ev.Type == "" {
		ev.Type = "unknown"
	}

	// newer payloads nest the object; older ones are flat
	data := payload
	for _, key := range []string{"data", "object", "charge", "payment"} {
		if nested, ok := payload[key].(map[string]interface{}); ok {
			data = nested
			break
		}
	}

	ev.Status = str(data, "status", "payment_status", "checkout_status")
	if ev.Status == "" {
		ev.Status = str(payload, "status")
	}
	switch ev.Status {
	case "paid", "succeeded", "completed", "success":
		ev.Paid = true
	}

	meta := map[string]interface{}{}
	for _, src := range []map[string]interface{}{data, payload} {
		for _, key := range []string{"metadata", "meta"} {
			if m, ok := src[key].(map[string]interface{}); ok {
				meta = m
				break
			}
		}
		if len(meta) > 0 {
			break
		}
	}

	ev.Ticker = str(meta, "ticker", "TICKER", "symbol")
	ev.OrderID = str(meta, "orderId", "order_id")
	ev.Email = str(meta, "email")
	if ev.Email == "" {
		ev.Email = str(data, "customer_email", "email")
	}

	return ev
}

// str returns the first non-empty string value among the given keys.
func str(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
