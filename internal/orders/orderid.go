package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultToken replaces the ticker in an order id when the caller supplied
// nothing usable.
const DefaultToken = "DECK"

// NormalizeTicker trims and uppercases a ticker symbol. The result is what
// gets sent to providers and embedded in order ids.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// CleanTicker normalizes and strips a ticker down to the characters valid
// in a symbol. A ticker that cleans to empty carries no usable symbol at
// all; validation rejects those before they reach the pipeline.
func CleanTicker(ticker string) string {
	return stripNonAlnum(NormalizeTicker(ticker))
}

// GenerateOrderID derives a unique, human-traceable order id of the form
// TICKER_<unix-millis>_<hex>. The 4-byte random suffix keeps concurrent
// requests in the same millisecond from colliding.
func GenerateOrderID(ticker string) string {
	clean := CleanTicker(ticker)
	if clean == "" {
		clean = DefaultToken
	}

	var suffix [4]byte
	_, _ = rand.Read(suffix[:])

	return fmt.Sprintf("%s_%d_%s", clean, time.Now().UnixMilli(), hex.EncodeToString(suffix[:]))
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
