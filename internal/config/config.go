package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the timeout and polling budgets. Every outbound call gets its
// own bound; the poll budget caps the whole generation at roughly
// MaxPollAttempts * PollInterval on top of narrative + job creation.
const (
	DefaultListenAddr       = ":8080"
	DefaultNarrativeTimeout = 90 * time.Second
	DefaultEnrichTimeout    = 10 * time.Second
	DefaultCreateTimeout    = 30 * time.Second
	DefaultPollTimeout      = 10 * time.Second
	DefaultPollInterval     = 4 * time.Second
	DefaultMaxPollAttempts  = 45
)

// Config collects every tunable the service reads from the environment.
// It is built once at startup and passed into component constructors so no
// component reaches for the environment (or a hidden global) on its own.
type Config struct {
	// server
	ListenAddr string
	RunLocal   bool

	// order state store: "memory" (default, non-durable) or "dynamodb"
	StateBackend string
	OrdersTable  string

	// narrative generator
	LLMAPIKey         string
	LLMBaseURL        string
	LLMModel          string
	NarrativeTimeout  time.Duration
	MarketDataKey     string
	MarketDataBaseURL string
	EnrichTimeout     time.Duration

	// slide-generation provider
	DeckAPIKey      string
	DeckBaseURL     string
	DeckExportAs    string
	DeckTheme       string
	CreateTimeout   time.Duration
	PollTimeout     time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int

	// payments
	PaymentProvider  string // "creem" or "bagel"
	CreemAPIKey      string
	CreemProductID   string
	CreemAPIBase     string
	CreemSuccessURL  string
	CreemTestMode    bool
	BagelCheckoutURL string
	SiteURL          string

	// email
	EmailAPIKey  string
	EmailBaseURL string
	EmailFrom    string

	// metrics (empty namespace disables publishing)
	MetricsNamespace string
}

// Load reads the environment and fills in documented defaults.
func Load() Config {
	return Config{
		ListenAddr: envOr("LISTEN_ADDR", DefaultListenAddr),
		RunLocal:   envBool("RUN_LOCAL"),

		StateBackend: envOr("STATE_BACKEND", "memory"),
		OrdersTable:  os.Getenv("ORDERS_TABLE"),

		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMBaseURL:        envOr("LLM_API_BASE", "https://api.openai.com/v1"),
		LLMModel:          envOr("LLM_MODEL", "gpt-4o-mini"),
		NarrativeTimeout:  envDuration("NARRATIVE_TIMEOUT", DefaultNarrativeTimeout),
		MarketDataKey:     os.Getenv("MARKET_DATA_API_KEY"),
		MarketDataBaseURL: envOr("MARKET_DATA_API_BASE", "https://finnhub.io/api/v1"),
		EnrichTimeout:     envDuration("ENRICH_TIMEOUT", DefaultEnrichTimeout),

		DeckAPIKey:      os.Getenv("DECK_API_KEY"),
		DeckBaseURL:     envOr("DECK_API_BASE", "https://public-api.gamma.app/v1.0"),
		DeckExportAs:    envOr("DECK_EXPORT_AS", "pdf"),
		DeckTheme:       envOr("DECK_THEME", "Oasis"),
		CreateTimeout:   envDuration("DECK_CREATE_TIMEOUT", DefaultCreateTimeout),
		PollTimeout:     envDuration("DECK_POLL_TIMEOUT", DefaultPollTimeout),
		PollInterval:    envDuration("DECK_POLL_INTERVAL", DefaultPollInterval),
		MaxPollAttempts: envInt("DECK_MAX_POLL_ATTEMPTS", DefaultMaxPollAttempts),

		PaymentProvider:  envOr("PAYMENT_PROVIDER", "bagel"),
		CreemAPIKey:      os.Getenv("CREEM_API_KEY"),
		CreemProductID:   os.Getenv("CREEM_PRODUCT_ID"),
		CreemAPIBase:     envOr("CREEM_API_BASE", "https://api.creem.io"),
		CreemSuccessURL:  os.Getenv("CREEM_SUCCESS_URL"),
		CreemTestMode:    envBool("CREEM_IS_TEST"),
		BagelCheckoutURL: os.Getenv("BAGELPAY_CHECKOUT_URL"),
		SiteURL:          envOr("SITE_URL", "https://briefingdeck.com"),

		EmailAPIKey:  os.Getenv("EMAIL_API_KEY"),
		EmailBaseURL: envOr("EMAIL_API_BASE", "https://api.resend.com"),
		EmailFrom:    envOr("EMAIL_FROM", "BriefingDeck <reports@briefingdeck.com>"),

		MetricsNamespace: os.Getenv("METRICS_NAMESPACE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
