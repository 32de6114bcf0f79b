// Package orchestrator owns the order state machine: accept a generation
// request, acknowledge fast, run the narrative -> deck pipeline in the
// background, and record exactly one terminal outcome per order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/briefingdeck/deckflow/internal/deck"
	"github.com/briefingdeck/deckflow/internal/narrative"
	"github.com/briefingdeck/deckflow/internal/orders"
)

// ErrEmptyTicker is a client input error; empty tickers never enter the
// pipeline.
var ErrEmptyTicker = errors.New("ticker is required")

// ErrMissingOrderID means a webhook payload carried no recognizable order id.
var ErrMissingOrderID = errors.New("orderId required")

const processingMessage = "Your deck is being generated (2-4 minutes)"

// NarrativeGenerator produces analyst text for a ticker.
type NarrativeGenerator interface {
	Generate(ctx context.Context, ticker string) (string, error)
}

// DeckClient submits and polls slide-generation jobs.
type DeckClient interface {
	CreateJob(ctx context.Context, ticker, text string) (string, error)
	PollJob(ctx context.Context, jobID string) (*deck.JobStatus, error)
}

// ReportMailer delivers the finished deck link. Optional collaborator.
type ReportMailer interface {
	SendReport(ctx context.Context, to, ticker, deckURL string) (string, error)
}

// MetricsPublisher records terminal outcomes. Optional collaborator.
type MetricsPublisher interface {
	OrderCompleted(ctx context.Context, ticker string, elapsed time.Duration)
	OrderFailed(ctx context.Context, ticker string)
}

// Config carries the polling budget for the background pipeline.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Deps groups the orchestrator's collaborators. Store, Narrative, Decks and
// Log are required; Mailer and Metrics may be nil.
type Deps struct {
	Store     orders.Store
	Narrative NarrativeGenerator
	Decks     DeckClient
	Mailer    ReportMailer
	Metrics   MetricsPublisher
	Log       *logrus.Logger
}

type Orchestrator struct {
	store     orders.Store
	narrative NarrativeGenerator
	decks     DeckClient
	mailer    ReportMailer
	metrics   MetricsPublisher
	cfg       Config
	log       *logrus.Entry

	// mu serializes order claims and terminal transitions so the first
	// terminal write wins, whether it comes from the poll loop or a webhook.
	mu    sync.Mutex
	tasks sync.WaitGroup

	nowFunc func() time.Time
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 45
	}
	return &Orchestrator{
		store:     deps.Store,
		narrative: deps.Narrative,
		decks:     deps.Decks,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		cfg:       cfg,
		log:       deps.Log.WithField("component", "orchestrator"),
		nowFunc:   time.Now,
	}
}

// Submit registers a new order and dispatches its background pipeline. It
// returns the order record, whether a new pipeline was started, and an
// error only for invalid input or store failures.
//
// Idempotency: if the order id already exists, the current record is
// returned unchanged and nothing is dispatched, so a retried payment webhook
// or a resubmitting client never triggers a second paid generation.
//
// Submit never waits on the pipeline; the acknowledgement is synchronous
// and the multi-minute generation runs in a tracked goroutine.
func (o *Orchestrator) Submit(ctx context.Context, ticker, email, orderID string) (*orders.Record, bool, error) {
	t := orders.NormalizeTicker(ticker)
	if orders.CleanTicker(t) == "" {
		return nil, false, ErrEmptyTicker
	}
	if orderID == "" {
		orderID = orders.GenerateOrderID(t)
	}

	rec := &orders.Record{
		OrderID:   orderID,
		Ticker:    t,
		Email:     email,
		Status:    orders.StatusProcessing,
		Message:   processingMessage,
		StartedAt: o.nowFunc().UnixMilli(),
	}

	created, err := o.claim(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := o.store.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		o.log.WithField("orderId", orderID).Info("duplicate submission, returning existing order")
		return existing, false, nil
	}

	o.tasks.Add(1)
	go o.runOrder(orderID, t, email)

	o.log.WithFields(logrus.Fields{"orderId": orderID, "ticker": t}).Info("order accepted")
	return rec, true, nil
}

// claim writes the processing record only if the order id is unclaimed.
func (o *Orchestrator) claim(ctx context.Context, rec *orders.Record) (bool, error) {
	if ac, ok := o.store.(orders.AtomicCreator); ok {
		return ac.CreateIfAbsent(ctx, rec)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	existing, err := o.store.Get(ctx, rec.OrderID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := o.store.Set(ctx, rec.OrderID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns the current record, or (nil, nil) when no record exists
// yet; the HTTP layer turns that into a distinct "still initializing"
// response rather than a not-found.
func (o *Orchestrator) Status(ctx context.Context, orderID string) (*orders.Record, error) {
	return o.store.Get(ctx, orderID)
}

// runOrder is the detached background pipeline for one order. Stages run
// strictly in sequence; every failure is captured into the store. Nothing
// may escape this goroutine.
func (o *Orchestrator) runOrder(orderID, ticker, email string) {
	defer o.tasks.Done()
	source := "poll"
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("orderId", orderID).Errorf("pipeline panic: %v", r)
			o.fail(orderID, ticker, "Something went wrong while generating your deck.", fmt.Sprintf("panic: %v", r), source, nil)
		}
	}()

	// the pipeline outlives the submitting request on purpose; each stage
	// carries its own timeout
	ctx := context.Background()
	log := o.log.WithFields(logrus.Fields{"orderId": orderID, "ticker": ticker})

	text, err := o.narrative.Generate(ctx, ticker)
	if err != nil {
		if errors.Is(err, narrative.ErrMissingCredential) {
			o.fail(orderID, ticker, "The narrative service is not configured.", err.Error(), source, nil)
			return
		}
		log.WithError(err).Warn("narrative generation failed, using template fallback")
		text = narrative.FallbackText(ticker)
		source = "fallback"
	}

	jobID, err := o.decks.CreateJob(ctx, ticker, text)
	if err != nil {
		log.WithError(err).Error("deck job creation failed")
		o.fail(orderID, ticker, "Deck generation could not be started.", err.Error(), source, nil)
		return
	}
	job := deck.Job{JobID: jobID, SubmittedAt: o.nowFunc()}
	log.WithField("jobId", jobID).Info("deck job created")

	for job.PollAttempt < o.cfg.MaxPollAttempts {
		time.Sleep(o.cfg.PollInterval)
		job.PollAttempt++

		st, err := o.decks.PollJob(ctx, job.JobID)
		if err != nil {
			// transient poll errors burn an attempt but don't fail the order
			log.WithError(err).WithField("attempt", job.PollAttempt).Warn("poll failed")
			continue
		}

		switch st.Status {
		case deck.JobCompleted:
			if !validDeckURL(st.DeckURL) {
				o.fail(orderID, ticker, "Deck generation finished without a download link.",
					fmt.Sprintf("provider reported completion with unusable deck url %q", st.DeckURL), source, st.Raw)
				return
			}
			o.complete(orderID, ticker, email, st.DeckURL, source, st.Raw)
			return
		case deck.JobFailed:
			o.fail(orderID, ticker, "Deck generation failed: "+st.Err, st.Err, source, st.Raw)
			return
		}
	}

	o.fail(orderID, ticker,
		fmt.Sprintf("Deck generation timed out after %d status checks.", o.cfg.MaxPollAttempts),
		"poll budget exhausted", source, nil)
}

func (o *Orchestrator) complete(orderID, ticker, email, deckURL, source string, raw map[string]interface{}) {
	o.settle(context.Background(), &orders.Record{
		OrderID: orderID,
		Ticker:  ticker,
		Email:   email,
		Status:  orders.StatusCompleted,
		OK:      true,
		DeckURL: deckURL,
		Source:  source,
		Raw:     raw,
	})
}

func (o *Orchestrator) fail(orderID, ticker, message, detail, source string, raw map[string]interface{}) {
	o.settle(context.Background(), &orders.Record{
		OrderID: orderID,
		Ticker:  ticker,
		Status:  orders.StatusFailed,
		Message: message,
		Error:   detail,
		Source:  source,
		Raw:     raw,
	})
}

// settle records a terminal outcome. The first terminal write for an order
// wins; later writes from the competing completion path are no-ops. Side
// effects (report email, metrics) run only on the winning write, which is
// what makes duplicate webhooks harmless.
func (o *Orchestrator) settle(ctx context.Context, rec *orders.Record) bool {
	o.mu.Lock()
	cur, err := o.store.Get(ctx, rec.OrderID)
	if err != nil {
		o.mu.Unlock()
		o.log.WithError(err).WithField("orderId", rec.OrderID).Error("settle read failed")
		return false
	}
	if cur != nil && cur.Terminal() {
		o.mu.Unlock()
		o.log.WithFields(logrus.Fields{"orderId": rec.OrderID, "status": cur.Status}).
			Info("order already terminal, ignoring late write")
		return false
	}
	if cur != nil {
		if rec.Ticker == "" {
			rec.Ticker = cur.Ticker
		}
		if rec.Email == "" {
			rec.Email = cur.Email
		}
		rec.StartedAt = cur.StartedAt
	}
	rec.CompletedAt = o.nowFunc().UnixMilli()
	err = o.store.Set(ctx, rec.OrderID, rec)
	o.mu.Unlock()
	if err != nil {
		o.log.WithError(err).WithField("orderId", rec.OrderID).Error("settle write failed")
		return false
	}

	log := o.log.WithFields(logrus.Fields{"orderId": rec.OrderID, "ticker": rec.Ticker, "status": rec.Status})
	if rec.Status == orders.StatusCompleted {
		log.WithField("deckUrl", rec.DeckURL).Info("order completed")
		if o.metrics != nil {
			var elapsed time.Duration
			if rec.StartedAt > 0 {
				elapsed = time.Duration(rec.CompletedAt-rec.StartedAt) * time.Millisecond
			}
			o.metrics.OrderCompleted(ctx, rec.Ticker, elapsed)
		}
		if o.mailer != nil && rec.Email != "" {
			if _, err := o.mailer.SendReport(ctx, rec.Email, rec.Ticker, rec.DeckURL); err != nil {
				// the deck is done; a lost email must not fail the order
				log.WithError(err).Warn("report email failed")
			}
		}
	} else {
		log.WithField("error", rec.Error).Warn("order failed")
		if o.metrics != nil {
			o.metrics.OrderFailed(ctx, rec.Ticker)
		}
	}
	return true
}

// HandleDeckWebhook is the push-based completion path: the provider posts a
// completion notice instead of being polled. Payload field names vary, so
// parsing is forgiving. Delivery is idempotent through settle.
func (o *Orchestrator) HandleDeckWebhook(ctx context.Context, payload map[string]interface{}) (*orders.Record, error) {
	orderID := firstString(payload, "orderId", "order_id", "id")
	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	deckURL := firstString(payload, "deckUrl", "deck_url", "url", "exportUrl", "export_url", "gammaUrl")
	status := firstString(payload, "status")
	source := firstString(payload, "source")
	if source == "" {
		source = "webhook"
	}

	rec := &orders.Record{
		OrderID: orderID,
		Ticker:  orders.NormalizeTicker(firstString(payload, "ticker")),
		Source:  source,
		Raw:     payload,
	}
	if validDeckURL(deckURL) && status != orders.StatusFailed && status != "error" {
		rec.Status = orders.StatusCompleted
		rec.OK = true
		rec.DeckURL = deckURL
	} else {
		rec.Status = orders.StatusFailed
		rec.Message = "Deck generation failed."
		rec.Error = firstString(payload, "error", "message")
		if rec.Error == "" {
			if deckURL == "" {
				rec.Error = "completion notice missing deck url"
			} else if !validDeckURL(deckURL) {
				rec.Error = fmt.Sprintf("completion notice carried unusable deck url %q", deckURL)
			}
		}
	}

	o.settle(ctx, rec)
	return o.store.Get(ctx, orderID)
}

// Close waits for in-flight background pipelines, bounded by ctx. It is the
// structured counterpart of keeping fire-and-forget work alive until done.
func (o *Orchestrator) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validDeckURL accepts only absolute http(s) URLs. A completed order's
// deck link gets emailed to the customer, so a relative path or garbage
// string from a provider must not settle the order as completed.
func validDeckURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
