package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/briefingdeck/deckflow/internal/awsx"
	"github.com/briefingdeck/deckflow/internal/config"
	"github.com/briefingdeck/deckflow/internal/deck"
	"github.com/briefingdeck/deckflow/internal/handlers"
	"github.com/briefingdeck/deckflow/internal/mailer"
	"github.com/briefingdeck/deckflow/internal/metrics"
	"github.com/briefingdeck/deckflow/internal/narrative"
	"github.com/briefingdeck/deckflow/internal/orchestrator"
	"github.com/briefingdeck/deckflow/internal/orders"
	"github.com/briefingdeck/deckflow/internal/payments"
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func buildStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (orders.Store, awsx.CloudWatchAPI, error) {
	needsAWS := cfg.StateBackend == "dynamodb" || cfg.MetricsNamespace != ""
	if !needsAWS {
		return orders.NewMemoryStore(), nil, nil
	}

	clients, err := awsx.NewClients(ctx)
	if err != nil {
		return nil, nil, err
	}

	var store orders.Store
	switch cfg.StateBackend {
	case "dynamodb":
		store = orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable)
		log.WithField("table", cfg.OrdersTable).Info("using dynamodb order store")
	default:
		store = orders.NewMemoryStore()
	}
	return store, clients.CloudWatch, nil
}

func buildOrchestrator(ctx context.Context, cfg config.Config, log *logrus.Logger) (*orchestrator.Orchestrator, error) {
	store, cw, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	deps := orchestrator.Deps{
		Store: store,
		Narrative: narrative.NewGenerator(narrative.Config{
			APIKey:            cfg.LLMAPIKey,
			BaseURL:           cfg.LLMBaseURL,
			Model:             cfg.LLMModel,
			Timeout:           cfg.NarrativeTimeout,
			MarketDataKey:     cfg.MarketDataKey,
			MarketDataBaseURL: cfg.MarketDataBaseURL,
			EnrichTimeout:     cfg.EnrichTimeout,
		}, log),
		Decks: deck.NewClient(deck.Config{
			APIKey:        cfg.DeckAPIKey,
			BaseURL:       cfg.DeckBaseURL,
			ExportAs:      cfg.DeckExportAs,
			Theme:         cfg.DeckTheme,
			CreateTimeout: cfg.CreateTimeout,
			PollTimeout:   cfg.PollTimeout,
		}),
		Log: log,
	}
	if cfg.EmailAPIKey != "" {
		deps.Mailer = mailer.NewClient(mailer.Config{
			APIKey:  cfg.EmailAPIKey,
			BaseURL: cfg.EmailBaseURL,
			From:    cfg.EmailFrom,
		}, log)
	}
	if cfg.MetricsNamespace != "" && cw != nil {
		deps.Metrics = metrics.NewPublisher(cw, cfg.MetricsNamespace, log)
	}

	return orchestrator.New(deps, orchestrator.Config{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
	}), nil
}

func setupRouter(orch *orchestrator.Orchestrator, cfg config.Config, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, handlers.HandlerConfig{
		Orders: orch,
		Checkout: payments.NewService(payments.Config{
			Provider:         cfg.PaymentProvider,
			CreemAPIKey:      cfg.CreemAPIKey,
			CreemProductID:   cfg.CreemProductID,
			CreemAPIBase:     cfg.CreemAPIBase,
			CreemSuccessURL:  cfg.CreemSuccessURL,
			CreemTestMode:    cfg.CreemTestMode,
			BagelCheckoutURL: cfg.BagelCheckoutURL,
			SiteURL:          cfg.SiteURL,
		}, log),
		Log: log,
	})
	return r
}

func main() {
	log := newLogger()
	cfg := config.Load()

	orch, err := buildOrchestrator(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize order service")
	}

	r := setupRouter(orch, cfg, log)

	if cfg.RunLocal {
		runLocal(r, orch, cfg, log)
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// runLocal serves HTTP directly and drains in-flight deck pipelines on
// SIGINT/SIGTERM. In-memory orders die with the process, so the drain is
// what keeps a Ctrl-C from orphaning a paid generation.
func runLocal(r *gin.Engine, orch *orchestrator.Orchestrator, cfg config.Config, log *logrus.Logger) {
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("running local server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("local server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := orch.Close(ctx); err != nil {
		log.WithError(err).Warn("pipelines still running at shutdown")
	}
}
