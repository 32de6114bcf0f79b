package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/briefingdeck/deckflow/internal/orchestrator"
	"github.com/briefingdeck/deckflow/internal/orders"
	"github.com/briefingdeck/deckflow/internal/payments"
	"github.com/briefingdeck/deckflow/internal/validation"
)

// OrderService is the slice of the orchestrator the HTTP layer needs.
type OrderService interface {
	Submit(ctx context.Context, ticker, email, orderID string) (*orders.Record, bool, error)
	Status(ctx context.Context, orderID string) (*orders.Record, error)
	HandleDeckWebhook(ctx context.Context, payload map[string]interface{}) (*orders.Record, error)
}

// CheckoutService creates hosted payment sessions.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, ticker, orderID, origin string) (*payments.Checkout, error)
}

// HandlerConfig groups dependencies for the order API.
type HandlerConfig struct {
	Orders   OrderService
	Checkout CheckoutService
	Log      *logrus.Logger
}

// RegisterRoutes wires the full HTTP surface onto r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Log.WithField("component", "http")

	r.Use(requestID())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// POST /orders accepts a deck order and acknowledges before the
	// pipeline runs. Replays of the same orderId return the current record
	// instead of starting a second generation.
	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		rec, created, err := cfg.Orders.Submit(ctx, req.Ticker, req.Email, req.OrderID)
		if err != nil {
			if errors.Is(err, orchestrator.ErrEmptyTicker) {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "ticker_required"})
				return
			}
			log.WithError(err).Error("order submission failed")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "order_submit_failed"})
			return
		}

		if !created {
			c.JSON(http.StatusOK, rec)
			return
		}
		c.Header("Location", "/orders/"+rec.OrderID)
		c.JSON(http.StatusAccepted, gin.H{
			"ok":      false,
			"orderId": rec.OrderID,
			"status":  rec.Status,
			"message": rec.Message,
		})
	})

	// GET /orders/:orderId returns the live record. An order the store has
	// not seen yet is not a 404: the payment webhook that creates it may
	// still be in flight, so the client is told to keep polling.
	r.GET("/orders/:orderId", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("orderId")

		rec, err := cfg.Orders.Status(ctx, orderID)
		if err != nil {
			log.WithError(err).WithField("orderId", orderID).Error("status lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "status_lookup_failed"})
			return
		}
		if rec == nil {
			c.JSON(http.StatusAccepted, gin.H{
				"ok":      false,
				"orderId": orderID,
				"status":  orders.StatusProcessing,
				"message": "Still initializing. Please check back shortly.",
			})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// POST /orders/webhook is the provider's push completion path. The
	// provider retries on non-2xx, so every parseable request gets a 200.
	r.POST("/orders/webhook", func(c *gin.Context) {
		ctx := c.Request.Context()

		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			log.WithError(err).Warn("unparseable deck webhook")
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "invalid_payload"})
			return
		}

		rec, err := cfg.Orders.HandleDeckWebhook(ctx, payload)
		if err != nil {
			log.WithError(err).Warn("deck webhook rejected")
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// POST /pay mints the order id up front and hands it to the payment
	// provider as metadata, so the payment webhook can start the exact
	// order the customer paid for.
	r.POST("/pay", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.PayRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		ticker := orders.NormalizeTicker(req.Ticker)
		orderID := orders.GenerateOrderID(ticker)

		co, err := cfg.Checkout.CreateCheckout(ctx, ticker, orderID, c.GetHeader("Origin"))
		if err != nil {
			if errors.Is(err, payments.ErrNotConfigured) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "payments_not_configured"})
				return
			}
			log.WithError(err).Error("checkout creation failed")
			c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "checkout_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"orderId":     co.OrderID,
			"provider":    co.Provider,
			"checkoutUrl": co.CheckoutURL,
		})
	})

	// POST /pay/webhook receives provider payment events. Only a paid event
	// with a ticker starts a generation; everything else is acknowledged
	// and ignored so the provider stops retrying.
	r.POST("/pay/webhook", func(c *gin.Context) {
		ctx := c.Request.Context()

		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			log.WithError(err).Warn("unparseable payment webhook")
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "invalid_payload"})
			return
		}

		ev := payments.ParseWebhook(payload)
		wlog := log.WithFields(logrus.Fields{"event": ev.Type, "orderId": ev.OrderID, "ticker": ev.Ticker})
		if !ev.Paid || ev.Ticker == "" {
			wlog.Info("payment event ignored")
			c.JSON(http.StatusOK, gin.H{"ok": true, "handled": false})
			return
		}

		rec, created, err := cfg.Orders.Submit(ctx, ev.Ticker, ev.Email, ev.OrderID)
		if err != nil {
			wlog.WithError(err).Error("paid order submission failed")
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "order_submit_failed"})
			return
		}
		wlog.WithFields(logrus.Fields{"orderId": rec.OrderID, "started": created}).Info("payment event handled")
		c.JSON(http.StatusOK, gin.H{"ok": true, "handled": true, "orderId": rec.OrderID, "started": created})
	})
}

// requestID tags every request for log correlation, honoring an inbound
// X-Request-Id when the caller supplies one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Set("requestId", id)
		c.Next()
	}
}
