// Command poller waits for an order to finish from the command line. It is
// the operational counterpart of the browser polling loop: point it at a
// running order service and an order id, and it exits once the order
// settles or the polling budget runs out.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/briefingdeck/deckflow/internal/orders"
	"github.com/briefingdeck/deckflow/internal/poller"
)

func main() {
	var (
		orderID  = flag.String("order", "", "order id to wait for (required)")
		baseURL  = flag.String("url", "http://localhost:8080", "order service base URL")
		interval = flag.Duration("interval", 10*time.Second, "delay between status checks")
		attempts = flag.Int("attempts", 30, "maximum number of status checks")
	)
	flag.Parse()

	log := logrus.New()
	if *orderID == "" {
		flag.Usage()
		log.Fatal("-order is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := poller.New(poller.HTTPStatus(*baseURL, nil))
	p.Interval = *interval
	p.MaxAttempts = *attempts

	log.WithFields(logrus.Fields{"orderId": *orderID, "url": *baseURL}).Info("waiting for order")
	rec, err := p.Wait(ctx, *orderID)
	if err != nil {
		entry := log.WithError(err).WithField("orderId", *orderID)
		if rec != nil {
			entry = entry.WithField("lastStatus", rec.Status)
		}
		entry.Error("order did not settle")
		os.Exit(1)
	}

	entry := log.WithFields(logrus.Fields{"orderId": rec.OrderID, "status": rec.Status})
	if rec.Status == orders.StatusCompleted {
		entry.WithField("deckUrl", rec.DeckURL).Info("order completed")
		return
	}
	entry.WithField("message", rec.Message).Error("order failed")
	os.Exit(1)
}
