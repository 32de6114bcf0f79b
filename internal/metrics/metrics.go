// Package metrics publishes order-outcome metrics to CloudWatch. A nil
// Publisher is valid and does nothing, so callers never branch on whether
// metrics are enabled.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"

	"github.com/briefingdeck/deckflow/internal/awsx"
)

type Publisher struct {
	client    awsx.CloudWatchAPI
	namespace string
	log       *logrus.Entry
}

func NewPublisher(client awsx.CloudWatchAPI, namespace string, log *logrus.Logger) *Publisher {
	return &Publisher{
		client:    client,
		namespace: namespace,
		log:       log.WithField("component", "metrics"),
	}
}

// OrderCompleted records a successful order and its end-to-end duration.
func (p *Publisher) OrderCompleted(ctx context.Context, ticker string, elapsed time.Duration) {
	if p == nil || p.client == nil {
		return
	}
	p.put(ctx, ticker,
		datum("OrdersCompleted", 1, cwtypes.StandardUnitCount, ticker),
		datum("OrderDurationMs", float64(elapsed.Milliseconds()), cwtypes.StandardUnitMilliseconds, ticker),
	)
}

// OrderFailed records a failed order.
func (p *Publisher) OrderFailed(ctx context.Context, ticker string) {
	if p == nil || p.client == nil {
		return
	}
	p.put(ctx, ticker, datum("OrdersFailed", 1, cwtypes.StandardUnitCount, ticker))
}

func (p *Publisher) put(ctx context.Context, ticker string, data ...cwtypes.MetricDatum) {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &p.namespace,
		MetricData: data,
	})
	if err != nil {
		// metrics are best effort; never fail an order over them
		p.log.WithError(err).WithField("ticker", ticker).Warn("put metric data failed")
	}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, ticker string) cwtypes.MetricDatum {
	dimName := "Ticker"
	return cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &value,
		Unit:       unit,
		Dimensions: []cwtypes.Dimension{
			{Name: &dimName, Value: &ticker},
		},
	}
}
