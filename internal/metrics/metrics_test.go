package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/sirupsen/logrus"
)

type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.OrderCompleted(context.Background(), "AMD", time.Second)
	p.OrderFailed(context.Background(), "AMD")
}

func TestOrderCompleted_PublishesCountAndDuration(t *testing.T) {
	mock := &mockCloudWatch{}
	p := NewPublisher(mock, "Deckflow", testLogger())

	p.OrderCompleted(context.Background(), "AMD", 90*time.Second)

	if len(mock.inputs) != 1 {
		t.Fatalf("expected one put call, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.Namespace != "Deckflow" {
		t.Fatalf("unexpected namespace %q", *in.Namespace)
	}
	if len(in.MetricData) != 2 {
		t.Fatalf("expected count + duration, got %d data points", len(in.MetricData))
	}
	if *in.MetricData[1].Value != 90000 {
		t.Fatalf("expected 90000 ms, got %v", *in.MetricData[1].Value)
	}
	if *in.MetricData[0].Dimensions[0].Value != "AMD" {
		t.Fatalf("ticker dimension missing: %+v", in.MetricData[0].Dimensions)
	}
}

func TestOrderFailed_Publishes(t *testing.T) {
	mock := &mockCloudWatch{}
	p := NewPublisher(mock, "Deckflow", testLogger())

	p.OrderFailed(context.Background(), "NVDA")

	if len(mock.inputs) != 1 || len(mock.inputs[0].MetricData) != 1 {
		t.Fatalf("expected one failure datum, got %+v", mock.inputs)
	}
	if *mock.inputs[0].MetricData[0].MetricName != "OrdersFailed" {
		t.Fatalf("unexpected metric %q", *mock.inputs[0].MetricData[0].MetricName)
	}
}
