package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a minimal in-memory DynamoDB supporting the calls
// DynamoStore issues: PutItem (with attribute_not_exists condition),
// GetItem, DeleteItem and Scan. Items live in a map keyed by order_id.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) pk(item map[string]types.AttributeValue) (string, error) {
	v, ok := item["order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("no order_id key")
	}
	return v.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, exists := m.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(params.Key)
	if err != nil {
		return nil, err
	}
	delete(m.items, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &dyn.ScanOutput{}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func TestDynamoStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStore(newMockDynamo(), "orders")

	in := &Record{
		Ticker:    "AMD",
		Status:    StatusCompleted,
		OK:        true,
		DeckURL:   "https://example.com/d.pdf",
		StartedAt: 1000,
		Source:    "poll",
	}
	if err := store.Set(ctx, "AMD_1000_abcd", in); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "AMD_1000_abcd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.OrderID != "AMD_1000_abcd" || got.Ticker != "AMD" || got.DeckURL != in.DeckURL {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	ok, err := store.Has(ctx, "AMD_1000_abcd")
	if err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}
}

func TestDynamoStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStore(newMockDynamo(), "orders")

	got, err := store.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing order, got %+v", got)
	}
}

func TestDynamoStore_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStore(newMockDynamo(), "orders")

	rec := &Record{OrderID: "NVDA_1", Status: StatusProcessing}
	created, err := store.CreateIfAbsent(ctx, rec)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	created, err = store.CreateIfAbsent(ctx, &Record{OrderID: "NVDA_1", Status: StatusProcessing})
	if err != nil {
		t.Fatalf("duplicate create must not error, got %v", err)
	}
	if created {
		t.Fatal("duplicate create must report created=false")
	}
}

func TestDynamoStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoStore(newMockDynamo(), "orders")

	_ = store.Set(ctx, "A_1", &Record{Status: StatusProcessing})
	_ = store.Set(ctx, "B_1", &Record{Status: StatusFailed})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	ok, _ := store.Has(ctx, "A_1")
	if ok {
		t.Fatal("order A_1 survived Clear")
	}
}
