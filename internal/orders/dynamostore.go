package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/briefingdeck/deckflow/internal/awsx"
)

// DynamoStore is a durable Store over a DynamoDB table keyed by order_id.
// It satisfies the same contract as MemoryStore and can replace it without
// touching callers.
type DynamoStore struct {
	client    awsx.DynamoDBAPI
	tableName string
}

func NewDynamoStore(client awsx.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoStore) Set(ctx context.Context, orderID string, rec *Record) error {
	if orderID == "" || rec == nil {
		return nil
	}
	cp := rec.Clone()
	cp.OrderID = orderID

	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Record, error) {
	if orderID == "" {
		return nil, nil
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &rec, nil
}

func (s *DynamoStore) Has(ctx context.Context, orderID string) (bool, error) {
	rec, err := s.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Clear scans and deletes every item. Test/reset use only; it is not an
// efficient operation and is never called on a request path.
func (s *DynamoStore) Clear(ctx context.Context) error {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:            &s.tableName,
		ProjectionExpression: awsString("order_id"),
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for _, item := range out.Items {
		id, ok := item["order_id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: id.Value},
			},
		})
		if err != nil {
			return fmt.Errorf("delete item %s: %w", id.Value, err)
		}
	}
	return nil
}

// CreateIfAbsent claims an order id with a conditional put. Returns
// (false, nil) when the id is already taken, which is how duplicate
// submissions are detected without a read-modify-write race.
func (s *DynamoStore) CreateIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.OrderID == "" {
		return false, nil
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

func awsString(s string) *string { return &s }
