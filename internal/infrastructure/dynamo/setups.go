package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rolegate/rolegate/internal/domain"
)

// SetupRepo manages the pending-setups table: in-flight wizard rows keyed by
// setup id plus legacy message-capture rows keyed by a bare capture ULID.
// Rows are short-lived; expires_at is the table TTL attribute.
type SetupRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSetupRepo(client *dynamodb.Client, tableName string) *SetupRepo {
	return &SetupRepo{client: client, tableName: tableName}
}

func (r *SetupRepo) Put(ctx context.Context, p *domain.PendingSetup) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal pending setup: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SetupRepo) Get(ctx context.Context, setupID string) (*domain.PendingSetup, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("setup_id", setupID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("pending setup not found: %w", domain.ErrNotFound)
	}
	var p domain.PendingSetup
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SetupRepo) Update(ctx context.Context, setupID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("setup_id", setupID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// Delete removes a pending setup. Delete-absent succeeds; approval and
// cancellation can both race the TTL reaper without caring who won.
func (r *SetupRepo) Delete(ctx context.Context, setupID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("setup_id", setupID),
	})
	return err
}
