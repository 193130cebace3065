package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rolegate/rolegate/internal/domain"
)

// SessionRepo provides typed DynamoDB operations for the verification
// sessions table. PK: user_id, SK: guild_id. Global rate-limit markers live
// in the same table under the reserved guild_id domain.GlobalCooldownGuild.
//
// Table-side TTL on expires_at is advisory cleanup only; callers re-check
// expiry against the item's own timestamps.
type SessionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSessionRepo(client *dynamodb.Client, tableName string) *SessionRepo {
	return &SessionRepo{client: client, tableName: tableName}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.VerificationSession) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SessionRepo) Get(ctx context.Context, userID, guildID string) (*domain.VerificationSession, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "guild_id", guildID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	var s domain.VerificationSession
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes a session. Deleting an absent item succeeds, which keeps
// compensating rollbacks and double-submitted cleanups simple.
func (r *SessionRepo) Delete(ctx context.Context, userID, guildID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "guild_id", guildID),
	})
	return err
}

// IncrementAttempts atomically adds one to the attempts counter and returns
// the post-increment value. The ADD is what keeps the counter correct when
// a user double-submits the same code concurrently.
func (r *SessionRepo) IncrementAttempts(ctx context.Context, userID, guildID string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              compositeKey("user_id", userID, "guild_id", guildID),
		UpdateExpression: aws.String("ADD #a :one"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ReturnValues:        types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return 0, fmt.Errorf("session not found: %w", domain.ErrNotFound)
		}
		return 0, err
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attempts attribute missing from update result")
	}
	count, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attempts: %w", err)
	}
	return count, nil
}
