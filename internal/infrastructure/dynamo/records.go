package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rolegate/rolegate/internal/domain"
)

// RecordRepo manages the durable verification-records table.
// PK: verification_id. GSI user_guild-index answers "has this (user, guild)
// ever verified" independent of session expiry.
type RecordRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewRecordRepo(client *dynamodb.Client, tableName string) *RecordRepo {
	return &RecordRepo{client: client, tableName: tableName}
}

func (r *RecordRepo) Put(ctx context.Context, rec *domain.VerificationRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *RecordRepo) Get(ctx context.Context, verificationID string) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("verification_id", verificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("record not found: %w", domain.ErrNotFound)
	}
	var rec domain.VerificationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetLatestByUserGuild returns the newest record for a (user, guild) pair
// via the user_guild GSI. ULID verification ids sort by creation time, so
// descending key order yields the latest attempt first.
func (r *RecordRepo) GetLatestByUserGuild(ctx context.Context, userID, guildID string) (*domain.VerificationRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_guild-index"),
		KeyConditionExpression: aws.String("user_guild = :ug"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ug": &types.AttributeValueMemberS{Value: domain.UserGuildKey(userID, guildID)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("record not found: %w", domain.ErrNotFound)
	}
	var rec domain.VerificationRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkVerified flips a pending record to verified. The condition keeps the
// row append-only: a record that already reached verified never mutates.
func (r *RecordRepo) MarkVerified(ctx context.Context, verificationID string, verifiedAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("verification_id", verificationID),
		UpdateExpression: aws.String("SET #s = :verified, #va = :at"),
		ExpressionAttributeNames: map[string]string{
			"#s":  fieldStatus,
			"#va": fieldVerifiedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":verified": &types.AttributeValueMemberS{Value: domain.VerificationVerified},
			":at":       &types.AttributeValueMemberS{Value: verifiedAt.UTC().Format(time.RFC3339)},
			":pending":  &types.AttributeValueMemberS{Value: domain.VerificationPending},
		},
		ConditionExpression: aws.String("#s = :pending"),
	})
	return err
}

// IncrementAttempts mirrors the session counter on the durable record so
// the audit row reflects how many tries the verification took.
func (r *RecordRepo) IncrementAttempts(ctx context.Context, verificationID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("verification_id", verificationID),
		UpdateExpression: aws.String("ADD #a :one"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	return err
}
