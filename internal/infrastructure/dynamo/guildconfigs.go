package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rolegate/rolegate/internal/domain"
)

// GuildConfigRepo manages the durable per-guild settings table. PK: guild_id.
type GuildConfigRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewGuildConfigRepo(client *dynamodb.Client, tableName string) *GuildConfigRepo {
	return &GuildConfigRepo{client: client, tableName: tableName}
}

func (r *GuildConfigRepo) Put(ctx context.Context, g *domain.GuildConfig) error {
	item, err := attributevalue.MarshalMap(g)
	if err != nil {
		return fmt.Errorf("marshal guild config: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *GuildConfigRepo) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("guild_id", guildID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("guild config not found: %w", domain.ErrNotFound)
	}
	var g domain.GuildConfig
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GuildConfigRepo) Update(ctx context.Context, guildID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("guild_id", guildID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}
