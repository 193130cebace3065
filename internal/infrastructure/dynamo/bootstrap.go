package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rolegate/rolegate/internal/config"
)

// Bootstrap creates all DynamoDB tables and GSIs if they don't already exist
// and enables TTL on the ephemeral ones. Safe to call on every startup —
// skips tables that already exist.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Sessions),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("guild_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("guild_id"), KeyType: types.KeyTypeRange},
		},
	})
	enableTTL(ctx, client, tables.Sessions)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Records),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("verification_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_guild"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("verification_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi("user_guild-index", "user_guild", "verification_id"),
		},
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.PendingSetups),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("setup_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("setup_id"), KeyType: types.KeyTypeHash},
		},
	})
	enableTTL(ctx, client, tables.PendingSetups)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.GuildConfigs),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("guild_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("guild_id"), KeyType: types.KeyTypeHash},
		},
	})
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			return
		}
		slog.Error("failed to create table", "table", aws.ToString(input.TableName), "err", err)
		return
	}
	slog.Info("created table", "table", aws.ToString(input.TableName))
}

func enableTTL(ctx context.Context, client *dynamodb.Client, table string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("expires_at"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		// Already-enabled comes back as a validation error; either way the
		// store-side reaper is advisory, so log and continue.
		slog.Debug("ttl not updated", "table", table, "err", err)
	}
}

// gsi builds a GlobalSecondaryIndex with string hash (and optional range) keys.
func gsi(name, hashKey, rangeKey string) types.GlobalSecondaryIndex {
	schema := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if rangeKey != "" {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName: aws.String(name),
		KeySchema: schema,
		Projection: &types.Projection{
			ProjectionType: types.ProjectionTypeAll,
		},
	}
}
