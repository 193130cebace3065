package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SESFromAddress string

	// SSM parameter names for platform secrets.
	BotTokenParam      string
	WebhookPubKeyParam string

	DiscordAPIBaseURL string
	DiscordAppID      string

	PerGuildCooldown time.Duration
	GlobalCooldown   time.Duration
	SessionTTL       time.Duration
	SetupTTL         time.Duration
	CaptureTTL       time.Duration
	MaxAttempts      int

	AllowedOrigins []string // CORS allowed origins for the status surface
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Sessions      string
	Records       string
	PendingSetups string
	GuildConfigs  string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Sessions:      getEnv("DYNAMO_TABLE_SESSIONS", "verification_sessions"),
			Records:       getEnv("DYNAMO_TABLE_RECORDS", "verification_records"),
			PendingSetups: getEnv("DYNAMO_TABLE_PENDING_SETUPS", "pending_setups"),
			GuildConfigs:  getEnv("DYNAMO_TABLE_GUILD_CONFIGS", "guild_configs"),
		},

		SESFromAddress: getEnv("SES_FROM_ADDRESS", "verify@rolegate.io"),

		BotTokenParam:      getEnv("SSM_PARAM_BOT_TOKEN", "/rolegate/bot-token"),
		WebhookPubKeyParam: getEnv("SSM_PARAM_WEBHOOK_PUBLIC_KEY", "/rolegate/webhook-public-key"),

		DiscordAPIBaseURL: getEnv("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
		DiscordAppID:      getEnv("DISCORD_APP_ID", ""),

		PerGuildCooldown: getEnvSeconds("PER_GUILD_COOLDOWN_SECONDS", 60),
		GlobalCooldown:   getEnvSeconds("GLOBAL_COOLDOWN_SECONDS", 300),
		SessionTTL:       getEnvSeconds("SESSION_TTL_SECONDS", 600),
		SetupTTL:         getEnvSeconds("SETUP_TTL_SECONDS", 300),
		CaptureTTL:       getEnvSeconds("CAPTURE_TTL_SECONDS", 120),
		MaxAttempts:      getEnvInt("MAX_CODE_ATTEMPTS", 3),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
