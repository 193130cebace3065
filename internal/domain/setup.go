package domain

import "time"

// Defaults applied when a guild has never been configured.
var DefaultAllowedDomains = []string{"auburn.edu", "auburn.io"}

const DefaultVerifyMessage = "Click the button below to verify your student email and receive your role."

// PendingSetup is the in-flight wizard state for one (admin, guild) pair,
// keyed by an opaque setup id. It is overwritten at each wizard step and
// consumed (read + deleted) at approval. A short TTL garbage-collects
// abandoned wizards.
//
// The same table also holds legacy message-capture rows keyed by a bare
// capture ULID; those carry a 2 minute TTL instead of 5.
type PendingSetup struct {
	SetupID           string   `dynamodbav:"setup_id"`
	GuildID           string   `dynamodbav:"guild_id"`
	AdminUserID       string   `dynamodbav:"admin_user_id"`
	RoleID            string   `dynamodbav:"role_id"`
	ChannelID         string   `dynamodbav:"channel_id"`
	AllowedDomains    []string `dynamodbav:"allowed_domains"`
	CustomMessage     string   `dynamodbav:"custom_message"`
	CompletionMessage string   `dynamodbav:"completion_message"`
	ExpiresAt         int64    `dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// GuildConfig is the durable per-guild settings row, written only by a
// completed wizard approval and read by both state machines.
type GuildConfig struct {
	GuildID           string    `dynamodbav:"guild_id"`
	RoleID            string    `dynamodbav:"role_id"`
	ChannelID         string    `dynamodbav:"channel_id"`
	AllowedDomains    []string  `dynamodbav:"allowed_domains"`
	CustomMessage     string    `dynamodbav:"custom_message"`
	CompletionMessage string    `dynamodbav:"completion_message"`
	SetupBy           string    `dynamodbav:"setup_by"`
	CreatedAt         time.Time `dynamodbav:"created_at"`
	UpdatedAt         time.Time `dynamodbav:"updated_at"`
}

// Configured reports whether verification can run against this guild.
// Both the role to grant and the channel to announce in must be present.
func (g *GuildConfig) Configured() bool {
	return g != nil && g.RoleID != "" && g.ChannelID != ""
}
