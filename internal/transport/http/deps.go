package http

import (
	"context"
	"crypto/ed25519"

	"github.com/rolegate/rolegate/internal/application/setup"
	"github.com/rolegate/rolegate/internal/application/verification"
	"github.com/rolegate/rolegate/internal/domain"
)

// GuildConfigStore is the shared durable settings store: written only by a
// completed wizard approval, read by both state machines.
type GuildConfigStore interface {
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	Put(ctx context.Context, g *domain.GuildConfig) error
}

// PlatformClient is the narrow REST surface the router requires from the
// host platform.
type PlatformClient interface {
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AssignRole(ctx context.Context, guildID, userID, roleID string) error
	FetchMessageText(ctx context.Context, channelID, messageID string) (string, error)
	PostMessage(ctx context.Context, channelID, text string, components interface{}) error
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Sessions verification.SessionStore
	Records  verification.RecordStore
	Setups   setup.SetupStore
	Configs  GuildConfigStore
	Mailer   verification.Mailer
	Platform PlatformClient

	// WebhookPublicKey verifies inbound interaction signatures.
	WebhookPublicKey ed25519.PublicKey
}
