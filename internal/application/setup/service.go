package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rolegate/rolegate/internal/domain"
	"github.com/rolegate/rolegate/internal/pkg/id"
	"github.com/rolegate/rolegate/internal/pkg/setuptoken"
)

// SetupStore is the minimal interface the wizard requires from the
// pending-setups table.
type SetupStore interface {
	Put(ctx context.Context, p *domain.PendingSetup) error
	Get(ctx context.Context, setupID string) (*domain.PendingSetup, error)
	Update(ctx context.Context, setupID string, updates map[string]interface{}) error
	Delete(ctx context.Context, setupID string) error
}

// ConfigStore reads and writes durable per-guild settings.
type ConfigStore interface {
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	Put(ctx context.Context, g *domain.GuildConfig) error
}

// MessageFetcher retrieves the text content of a platform message.
type MessageFetcher interface {
	FetchMessageText(ctx context.Context, channelID, messageID string) (string, error)
}

// MessagePoster posts a message (optionally with components) to a channel.
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, text string, components interface{}) error
}

// ApproveResult reports a completed approval. PostWarning is set when the
// configuration was saved but the announcement post failed; the admin never
// has to redo configuration over a transient send failure.
type ApproveResult struct {
	Config      *domain.GuildConfig
	PostWarning bool
}

type Service interface {
	Begin(ctx context.Context, adminUserID, guildID string) (setupID string, err error)
	SetRole(ctx context.Context, setupID, roleID string) error
	SetChannel(ctx context.Context, setupID, channelID string) error
	Continue(ctx context.Context, setupID string) (domainsRequired bool, err error)
	CollectDomains(ctx context.Context, setupID, raw string) ([]string, error)
	CollectMessageFromLink(ctx context.Context, setupID, link string) error
	SkipMessage(ctx context.Context, setupID string) error
	Preview(ctx context.Context, setupID string) (*domain.PendingSetup, error)
	Approve(ctx context.Context, setupID string) (*ApproveResult, error)
	BeginMessageCapture(ctx context.Context, adminUserID, guildID string) (captureID string, err error)
	CompleteMessageCapture(ctx context.Context, captureID, text string) error
}

type Deps struct {
	Setups  SetupStore
	Configs ConfigStore
	Fetcher MessageFetcher
	Poster  MessagePoster

	SetupTTL   time.Duration
	CaptureTTL time.Duration
	Now        func() time.Time // defaults to time.Now
}

type service struct {
	setups     SetupStore
	configs    ConfigStore
	fetcher    MessageFetcher
	poster     MessagePoster
	setupTTL   time.Duration
	captureTTL time.Duration
	now        func() time.Time
}

func NewService(deps Deps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		setups:     deps.Setups,
		configs:    deps.Configs,
		fetcher:    deps.Fetcher,
		poster:     deps.Poster,
		setupTTL:   deps.SetupTTL,
		captureTTL: deps.CaptureTTL,
		now:        deps.Now,
	}
}

// Begin opens a wizard for (admin, guild) and returns its setup id. Any
// previous in-flight wizard for the same pair is superseded by the
// overwrite. Selections are persisted under the setup id rather than
// round-tripped through display text, so a crafted component id cannot
// smuggle state into a later step.
func (s *service) Begin(ctx context.Context, adminUserID, guildID string) (string, error) {
	setupID := setuptoken.New(adminUserID, guildID)
	p := &domain.PendingSetup{
		SetupID:     setupID,
		GuildID:     guildID,
		AdminUserID: adminUserID,
		ExpiresAt:   s.now().Add(s.setupTTL).Unix(),
	}
	if err := s.setups.Put(ctx, p); err != nil {
		return "", fmt.Errorf("open wizard: %w", err)
	}
	return setupID, nil
}

func (s *service) SetRole(ctx context.Context, setupID, roleID string) error {
	if !setuptoken.IsSnowflake(roleID) {
		return fmt.Errorf("bad role id: %w", domain.ErrBadRequest)
	}
	return s.updateLive(ctx, setupID, map[string]interface{}{"role_id": roleID})
}

func (s *service) SetChannel(ctx context.Context, setupID, channelID string) error {
	if !setuptoken.IsSnowflake(channelID) {
		return fmt.Errorf("bad channel id: %w", domain.ErrBadRequest)
	}
	return s.updateLive(ctx, setupID, map[string]interface{}{"channel_id": channelID})
}

// Continue moves from selection to domain entry. Missing picks fall back to
// the guild's existing configuration, which is what makes "update only the
// channel" work; if a field is still missing after the fallback the admin
// has to pick it. Domain entry is only mandatory for guilds with no prior
// domains.
func (s *service) Continue(ctx context.Context, setupID string) (bool, error) {
	p, err := s.getLive(ctx, setupID)
	if err != nil {
		return false, err
	}

	existing, cfgErr := s.configs.Get(ctx, p.GuildID)
	if cfgErr != nil && !errors.Is(cfgErr, domain.ErrNotFound) {
		return false, fmt.Errorf("load guild config: %w", cfgErr)
	}

	roleID, channelID := p.RoleID, p.ChannelID
	if existing != nil {
		if roleID == "" {
			roleID = existing.RoleID
		}
		if channelID == "" {
			channelID = existing.ChannelID
		}
	}
	if roleID == "" || channelID == "" {
		return false, fmt.Errorf("role and channel must both be selected: %w", domain.ErrBadRequest)
	}
	if err := s.setups.Update(ctx, setupID, map[string]interface{}{
		"role_id":    roleID,
		"channel_id": channelID,
	}); err != nil {
		return false, fmt.Errorf("save selection: %w", err)
	}

	domainsRequired := existing == nil || len(existing.AllowedDomains) == 0
	return domainsRequired, nil
}

// CollectDomains parses the comma-separated domain list from the modal. An
// empty submission keeps the guild's current domains when it has some and
// is rejected otherwise.
func (s *service) CollectDomains(ctx context.Context, setupID, raw string) ([]string, error) {
	p, err := s.getLive(ctx, setupID)
	if err != nil {
		return nil, err
	}

	domains := ParseDomains(raw)
	if len(domains) == 0 {
		existing, cfgErr := s.configs.Get(ctx, p.GuildID)
		if cfgErr != nil || len(existing.AllowedDomains) == 0 {
			return nil, fmt.Errorf("at least one domain is required: %w", domain.ErrBadRequest)
		}
		domains = existing.AllowedDomains
	}

	if err := s.setups.Update(ctx, setupID, map[string]interface{}{
		"allowed_domains": domains,
		"custom_message":  "",
	}); err != nil {
		return nil, fmt.Errorf("save domains: %w", err)
	}
	return domains, nil
}

// CollectMessageFromLink pulls the verification message text out of a
// platform message link. Only the platform's own host is accepted, the
// link must point into the wizard's guild, and the message must have text
// content; everything else aborts the step.
func (s *service) CollectMessageFromLink(ctx context.Context, setupID, link string) error {
	p, err := s.getLive(ctx, setupID)
	if err != nil {
		return err
	}

	ref, err := ParseMessageLink(link)
	if err != nil {
		return err
	}
	if ref.GuildID != p.GuildID {
		return fmt.Errorf("message link points outside this guild: %w", domain.ErrUnauthorized)
	}

	text, err := s.fetcher.FetchMessageText(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("linked message has no text content: %w", domain.ErrBadRequest)
	}

	return s.setups.Update(ctx, setupID, map[string]interface{}{"custom_message": text})
}

// SkipMessage reuses the guild's existing verification message.
func (s *service) SkipMessage(ctx context.Context, setupID string) error {
	p, err := s.getLive(ctx, setupID)
	if err != nil {
		return err
	}
	existing, cfgErr := s.configs.Get(ctx, p.GuildID)
	if cfgErr != nil || existing.CustomMessage == "" {
		return fmt.Errorf("no existing message to reuse: %w", domain.ErrBadRequest)
	}
	return s.setups.Update(ctx, setupID, map[string]interface{}{"custom_message": existing.CustomMessage})
}

func (s *service) Preview(ctx context.Context, setupID string) (*domain.PendingSetup, error) {
	return s.getLive(ctx, setupID)
}

// Approve consumes the pending setup: persist it as the guild's durable
// configuration, announce in the configured channel, delete the wizard row.
// Persisting and posting are deliberately decoupled — once the config is
// saved, a failed post is reported as a warning, never as a failed setup.
func (s *service) Approve(ctx context.Context, setupID string) (*ApproveResult, error) {
	p, err := s.getLive(ctx, setupID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cfg := &domain.GuildConfig{
		GuildID:           p.GuildID,
		RoleID:            p.RoleID,
		ChannelID:         p.ChannelID,
		AllowedDomains:    p.AllowedDomains,
		CustomMessage:     p.CustomMessage,
		CompletionMessage: p.CompletionMessage,
		SetupBy:           p.AdminUserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = domain.DefaultAllowedDomains
	}
	if cfg.CustomMessage == "" {
		cfg.CustomMessage = domain.DefaultVerifyMessage
	}
	if existing, err := s.configs.Get(ctx, p.GuildID); err == nil {
		cfg.CreatedAt = existing.CreatedAt
	}

	if err := s.configs.Put(ctx, cfg); err != nil {
		return nil, fmt.Errorf("persist guild config: %w", err)
	}

	result := &ApproveResult{Config: cfg}
	if err := s.poster.PostMessage(ctx, cfg.ChannelID, cfg.CustomMessage, VerifyButton()); err != nil {
		slog.Error("failed to post verification message", "guild_id", cfg.GuildID, "channel_id", cfg.ChannelID, "err", err)
		result.PostWarning = true
	}

	if err := s.setups.Delete(ctx, setupID); err != nil {
		slog.Warn("failed to delete consumed setup", "setup_id", setupID, "err", err)
	}
	return result, nil
}

// BeginMessageCapture opens the legacy capture flow: an opaque ULID keys a
// short-lived row waiting for a message from a listening channel.
func (s *service) BeginMessageCapture(ctx context.Context, adminUserID, guildID string) (string, error) {
	captureID := id.New()
	p := &domain.PendingSetup{
		SetupID:     captureID,
		GuildID:     guildID,
		AdminUserID: adminUserID,
		ExpiresAt:   s.now().Add(s.captureTTL).Unix(),
	}
	if err := s.setups.Put(ctx, p); err != nil {
		return "", fmt.Errorf("open capture: %w", err)
	}
	return captureID, nil
}

// CompleteMessageCapture stores captured message text against a capture id.
// The id must be a canonical ULID; anything else is treated as hostile.
// When the same admin has a canonical wizard open for the guild, the text
// converges onto it so the capture path feeds the normal preview step.
func (s *service) CompleteMessageCapture(ctx context.Context, captureID, text string) error {
	if !setuptoken.IsCaptureID(captureID) {
		return fmt.Errorf("bad capture id: %w", domain.ErrBadRequest)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("captured message has no text content: %w", domain.ErrBadRequest)
	}
	p, err := s.getLive(ctx, captureID)
	if err != nil {
		return err
	}
	if err := s.setups.Update(ctx, captureID, map[string]interface{}{"custom_message": text}); err != nil {
		return err
	}
	canonical := setuptoken.New(p.AdminUserID, p.GuildID)
	if _, err := s.getLive(ctx, canonical); err == nil {
		if err := s.setups.Update(ctx, canonical, map[string]interface{}{"custom_message": text}); err != nil {
			return fmt.Errorf("converge captured message: %w", err)
		}
	}
	return nil
}

// getLive loads a pending setup and re-checks its TTL against the wall
// clock; the store-side reaper is advisory only.
func (s *service) getLive(ctx context.Context, setupID string) (*domain.PendingSetup, error) {
	p, err := s.setups.Get(ctx, setupID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSetupExpired
		}
		return nil, fmt.Errorf("load pending setup: %w", err)
	}
	if s.now().Unix() > p.ExpiresAt {
		return nil, domain.ErrSetupExpired
	}
	return p, nil
}

func (s *service) updateLive(ctx context.Context, setupID string, updates map[string]interface{}) error {
	if _, err := s.getLive(ctx, setupID); err != nil {
		return err
	}
	return s.setups.Update(ctx, setupID, updates)
}

// ParseDomains splits a comma-separated domain list, trimming whitespace
// and dropping empty entries.
func ParseDomains(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if d := strings.ToLower(strings.TrimSpace(part)); d != "" {
			out = append(out, d)
		}
	}
	return out
}
