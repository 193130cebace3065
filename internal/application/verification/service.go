package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rolegate/rolegate/internal/domain"
	"github.com/rolegate/rolegate/internal/pkg/code"
	"github.com/rolegate/rolegate/internal/pkg/id"
	"github.com/rolegate/rolegate/internal/pkg/validate"
)

// SessionStore is the minimal interface the service requires from the
// verification-sessions table.
type SessionStore interface {
	Put(ctx context.Context, s *domain.VerificationSession) error
	Get(ctx context.Context, userID, guildID string) (*domain.VerificationSession, error)
	Delete(ctx context.Context, userID, guildID string) error
	IncrementAttempts(ctx context.Context, userID, guildID string) (int, error)
}

// RecordStore is the minimal interface the service requires from the
// durable verification-records table.
type RecordStore interface {
	Put(ctx context.Context, rec *domain.VerificationRecord) error
	GetLatestByUserGuild(ctx context.Context, userID, guildID string) (*domain.VerificationRecord, error)
	MarkVerified(ctx context.Context, verificationID string, verifiedAt time.Time) error
	IncrementAttempts(ctx context.Context, verificationID string) error
}

// ConfigStore reads per-guild settings.
type ConfigStore interface {
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)
}

// Mailer delivers verification codes.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

// RoleManager queries and mutates guild role membership.
type RoleManager interface {
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AssignRole(ctx context.Context, guildID, userID, roleID string) error
}

type StartRequest struct {
	UserID  string `validate:"required"`
	GuildID string `validate:"required"`
	Email   string `validate:"required,email"`
}

type SubmitRequest struct {
	UserID  string `validate:"required"`
	GuildID string `validate:"required"`
	Code    string `validate:"required"`
}

// SubmitResult reports the outcome of a code submission that was not a
// terminal error: either verified (possibly with a role-assignment warning)
// or a wrong code with attempts still remaining.
type SubmitResult struct {
	Verified     bool
	AttemptsLeft int
	// RoleWarning is set when verification succeeded but the role
	// assignment side effect failed. Verification is final either way; the
	// assignment is one-shot and not retried.
	RoleWarning bool
}

type Service interface {
	Start(ctx context.Context, req StartRequest) error
	SubmitCode(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	HasVerified(ctx context.Context, userID, guildID string) (bool, error)
}

type Deps struct {
	Sessions SessionStore
	Records  RecordStore
	Configs  ConfigStore
	Mailer   Mailer
	Roles    RoleManager

	SessionTTL  time.Duration
	MaxAttempts int
	Limiter     *RateLimiter
	Now         func() time.Time // defaults to time.Now
}

type service struct {
	sessions    SessionStore
	records     RecordStore
	configs     ConfigStore
	mailer      Mailer
	roles       RoleManager
	sessionTTL  time.Duration
	maxAttempts int
	limiter     *RateLimiter
	now         func() time.Time
}

func NewService(deps Deps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{
		sessions:    deps.Sessions,
		records:     deps.Records,
		configs:     deps.Configs,
		mailer:      deps.Mailer,
		roles:       deps.Roles,
		sessionTTL:  deps.SessionTTL,
		maxAttempts: deps.MaxAttempts,
		limiter:     deps.Limiter,
		now:         deps.Now,
	}
}

// Start begins a verification: guild must be configured, the user must not
// already hold the role, the rate limiter must allow, and the email domain
// must be allow-listed. On success a session and its paired record exist
// and the code is on its way; on any later failure the session is rolled
// back so the user is never stuck behind a ghost session.
func (s *service) Start(ctx context.Context, req StartRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	cfg, err := s.configs.Get(ctx, req.GuildID)
	if err != nil || !cfg.Configured() {
		return fmt.Errorf("verification is not set up for this guild: %w", domain.ErrNotConfigured)
	}

	if !DomainAllowed(req.Email, cfg.AllowedDomains) {
		return fmt.Errorf("email domain not in allow-list: %w", domain.ErrBadRequest)
	}

	hasRole, err := s.roles.HasRole(ctx, req.GuildID, req.UserID, cfg.RoleID)
	if err != nil {
		return fmt.Errorf("role membership check: %w", err)
	}
	if hasRole {
		return fmt.Errorf("user already holds the verified role: %w", domain.ErrConflict)
	}

	if allowed, retryAfter := s.limiter.Check(ctx, req.UserID, req.GuildID); !allowed {
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	c, err := code.Generate()
	if err != nil {
		return err
	}
	verificationID := id.New()
	now := s.now().UTC()

	sess := &domain.VerificationSession{
		UserID:         req.UserID,
		GuildID:        req.GuildID,
		State:          domain.SessionAwaitingCode,
		Email:          req.Email,
		Code:           c,
		VerificationID: verificationID,
		Attempts:       0,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.sessionTTL).Unix(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	rec := &domain.VerificationRecord{
		VerificationID: verificationID,
		UserID:         req.UserID,
		GuildID:        req.GuildID,
		UserGuild:      domain.UserGuildKey(req.UserID, req.GuildID),
		Email:          req.Email,
		Code:           c,
		Status:         domain.VerificationPending,
		CreatedAt:      now,
	}
	if err := s.records.Put(ctx, rec); err != nil {
		// Session creation is only complete once the paired record exists.
		s.rollbackSession(ctx, req.UserID, req.GuildID)
		return fmt.Errorf("create record: %w", err)
	}

	if err := s.mailer.SendCode(ctx, req.Email, c); err != nil {
		s.rollbackSession(ctx, req.UserID, req.GuildID)
		return fmt.Errorf("%v: %w", err, domain.ErrDelivery)
	}
	return nil
}

// SubmitCode drives the awaiting-code session to a terminal state. Expiry
// and exhaustion are checked against the stored timestamps and counter, not
// the store-side TTL. Resubmitting the same correct code twice cannot
// re-assign the role: the first success deletes the session and the second
// submission finds no pending verification.
func (s *service) SubmitCode(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	if !code.IsValid(req.Code) {
		return nil, fmt.Errorf("code must be exactly %d digits: %w", code.Length, domain.ErrBadRequest)
	}

	sess, err := s.sessions.Get(ctx, req.UserID, req.GuildID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if now.Unix() > sess.ExpiresAt {
		s.rollbackSession(ctx, req.UserID, req.GuildID)
		return nil, domain.ErrSessionExpired
	}
	if sess.Attempts >= s.maxAttempts {
		s.rollbackSession(ctx, req.UserID, req.GuildID)
		return nil, domain.ErrAttemptsExhausted
	}

	if req.Code != sess.Code {
		count, err := s.sessions.IncrementAttempts(ctx, req.UserID, req.GuildID)
		if err != nil {
			return nil, fmt.Errorf("count attempt: %w", err)
		}
		if err := s.records.IncrementAttempts(ctx, sess.VerificationID); err != nil {
			slog.Warn("failed to mirror attempt count on record", "verification_id", sess.VerificationID, "err", err)
		}
		if count >= s.maxAttempts {
			s.rollbackSession(ctx, req.UserID, req.GuildID)
			return nil, domain.ErrAttemptsExhausted
		}
		return &SubmitResult{AttemptsLeft: s.maxAttempts - count}, nil
	}

	if err := s.records.MarkVerified(ctx, sess.VerificationID, now); err != nil {
		// Session stays live; the user can resubmit the same code.
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	if err := s.sessions.Delete(ctx, req.UserID, req.GuildID); err != nil {
		slog.Warn("failed to delete session after verification", "user_id", req.UserID, "guild_id", req.GuildID, "err", err)
	}

	result := &SubmitResult{Verified: true}
	cfg, err := s.configs.Get(ctx, req.GuildID)
	if err != nil || !cfg.Configured() {
		result.RoleWarning = true
		return result, nil
	}
	if err := s.roles.AssignRole(ctx, req.GuildID, req.UserID, cfg.RoleID); err != nil {
		slog.Error("role assignment failed after verification", "user_id", req.UserID, "guild_id", req.GuildID, "err", err)
		result.RoleWarning = true
	}
	return result, nil
}

// HasVerified answers from the durable record, independent of session
// expiry.
func (s *service) HasVerified(ctx context.Context, userID, guildID string) (bool, error) {
	rec, err := s.records.GetLatestByUserGuild(ctx, userID, guildID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Status == domain.VerificationVerified, nil
}

// rollbackSession deletes a session as a compensating action. Delete is
// idempotent, so racing rollbacks are harmless.
func (s *service) rollbackSession(ctx context.Context, userID, guildID string) {
	if err := s.sessions.Delete(ctx, userID, guildID); err != nil {
		slog.Warn("session rollback failed", "user_id", userID, "guild_id", guildID, "err", err)
	}
}

// DomainAllowed reports whether the part of email after the last '@'
// matches one of the allowed domains, case-insensitively.
func DomainAllowed(email string, allowed []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	dom := strings.ToLower(email[at+1:])
	for _, a := range allowed {
		if dom == strings.ToLower(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
