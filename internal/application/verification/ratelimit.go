package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rolegate/rolegate/internal/domain"
)

// RateLimiter enforces the two-tier cooldown on verification starts using
// the sessions table itself: tier one is the live session for the exact
// (user, guild) pair, tier two is a per-user marker row stored under the
// reserved guild id, which blocks starts in every guild.
type RateLimiter struct {
	sessions SessionStore
	perGuild time.Duration
	global   time.Duration
	now      func() time.Time
}

func NewRateLimiter(sessions SessionStore, perGuild, global time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{sessions: sessions, perGuild: perGuild, global: global, now: now}
}

// Check reports whether a verification start is allowed and, when denied,
// how long the caller should wait. An allowed check refreshes the global
// marker. Store errors fail closed: denying a legitimate user for a minute
// beats silently waiving abuse protection.
func (r *RateLimiter) Check(ctx context.Context, userID, guildID string) (allowed bool, retryAfter time.Duration) {
	now := r.now()

	sess, err := r.sessions.Get(ctx, userID, guildID)
	switch {
	case err == nil:
		if elapsed := now.Sub(sess.CreatedAt); elapsed < r.perGuild {
			return false, r.perGuild - elapsed
		}
	case !errors.Is(err, domain.ErrNotFound):
		slog.Error("rate limit session lookup failed, denying", "user_id", userID, "err", err)
		return false, r.perGuild
	}

	marker, err := r.sessions.Get(ctx, userID, domain.GlobalCooldownGuild)
	switch {
	case err == nil:
		if elapsed := now.Sub(marker.CreatedAt); elapsed < r.global {
			return false, r.global - elapsed
		}
	case !errors.Is(err, domain.ErrNotFound):
		slog.Error("rate limit marker lookup failed, denying", "user_id", userID, "err", err)
		return false, r.perGuild
	}

	if err := r.sessions.Put(ctx, &domain.VerificationSession{
		UserID:    userID,
		GuildID:   domain.GlobalCooldownGuild,
		State:     "cooldown",
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(r.global).Unix(),
	}); err != nil {
		slog.Error("rate limit marker write failed, denying", "user_id", userID, "err", err)
		return false, r.perGuild
	}
	return true, 0
}

// RateLimitedError carries the wait the user was told to observe.
// errors.Is(err, domain.ErrRateLimited) matches it.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool { return target == domain.ErrRateLimited }
