package domain

import "time"

// VerificationSession states.
const SessionAwaitingCode = "awaiting_code"

// VerificationRecord statuses.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// GlobalCooldownGuild is the reserved guild_id under which the per-user
// global rate-limit marker is stored in the sessions table.
const GlobalCooldownGuild = "_global"

// VerificationSession is the ephemeral per-(user, guild) row tracking an
// in-progress verification. PK: user_id, SK: guild_id.
// ExpiresAt doubles as the DynamoDB TTL attribute; it is advisory — every
// correctness check re-reads it against the wall clock.
type VerificationSession struct {
	UserID         string    `dynamodbav:"user_id"`
	GuildID        string    `dynamodbav:"guild_id"`
	State          string    `dynamodbav:"state"`
	Email          string    `dynamodbav:"email"`
	Code           string    `dynamodbav:"code"`
	VerificationID string    `dynamodbav:"verification_id"`
	Attempts       int       `dynamodbav:"attempts"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// VerificationRecord is the durable append-only audit row, one per
// verification id. It outlives the session and answers "has this
// (user, guild) ever verified" via the user_guild GSI.
// Once Status is "verified" the row never mutates again.
type VerificationRecord struct {
	VerificationID string     `dynamodbav:"verification_id"`
	UserID         string     `dynamodbav:"user_id"`
	GuildID        string     `dynamodbav:"guild_id"`
	UserGuild      string     `dynamodbav:"user_guild"` // "<user_id>#<guild_id>"
	Email          string     `dynamodbav:"email"`
	Code           string     `dynamodbav:"code"`
	Status         string     `dynamodbav:"status"`
	Attempts       int        `dynamodbav:"attempts"`
	CreatedAt      time.Time  `dynamodbav:"created_at"`
	VerifiedAt     *time.Time `dynamodbav:"verified_at,omitempty"`
}

// UserGuildKey builds the composite secondary-lookup attribute shared by
// records and session supersede checks.
func UserGuildKey(userID, guildID string) string {
	return userID + "#" + guildID
}
