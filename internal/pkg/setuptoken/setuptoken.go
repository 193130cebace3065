package setuptoken

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// A setup token binds every wizard transition after the first to the
// (admin, guild) pair that started it. The grammar is strict on purpose:
// component custom ids come back from the client, so anything that does not
// parse exactly is treated as hostile and aborts the transition.
//
//	setup:<admin_id>#<guild_id>   canonical wizard token
//	<26-char ULID>                legacy message-capture id
const prefix = "setup:"

var ErrMalformed = errors.New("malformed setup token")

// New builds the canonical wizard token for an (admin, guild) pair.
func New(adminUserID, guildID string) string {
	return prefix + adminUserID + "#" + guildID
}

// Parse splits a canonical wizard token back into its ids. Both segments
// must be numeric platform snowflakes.
func Parse(token string) (adminUserID, guildID string, err error) {
	rest, ok := strings.CutPrefix(token, prefix)
	if !ok {
		return "", "", fmt.Errorf("missing prefix: %w", ErrMalformed)
	}
	adminUserID, guildID, ok = strings.Cut(rest, "#")
	if !ok || !IsSnowflake(adminUserID) || !IsSnowflake(guildID) {
		return "", "", fmt.Errorf("bad id segments: %w", ErrMalformed)
	}
	return adminUserID, guildID, nil
}

// IsSnowflake reports whether s looks like a platform snowflake id:
// 17 to 20 ASCII digits.
func IsSnowflake(s string) bool {
	if len(s) < 17 || len(s) > 20 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsCaptureID reports whether s is a canonical 26-character ULID, the key
// format of legacy message-capture rows.
func IsCaptureID(s string) bool {
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
