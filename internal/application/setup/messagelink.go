package setup

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rolegate/rolegate/internal/domain"
	"github.com/rolegate/rolegate/internal/pkg/setuptoken"
)

// MessageRef is a parsed platform message link.
type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// ParseMessageLink validates a message link with a strict grammar:
// https://discord.com/channels/<guild>/<channel>/<message> with every
// segment a numeric snowflake. Any other host is refused outright — the
// fetch that follows must never be steerable at an arbitrary origin.
func ParseMessageLink(link string) (*MessageRef, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("unparseable message link: %w", domain.ErrBadRequest)
	}
	if u.Scheme != "https" || u.Host != "discord.com" {
		return nil, fmt.Errorf("message link must be a discord.com link: %w", domain.ErrBadRequest)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "channels" {
		return nil, fmt.Errorf("not a channel message link: %w", domain.ErrBadRequest)
	}
	ref := &MessageRef{GuildID: parts[1], ChannelID: parts[2], MessageID: parts[3]}
	if !setuptoken.IsSnowflake(ref.GuildID) || !setuptoken.IsSnowflake(ref.ChannelID) || !setuptoken.IsSnowflake(ref.MessageID) {
		return nil, fmt.Errorf("malformed message link ids: %w", domain.ErrBadRequest)
	}
	return ref, nil
}

// VerifyButton is the component payload attached to the posted verification
// message: a single button that opens the email modal.
func VerifyButton() interface{} {
	return []map[string]interface{}{
		{
			"type": 1, // action row
			"components": []map[string]interface{}{
				{
					"type":      2, // button
					"style":     1, // primary
					"label":     "Verify",
					"custom_id": "verify:start",
				},
			},
		},
	}
}
