package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rolegate/rolegate/internal/domain"
	"golang.org/x/time/rate"
)

// Client is a narrow REST wrapper over the platform API: role membership,
// role assignment, message fetch and message post. Nothing else of the API
// surface is exposed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	limiter    *rate.Limiter
}

// NewClient builds a REST client. The client-side limiter keeps us under
// the platform's global REST budget (50 req/s) regardless of how many
// interactions arrive concurrently.
func NewClient(baseURL, botToken string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		botToken:   botToken,
		limiter:    rate.NewLimiter(rate.Limit(45), 45),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("discord api %s %s: %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// HasRole reports whether the guild member currently holds roleID.
// An unknown member simply doesn't hold the role.
func (c *Client) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	var member struct {
		Roles []string `json:"roles"`
	}
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), nil, &member)
	if err != nil {
		if status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	for _, r := range member.Roles {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}

// AssignRole adds roleID to the guild member.
func (c *Client) AssignRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID), nil, nil)
	return err
}

// FetchMessageText returns the text content of a channel message, or
// domain.ErrNotFound when the message does not exist or is unreadable.
func (c *Client) FetchMessageText(ctx context.Context, channelID, messageID string) (string, error) {
	var msg struct {
		Content string `json:"content"`
	}
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, &msg)
	if err != nil {
		if status == http.StatusNotFound || status == http.StatusForbidden {
			return "", fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return "", err
	}
	return msg.Content, nil
}

// PostMessage posts text (plus optional interactive components) to a channel.
func (c *Client) PostMessage(ctx context.Context, channelID, text string, components interface{}) error {
	body := map[string]interface{}{"content": text}
	if components != nil {
		body["components"] = components
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), body, nil)
	return err
}
