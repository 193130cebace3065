package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rolegate/rolegate/internal/application/setup"
	"github.com/rolegate/rolegate/internal/application/verification"
	"github.com/rolegate/rolegate/internal/domain"
	"github.com/rolegate/rolegate/internal/pkg/setuptoken"
)

// permAdministrator is the administrator bit in the member permission set.
const permAdministrator = 1 << 3

const (
	msgGenericFailure = "Something went wrong on our side. Please try again in a moment."
	msgNotAllowed     = "You are not allowed to do that."
	msgRestartSetup   = "That setup session is no longer valid. Run /setup to start over."
)

// InteractionHandler routes inbound webhook interactions to the two state
// machines.
type InteractionHandler struct {
	verify verification.Service
	wizard setup.Service
}

func NewInteractionHandler(verify verification.Service, wizard setup.Service) *InteractionHandler {
	return &InteractionHandler{verify: verify, wizard: wizard}
}

// Handle is the single webhook endpoint. The signature middleware has
// already authenticated the request; here the payload is classified and
// dispatched. The switch is exhaustive over the closed interaction kinds.
func (h *InteractionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var inter Interaction
	if err := json.NewDecoder(r.Body).Decode(&inter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	switch inter.Kind() {
	case KindPing:
		respond(w, pong())
	case KindApplicationCommand:
		h.command(w, r, &inter)
	case KindMessageComponent:
		h.component(w, r, &inter)
	case KindModalSubmit:
		h.modalSubmit(w, r, &inter)
	case KindUnrecognized:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unrecognized interaction type %d", inter.Type))
	}
}

func (h *InteractionHandler) command(w http.ResponseWriter, r *http.Request, inter *Interaction) {
	switch inter.Data.Name {
	case "verify":
		if !inGuild(inter) {
			respond(w, ephemeral("Verification only works inside a server."))
			return
		}
		respond(w, emailModal())

	case "verify-status":
		if !inGuild(inter) {
			respond(w, ephemeral("Verification only works inside a server."))
			return
		}
		verified, err := h.verify.HasVerified(r.Context(), inter.InvokerID(), inter.GuildID)
		if err != nil {
			slog.Error("verify-status lookup failed", "err", err)
			respond(w, ephemeral(msgGenericFailure))
			return
		}
		if verified {
			respond(w, ephemeral("You are verified in this server."))
		} else {
			respond(w, ephemeral("You have not verified in this server yet. Use /verify to start."))
		}

	case "setup":
		if err := requireAdmin(inter); err != nil {
			respond(w, ephemeral(msgNotAllowed))
			return
		}
		setupID, err := h.wizard.Begin(r.Context(), inter.InvokerID(), inter.GuildID)
		if err != nil {
			slog.Error("failed to open setup wizard", "guild_id", inter.GuildID, "err", err)
			respond(w, ephemeral(msgGenericFailure))
			return
		}
		respond(w, ephemeralWithComponents(
			"Configure verification: pick the role to grant and the channel for the verification message.",
			selectionComponents(setupID),
		))

	case "setup-cancel":
		if err := requireAdmin(inter); err != nil {
			respond(w, ephemeral(msgNotAllowed))
			return
		}
		// Nothing was persisted beyond the pending setup, which ages out on
		// its own; cancelling is purely a UI acknowledgement.
		respond(w, ephemeral("Setup cancelled. Nothing was changed."))

	default:
		respond(w, ephemeral("Unknown command."))
	}
}

func (h *InteractionHandler) component(w http.ResponseWriter, r *http.Request, inter *Interaction) {
	customID := inter.Data.CustomID
	switch {
	case customID == "verify:start":
		if !inGuild(inter) {
			respond(w, ephemeral("Verification only works inside a server."))
			return
		}
		respond(w, emailModal())

	case customID == "code:submit":
		respond(w, modal("verify:code", "Enter your verification code", []interface{}{
			textInput("code", "Verification code", "6-digit code from your email", true),
		}))

	case strings.HasPrefix(customID, "setup:"):
		h.setupComponent(w, r, inter, customID)

	default:
		respond(w, ephemeral(msgGenericFailure))
	}
}

func (h *InteractionHandler) setupComponent(w http.ResponseWriter, r *http.Request, inter *Interaction, customID string) {
	step, token, ok := splitSetupID(customID)
	if !ok {
		respond(w, ephemeral(msgRestartSetup))
		return
	}
	setupID, err := h.setupGuard(inter, token)
	if err != nil {
		respond(w, ephemeral(authMessage(err)))
		return
	}

	switch step {
	case "role":
		if len(inter.Data.Values) == 0 {
			respond(w, ephemeral(msgRestartSetup))
			return
		}
		if err := h.wizard.SetRole(r.Context(), setupID, inter.Data.Values[0]); err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		respond(w, updateMessage("Role selected. Pick a channel, or continue.", selectionComponents(setupID)))

	case "channel":
		if len(inter.Data.Values) == 0 {
			respond(w, ephemeral(msgRestartSetup))
			return
		}
		if err := h.wizard.SetChannel(r.Context(), setupID, inter.Data.Values[0]); err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		respond(w, updateMessage("Channel selected. Pick a role, or continue.", selectionComponents(setupID)))

	case "continue":
		required, err := h.wizard.Continue(r.Context(), setupID)
		if err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		placeholder := "auburn.edu, auburn.io"
		if !required {
			placeholder = "leave blank to keep current domains"
		}
		respond(w, modal("setup:domains:"+setupID, "Allowed email domains", []interface{}{
			textInput("domains", "Comma-separated domains", placeholder, required),
		}))

	case "message":
		respond(w, modal("setup:msglink:"+setupID, "Verification message", []interface{}{
			textInput("link", "Message link", "https://discord.com/channels/…", true),
		}))

	case "paste":
		captureID, err := h.wizard.BeginMessageCapture(r.Context(), inter.InvokerID(), inter.GuildID)
		if err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		respond(w, modal("setup:capture:"+captureID, "Verification message", []interface{}{
			textInput("text", "Message text", "Paste the verification message", true),
		}))

	case "skipmsg":
		if err := h.wizard.SkipMessage(r.Context(), setupID); err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		h.preview(w, r, setupID)

	case "approve":
		result, err := h.wizard.Approve(r.Context(), setupID)
		if err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		msg := "Verification is configured and the message has been posted."
		if result.PostWarning {
			msg = "Configuration saved, but posting the verification message failed. Post it manually or rerun /setup later."
		}
		respond(w, updateMessage(msg, nil))

	case "cancel":
		respond(w, updateMessage("Setup cancelled. Nothing was changed.", nil))

	default:
		respond(w, ephemeral(msgRestartSetup))
	}
}

func (h *InteractionHandler) modalSubmit(w http.ResponseWriter, r *http.Request, inter *Interaction) {
	customID := inter.Data.CustomID
	switch {
	case customID == "verify:email":
		if !inGuild(inter) {
			respond(w, ephemeral("Verification only works inside a server."))
			return
		}
		err := h.verify.Start(r.Context(), verification.StartRequest{
			UserID:  inter.InvokerID(),
			GuildID: inter.GuildID,
			Email:   strings.TrimSpace(inter.Data.FieldValue("email")),
		})
		if err != nil {
			respond(w, ephemeral(verifyErrorMessage(err)))
			return
		}
		respond(w, ephemeralWithComponents(
			"Check your inbox — a 6-digit code is on its way. It expires in 10 minutes.",
			[]interface{}{actionRow(button("code:submit", "Enter code", 1))},
		))

	case customID == "verify:code":
		if !inGuild(inter) {
			respond(w, ephemeral("Verification only works inside a server."))
			return
		}
		result, err := h.verify.SubmitCode(r.Context(), verification.SubmitRequest{
			UserID:  inter.InvokerID(),
			GuildID: inter.GuildID,
			Code:    strings.TrimSpace(inter.Data.FieldValue("code")),
		})
		if err != nil {
			respond(w, ephemeral(verifyErrorMessage(err)))
			return
		}
		switch {
		case result.Verified && result.RoleWarning:
			respond(w, ephemeral("You're verified, but assigning the role failed. Ask an admin to grant it manually."))
		case result.Verified:
			respond(w, ephemeral("You're verified. Welcome!"))
		default:
			respond(w, ephemeralWithComponents(
				fmt.Sprintf("That code is not right. %d attempt(s) left.", result.AttemptsLeft),
				[]interface{}{actionRow(button("code:submit", "Try again", 1))},
			))
		}

	case strings.HasPrefix(customID, "setup:domains:"):
		token := strings.TrimPrefix(customID, "setup:domains:")
		setupID, err := h.setupGuard(inter, token)
		if err != nil {
			respond(w, ephemeral(authMessage(err)))
			return
		}
		domains, err := h.wizard.CollectDomains(r.Context(), setupID, inter.Data.FieldValue("domains"))
		if err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		respond(w, ephemeralWithComponents(
			fmt.Sprintf("Allowed domains: %s. Now choose the verification message.", strings.Join(domains, ", ")),
			messageStepComponents(setupID),
		))

	case strings.HasPrefix(customID, "setup:capture:"):
		captureID := strings.TrimPrefix(customID, "setup:capture:")
		if err := requireAdmin(inter); err != nil {
			respond(w, ephemeral(msgNotAllowed))
			return
		}
		if err := h.wizard.CompleteMessageCapture(r.Context(), captureID, inter.Data.FieldValue("text")); err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		h.preview(w, r, setuptoken.New(inter.InvokerID(), inter.GuildID))

	case strings.HasPrefix(customID, "setup:msglink:"):
		token := strings.TrimPrefix(customID, "setup:msglink:")
		setupID, err := h.setupGuard(inter, token)
		if err != nil {
			respond(w, ephemeral(authMessage(err)))
			return
		}
		if err := h.wizard.CollectMessageFromLink(r.Context(), setupID, inter.Data.FieldValue("link")); err != nil {
			respond(w, ephemeral(wizardErrorMessage(err)))
			return
		}
		h.preview(w, r, setupID)

	default:
		respond(w, ephemeral(msgGenericFailure))
	}
}

// preview renders the pending setup with approve/cancel controls.
func (h *InteractionHandler) preview(w http.ResponseWriter, r *http.Request, setupID string) {
	p, err := h.wizard.Preview(r.Context(), setupID)
	if err != nil {
		respond(w, ephemeral(wizardErrorMessage(err)))
		return
	}
	summary := fmt.Sprintf(
		"Review before saving:\nRole: <@&%s>\nChannel: <#%s>\nDomains: %s\nMessage: %s",
		p.RoleID, p.ChannelID, strings.Join(p.AllowedDomains, ", "), p.CustomMessage,
	)
	respond(w, updateMessage(summary, []interface{}{actionRow(
		button("setup:approve:"+setupID, "Approve", 3),
		button("setup:cancel:"+setupID, "Cancel", 4),
	)}))
}

// setupGuard authorizes a wizard transition: admin bit in a guild context,
// strictly parseable token, and the token must bind to the invoking admin
// and the current guild.
func (h *InteractionHandler) setupGuard(inter *Interaction, token string) (string, error) {
	if err := requireAdmin(inter); err != nil {
		return "", err
	}
	adminID, guildID, err := setuptoken.Parse(token)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, setuptoken.ErrMalformed)
	}
	if adminID != inter.InvokerID() || guildID != inter.GuildID {
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

// requireAdmin rejects any wizard entry outside a guild context or without
// the administrator bit. Failures are reported generically; the caller
// learns nothing about which check tripped.
func requireAdmin(inter *Interaction) error {
	if !inGuild(inter) {
		return domain.ErrUnauthorized
	}
	if inter.Member == nil || inter.Member.User == nil {
		return domain.ErrUnauthorized
	}
	perms, err := strconv.ParseUint(inter.Member.Permissions, 10, 64)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if perms&permAdministrator == 0 {
		return domain.ErrForbidden
	}
	return nil
}

func inGuild(inter *Interaction) bool {
	return inter.GuildID != "" && inter.GuildID != "@me"
}

// splitSetupID splits "setup:<step>:<token>" into step and token. The
// token itself contains colons, so only the first two separators count.
func splitSetupID(customID string) (step, token string, ok bool) {
	rest, ok := strings.CutPrefix(customID, "setup:")
	if !ok {
		return "", "", false
	}
	step, token, ok = strings.Cut(rest, ":")
	if !ok || step == "" || token == "" {
		return "", "", false
	}
	return step, token, true
}

func emailModal() *InteractionResponse {
	return modal("verify:email", "Verify your student email", []interface{}{
		textInput("email", "School email address", "you@auburn.edu", true),
	})
}

func selectionComponents(setupID string) []interface{} {
	return []interface{}{
		actionRow(selectMenu("setup:role:"+setupID, 6, "Role to grant")),
		actionRow(selectMenu("setup:channel:"+setupID, 8, "Channel for the verification message")),
		actionRow(
			button("setup:continue:"+setupID, "Continue", 1),
			button("setup:cancel:"+setupID, "Cancel", 4),
		),
	}
}

func messageStepComponents(setupID string) []interface{} {
	return []interface{}{actionRow(
		button("setup:message:"+setupID, "Use a message link", 1),
		button("setup:paste:"+setupID, "Paste message text", 2),
		button("setup:skipmsg:"+setupID, "Keep existing message", 2),
		button("setup:cancel:"+setupID, "Cancel", 4),
	)}
}

func authMessage(err error) string {
	if errors.Is(err, setuptoken.ErrMalformed) {
		return msgRestartSetup
	}
	return msgNotAllowed
}

func verifyErrorMessage(err error) string {
	var rl *verification.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return fmt.Sprintf("Please wait %d seconds before trying again.", int(rl.RetryAfter.Round(time.Second).Seconds()))
	case errors.Is(err, domain.ErrNotConfigured):
		return "Verification is not set up in this server yet. Ask an admin to run /setup."
	case errors.Is(err, domain.ErrConflict):
		return "You already have the verified role."
	case errors.Is(err, domain.ErrNoSession):
		return "No pending verification. Use /verify to start."
	case errors.Is(err, domain.ErrSessionExpired):
		return "Your code expired. Use /verify to request a new one."
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return "Too many wrong codes. Use /verify to start over."
	case errors.Is(err, domain.ErrDelivery):
		return "We couldn't send the email. Check the address and try again."
	case errors.Is(err, domain.ErrBadRequest):
		return "That doesn't look right: " + trimSentinel(err)
	default:
		slog.Error("verification failed", "err", err)
		return msgGenericFailure
	}
}

func wizardErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSetupExpired):
		return msgRestartSetup
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		return msgNotAllowed
	case errors.Is(err, domain.ErrBadRequest):
		return "That doesn't look right: " + trimSentinel(err)
	default:
		slog.Error("setup wizard step failed", "err", err)
		return msgGenericFailure
	}
}

// trimSentinel drops the trailing ": <sentinel>" wrap so users see the
// actionable part only.
func trimSentinel(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ":"); i > 0 {
		return msg[:i] + "."
	}
	return msg
}

func respond(w http.ResponseWriter, resp *InteractionResponse) {
	writeJSON(w, http.StatusOK, resp)
}
