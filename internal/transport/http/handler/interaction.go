package handler

// Wire model for the platform's interaction webhook. The raw payload uses
// integer type codes; they are mapped onto closed Go enums at the routing
// boundary so an unknown code is an explicit Unrecognized variant, never a
// silently coerced value.

// InteractionKind classifies an inbound interaction.
type InteractionKind int

const (
	KindUnrecognized InteractionKind = iota
	KindPing
	KindApplicationCommand
	KindMessageComponent
	KindModalSubmit
)

// Raw interaction type codes as sent by the platform.
const (
	rawPing               = 1
	rawApplicationCommand = 2
	rawMessageComponent   = 3
	rawModalSubmit        = 5
)

// KindOf maps a raw type code to its variant. Anything unmapped is
// KindUnrecognized.
func KindOf(raw int) InteractionKind {
	switch raw {
	case rawPing:
		return KindPing
	case rawApplicationCommand:
		return KindApplicationCommand
	case rawMessageComponent:
		return KindMessageComponent
	case rawModalSubmit:
		return KindModalSubmit
	default:
		return KindUnrecognized
	}
}

// Response type codes.
const (
	responsePong           = 1
	responseChannelMessage = 4
	responseUpdateMessage  = 7
	responseModal          = 9
)

// flagEphemeral marks a response visible only to the invoking user.
const flagEphemeral = 1 << 6

// Interaction is the decoded webhook payload, narrowed to the fields the
// two state machines consume.
type Interaction struct {
	ID      string          `json:"id"`
	Type    int             `json:"type"`
	Token   string          `json:"token"`
	GuildID string          `json:"guild_id"`
	Member  *Member         `json:"member"`
	User    *User           `json:"user"`
	Data    InteractionData `json:"data"`
}

// Kind returns the closed classification of the raw type code.
func (i *Interaction) Kind() InteractionKind { return KindOf(i.Type) }

// InvokerID returns the acting user's id regardless of guild/DM context.
func (i *Interaction) InvokerID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

type Member struct {
	User *User `json:"user"`
	// Permissions is the member's permission bit set, serialized by the
	// platform as a decimal string.
	Permissions string `json:"permissions"`
}

type User struct {
	ID string `json:"id"`
}

type InteractionData struct {
	Name       string          `json:"name"`      // command invocations
	CustomID   string          `json:"custom_id"` // components and modals
	Values     []string        `json:"values"`    // select menus
	Options    []CommandOption `json:"options"`
	Components []ActionRow     `json:"components"` // modal submissions
}

type CommandOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ActionRow struct {
	Type       int              `json:"type"`
	Components []ComponentValue `json:"components"`
}

type ComponentValue struct {
	Type     int    `json:"type"`
	CustomID string `json:"custom_id"`
	Value    string `json:"value"`
}

// FieldValue returns the submitted value of the modal input with the given
// custom id, or "" when absent.
func (d *InteractionData) FieldValue(customID string) string {
	for _, row := range d.Components {
		for _, c := range row.Components {
			if c.CustomID == customID {
				return c.Value
			}
		}
	}
	return ""
}

// InteractionResponse is the webhook reply envelope.
type InteractionResponse struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

type ResponseData struct {
	Content    string      `json:"content,omitempty"`
	Flags      int         `json:"flags,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Title      string      `json:"title,omitempty"`
	Components interface{} `json:"components,omitempty"`
}

func pong() *InteractionResponse {
	return &InteractionResponse{Type: responsePong}
}

// ephemeral builds a channel-message response only the invoker can see.
func ephemeral(content string) *InteractionResponse {
	return &InteractionResponse{
		Type: responseChannelMessage,
		Data: &ResponseData{Content: content, Flags: flagEphemeral},
	}
}

func ephemeralWithComponents(content string, components interface{}) *InteractionResponse {
	return &InteractionResponse{
		Type: responseChannelMessage,
		Data: &ResponseData{Content: content, Flags: flagEphemeral, Components: components},
	}
}

func updateMessage(content string, components interface{}) *InteractionResponse {
	return &InteractionResponse{
		Type: responseUpdateMessage,
		Data: &ResponseData{Content: content, Flags: flagEphemeral, Components: components},
	}
}

func modal(customID, title string, components interface{}) *InteractionResponse {
	return &InteractionResponse{
		Type: responseModal,
		Data: &ResponseData{CustomID: customID, Title: title, Components: components},
	}
}

// textInput builds a single-row modal text input.
func textInput(customID, label, placeholder string, required bool) map[string]interface{} {
	return map[string]interface{}{
		"type": 1,
		"components": []map[string]interface{}{
			{
				"type":        4, // text input
				"style":       1, // short
				"custom_id":   customID,
				"label":       label,
				"placeholder": placeholder,
				"required":    required,
			},
		},
	}
}

// button builds a single button component inside an action row.
func button(customID, label string, style int) map[string]interface{} {
	return map[string]interface{}{
		"type":      2,
		"style":     style,
		"label":     label,
		"custom_id": customID,
	}
}

func actionRow(components ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": 1, "components": components}
}

// selectMenu builds a role or channel select menu. menuType 6 selects
// roles, 8 selects channels.
func selectMenu(customID string, menuType int, placeholder string) map[string]interface{} {
	return map[string]interface{}{
		"type":        menuType,
		"custom_id":   customID,
		"placeholder": placeholder,
	}
}
