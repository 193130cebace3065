package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldAttempts          = "attempts"
	fieldStatus            = "status"
	fieldVerifiedAt        = "verified_at"
	fieldRoleID            = "role_id"
	fieldChannelID         = "channel_id"
	fieldAllowedDomains    = "allowed_domains"
	fieldCustomMessage     = "custom_message"
	fieldCompletionMessage = "completion_message"
	fieldUpdatedAt         = "updated_at"
)
