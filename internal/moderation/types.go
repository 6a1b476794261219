package moderation

// ModerationRequest is published to moderation.check by services that want
// a message screened without running their own filter.
type ModerationRequest struct {
	RequestID string `json:"request_id"`
	Source    string `json:"source"`
	AuthorID  string `json:"author_id,omitempty"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// ModerationResult is published to moderation.result.<request_id> with the
// outcome of a check.
type ModerationResult struct {
	RequestID string `json:"request_id"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	Term      string `json:"term,omitempty"`
}

// Moderation actions reported in ModerationEvent.Action.
const (
	ActionDeleted      = "deleted"
	ActionDeleteFailed = "delete_failed"
)

// ModerationEvent is published to moderation.action after the bot acted on
// a message.
type ModerationEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	AuthorID  string `json:"author_id"`
	Reason    string `json:"reason"`
	Term      string `json:"term,omitempty"`
	Action    string `json:"action"`
	Error     string `json:"error,omitempty"`
	Ts        int64  `json:"ts"`
}
