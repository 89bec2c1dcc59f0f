package domain

import "time"

// Turn roles as they appear in transcripts and provider requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single message in a conversation transcript. Immutable once
// appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation holds the ordered transcript for one externally supplied
// conversation id.
type Conversation struct {
	ID        string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"messages"`
}

// LastActivity returns the timestamp of the most recent turn, or CreatedAt
// for an empty conversation.
func (c Conversation) LastActivity() time.Time {
	if len(c.Turns) == 0 {
		return c.CreatedAt
	}
	return c.Turns[len(c.Turns)-1].Timestamp
}
