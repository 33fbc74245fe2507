package model

// PlaceholderTitle is the default title a conversation carries until the
// first generated title replaces it.
const PlaceholderTitle = "New Chat"

type Conversation struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Title     string `json:"title"`
	StartedAt int64  `json:"started_at"`
}
