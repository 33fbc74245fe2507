package model

type EventKind string

const (
	EventKindChat               EventKind = "CHAT"
	EventKindJoin               EventKind = "JOIN"
	EventKindLeave              EventKind = "LEAVE"
	EventKindConversationUpdate EventKind = "CONVERSATION_UPDATE"
	EventKindTyping             EventKind = "TYPING"
	EventKindError              EventKind = "ERROR"
)

// ChatEvent is the transient wire payload of the chat transport, both
// inbound and outbound. ConversationID zero means "most recent or new".
type ChatEvent struct {
	Content        string        `json:"content"`
	Sender         string        `json:"sender"`
	ConversationID int64         `json:"conversationId,omitempty"`
	Kind           EventKind     `json:"type"`
	AttachmentURL  string        `json:"attachmentUrl,omitempty"`
	AttachmentType string        `json:"attachmentType,omitempty"`
	Status         MessageStatus `json:"status,omitempty"`
}
