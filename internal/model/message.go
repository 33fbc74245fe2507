package model

type MessageKind string

const (
	MessageKindUser MessageKind = "USER"
	MessageKindAI   MessageKind = "AI"
)

type MessageStatus string

const (
	MessageStatusSent       MessageStatus = "SENT"
	MessageStatusProcessing MessageStatus = "PROCESSING"
	MessageStatusReceived   MessageStatus = "RECEIVED"
	MessageStatusError      MessageStatus = "ERROR"
)

type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversation_id"`
	SenderID       *int64        `json:"sender_id,omitempty"`
	Content        string        `json:"content"`
	Kind           MessageKind   `json:"kind"`
	Status         MessageStatus `json:"status"`
	AttachmentURL  string        `json:"attachment_url,omitempty"`
	AttachmentType string        `json:"attachment_type,omitempty"`
	CreatedAt      int64         `json:"created_at"`
}
