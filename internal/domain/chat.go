package domain

import (
	"time"
)

// MessageSender identifies who authored a chat message.
type MessageSender string

const (
	// SenderUser is the human end user.
	SenderUser MessageSender = "user"
	// SenderAssistant is the automated assistant.
	SenderAssistant MessageSender = "assistant"
)

// Message is a single entry in a chat transcript. Messages are immutable
// once appended.
type Message struct {
	Sender     MessageSender `json:"sender"`
	Text       string        `json:"text,omitempty"`
	Attachment string        `json:"attachment,omitempty"`
}

// Chat is a persisted transcript.
type Chat struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatSummary is the listing view of a chat, without its messages.
type ChatSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
