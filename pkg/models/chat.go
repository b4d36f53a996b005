package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TitleMaxLen   = 40
	TitleEllipsis = "..."
	DefaultTitle  = "New chat"
)

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Message is immutable once created. IDs are UUIDv7, so they are unique and
// sort in creation order.
type Message struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	ModelID   string    `json:"model_id,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func NewUserMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Author:    AuthorUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func NewAssistantMessage(content string, model *Model) Message {
	msg := Message{
		ID:        NewMessageID(),
		Author:    AuthorAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if model != nil {
		msg.ModelID = model.ID
	}
	return msg
}

// NewErrorMessage records a failed dispatch in the transcript.
func NewErrorMessage(cause string, model *Model) Message {
	msg := NewAssistantMessage(cause, model)
	msg.Failed = true
	return msg
}

type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate store-owned slices.
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}

func (s *ChatSession) HasMessage(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// DeriveTitle keeps the first TitleMaxLen characters of the prompt and marks
// truncation with an ellipsis.
func DeriveTitle(prompt string) string {
	r := []rune(prompt)
	if len(r) <= TitleMaxLen {
		if prompt == "" {
			return DefaultTitle
		}
		return prompt
	}
	return string(r[:TitleMaxLen]) + TitleEllipsis
}
