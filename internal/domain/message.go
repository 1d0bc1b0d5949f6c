package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the visible transcript. Messages are never mutated
// after creation; callers receive copies.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Sources     []Source  `json:"sources,omitempty"`
	IsError     bool      `json:"is_error,omitempty"` // locally synthesized failure, not from the backend
	CreatedAt   time.Time `json:"created_at"`
}

// Source is a citation attached to an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// NewMessageID returns a time-ordered unique message identifier.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates an assistant turn from a backend answer.
func NewAssistantMessage(content string, suggestions []string, sources []Source) Message {
	return Message{
		ID:          NewMessageID(),
		Role:        RoleAssistant,
		Content:     content,
		Suggestions: append([]string(nil), suggestions...),
		Sources:     append([]Source(nil), sources...),
		CreatedAt:   time.Now(),
	}
}

// NewErrorMessage creates a synthetic assistant turn describing a failure.
func NewErrorMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		IsError:   true,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy so the slices cannot be shared with the transcript.
func (m Message) Clone() Message {
	m.Suggestions = append([]string(nil), m.Suggestions...)
	m.Sources = append([]Source(nil), m.Sources...)
	return m
}
