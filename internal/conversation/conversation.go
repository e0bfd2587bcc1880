// Package conversation implements the conversation registry for animus.
//
// Conversations are named, independently addressable message histories
// sharing one workspace. Exactly one of them, "chat", is the default;
// it is created at first workspace load and can never be deleted. All
// other conversations report back to it through ReportToParent.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the name of the default conversation.
const DefaultName = "chat"

// Registry errors.
var (
	// ErrAlreadyExists is returned by Create for a taken name.
	ErrAlreadyExists = errors.New("conversation already exists")

	// ErrNotFound is returned for an unknown conversation name.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidArgument is returned for an empty name, deleting the
	// default conversation, or reporting from the default conversation.
	ErrInvalidArgument = errors.New("invalid conversation argument")
)

// Role tags a message with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Conversation is one named message history.
type Conversation struct {
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Messages  []Message `json:"messages"`

	// ParentName is empty for the default conversation and "chat" for
	// every other.
	ParentName string `json:"parent_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a deep copy of the conversation.
func (c *Conversation) clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// Summary is the List view of one conversation.
type Summary struct {
	Name         string `json:"name"`
	MessageCount int    `json:"message_count"`
	IsActive     bool   `json:"is_active"`
	IsDefault    bool   `json:"is_default"`
}

// Repository is the durable store for conversations, one record per name.
type Repository interface {
	Load() ([]*Conversation, error)
	Save(c *Conversation) error
	Delete(name string) error
}
