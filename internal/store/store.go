// ABOUTME: Store interface and data types for loom conversation persistence
// ABOUTME: Defines User, Conversation, Message structs and typed sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing unique key
var ErrConflict = errors.New("already exists")

// ErrValidation is returned when input fails a schema constraint
var ErrValidation = errors.New("validation failed")

// Role constants for message authorship. The role column is a closed enum;
// anything else is rejected before it reaches the database.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidRole reports whether role is one of the allowed message roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// User is a registered user profile with a free-form preference map.
type User struct {
	ID          string
	Name        string
	Email       string
	Preferences map[string]string
	CreatedAt   time.Time
}

// Conversation is an ordered thread of messages owned by one user.
type Conversation struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// Message is a single append-only entry within a conversation.
// Timestamps are non-decreasing within a conversation; ties are broken
// by insertion order.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Timestamp      time.Time
}

// Store defines the interface for user, conversation, and message persistence.
// Every operation is atomic per call: a failed write leaves prior state
// unchanged.
type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, id, name, email string) (*User, error)
	SetPreference(ctx context.Context, userID, key, value string) error

	// Conversations
	CreateConversation(ctx context.Context, userID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error)
	GetHistory(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
