package repositories

import "context"

// LargeLanguageModel abstracts the non-streaming chat provider
type LargeLanguageModel interface {
	// GenerateChat creates a chat session seeded with history and the persona prompt
	GenerateChat(ctx context.Context, systemInstruction string, history []ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing text conversation
type ChatSession interface {
	// SendMessage sends one message and returns one reply. Errors are returned as-is;
	// callers decide how to degrade.
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole  Role = "user"
	ModelRole Role = "model"
)
