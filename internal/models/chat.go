package models

import "time"

// ChatSession represents a conversation thread between a user and the AI
// mentor. Summary holds a short recap of the latest exchange and may be empty
// for fresh sessions.
type ChatSession struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Message represents an individual communication entry within a session. The
// authoritative order of messages is the order the history endpoint returns.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the AI mentor.
	RoleAssistant Role = "assistant"
)

// DefaultSessionName is the placeholder name a session carries until it is
// renamed explicitly or by the name generator.
const DefaultSessionName = "New Chat"

// User identifies an authenticated account as reported by the auth provider.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}
