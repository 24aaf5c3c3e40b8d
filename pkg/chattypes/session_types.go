// Package chattypes defines session and conversation types for apple2chat.
// This file contains the transcript model: roles, messages and the per-browser
// chat session that owns them.
package chattypes

import (
	"sync"
	"time"
)

// Role identifies the author of a transcript turn.
type Role string

// Supported roles. The relay only ever stores user and assistant turns;
// system is accepted for provider requests built from session settings.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole converts a raw role string into a Role, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(raw), nil
	default:
		return "", NewValidationError("invalid role: %s. Must be one of [user assistant system]", raw)
	}
}

// Message is a single turn in the transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSettings holds the user-adjustable knobs of a chat session.
type SessionSettings struct {
	Model          string `json:"model"`            // Selected model ID
	ChainOfThought bool   `json:"chain_of_thought"` // Ask the model to reason step by step
	HasAPIKey      bool   `json:"has_api_key"`      // Whether a session credential override is set
}

// ChatSession is the state owned by one browser (or terminal) session.
// The transcript is append-only; turns are never edited or removed.
type ChatSession struct {
	ID        string
	CreatedAt time.Time

	mu             sync.RWMutex
	messages       []Message
	model          string
	apiKey         string
	chainOfThought bool
	updatedAt      time.Time
	inFlight       bool
}

// NewChatSession creates an empty session with the given ID, creation time and model.
func NewChatSession(id string, createdAt time.Time, model string) *ChatSession {
	return &ChatSession{
		ID:        id,
		CreatedAt: createdAt,
		messages:  make([]Message, 0),
		model:     model,
		updatedAt: createdAt,
	}
}

// Append adds a message to the end of the transcript.
func (s *ChatSession) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.updatedAt = msg.Timestamp
}

// Messages returns a copy of the transcript in chronological order.
func (s *ChatSession) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RecentMessages returns a copy of at most the last n turns. n <= 0 means all.
func (s *ChatSession) RecentMessages(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.messages) > n {
		start = len(s.messages) - n
	}
	out := make([]Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// Len returns the number of turns in the transcript.
func (s *ChatSession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// UpdatedAt returns the time of the last transcript change.
func (s *ChatSession) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Model returns the currently selected model ID.
func (s *ChatSession) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel changes the selected model ID.
func (s *ChatSession) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// APIKey returns the session credential override, if any.
func (s *ChatSession) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// SetAPIKey sets or clears (empty string) the session credential override.
func (s *ChatSession) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// ChainOfThought reports whether step-by-step reasoning is requested.
func (s *ChatSession) ChainOfThought() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainOfThought
}

// SetChainOfThought toggles step-by-step reasoning.
func (s *ChatSession) SetChainOfThought(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainOfThought = enabled
}

// Settings returns a snapshot of the session settings.
func (s *ChatSession) Settings() SessionSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSettings{
		Model:          s.model,
		ChainOfThought: s.chainOfThought,
		HasAPIKey:      s.apiKey != "",
	}
}

// TryBegin marks a submission as in flight. It returns false when another
// submission on this session has not finished yet.
func (s *ChatSession) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// End clears the in-flight marker set by TryBegin.
func (s *ChatSession) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}
