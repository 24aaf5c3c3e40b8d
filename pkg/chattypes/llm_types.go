// Package chattypes defines LLM-related types and interfaces for apple2chat.
// This file contains types for LLM client abstraction and streaming.
package chattypes

import "context"

// StreamChunk represents a single chunk of streaming response.
type StreamChunk struct {
	Content string // The text content of this chunk
	Done    bool   // Whether this is the final chunk
	Error   error  // Any error that occurred during streaming
}

// ModelConfig is the resolved model used for one request.
type ModelConfig struct {
	Provider   string         `json:"provider"`
	BaseModel  string         `json:"base_model"`
	Parameters map[string]any `json:"parameters"`
}

// CompletionRequest is everything a provider needs for one call.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Model        *ModelConfig
}

// LLMClient defines the interface for LLM provider implementations.
type LLMClient interface {
	// SendChatCompletion sends a chat completion request and returns the full response.
	SendChatCompletion(ctx context.Context, req *CompletionRequest) (string, error)

	// StreamChatCompletion sends a streaming chat completion request.
	// The returned channel is closed after a Done chunk or an error chunk.
	StreamChatCompletion(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error)

	// GetProviderName returns the name of the LLM provider (e.g., "groq", "anthropic").
	GetProviderName() string

	// IsConfigured returns true if the client has valid configuration and can make requests.
	IsConfigured() bool
}

// Service defines the interface for apple2chat services.
// Services are initialized at startup and use the global context for shared state.
type Service interface {
	Name() string
	Initialize() error
}
