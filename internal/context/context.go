// Package context holds process-wide state for apple2chat: the loaded
// configuration map and the in-memory store of chat sessions.
package context

import (
	"sync"
)

// DefaultMaxSessions bounds how many browser sessions are kept in memory.
const DefaultMaxSessions = 1024

// AppContext is the root state container shared by all services.
type AppContext struct {
	mu       sync.RWMutex
	testMode bool

	configurationCtx *configurationSubcontext
	llmClientCtx     *llmClientSubcontext
	sessions         *SessionStore
}

// New creates an AppContext with an empty configuration and a session store
// bounded at DefaultMaxSessions.
func New() *AppContext {
	ctx := &AppContext{}
	ctx.configurationCtx = newConfigurationSubcontext(ctx)
	ctx.llmClientCtx = newLLMClientSubcontext()
	ctx.sessions = NewSessionStore(DefaultMaxSessions)
	return ctx
}

// NewTestContext creates an AppContext in test mode and installs it as the global context.
func NewTestContext() *AppContext {
	ctx := New()
	ctx.SetTestMode(true)
	SetGlobalContext(ctx)
	return ctx
}

// IsTestMode reports whether deterministic test behavior is enabled.
func (c *AppContext) IsTestMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.testMode
}

// SetTestMode enables or disables deterministic test behavior.
func (c *AppContext) SetTestMode(testMode bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMode = testMode
}

// Configuration returns the configuration subcontext.
func (c *AppContext) Configuration() ConfigurationSubcontext {
	return c.configurationCtx
}

// LLMClients returns the completion client cache.
func (c *AppContext) LLMClients() LLMClientSubcontext {
	return c.llmClientCtx
}

// Sessions returns the chat session store.
func (c *AppContext) Sessions() *SessionStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions
}

// SetMaxSessions replaces the session store with one of the given capacity.
// Existing sessions are dropped; call before serving traffic.
func (c *AppContext) SetMaxSessions(maxSessions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = NewSessionStore(maxSessions)
}
