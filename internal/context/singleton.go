package context

import (
	"sync"
)

// globalContext holds the singleton instance of the global context
var globalContext *AppContext

// globalContextMu protects access to the global context instance
var globalContextMu sync.RWMutex

// GetGlobalContext returns the global context, creating it on first use.
func GetGlobalContext() *AppContext {
	globalContextMu.RLock()
	ctx := globalContext
	globalContextMu.RUnlock()
	if ctx != nil {
		return ctx
	}

	globalContextMu.Lock()
	defer globalContextMu.Unlock()
	if globalContext == nil {
		globalContext = New()
	}
	return globalContext
}

// SetGlobalContext sets the global context instance in a thread-safe manner.
func SetGlobalContext(ctx *AppContext) {
	globalContextMu.Lock()
	defer globalContextMu.Unlock()
	globalContext = ctx
}

// ResetGlobalContext clears the global context so the next access creates a fresh one.
// This is primarily for testing purposes.
func ResetGlobalContext() {
	globalContextMu.Lock()
	defer globalContextMu.Unlock()
	globalContext = nil
}
