package context

import (
	"sync"

	"apple2chat/pkg/chattypes"
)

// LLMClientSubcontext caches completion clients by client ID ("provider:hash").
type LLMClientSubcontext interface {
	StoreClient(clientID string, client chattypes.LLMClient)
	GetClient(clientID string) (chattypes.LLMClient, bool)
	RemoveClient(clientID string)
	ClientCount() int
	ClearAllClients()
}

type llmClientSubcontext struct {
	clients      map[string]chattypes.LLMClient
	clientsMutex sync.RWMutex
}

func newLLMClientSubcontext() *llmClientSubcontext {
	return &llmClientSubcontext{
		clients: make(map[string]chattypes.LLMClient),
	}
}

// StoreClient stores an LLM client with the given client ID.
func (l *llmClientSubcontext) StoreClient(clientID string, client chattypes.LLMClient) {
	l.clientsMutex.Lock()
	defer l.clientsMutex.Unlock()
	l.clients[clientID] = client
}

// GetClient retrieves an LLM client by client ID.
func (l *llmClientSubcontext) GetClient(clientID string) (chattypes.LLMClient, bool) {
	l.clientsMutex.RLock()
	defer l.clientsMutex.RUnlock()
	client, exists := l.clients[clientID]
	return client, exists
}

// RemoveClient removes an LLM client by client ID.
func (l *llmClientSubcontext) RemoveClient(clientID string) {
	l.clientsMutex.Lock()
	defer l.clientsMutex.Unlock()
	delete(l.clients, clientID)
}

// ClientCount returns the number of cached clients.
func (l *llmClientSubcontext) ClientCount() int {
	l.clientsMutex.RLock()
	defer l.clientsMutex.RUnlock()
	return len(l.clients)
}

// ClearAllClients removes all cached LLM clients.
func (l *llmClientSubcontext) ClearAllClients() {
	l.clientsMutex.Lock()
	defer l.clientsMutex.Unlock()
	l.clients = make(map[string]chattypes.LLMClient)
}
