package context

import (
	"sync"

	"apple2chat/pkg/chattypes"
)

// SessionStore is an LRU-bounded, thread-safe map of chat sessions keyed by ID.
// When the store is full the least recently used session is evicted, which
// ends that session: its transcript is discarded.
type SessionStore struct {
	maxSize int
	entries map[string]*sessionNode
	head    *sessionNode
	tail    *sessionNode
	onEvict func(*chattypes.ChatSession)
	mutex   sync.Mutex
}

// sessionNode is a node in the recency list; head.next is the most recent.
type sessionNode struct {
	session *chattypes.ChatSession
	prev    *sessionNode
	next    *sessionNode
}

// NewSessionStore creates a store holding at most maxSize sessions.
// A non-positive maxSize uses DefaultMaxSessions.
func NewSessionStore(maxSize int) *SessionStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSessions
	}

	head := &sessionNode{}
	tail := &sessionNode{}
	head.next = tail
	tail.prev = head

	return &SessionStore{
		maxSize: maxSize,
		entries: make(map[string]*sessionNode),
		head:    head,
		tail:    tail,
	}
}

// OnEvict registers a callback invoked (under the store lock) for each evicted session.
func (s *SessionStore) OnEvict(fn func(*chattypes.ChatSession)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onEvict = fn
}

// Get returns the session with the given ID and marks it most recently used.
func (s *SessionStore) Get(id string) (*chattypes.ChatSession, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	node, exists := s.entries[id]
	if !exists {
		return nil, false
	}
	s.moveToHead(node)
	return node.session, true
}

// Put stores a session, replacing any session with the same ID.
func (s *SessionStore) Put(session *chattypes.ChatSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if node, exists := s.entries[session.ID]; exists {
		node.session = session
		s.moveToHead(node)
		return
	}

	node := &sessionNode{session: session}
	s.entries[session.ID] = node
	s.addToHead(node)

	if len(s.entries) > s.maxSize {
		s.evictLRU()
	}
}

// Delete removes a session; deleting an unknown ID is a no-op.
func (s *SessionStore) Delete(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if node, exists := s.entries[id]; exists {
		s.removeNode(node)
		delete(s.entries, id)
	}
}

// Size returns the number of stored sessions.
func (s *SessionStore) Size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// MaxSize returns the store capacity.
func (s *SessionStore) MaxSize() int {
	return s.maxSize
}

// IDs returns session IDs from most to least recently used.
func (s *SessionStore) IDs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ids := make([]string, 0, len(s.entries))
	for node := s.head.next; node != s.tail; node = node.next {
		ids = append(ids, node.session.ID)
	}
	return ids
}

// Must be called with mutex locked.
func (s *SessionStore) moveToHead(node *sessionNode) {
	s.removeNode(node)
	s.addToHead(node)
}

// Must be called with mutex locked.
func (s *SessionStore) addToHead(node *sessionNode) {
	node.prev = s.head
	node.next = s.head.next
	s.head.next.prev = node
	s.head.next = node
}

// Must be called with mutex locked.
func (s *SessionStore) removeNode(node *sessionNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

// Must be called with mutex locked.
func (s *SessionStore) evictLRU() {
	victim := s.tail.prev
	if victim == s.head {
		return
	}
	s.removeNode(victim)
	delete(s.entries, victim.session.ID)
	if s.onEvict != nil {
		s.onEvict(victim.session)
	}
}
