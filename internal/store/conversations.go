package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"chatbot-backend/internal/clock"
	"chatbot-backend/internal/domain"
)

// ErrConversationNotFound is returned by Append when the conversation was
// never created. Callers are expected to Ensure first.
var ErrConversationNotFound = errors.New("store: conversation not found")

const (
	defaultMaxConversations = 1000
	defaultConversationTTL  = 12 * time.Hour
)

// ConversationStore maps conversation ids to append-only transcripts.
// Conversations accumulate until a lead submission deletes them, so the
// store bounds growth with an idle TTL and a max-count cap, both applied
// lazily when a new conversation is created. Zero disables either limit.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation
	clk   clock.Clock
	max   int
	ttl   time.Duration
}

type ConversationStoreOption func(*ConversationStore)

// WithMaxConversations caps the number of stored conversations; 0 means
// unlimited.
func WithMaxConversations(n int) ConversationStoreOption {
	return func(s *ConversationStore) {
		s.max = n
	}
}

// WithConversationTTL evicts conversations idle for longer than d; 0
// disables expiry.
func WithConversationTTL(d time.Duration) ConversationStoreOption {
	return func(s *ConversationStore) {
		s.ttl = d
	}
}

// NewConversationStore creates an empty store using clk for all
// timestamps.
func NewConversationStore(clk clock.Clock, opts ...ConversationStoreOption) (*ConversationStore, error) {
	if clk == nil {
		return nil, errors.New("store: clock must not be nil")
	}
	s := &ConversationStore{
		convs: make(map[string]*domain.Conversation),
		clk:   clk,
		max:   defaultMaxConversations,
		ttl:   defaultConversationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ensure creates an empty conversation with the current timestamp if id is
// absent and returns a snapshot of the (possibly pre-existing)
// conversation. Idempotent.
func (s *ConversationStore) Ensure(id string) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.convs[id]; ok {
		return snapshot(c)
	}

	s.pruneLocked()
	c := &domain.Conversation{
		ID:        id,
		CreatedAt: s.clk.NowUTC(),
		Turns:     []domain.Turn{},
	}
	s.convs[id] = c
	return snapshot(c)
}

// Append adds a turn with the current timestamp to an existing
// conversation.
func (s *ConversationStore) Append(id, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.Turns = append(c.Turns, domain.Turn{
		Role:      role,
		Content:   content,
		Timestamp: s.clk.NowUTC(),
	})
	return nil
}

// Get returns a snapshot of the conversation and whether it exists.
func (s *ConversationStore) Get(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return snapshot(c), true
}

// Remove deletes the conversation if present; no-op otherwise.
func (s *ConversationStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, id)
}

// IDs returns the ids of all stored conversations in unspecified order.
func (s *ConversationStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of stored conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// pruneLocked evicts expired conversations, then the least recently active
// ones until the store is below its cap. Caller must hold mu.
func (s *ConversationStore) pruneLocked() {
	if s.ttl > 0 {
		cutoff := s.clk.NowUTC().Add(-s.ttl)
		for id, c := range s.convs {
			if c.LastActivity().Before(cutoff) {
				delete(s.convs, id)
			}
		}
	}
	if s.max <= 0 || len(s.convs) < s.max {
		return
	}

	type entry struct {
		id   string
		last time.Time
	}
	entries := make([]entry, 0, len(s.convs))
	for id, c := range s.convs {
		entries = append(entries, entry{id: id, last: c.LastActivity()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].last.Before(entries[j].last)
	})
	// Evict down to max-1 so the caller's insertion stays within the cap.
	for i := 0; i <= len(entries)-s.max; i++ {
		delete(s.convs, entries[i].id)
	}
}

func snapshot(c *domain.Conversation) domain.Conversation {
	turns := make([]domain.Turn, len(c.Turns))
	copy(turns, c.Turns)
	return domain.Conversation{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		Turns:     turns,
	}
}
