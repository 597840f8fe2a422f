package conversation

import (
	"context"
	"sync"
	"time"
)

// StateStore persists conversation state per phone number. Load returns
// (nil, nil) when the phone has no state or its state expired.
type StateStore interface {
	Load(ctx context.Context, phone string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, phone string) error
	ActiveCount(ctx context.Context) (int, error)
}

// MemoryStore keeps state in process. Expiry is evaluated lazily against the clock.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*ConversationState
	ttl    time.Duration
	now    Clock
}

// NewMemoryStore creates an in-memory store. A nil clock uses time.Now.
func NewMemoryStore(ttl time.Duration, clock Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{states: make(map[string]*ConversationState), ttl: ttl, now: clock}
}

func (s *MemoryStore) Load(_ context.Context, phone string) (*ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	if state.Expired(s.now(), s.ttl) {
		delete(s.states, phone)
		return nil, nil
	}
	return state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *ConversationState) error {
	if state == nil || state.Phone == "" {
		return errMissingPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Phone] = state.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, phone)
	return nil
}

// ActiveCount counts unexpired conversations and evicts expired ones.
func (s *MemoryStore) ActiveCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for phone, state := range s.states {
		if state.Expired(now, s.ttl) {
			delete(s.states, phone)
			continue
		}
		count++
	}
	return count, nil
}
