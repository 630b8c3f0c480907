package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and offline demos. Data
// does not survive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile // keyed by user id
	calls    []CallEntry
	contacts map[string]Contact // keyed by contact id
	messages []SMSEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		contacts: make(map[string]Contact),
	}
}

func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.UpdatedAt = time.Now()
	s.profiles[p.UserID] = *p
	return nil
}

func (s *MemoryStore) SaveCall(ctx context.Context, e *CallEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	s.calls = append(s.calls, *e)
	return nil
}

func (s *MemoryStore) ListCalls(ctx context.Context, userID string, limit int) ([]CallEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CallEntry
	for _, e := range s.calls {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateContact(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.contacts[c.ID] = *c
	return nil
}

func (s *MemoryStore) ListContacts(ctx context.Context, userID string) ([]Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateContact(ctx context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[c.ID]
	if !ok || existing.UserID != c.UserID {
		return ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	s.contacts[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteContact(ctx context.Context, userID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[contactID]
	if !ok || existing.UserID != userID {
		return ErrNotFound
	}
	delete(s.contacts, contactID)
	return nil
}

func (s *MemoryStore) SaveMessage(ctx context.Context, m *SMSEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, userID string, limit int) ([]SMSEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SMSEntry
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
