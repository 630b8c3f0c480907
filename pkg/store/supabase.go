package store

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds Supabase connection configuration.
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// SupabaseStore implements Store on top of the hosted Supabase backend,
// which is where the softphone's profiles, contacts and history tables live.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore creates a Store backed by Supabase.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profiles []Profile
	_, err := s.client.From("profiles").
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, ErrNotFound
	}
	return &profiles[0], nil
}

func (s *SupabaseStore) UpsertProfile(ctx context.Context, p *Profile) error {
	p.UpdatedAt = time.Now()
	_, _, err := s.client.From("profiles").
		Insert(p, true, "user_id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SaveCall(ctx context.Context, e *CallEntry) error {
	_, _, err := s.client.From("call_history").
		Insert(e, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to save call: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListCalls(ctx context.Context, userID string, limit int) ([]CallEntry, error) {
	q := s.client.From("call_history").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("started_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		q = q.Limit(limit, "")
	}

	var calls []CallEntry
	if _, err := q.ExecuteTo(&calls); err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	return calls, nil
}

func (s *SupabaseStore) CreateContact(ctx context.Context, c *Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, _, err := s.client.From("contacts").
		Insert(c, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListContacts(ctx context.Context, userID string) ([]Contact, error) {
	var contacts []Contact
	_, err := s.client.From("contacts").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("name", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&contacts)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

func (s *SupabaseStore) UpdateContact(ctx context.Context, c *Contact) error {
	_, _, err := s.client.From("contacts").
		Update(c, "minimal", "").
		Eq("id", c.ID).
		Eq("user_id", c.UserID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

func (s *SupabaseStore) DeleteContact(ctx context.Context, userID, contactID string) error {
	_, _, err := s.client.From("contacts").
		Delete("minimal", "").
		Eq("id", contactID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SaveMessage(ctx context.Context, m *SMSEntry) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, _, err := s.client.From("sms_history").
		Insert(m, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListMessages(ctx context.Context, userID string, limit int) ([]SMSEntry, error) {
	q := s.client.From("sms_history").
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		q = q.Limit(limit, "")
	}

	var messages []SMSEntry
	if _, err := q.ExecuteTo(&messages); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Close is a no-op; the Supabase client holds no persistent connection.
func (s *SupabaseStore) Close() error { return nil }

// Compile-time check that SupabaseStore implements Store
var _ Store = (*SupabaseStore)(nil)
