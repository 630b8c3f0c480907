package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Profile holds the per-account provider configuration: SIP credentials for
// the realtime session plus API key and messaging profile for SMS. All
// user-supplied, never defaulted.
type Profile struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	SIPUsername        string    `json:"sip_username"`
	SIPPassword        string    `json:"sip_password"`
	APIKey             string    `json:"api_key"`
	MessagingProfileID string    `json:"messaging_profile_id"`
	CallerIDNumber     string    `json:"caller_id_number"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Contact is an address-book entry owned by durable storage. The UI performs
// direct CRUD and refetches after every mutation.
type Contact struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CallEntry is the durable snapshot of a completed call, written once when
// the call reaches a terminal status.
type CallEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CallID      string     `json:"call_id"`
	Direction   string     `json:"direction"`
	PhoneNumber string     `json:"phone_number"`
	Status      string     `json:"status"`
	Duration    int        `json:"duration"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// SMSEntry is the durable record of a sent or received text message.
type SMSEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	Direction  string    `json:"direction"`
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store provides access to the softphone's durable tables: profiles,
// call_history, contacts and sms_history. Implementations must be safe for
// concurrent use.
type Store interface {
	// GetProfile retrieves the provider configuration for a user.
	// Returns ErrNotFound if the user has never saved settings.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// UpsertProfile creates or replaces a user's provider configuration.
	UpsertProfile(ctx context.Context, p *Profile) error

	// SaveCall appends a completed call snapshot to call_history.
	SaveCall(ctx context.Context, e *CallEntry) error

	// ListCalls returns up to limit calls for a user, newest first.
	ListCalls(ctx context.Context, userID string, limit int) ([]CallEntry, error)

	// CreateContact adds an address-book entry.
	CreateContact(ctx context.Context, c *Contact) error

	// ListContacts returns all contacts for a user, ordered by name.
	ListContacts(ctx context.Context, userID string) ([]Contact, error)

	// UpdateContact replaces an existing contact by id.
	UpdateContact(ctx context.Context, c *Contact) error

	// DeleteContact removes a contact by id.
	DeleteContact(ctx context.Context, userID, contactID string) error

	// SaveMessage appends a message record to sms_history.
	SaveMessage(ctx context.Context, m *SMSEntry) error

	// ListMessages returns up to limit messages for a user, newest first.
	ListMessages(ctx context.Context, userID string, limit int) ([]SMSEntry, error)

	// Close releases the underlying connections.
	Close() error
}
