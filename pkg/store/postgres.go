package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a directly reachable Postgres
// database, for deployments that skip the hosted backend.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects a pgx pool to the given DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT id, user_id, sip_username, sip_password, api_key,
		       messaging_profile_id, caller_id_number, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	var p Profile
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.SIPUsername, &p.SIPPassword, &p.APIKey,
		&p.MessagingProfileID, &p.CallerIDNumber, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.UpdatedAt = time.Now()

	query := `
		INSERT INTO profiles (
			id, user_id, sip_username, sip_password, api_key,
			messaging_profile_id, caller_id_number, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			sip_username = EXCLUDED.sip_username,
			sip_password = EXCLUDED.sip_password,
			api_key = EXCLUDED.api_key,
			messaging_profile_id = EXCLUDED.messaging_profile_id,
			caller_id_number = EXCLUDED.caller_id_number,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.Exec(ctx, query,
		p.ID, p.UserID, p.SIPUsername, p.SIPPassword, p.APIKey,
		p.MessagingProfileID, p.CallerIDNumber, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveCall(ctx context.Context, e *CallEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	query := `
		INSERT INTO call_history (
			id, user_id, call_id, direction, phone_number,
			status, duration, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.UserID, e.CallID, e.Direction, e.PhoneNumber,
		e.Status, e.Duration, e.StartedAt, e.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save call: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, userID string, limit int) ([]CallEntry, error) {
	query := `
		SELECT id, user_id, call_id, direction, phone_number,
		       status, duration, started_at, ended_at
		FROM call_history
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []CallEntry
	for rows.Next() {
		var e CallEntry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.CallID, &e.Direction, &e.PhoneNumber,
			&e.Status, &e.Duration, &e.StartedAt, &e.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, e)
	}
	return calls, rows.Err()
}

func (s *PostgresStore) CreateContact(ctx context.Context, c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO contacts (id, user_id, name, phone_number, email, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		c.ID, c.UserID, c.Name, c.PhoneNumber, c.Email, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID string) ([]Contact, error) {
	query := `
		SELECT id, user_id, name, phone_number, email, notes, created_at
		FROM contacts
		WHERE user_id = $1
		ORDER BY name
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Name, &c.PhoneNumber, &c.Email, &c.Notes, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c *Contact) error {
	query := `
		UPDATE contacts SET
			name = $1, phone_number = $2, email = $3, notes = $4
		WHERE id = $5 AND user_id = $6
	`

	tag, err := s.db.Exec(ctx, query,
		c.Name, c.PhoneNumber, c.Email, c.Notes, c.ID, c.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, userID, contactID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM contacts WHERE id = $1 AND user_id = $2`,
		contactID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, m *SMSEntry) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO sms_history (
			id, user_id, provider_id, direction, from_number,
			to_number, text, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		m.ID, m.UserID, m.ProviderID, m.Direction, m.FromNumber,
		m.ToNumber, m.Text, m.Status, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, userID string, limit int) ([]SMSEntry, error) {
	query := `
		SELECT id, user_id, provider_id, direction, from_number,
		       to_number, text, status, created_at
		FROM sms_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []SMSEntry
	for rows.Next() {
		var m SMSEntry
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.ProviderID, &m.Direction, &m.FromNumber,
			&m.ToNumber, &m.Text, &m.Status, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// Compile-time check that PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)
