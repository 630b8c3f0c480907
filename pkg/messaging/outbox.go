package messaging

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outgoing message statuses. Delivered and failed are terminal.
const (
	MessageSending   = "sending"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageFailed    = "failed"
)

// OutboxMessage is a client-side message record. It is created with a
// temporary id before the network call resolves, then reconciled in place:
// the temporary id is replaced by the provider-assigned one and the status
// updated. On failure the same record is marked failed, never removed.
type OutboxMessage struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Direction string    `json:"direction"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Outbox tracks outgoing messages through the send/reconcile cycle.
type Outbox struct {
	mu       sync.Mutex
	messages []*OutboxMessage
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Append records a new outgoing message with a temporary id and sending
// status, and returns a copy of it.
func (o *Outbox) Append(to, text string) OutboxMessage {
	msg := &OutboxMessage{
		ID:        "pending-" + uuid.New().String(),
		To:        to,
		Text:      text,
		Direction: "outgoing",
		Status:    MessageSending,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()

	return *msg
}

// MarkSent reconciles a pending message with the provider-assigned id and
// status. Returns false if no mutable record with tempID exists.
func (o *Outbox) MarkSent(tempID, providerID, status string) bool {
	if status == "" {
		status = MessageSent
	}
	return o.update(tempID, func(m *OutboxMessage) {
		m.ID = providerID
		m.Status = status
	})
}

// MarkFailed flags a pending message as failed. The record is kept so the
// failure stays visible.
func (o *Outbox) MarkFailed(tempID string) bool {
	return o.update(tempID, func(m *OutboxMessage) {
		m.Status = MessageFailed
	})
}

// Messages returns a copy of all records, oldest first.
func (o *Outbox) Messages() []OutboxMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]OutboxMessage, len(o.messages))
	for i, m := range o.messages {
		out[i] = *m
	}
	return out
}

func (o *Outbox) update(id string, fn func(*OutboxMessage)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, m := range o.messages {
		if m.ID != id {
			continue
		}
		if m.Status == MessageDelivered || m.Status == MessageFailed {
			// Terminal, no further mutation.
			return false
		}
		fn(m)
		return true
	}
	return false
}
