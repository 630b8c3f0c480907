package telephony

import (
	"time"

	"github.com/birddigital/telnyx-softphone/pkg/telnyx"
)

// maxHistorySize caps the in-memory recent-call list. The durable store is
// authoritative; this is only the bounded recent-activity cache.
const maxHistorySize = 100

// CallStatus is the lifecycle status of a tracked call.
type CallStatus string

const (
	StatusDialing  CallStatus = "dialing"
	StatusRinging  CallStatus = "ringing"
	StatusAnswered CallStatus = "answered"
	StatusActive   CallStatus = "active"
	StatusEnded    CallStatus = "ended"
	StatusRejected CallStatus = "rejected"
	StatusMissed   CallStatus = "missed"
)

// Terminal reports whether a status admits no further transitions. A record
// that reached a terminal status is never mutated again.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// CallRecord is one entry in the recent-call list. Records are mutated in
// place by id as state events arrive, then become inert history once
// terminal.
type CallRecord struct {
	ID         string           `json:"id"`
	Direction  telnyx.Direction `json:"direction"`
	Number     string           `json:"number"`
	CreatedAt  time.Time        `json:"created_at"`
	Status     CallStatus       `json:"status"`
	Duration   int              `json:"duration"`
	AnsweredAt *time.Time       `json:"answered_at,omitempty"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
}

// StatusEvent is the fan-out notification delivered to OnCallStatus
// listeners after the history record has been updated.
type StatusEvent struct {
	CallID string
	Status CallStatus
}
