package telnyx

import (
	"sync"
	"time"
)

// Call states as reported over the signaling channel.
const (
	CallStateDialing  = "dialing"
	CallStateRinging  = "ringing"
	CallStateAnswered = "answered"
	CallStateActive   = "active"
	CallStateEnded    = "ended"
	CallStateRejected = "rejected"
	CallStateMissed   = "missed"
)

// Call is the handle for a single call leg tracked by the Client. Control
// operations (answer, hangup, mute, DTMF) go through the Client, which only
// ever tracks one active call.
type Call struct {
	ID           string
	Direction    Direction
	RemoteNumber string
	RemoteName   string
	CreatedAt    time.Time

	mu    sync.Mutex
	state string
}

// NewCall constructs a call handle. Signaling adapters and tests use this;
// application code receives calls from the Client.
func NewCall(id string, dir Direction, remoteNumber, remoteName, state string) *Call {
	return &Call{
		ID:           id,
		Direction:    dir,
		RemoteNumber: remoteNumber,
		RemoteName:   remoteName,
		CreatedAt:    time.Now(),
		state:        state,
	}
}

// State returns the last state reported for this call.
func (c *Call) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) setState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}
