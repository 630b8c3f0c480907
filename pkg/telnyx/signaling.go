package telnyx

import (
	"context"
)

// ============================================
// SIGNALING BOUNDARY
// Provider realtime channel, kept opaque to the rest of the app
// ============================================

// SocketStatus reports the state of the realtime connection.
type SocketStatus string

const (
	SocketDisconnected SocketStatus = "disconnected"
	SocketConnected    SocketStatus = "connected"
	SocketReady        SocketStatus = "ready"
)

// Direction marks which side originated a call.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// EventType identifies a signaling event delivered by the provider.
type EventType string

const (
	EventSocketConnected    EventType = "socket.connected"
	EventSocketDisconnected EventType = "socket.disconnected"
	EventReady              EventType = "ready"
	EventCallReceived       EventType = "call.received"
	EventCallCreated        EventType = "call.created"
	EventCallState          EventType = "call.state"
)

// Event is a single signaling notification. CallID, State and the caller
// fields are only populated for call-scoped events.
type Event struct {
	Type         EventType
	CallID       string
	State        string
	CallerNumber string
	CallerName   string
}

// Credentials are the SIP credentials for one signaling session. They are
// owned by the Client and replaced wholesale on reconnect.
type Credentials struct {
	Username     string
	Password     string
	RingtoneFile string
	RingbackFile string
}

// InviteParams carries the dial parameters for an outbound call.
type InviteParams struct {
	DestinationNumber string
	CallerNumber      string
	CallerName        string
	Audio             bool
	Video             bool
}

// Signaling is the boundary to the provider's realtime channel. The wire
// protocol behind it is entirely the provider's business; the Client only
// consumes named events and invokes named methods.
type Signaling interface {
	Connect(ctx context.Context, creds Credentials) error
	Disconnect(ctx context.Context) error

	Invite(ctx context.Context, params InviteParams) (callID string, err error)
	Answer(ctx context.Context, callID string) error
	Reject(ctx context.Context, callID string) error
	Hangup(ctx context.Context, callID string) error
	SetMute(ctx context.Context, callID string, muted bool) error
	SendDTMF(ctx context.Context, callID, digits string) error

	// Notify registers the single event handler. The handler must be set
	// before Connect so no events are dropped.
	Notify(handler func(Event))
}
