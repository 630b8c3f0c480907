package telnyx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/birddigital/telnyx-softphone/pkg/logger"
)

// defaultCallerNumber is the fallback outbound caller id used when the
// caller supplies none.
const defaultCallerNumber = "+15815080022"

// ErrNotInitialized is returned when an operation requires a successful
// Initialize first.
var ErrNotInitialized = errors.New("telnyx: client not initialized")

// CallOptions tweak an outbound call. Zero values fall back to defaults.
type CallOptions struct {
	CallerNumber string
	CallerName   string
}

// CallStateEvent is the per-call state notification rebroadcast to
// OnCallState listeners.
type CallStateEvent struct {
	CallID string
	State  string
}

// Client owns the single connection to the provider's realtime signaling
// channel. It is an explicitly constructed service instance: build one per
// process and inject it, never reach for a global.
//
// Lifecycle: uninitialized -> connecting -> ready <-> disconnected, with
// Reconnect as a single immediate disconnect-then-initialize (no backoff).
type Client struct {
	mu sync.Mutex

	sig Signaling
	log *slog.Logger

	creds       *Credentials
	initialized bool
	status      SocketStatus

	activeCall *Call

	callListeners   ListenerList[*Call]
	socketListeners ListenerList[SocketStatus]
	stateListeners  ListenerList[CallStateEvent]
}

// NewClient creates a session client on top of the given signaling channel.
func NewClient(sig Signaling, log *slog.Logger) *Client {
	c := &Client{
		sig:    sig,
		log:    logger.Or(log),
		status: SocketDisconnected,
	}
	sig.Notify(c.handleEvent)
	return c
}

// Initialize opens the realtime connection with the given SIP credentials.
// Calling it while already connected tears the old session down first, so
// there is never more than one live session. Errors are returned, never
// panicked; callers must check the result.
func (c *Client) Initialize(ctx context.Context, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.New("telnyx: SIP username and password are required")
	}

	c.mu.Lock()
	alreadyUp := c.initialized
	c.mu.Unlock()
	if alreadyUp {
		// Re-entering initialize is a reconnect, never a second session.
		c.Disconnect(ctx)
	}

	if err := c.sig.Connect(ctx, creds); err != nil {
		return fmt.Errorf("telnyx: connect failed: %w", err)
	}

	c.mu.Lock()
	c.creds = &creds
	c.initialized = true
	c.mu.Unlock()

	return nil
}

// MakeCall dials destination. It requires a prior successful Initialize and
// returns nil with an error on any network or signaling failure.
func (c *Client) MakeCall(ctx context.Context, destination string, opts CallOptions) (*Call, error) {
	c.mu.Lock()
	ready := c.initialized
	c.mu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	callerNumber := opts.CallerNumber
	if callerNumber == "" {
		callerNumber = defaultCallerNumber
	}
	callerName := opts.CallerName
	if callerName == "" {
		callerName = "Telnyx WebRTC"
	}

	callID, err := c.sig.Invite(ctx, InviteParams{
		DestinationNumber: destination,
		CallerNumber:      callerNumber,
		CallerName:        callerName,
		Audio:             true,
		Video:             false,
	})
	if err != nil {
		c.log.Error("failed to make call", "destination", destination, "error", err)
		return nil, fmt.Errorf("telnyx: invite failed: %w", err)
	}

	call := NewCall(callID, DirectionOutgoing, destination, "", CallStateDialing)

	c.mu.Lock()
	c.activeCall = call
	c.mu.Unlock()

	return call, nil
}

// AnswerCall answers the active incoming call. No active call is a normal
// condition and yields false, not an error.
func (c *Client) AnswerCall(ctx context.Context) bool {
	call := c.GetActiveCall()
	if call == nil {
		c.log.Warn("no active call to answer")
		return false
	}
	if err := c.sig.Answer(ctx, call.ID); err != nil {
		c.log.Error("failed to answer call", "call_id", call.ID, "error", err)
		return false
	}
	return true
}

// RejectCall declines the active incoming call and releases the active-call
// reference.
func (c *Client) RejectCall(ctx context.Context) bool {
	call := c.GetActiveCall()
	if call == nil {
		c.log.Warn("no active call to reject")
		return false
	}
	if err := c.sig.Reject(ctx, call.ID); err != nil {
		c.log.Error("failed to reject call", "call_id", call.ID, "error", err)
		return false
	}
	c.clearActiveCall(call.ID)
	return true
}

// EndCall hangs up the active call and releases the active-call reference.
func (c *Client) EndCall(ctx context.Context) bool {
	call := c.GetActiveCall()
	if call == nil {
		c.log.Warn("no active call to end")
		return false
	}
	if err := c.sig.Hangup(ctx, call.ID); err != nil {
		c.log.Error("failed to end call", "call_id", call.ID, "error", err)
		return false
	}
	c.clearActiveCall(call.ID)
	return true
}

// ToggleMute mutes or unmutes the active call's audio.
func (c *Client) ToggleMute(ctx context.Context, mute bool) bool {
	call := c.GetActiveCall()
	if call == nil {
		c.log.Warn("no active call to mute/unmute")
		return false
	}
	if err := c.sig.SetMute(ctx, call.ID, mute); err != nil {
		c.log.Error("failed to toggle mute", "call_id", call.ID, "mute", mute, "error", err)
		return false
	}
	return true
}

// SendDTMF sends an in-call keypad tone.
func (c *Client) SendDTMF(ctx context.Context, digit string) bool {
	call := c.GetActiveCall()
	if call == nil {
		c.log.Warn("no active call to send DTMF")
		return false
	}
	if err := c.sig.SendDTMF(ctx, call.ID, digit); err != nil {
		c.log.Error("failed to send DTMF", "call_id", call.ID, "error", err)
		return false
	}
	return true
}

// OnIncomingCall registers a listener for inbound calls. The returned func
// unregisters it; after that the listener receives no further notifications.
func (c *Client) OnIncomingCall(fn func(*Call)) func() {
	return c.callListeners.Add(fn)
}

// OnSocketStatus registers a listener for connection status changes.
func (c *Client) OnSocketStatus(fn func(SocketStatus)) func() {
	return c.socketListeners.Add(fn)
}

// OnCallState registers a listener for per-call state transitions.
func (c *Client) OnCallState(fn func(CallStateEvent)) func() {
	return c.stateListeners.Add(fn)
}

// GetActiveCall returns the call currently tracked as in progress, or nil.
func (c *Client) GetActiveCall() *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCall
}

// IsConnected reports whether Initialize has succeeded and not been undone
// by Disconnect.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Status returns the last observed socket status.
func (c *Client) Status() SocketStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Disconnect hangs up any active call best-effort, clears all listener
// registries and tears the connection down. It is idempotent.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	call := c.activeCall
	c.activeCall = nil
	c.initialized = false
	c.mu.Unlock()

	if call != nil {
		if err := c.sig.Hangup(ctx, call.ID); err != nil {
			c.log.Error("error hanging up active call during disconnect", "call_id", call.ID, "error", err)
		}
	}

	c.callListeners.Clear()
	c.socketListeners.Clear()
	c.stateListeners.Clear()

	if err := c.sig.Disconnect(ctx); err != nil {
		c.log.Error("error disconnecting signaling channel", "error", err)
	}

	c.mu.Lock()
	c.status = SocketDisconnected
	c.mu.Unlock()
}

// Reconnect tears the session down and reinitializes it with the stored
// credentials. One immediate attempt, no retry or backoff. It fails fast if
// no credentials were ever set.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	if creds == nil {
		return errors.New("telnyx: cannot reconnect, no SIP credentials available")
	}

	c.Disconnect(ctx)
	return c.Initialize(ctx, *creds)
}

// handleEvent is the single entry point for signaling events. State is
// mutated first, listeners are notified after, so a listener always
// observes the updated state for the event it reacts to.
func (c *Client) handleEvent(ev Event) {
	switch ev.Type {
	case EventSocketConnected:
		c.setStatus(SocketConnected)
		c.socketListeners.Notify(c.log, SocketConnected)

	case EventSocketDisconnected:
		c.setStatus(SocketDisconnected)
		c.socketListeners.Notify(c.log, SocketDisconnected)

	case EventReady:
		c.setStatus(SocketReady)
		c.socketListeners.Notify(c.log, SocketReady)

	case EventCallReceived:
		c.handleIncomingCall(ev)

	case EventCallCreated:
		c.log.Debug("call created", "call_id", ev.CallID)

	case EventCallState:
		c.handleCallState(ev)
	}
}

func (c *Client) handleIncomingCall(ev Event) {
	c.mu.Lock()
	busy := c.activeCall != nil
	c.mu.Unlock()

	if busy {
		// One active call at most. A second inbound call is declined at the
		// signaling layer and surfaced to listeners as already missed.
		c.log.Warn("rejecting incoming call, another call is active", "call_id", ev.CallID)
		if err := c.sig.Reject(context.Background(), ev.CallID); err != nil {
			c.log.Error("failed to reject concurrent call", "call_id", ev.CallID, "error", err)
		}
		missed := NewCall(ev.CallID, DirectionIncoming, ev.CallerNumber, ev.CallerName, CallStateMissed)
		c.callListeners.Notify(c.log, missed)
		return
	}

	number := ev.CallerNumber
	if number == "" {
		number = "Unknown"
	}
	call := NewCall(ev.CallID, DirectionIncoming, number, ev.CallerName, CallStateRinging)

	c.mu.Lock()
	c.activeCall = call
	c.mu.Unlock()

	c.callListeners.Notify(c.log, call)
}

func (c *Client) handleCallState(ev Event) {
	c.mu.Lock()
	if c.activeCall != nil && c.activeCall.ID == ev.CallID {
		c.activeCall.setState(ev.State)
		if terminalCallState(ev.State) {
			c.activeCall = nil
		}
	}
	c.mu.Unlock()

	c.stateListeners.Notify(c.log, CallStateEvent{CallID: ev.CallID, State: ev.State})
}

func (c *Client) setStatus(s SocketStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) clearActiveCall(callID string) {
	c.mu.Lock()
	if c.activeCall != nil && c.activeCall.ID == callID {
		c.activeCall = nil
	}
	c.mu.Unlock()
}

func terminalCallState(state string) bool {
	switch state {
	case CallStateEnded, CallStateRejected, CallStateMissed:
		return true
	}
	return false
}
