package telephony

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/telnyx-softphone/pkg/logger"
	"github.com/birddigital/telnyx-softphone/pkg/store"
	"github.com/birddigital/telnyx-softphone/pkg/telnyx"
)

// ============================================
// CALL COORDINATOR
// History, duration tracking and persistence around the session client
// ============================================

// SessionClient is the slice of the telnyx client the coordinator needs.
type SessionClient interface {
	MakeCall(ctx context.Context, destination string, opts telnyx.CallOptions) (*telnyx.Call, error)
	AnswerCall(ctx context.Context) bool
	RejectCall(ctx context.Context) bool
	EndCall(ctx context.Context) bool
	ToggleMute(ctx context.Context, mute bool) bool
	SendDTMF(ctx context.Context, digit string) bool
	OnIncomingCall(fn func(*telnyx.Call)) func()
	OnCallState(fn func(telnyx.CallStateEvent)) func()
}

// Config configures a CallService for one signed-in user.
type Config struct {
	// UserID keys persisted call snapshots. Empty disables persistence.
	UserID string
	// DefaultCallerID is applied to outbound calls that supply none.
	DefaultCallerID string
	// TickInterval is the duration-timer period. Defaults to one second.
	TickInterval time.Duration
}

// CallService wraps the session client with an in-memory bounded call
// history, a single duration timer for the active call, status fan-out and
// best-effort persistence of completed calls.
type CallService struct {
	mu sync.Mutex

	client SessionClient
	store  store.Store
	log    *slog.Logger

	userID          string
	defaultCallerID string
	tick            time.Duration
	nowFn           func() time.Time

	history []*CallRecord

	statusListeners telnyx.ListenerList[StatusEvent]

	// timerStop is non-nil exactly while the duration timer runs. There is
	// never more than one live timer.
	timerStop      chan struct{}
	timerCallID    string
	timerStartedAt time.Time

	unsubIncoming func()
	unsubState    func()
}

// NewCallService creates a coordinator around the given session client.
// Call Initialize before use.
func NewCallService(client SessionClient, st store.Store, log *slog.Logger) *CallService {
	return &CallService{
		client: client,
		store:  st,
		log:    logger.Or(log),
		tick:   time.Second,
		nowFn:  time.Now,
	}
}

// Initialize sets the owning-user context and wires the coordinator to the
// session client's inbound-call and call-state events.
func (s *CallService) Initialize(cfg Config) {
	s.mu.Lock()
	s.userID = cfg.UserID
	s.defaultCallerID = cfg.DefaultCallerID
	if cfg.DefaultCallerID == "" {
		s.defaultCallerID = "+15815080022"
	}
	if cfg.TickInterval > 0 {
		s.tick = cfg.TickInterval
	}
	if s.unsubIncoming != nil {
		s.unsubIncoming()
	}
	if s.unsubState != nil {
		s.unsubState()
	}
	s.mu.Unlock()

	unsubIncoming := s.client.OnIncomingCall(s.handleIncomingCall)
	unsubState := s.client.OnCallState(s.handleCallState)

	s.mu.Lock()
	s.unsubIncoming = unsubIncoming
	s.unsubState = unsubState
	s.mu.Unlock()
}

// SetUserID switches the owning user for subsequent persistence.
func (s *CallService) SetUserID(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// MakeCall dials destination and, on success, records the call as dialing at
// the head of the history. On failure the history is untouched and nil is
// returned with the error.
func (s *CallService) MakeCall(ctx context.Context, destination string, opts telnyx.CallOptions) (*telnyx.Call, error) {
	s.mu.Lock()
	if opts.CallerNumber == "" {
		opts.CallerNumber = s.defaultCallerID
	}
	s.mu.Unlock()

	call, err := s.client.MakeCall(ctx, destination, opts)
	if err != nil {
		s.log.Error("failed to make call", "destination", destination, "error", err)
		return nil, err
	}

	id := call.ID
	if id == "" {
		id = uuid.New().String()
	}
	s.addCallToHistory(&CallRecord{
		ID:        id,
		Direction: telnyx.DirectionOutgoing,
		Number:    destination,
		CreatedAt: s.now(),
		Status:    StatusDialing,
	})

	return call, nil
}

// AnswerCall answers the active incoming call.
func (s *CallService) AnswerCall(ctx context.Context) bool { return s.client.AnswerCall(ctx) }

// RejectCall declines the active incoming call.
func (s *CallService) RejectCall(ctx context.Context) bool { return s.client.RejectCall(ctx) }

// EndCall hangs up the active call.
func (s *CallService) EndCall(ctx context.Context) bool { return s.client.EndCall(ctx) }

// ToggleMute mutes or unmutes the active call.
func (s *CallService) ToggleMute(ctx context.Context, mute bool) bool {
	return s.client.ToggleMute(ctx, mute)
}

// SendDTMF sends an in-call keypad tone.
func (s *CallService) SendDTMF(ctx context.Context, digit string) bool {
	return s.client.SendDTMF(ctx, digit)
}

// OnCallStatus registers a status listener; the returned func unregisters
// it. Same contract as the session client's listeners: registration-order
// delivery, isolated failure.
func (s *CallService) OnCallStatus(fn func(StatusEvent)) func() {
	return s.statusListeners.Add(fn)
}

// History returns a copy of the recent-call list, newest first.
func (s *CallService) History() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CallRecord, len(s.history))
	for i, r := range s.history {
		out[i] = *r
	}
	return out
}

// CallByID returns a copy of the history record with the given id.
func (s *CallService) CallByID(id string) (CallRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.history {
		if r.ID == id {
			return *r, true
		}
	}
	return CallRecord{}, false
}

// Close stops the duration timer and detaches from the session client.
func (s *CallService) Close() {
	s.mu.Lock()
	s.stopTimerLocked()
	unsubIncoming := s.unsubIncoming
	unsubState := s.unsubState
	s.unsubIncoming = nil
	s.unsubState = nil
	s.mu.Unlock()

	if unsubIncoming != nil {
		unsubIncoming()
	}
	if unsubState != nil {
		unsubState()
	}
	s.statusListeners.Clear()
}

// ============================================
// EVENT HANDLING
// ============================================

func (s *CallService) handleIncomingCall(call *telnyx.Call) {
	status := StatusRinging
	if call.State() == telnyx.CallStateMissed {
		// Auto-rejected while another call was active.
		status = StatusMissed
	}

	now := s.now()
	rec := &CallRecord{
		ID:        call.ID,
		Direction: telnyx.DirectionIncoming,
		Number:    call.RemoteNumber,
		CreatedAt: now,
		Status:    status,
	}
	if status.Terminal() {
		rec.EndedAt = &now
	}

	s.addCallToHistory(rec)

	if status.Terminal() {
		s.persistCall(*rec)
	}
	s.statusListeners.Notify(s.log, StatusEvent{CallID: rec.ID, Status: status})
}

// handleCallState applies a state transition to the matching history record.
// Unknown ids are ignored without error: events may race with eviction.
// Records in a terminal status are never mutated again.
func (s *CallService) handleCallState(ev telnyx.CallStateEvent) {
	status := CallStatus(ev.State)
	now := s.now()

	s.mu.Lock()
	rec := s.findLocked(ev.CallID)
	if rec == nil || rec.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	var startTimer bool
	var snapshot CallRecord

	switch status {
	case StatusRinging:
		rec.Status = status

	case StatusAnswered:
		rec.Status = status
		rec.AnsweredAt = &now
		startTimer = true

	case StatusActive:
		rec.Status = status
		if s.timerStop == nil {
			if rec.AnsweredAt == nil {
				rec.AnsweredAt = &now
			}
			startTimer = true
		}

	case StatusEnded, StatusRejected, StatusMissed:
		rec.Status = status
		rec.EndedAt = &now
		if rec.AnsweredAt != nil {
			rec.Duration = int(now.Sub(*rec.AnsweredAt).Seconds())
		}
		s.stopTimerLocked()
		snapshot = *rec

	default:
		s.mu.Unlock()
		return
	}

	var startedAt time.Time
	if startTimer && rec.AnsweredAt != nil {
		startedAt = *rec.AnsweredAt
	}
	s.mu.Unlock()

	if startTimer {
		s.startDurationTimer(ev.CallID, startedAt)
	}
	if status.Terminal() {
		s.persistCall(snapshot)
	}

	s.statusListeners.Notify(s.log, StatusEvent{CallID: ev.CallID, Status: status})
}

// ============================================
// DURATION TIMER
// ============================================

// startDurationTimer begins ticking the active call's duration. Starting a
// new timer always stops the previous one first, so at most one interval is
// ever live.
func (s *CallService) startDurationTimer(callID string, startedAt time.Time) {
	s.mu.Lock()
	s.stopTimerLocked()
	stop := make(chan struct{})
	s.timerStop = stop
	s.timerCallID = callID
	s.timerStartedAt = startedAt
	tick := s.tick
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				duration := int(s.now().Sub(startedAt).Seconds())
				s.updateDuration(callID, duration)
			}
		}
	}()
}

func (s *CallService) stopTimerLocked() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
		s.timerCallID = ""
	}
}

func (s *CallService) timerRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerStop != nil
}

func (s *CallService) updateDuration(callID string, duration int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findLocked(callID)
	if rec == nil || rec.Status.Terminal() {
		return
	}
	rec.Duration = duration
}

// ============================================
// HISTORY & PERSISTENCE
// ============================================

func (s *CallService) addCallToHistory(rec *CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append([]*CallRecord{rec}, s.history...)
	if len(s.history) > maxHistorySize {
		s.history = s.history[:maxHistorySize]
	}
}

func (s *CallService) findLocked(callID string) *CallRecord {
	for _, r := range s.history {
		if r.ID == callID {
			return r
		}
	}
	return nil
}

// persistCall writes a terminal snapshot to durable storage. Failures are
// logged and swallowed: history persistence must never break the call flow.
func (s *CallService) persistCall(rec CallRecord) {
	s.mu.Lock()
	userID := s.userID
	st := s.store
	s.mu.Unlock()

	if userID == "" || st == nil {
		return
	}

	entry := &store.CallEntry{
		UserID:      userID,
		CallID:      rec.ID,
		Direction:   string(rec.Direction),
		PhoneNumber: rec.Number,
		Status:      string(rec.Status),
		Duration:    rec.Duration,
		StartedAt:   rec.CreatedAt,
		EndedAt:     rec.EndedAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.SaveCall(ctx, entry); err != nil {
		s.log.Error("failed to save call to store", "call_id", rec.ID, "error", err)
	}
}

func (s *CallService) now() time.Time {
	s.mu.Lock()
	fn := s.nowFn
	s.mu.Unlock()
	return fn()
}
