package softphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/birddigital/telnyx-softphone/pkg/logger"
	"github.com/birddigital/telnyx-softphone/pkg/messaging"
	"github.com/birddigital/telnyx-softphone/pkg/store"
	"github.com/birddigital/telnyx-softphone/pkg/telephony"
	"github.com/birddigital/telnyx-softphone/pkg/telnyx"
)

// Tab identifies the screen the user is looking at.
type Tab string

const (
	TabDialer   Tab = "dialer"
	TabHistory  Tab = "history"
	TabContacts Tab = "contacts"
	TabMessages Tab = "messages"
	TabSettings Tab = "settings"
)

// CallView is the coarse call state mirrored into view state. It is derived
// purely from the latest coordinator event, never polled independently.
type CallView string

const (
	CallIdle    CallView = "idle"
	CallRinging CallView = "ringing"
	CallOngoing CallView = "ongoing"
)

// Session is the slice of the telnyx client the shell drives directly.
type Session interface {
	Initialize(ctx context.Context, creds telnyx.Credentials) error
	OnSocketStatus(fn func(telnyx.SocketStatus)) func()
	Disconnect(ctx context.Context)
}

// Coordinator is the slice of the call coordinator the shell drives.
type Coordinator interface {
	Initialize(cfg telephony.Config)
	MakeCall(ctx context.Context, destination string, opts telnyx.CallOptions) (*telnyx.Call, error)
	AnswerCall(ctx context.Context) bool
	RejectCall(ctx context.Context) bool
	EndCall(ctx context.Context) bool
	ToggleMute(ctx context.Context, mute bool) bool
	SendDTMF(ctx context.Context, digit string) bool
	OnCallStatus(fn func(telephony.StatusEvent)) func()
	History() []telephony.CallRecord
	Close()
}

// Messenger is the slice of the SMS service the shell drives.
type Messenger interface {
	Initialize(apiKey, messagingProfileID, defaultFromNumber string) error
	SendSMS(ctx context.Context, to, text, from string) (*messaging.Message, error)
}

// App is the headless top-level screen state: it wires user actions to the
// coordinator and messaging client and mirrors connection/call status into
// view state for whatever front end sits on top.
type App struct {
	mu sync.Mutex

	session Session
	calls   Coordinator
	sms     Messenger
	store   store.Store
	outbox  *messaging.Outbox
	log     *slog.Logger

	userID      string
	tab         Tab
	callView    CallView
	muted       bool
	connStatus  telnyx.SocketStatus
	initialized bool

	contacts []store.Contact

	unsubSocket func()
	unsubStatus func()
}

// New assembles the shell from explicitly constructed services.
func New(session Session, calls Coordinator, sms Messenger, st store.Store, log *slog.Logger) *App {
	return &App{
		session:    session,
		calls:      calls,
		sms:        sms,
		store:      st,
		outbox:     messaging.NewOutbox(),
		log:        logger.Or(log),
		tab:        TabDialer,
		callView:   CallIdle,
		connStatus: telnyx.SocketDisconnected,
	}
}

// Start loads the user's stored profile and, when SIP credentials are
// present and the shell has not yet initialized this process, brings the
// telephony and messaging services up. A missing profile is not an error:
// the user simply has not saved settings yet.
func (a *App) Start(ctx context.Context, userID string) error {
	a.mu.Lock()
	a.userID = userID
	already := a.initialized
	a.mu.Unlock()
	if already {
		return nil
	}

	profile, err := a.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Info("no stored profile, waiting for settings", "user_id", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("softphone: load profile: %w", err)
	}

	if profile.SIPUsername == "" || profile.SIPPassword == "" {
		a.log.Info("profile has no SIP credentials, waiting for settings", "user_id", userID)
		return nil
	}

	return a.initializeServices(ctx, profile)
}

// SaveSettings persists the profile and re-triggers initialization with the
// new credentials.
func (a *App) SaveSettings(ctx context.Context, profile *store.Profile) error {
	a.mu.Lock()
	profile.UserID = a.userID
	a.mu.Unlock()

	if err := a.store.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("softphone: save profile: %w", err)
	}
	return a.initializeServices(ctx, profile)
}

func (a *App) initializeServices(ctx context.Context, profile *store.Profile) error {
	a.mu.Lock()
	userID := a.userID
	if a.unsubSocket != nil {
		a.unsubSocket()
		a.unsubSocket = nil
	}
	if a.unsubStatus != nil {
		a.unsubStatus()
		a.unsubStatus = nil
	}
	a.mu.Unlock()

	err := a.session.Initialize(ctx, telnyx.Credentials{
		Username: profile.SIPUsername,
		Password: profile.SIPPassword,
	})
	if err != nil {
		return fmt.Errorf("softphone: initialize session: %w", err)
	}

	a.calls.Initialize(telephony.Config{
		UserID:          userID,
		DefaultCallerID: profile.CallerIDNumber,
	})

	if profile.APIKey != "" && profile.MessagingProfileID != "" {
		if err := a.sms.Initialize(profile.APIKey, profile.MessagingProfileID, profile.CallerIDNumber); err != nil {
			// Calls still work without messaging; surface it in the log only.
			a.log.Warn("SMS service not configured", "error", err)
		}
	}

	// Subscribe once per initialization; Disconnect clears the session's
	// registries so stale subscriptions never outlive a reconnect.
	unsubSocket := a.session.OnSocketStatus(a.handleSocketStatus)
	unsubStatus := a.calls.OnCallStatus(a.handleCallStatus)

	a.mu.Lock()
	a.unsubSocket = unsubSocket
	a.unsubStatus = unsubStatus
	a.initialized = true
	a.mu.Unlock()

	return nil
}

// Stop tears the services down. Idempotent.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	if a.unsubStatus != nil {
		a.unsubStatus()
		a.unsubStatus = nil
	}
	a.unsubSocket = nil // cleared by session.Disconnect
	a.initialized = false
	a.mu.Unlock()

	a.calls.Close()
	a.session.Disconnect(ctx)
}

// ============================================
// USER ACTIONS
// ============================================

// Dial places an outbound call and flips the view to ongoing on success.
func (a *App) Dial(ctx context.Context, number string) error {
	a.mu.Lock()
	ready := a.initialized
	a.mu.Unlock()
	if !ready {
		return telnyx.ErrNotInitialized
	}

	_, err := a.calls.MakeCall(ctx, number, telnyx.CallOptions{})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.callView = CallOngoing
	a.muted = false
	a.mu.Unlock()
	return nil
}

// Answer accepts the ringing call.
func (a *App) Answer(ctx context.Context) bool {
	ok := a.calls.AnswerCall(ctx)
	if ok {
		a.mu.Lock()
		a.callView = CallOngoing
		a.mu.Unlock()
	}
	return ok
}

// Reject declines the ringing call.
func (a *App) Reject(ctx context.Context) bool {
	ok := a.calls.RejectCall(ctx)
	if ok {
		a.mu.Lock()
		a.callView = CallIdle
		a.mu.Unlock()
	}
	return ok
}

// HangUp ends the ongoing call.
func (a *App) HangUp(ctx context.Context) bool {
	ok := a.calls.EndCall(ctx)
	if ok {
		a.mu.Lock()
		a.callView = CallIdle
		a.muted = false
		a.mu.Unlock()
	}
	return ok
}

// ToggleMute flips the mute flag when the underlying operation succeeds.
func (a *App) ToggleMute(ctx context.Context) bool {
	a.mu.Lock()
	target := !a.muted
	a.mu.Unlock()

	ok := a.calls.ToggleMute(ctx, target)
	if ok {
		a.mu.Lock()
		a.muted = target
		a.mu.Unlock()
	}
	return ok
}

// SendDigit sends a DTMF tone on the ongoing call.
func (a *App) SendDigit(ctx context.Context, digit string) bool {
	return a.calls.SendDTMF(ctx, digit)
}

// SendMessage sends an SMS through the outbox reconciliation cycle: the
// message is recorded with a temporary id and sending status, then updated
// in place with the provider id on success or marked failed on error. The
// durable sms_history write is best-effort.
func (a *App) SendMessage(ctx context.Context, to, text string) (messaging.OutboxMessage, error) {
	pending := a.outbox.Append(to, text)

	sent, err := a.sms.SendSMS(ctx, to, text, "")
	if err != nil {
		a.outbox.MarkFailed(pending.ID)
		a.log.Error("failed to send SMS", "to", to, "error", err)
		msg, _ := a.outboxByID(pending.ID)
		return msg, err
	}

	a.outbox.MarkSent(pending.ID, sent.ID, sent.Status)
	msg, _ := a.outboxByID(sent.ID)

	a.mu.Lock()
	userID := a.userID
	a.mu.Unlock()
	if userID != "" {
		entry := &store.SMSEntry{
			UserID:     userID,
			ProviderID: sent.ID,
			Direction:  "outgoing",
			ToNumber:   to,
			Text:       text,
			Status:     msg.Status,
		}
		if err := a.store.SaveMessage(ctx, entry); err != nil {
			a.log.Error("failed to save message to store", "error", err)
		}
	}

	return msg, nil
}

// Messages returns the outbox view, oldest first.
func (a *App) Messages() []messaging.OutboxMessage {
	return a.outbox.Messages()
}

// ============================================
// CONTACTS
// ============================================

// RefreshContacts refetches the contact list from durable storage.
func (a *App) RefreshContacts(ctx context.Context) ([]store.Contact, error) {
	contacts, err := a.store.ListContacts(ctx, a.currentUserID())
	if err != nil {
		return nil, fmt.Errorf("softphone: list contacts: %w", err)
	}

	a.mu.Lock()
	a.contacts = contacts
	a.mu.Unlock()
	return contacts, nil
}

// AddContact creates a contact and refetches the list.
func (a *App) AddContact(ctx context.Context, c *store.Contact) error {
	c.UserID = a.currentUserID()
	if err := a.store.CreateContact(ctx, c); err != nil {
		return fmt.Errorf("softphone: create contact: %w", err)
	}
	_, err := a.RefreshContacts(ctx)
	return err
}

// UpdateContact replaces a contact and refetches the list.
func (a *App) UpdateContact(ctx context.Context, c *store.Contact) error {
	c.UserID = a.currentUserID()
	if err := a.store.UpdateContact(ctx, c); err != nil {
		return fmt.Errorf("softphone: update contact: %w", err)
	}
	_, err := a.RefreshContacts(ctx)
	return err
}

// RemoveContact deletes a contact and refetches the list.
func (a *App) RemoveContact(ctx context.Context, contactID string) error {
	if err := a.store.DeleteContact(ctx, a.currentUserID(), contactID); err != nil {
		return fmt.Errorf("softphone: delete contact: %w", err)
	}
	_, err := a.RefreshContacts(ctx)
	return err
}

// ============================================
// VIEW STATE
// ============================================

// SetTab switches the active screen.
func (a *App) SetTab(tab Tab) {
	a.mu.Lock()
	a.tab = tab
	a.mu.Unlock()
}

// Tab returns the active screen.
func (a *App) Tab() Tab {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tab
}

// CallState returns the derived call view state.
func (a *App) CallState() CallView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callView
}

// Muted reports the mute flag.
func (a *App) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// ConnectionStatus returns the last observed socket status.
func (a *App) ConnectionStatus() telnyx.SocketStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connStatus
}

// Initialized reports whether the services have been brought up.
func (a *App) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// History exposes the coordinator's recent-call list.
func (a *App) History() []telephony.CallRecord {
	return a.calls.History()
}

func (a *App) handleSocketStatus(status telnyx.SocketStatus) {
	a.mu.Lock()
	a.connStatus = status
	a.mu.Unlock()
}

func (a *App) handleCallStatus(ev telephony.StatusEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Status {
	case telephony.StatusRinging:
		a.callView = CallRinging
	case telephony.StatusDialing, telephony.StatusAnswered, telephony.StatusActive:
		a.callView = CallOngoing
	case telephony.StatusEnded, telephony.StatusRejected, telephony.StatusMissed:
		a.callView = CallIdle
		a.muted = false
	}
}

func (a *App) currentUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

func (a *App) outboxByID(id string) (messaging.OutboxMessage, bool) {
	for _, m := range a.outbox.Messages() {
		if m.ID == id {
			return m, true
		}
	}
	return messaging.OutboxMessage{}, false
}
