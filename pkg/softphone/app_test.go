package softphone

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/telnyx-softphone/pkg/messaging"
	"github.com/birddigital/telnyx-softphone/pkg/store"
	"github.com/birddigital/telnyx-softphone/pkg/telephony"
	"github.com/birddigital/telnyx-softphone/pkg/telnyx"
)

type fakeSession struct {
	mu        sync.Mutex
	initCount int
	lastCreds telnyx.Credentials
	failInit  bool
	listeners telnyx.ListenerList[telnyx.SocketStatus]
}

func (f *fakeSession) Initialize(ctx context.Context, creds telnyx.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInit {
		return errors.New("connect refused")
	}
	f.initCount++
	f.lastCreds = creds
	return nil
}

func (f *fakeSession) OnSocketStatus(fn func(telnyx.SocketStatus)) func() {
	return f.listeners.Add(fn)
}

func (f *fakeSession) Disconnect(ctx context.Context) {
	f.listeners.Clear()
}

func (f *fakeSession) emitStatus(s telnyx.SocketStatus) {
	f.listeners.Notify(nil, s)
}

type fakeCoordinator struct {
	mu        sync.Mutex
	cfg       telephony.Config
	initCount int
	closed    bool
	failMake  bool
	lastDial  string
	ops       map[string]int
	listeners telnyx.ListenerList[telephony.StatusEvent]
	history   []telephony.CallRecord
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{ops: make(map[string]int)}
}

func (f *fakeCoordinator) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[op]++
}

func (f *fakeCoordinator) Initialize(cfg telephony.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.initCount++
}

func (f *fakeCoordinator) MakeCall(ctx context.Context, destination string, opts telnyx.CallOptions) (*telnyx.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMake {
		return nil, errors.New("invite refused")
	}
	f.lastDial = destination
	return telnyx.NewCall("call-1", telnyx.DirectionOutgoing, destination, "", telnyx.CallStateDialing), nil
}

func (f *fakeCoordinator) AnswerCall(ctx context.Context) bool { f.record("answer"); return true }
func (f *fakeCoordinator) RejectCall(ctx context.Context) bool { f.record("reject"); return true }
func (f *fakeCoordinator) EndCall(ctx context.Context) bool    { f.record("end"); return true }
func (f *fakeCoordinator) ToggleMute(ctx context.Context, mute bool) bool {
	f.record("mute")
	return true
}
func (f *fakeCoordinator) SendDTMF(ctx context.Context, digit string) bool {
	f.record("dtmf")
	return true
}

func (f *fakeCoordinator) OnCallStatus(fn func(telephony.StatusEvent)) func() {
	return f.listeners.Add(fn)
}

func (f *fakeCoordinator) History() []telephony.CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

func (f *fakeCoordinator) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeCoordinator) emitStatus(ev telephony.StatusEvent) {
	f.listeners.Notify(nil, ev)
}

type fakeMessenger struct {
	mu        sync.Mutex
	initCount int
	failSend  bool
	reply     *messaging.Message
}

func (f *fakeMessenger) Initialize(apiKey, messagingProfileID, defaultFromNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if apiKey == "" || messagingProfileID == "" {
		return errors.New("missing credentials")
	}
	f.initCount++
	return nil
}

func (f *fakeMessenger) SendSMS(ctx context.Context, to, text, from string) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return nil, errors.New("provider rejected message")
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &messaging.Message{ID: "m1", To: to, Text: text, Status: "queued"}, nil
}

type appFixture struct {
	app     *App
	session *fakeSession
	calls   *fakeCoordinator
	sms     *fakeMessenger
	store   *store.MemoryStore
}

func newFixture(t *testing.T) *appFixture {
	t.Helper()
	f := &appFixture{
		session: &fakeSession{},
		calls:   newFakeCoordinator(),
		sms:     &fakeMessenger{},
		store:   store.NewMemoryStore(),
	}
	f.app = New(f.session, f.calls, f.sms, f.store, nil)
	return f
}

func (f *appFixture) seedProfile(t *testing.T, p store.Profile) {
	t.Helper()
	require.NoError(t, f.store.UpsertProfile(context.Background(), &p))
}

func fullProfile() store.Profile {
	return store.Profile{
		UserID:             "user-1",
		SIPUsername:        "sip-user",
		SIPPassword:        "sip-pass",
		APIKey:             "key-1",
		MessagingProfileID: "profile-1",
		CallerIDNumber:     "+15550001111",
	}
}

func TestStart_NoProfile(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	assert.False(t, f.app.Initialized())
	assert.Equal(t, 0, f.session.initCount)
}

func TestStart_ProfileWithoutSIPCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, store.Profile{UserID: "user-1", APIKey: "key-1"})

	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	assert.False(t, f.app.Initialized())
}

func TestStart_AutoInitializes(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())

	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	assert.True(t, f.app.Initialized())
	assert.Equal(t, 1, f.session.initCount)
	assert.Equal(t, "sip-user", f.session.lastCreds.Username)
	assert.Equal(t, "user-1", f.calls.cfg.UserID)
	assert.Equal(t, "+15550001111", f.calls.cfg.DefaultCallerID)
	assert.Equal(t, 1, f.sms.initCount)
}

func TestStart_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())

	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	assert.Equal(t, 1, f.session.initCount)
}

func TestStart_SessionFailure(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	f.session.failInit = true

	assert.Error(t, f.app.Start(context.Background(), "user-1"))
	assert.False(t, f.app.Initialized())
}

func TestStart_MessagingFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	p := fullProfile()
	p.APIKey = "" // messaging cannot initialize
	f.seedProfile(t, p)

	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	assert.True(t, f.app.Initialized())
	assert.Equal(t, 0, f.sms.initCount)
}

func TestSaveSettings_PersistsAndInitializes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	require.False(t, f.app.Initialized())

	p := fullProfile()
	require.NoError(t, f.app.SaveSettings(context.Background(), &p))

	assert.True(t, f.app.Initialized())
	saved, err := f.store.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sip-user", saved.SIPUsername)
}

func TestDial(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	require.NoError(t, f.app.Dial(context.Background(), "+15551234567"))
	assert.Equal(t, "+15551234567", f.calls.lastDial)
	assert.Equal(t, CallOngoing, f.app.CallState())
}

func TestDial_NotInitialized(t *testing.T) {
	f := newFixture(t)
	err := f.app.Dial(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, telnyx.ErrNotInitialized)
}

func TestDial_Failure(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	f.calls.failMake = true

	assert.Error(t, f.app.Dial(context.Background(), "+15551234567"))
	assert.Equal(t, CallIdle, f.app.CallState())
}

func TestCallViewFollowsStatusEvents(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	f.calls.emitStatus(telephony.StatusEvent{CallID: "in-1", Status: telephony.StatusRinging})
	assert.Equal(t, CallRinging, f.app.CallState())

	f.calls.emitStatus(telephony.StatusEvent{CallID: "in-1", Status: telephony.StatusAnswered})
	assert.Equal(t, CallOngoing, f.app.CallState())

	require.True(t, f.app.ToggleMute(context.Background()))
	require.True(t, f.app.Muted())

	f.calls.emitStatus(telephony.StatusEvent{CallID: "in-1", Status: telephony.StatusEnded})
	assert.Equal(t, CallIdle, f.app.CallState())
	// Mute resets when the call ends.
	assert.False(t, f.app.Muted())
}

func TestConnectionStatusMirrored(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	assert.Equal(t, telnyx.SocketDisconnected, f.app.ConnectionStatus())
	f.session.emitStatus(telnyx.SocketReady)
	assert.Equal(t, telnyx.SocketReady, f.app.ConnectionStatus())
}

func TestAnswerRejectHangUp(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	ctx := context.Background()

	assert.True(t, f.app.Answer(ctx))
	assert.Equal(t, CallOngoing, f.app.CallState())

	assert.True(t, f.app.HangUp(ctx))
	assert.Equal(t, CallIdle, f.app.CallState())

	assert.True(t, f.app.Reject(ctx))
	assert.True(t, f.app.SendDigit(ctx, "5"))
	assert.Equal(t, 1, f.calls.ops["dtmf"])
}

func TestSendMessage_Reconciles(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	msg, err := f.app.SendMessage(context.Background(), "+15551234567", "hello")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "queued", msg.Status)

	msgs := f.app.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	// The send was persisted to durable history.
	entries, err := f.store.ListMessages(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ProviderID)
	assert.Equal(t, "hello", entries[0].Text)
}

func TestSendMessage_FailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	f.sms.failSend = true

	msg, err := f.app.SendMessage(context.Background(), "+15551234567", "hello")
	require.Error(t, err)

	// The record is kept, marked failed, still under its temporary id.
	assert.Equal(t, messaging.MessageFailed, msg.Status)
	msgs := f.app.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, messaging.MessageFailed, msgs[0].Status)

	entries, err := f.store.ListMessages(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContacts(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))
	ctx := context.Background()

	c := &store.Contact{Name: "Alice", PhoneNumber: "+15550000001"}
	require.NoError(t, f.app.AddContact(ctx, c))

	contacts, err := f.app.RefreshContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "user-1", contacts[0].UserID)

	c.Notes = "colleague"
	require.NoError(t, f.app.UpdateContact(ctx, c))
	contacts, _ = f.app.RefreshContacts(ctx)
	assert.Equal(t, "colleague", contacts[0].Notes)

	require.NoError(t, f.app.RemoveContact(ctx, c.ID))
	contacts, _ = f.app.RefreshContacts(ctx)
	assert.Empty(t, contacts)

	assert.Error(t, f.app.RemoveContact(ctx, "missing"))
}

func TestTabs(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, TabDialer, f.app.Tab())
	f.app.SetTab(TabMessages)
	assert.Equal(t, TabMessages, f.app.Tab())
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, fullProfile())
	require.NoError(t, f.app.Start(context.Background(), "user-1"))

	f.app.Stop(context.Background())

	assert.False(t, f.app.Initialized())
	assert.True(t, f.calls.closed)

	// Coordinator events no longer reach the shell.
	f.calls.emitStatus(telephony.StatusEvent{CallID: "in-1", Status: telephony.StatusRinging})
	assert.Equal(t, CallIdle, f.app.CallState())
}
