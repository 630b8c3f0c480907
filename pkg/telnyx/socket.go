package telnyx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/birddigital/telnyx-softphone/pkg/logger"
)

// ============================================
// WEBSOCKET SIGNALING
// JSON-RPC transport to the Telnyx realtime gateway
// ============================================

const (
	defaultGatewayURL = "wss://rtc.telnyx.com"
	requestTimeout    = 15 * time.Second
)

// Socket is the production Signaling implementation: a single gorilla
// websocket connection speaking the provider's JSON-RPC dialect. It does no
// framing beyond encode/decode and no reconnection of its own; the Client
// decides when to tear down and redial.
type Socket struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	pending map[int64]chan rpcResponse
	handler func(Event)
	done    chan struct{}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Err() error {
	return fmt.Errorf("gateway error (%d): %s", e.Code, e.Message)
}

// dialogParams mirrors the provider's call-scoped parameter object.
type dialogParams struct {
	CallID         string `json:"callID"`
	DestinationNum string `json:"destination_number,omitempty"`
	CallerIDNumber string `json:"caller_id_number,omitempty"`
	CallerIDName   string `json:"caller_id_name,omitempty"`
	Audio          bool   `json:"audio,omitempty"`
	Video          bool   `json:"video,omitempty"`
	Cause          string `json:"cause,omitempty"`
	Action         string `json:"action,omitempty"`
	DTMF           string `json:"dtmf,omitempty"`
	State          string `json:"state,omitempty"`
}

// NewSocket creates a signaling socket against the default Telnyx gateway.
func NewSocket(log *slog.Logger) *Socket {
	return &Socket{
		url: defaultGatewayURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log:     logger.Or(log),
		pending: make(map[int64]chan rpcResponse),
	}
}

// Notify sets the event handler. Must be called before Connect.
func (s *Socket) Notify(handler func(Event)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Connect dials the gateway, logs in with the SIP credentials and starts the
// read loop. Emits socket.connected once the websocket is up and ready once
// the login is acknowledged.
func (s *Socket) Connect(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("socket already connected")
	}
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(conn)
	s.emit(Event{Type: EventSocketConnected})

	loginParams := map[string]string{
		"login":  creds.Username,
		"passwd": creds.Password,
	}
	if _, err := s.call(ctx, "login", loginParams); err != nil {
		_ = s.Disconnect(ctx)
		return fmt.Errorf("login: %w", err)
	}

	s.emit(Event{Type: EventReady})
	return nil
}

// Disconnect closes the websocket. Idempotent.
func (s *Socket) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Invite starts an outbound call and returns the client-generated call id.
func (s *Socket) Invite(ctx context.Context, params InviteParams) (string, error) {
	callID := uuid.New().String()
	req := struct {
		DialogParams dialogParams `json:"dialogParams"`
	}{dialogParams{
		CallID:         callID,
		DestinationNum: params.DestinationNumber,
		CallerIDNumber: params.CallerNumber,
		CallerIDName:   params.CallerName,
		Audio:          params.Audio,
		Video:          params.Video,
	}}

	if _, err := s.call(ctx, "telnyx_rtc.invite", req); err != nil {
		return "", err
	}

	s.emit(Event{Type: EventCallCreated, CallID: callID})
	return callID, nil
}

// Answer accepts an inbound call.
func (s *Socket) Answer(ctx context.Context, callID string) error {
	return s.dialogCall(ctx, "telnyx_rtc.answer", dialogParams{CallID: callID})
}

// Reject declines an inbound call.
func (s *Socket) Reject(ctx context.Context, callID string) error {
	return s.dialogCall(ctx, "telnyx_rtc.bye", dialogParams{CallID: callID, Cause: "CALL_REJECTED"})
}

// Hangup terminates a call.
func (s *Socket) Hangup(ctx context.Context, callID string) error {
	return s.dialogCall(ctx, "telnyx_rtc.bye", dialogParams{CallID: callID, Cause: "NORMAL_CLEARING"})
}

// SetMute toggles the local audio track.
func (s *Socket) SetMute(ctx context.Context, callID string, muted bool) error {
	action := "mute"
	if !muted {
		action = "unmute"
	}
	return s.dialogCall(ctx, "telnyx_rtc.modify", dialogParams{CallID: callID, Action: action})
}

// SendDTMF sends in-call keypad tones.
func (s *Socket) SendDTMF(ctx context.Context, callID, digits string) error {
	return s.dialogCall(ctx, "telnyx_rtc.info", dialogParams{CallID: callID, DTMF: digits})
}

func (s *Socket) dialogCall(ctx context.Context, method string, dp dialogParams) error {
	req := struct {
		DialogParams dialogParams `json:"dialogParams"`
	}{dp}
	_, err := s.call(ctx, method, req)
	return err
}

// call sends one JSON-RPC request and waits for the matching response.
func (s *Socket) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("socket not connected")
	}
	s.nextID++
	id := s.nextID
	ch := make(chan rpcResponse, 1)
	s.pending[id] = ch
	done := s.done

	writeErr := conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	})
	s.mu.Unlock()

	if writeErr != nil {
		s.dropPending(id)
		return nil, fmt.Errorf("write %s: %w", method, writeErr)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error.Err()
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case <-done:
		return nil, fmt.Errorf("socket closed while waiting for %s", method)
	case <-timer.C:
		s.dropPending(id)
		return nil, fmt.Errorf("timed out waiting for %s response", method)
	}
}

func (s *Socket) dropPending(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// readLoop decodes frames until the connection drops, routing responses to
// pending requests and server-initiated methods to the event handler.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		var msg rpcResponse
		if err := conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			if s.done != nil {
				close(s.done)
				s.done = nil
			}
			s.mu.Unlock()
			s.emit(Event{Type: EventSocketDisconnected})
			return
		}

		if msg.ID != nil && msg.Method == "" {
			s.mu.Lock()
			ch, ok := s.pending[*msg.ID]
			if ok {
				delete(s.pending, *msg.ID)
			}
			s.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}

		s.dispatch(msg)
	}
}

// dispatch maps server-initiated JSON-RPC methods onto signaling events.
func (s *Socket) dispatch(msg rpcResponse) {
	var params struct {
		CallID         string `json:"callID"`
		CallerIDNumber string `json:"caller_id_number"`
		CallerIDName   string `json:"caller_id_name"`
		State          string `json:"state"`
	}
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.log.Warn("unparseable gateway notification", "method", msg.Method, "error", err)
			return
		}
	}

	switch msg.Method {
	case "telnyx_rtc.invite":
		s.emit(Event{
			Type:         EventCallReceived,
			CallID:       params.CallID,
			CallerNumber: params.CallerIDNumber,
			CallerName:   params.CallerIDName,
		})
	case "telnyx_rtc.ringing":
		s.emit(Event{Type: EventCallState, CallID: params.CallID, State: CallStateRinging})
	case "telnyx_rtc.answer":
		s.emit(Event{Type: EventCallState, CallID: params.CallID, State: CallStateAnswered})
	case "telnyx_rtc.media":
		s.emit(Event{Type: EventCallState, CallID: params.CallID, State: CallStateActive})
	case "telnyx_rtc.bye":
		s.emit(Event{Type: EventCallState, CallID: params.CallID, State: CallStateEnded})
	default:
		s.log.Debug("ignoring gateway notification", "method", msg.Method)
	}
}

func (s *Socket) emit(ev Event) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}
