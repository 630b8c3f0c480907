package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/birddigital/telnyx-softphone/pkg/logger"
)

const defaultBaseURL = "https://api.telnyx.com"

// ErrNotInitialized is returned when SendSMS or History is called before
// Initialize. No network request is made in that case.
var ErrNotInitialized = errors.New("messaging: SMS service not initialized")

// Message is the provider's message resource, as returned from the v2
// messages endpoint.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	Status    string `json:"status,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// ProviderError is a single error object from the provider's error payload.
type ProviderError struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// APIError carries the provider's error payload for a non-success response.
type APIError struct {
	StatusCode int
	Errors     []ProviderError
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("telnyx API error (%d): %s", e.StatusCode, e.Errors[0].Title)
	}
	return fmt.Sprintf("telnyx API error (%d)", e.StatusCode)
}

// HistoryFilter narrows a message-history request. The contract is pure
// request/response: no cursor is retained between calls, resubmit the full
// filter for each page.
type HistoryFilter struct {
	PageSize   int
	PageNumber int
	From       string
	To         string
	StartTime  time.Time
	EndTime    time.Time
}

// SMSService is a stateless request wrapper around the provider's messaging
// REST endpoint. Initialize must succeed before any request is issued.
type SMSService struct {
	mu sync.Mutex

	apiKey             string
	messagingProfileID string
	defaultFromNumber  string
	initialized        bool

	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewSMSService creates an uninitialized SMS service.
func NewSMSService(log *slog.Logger) *SMSService {
	return &SMSService{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.Or(log),
	}
}

// Initialize configures the service with the user's API key and messaging
// profile. Both are required.
func (s *SMSService) Initialize(apiKey, messagingProfileID, defaultFromNumber string) error {
	if apiKey == "" {
		return errors.New("messaging: API key is required")
	}
	if messagingProfileID == "" {
		return errors.New("messaging: messaging profile ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
	s.messagingProfileID = messagingProfileID
	s.defaultFromNumber = defaultFromNumber
	if s.defaultFromNumber == "" {
		s.defaultFromNumber = "+15815080022"
	}
	s.initialized = true
	return nil
}

// SendSMS sends one text message and returns the provider's message
// resource, including the assigned id and status.
func (s *SMSService) SendSMS(ctx context.Context, to, text, from string) (*Message, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	apiKey := s.apiKey
	profileID := s.messagingProfileID
	if from == "" {
		from = s.defaultFromNumber
	}
	s.mu.Unlock()

	payload := map[string]string{
		"from":                 from,
		"to":                   to,
		"text":                 text,
		"messaging_profile_id": profileID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}

	var envelope struct {
		Data Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &envelope.Data, nil
}

// History retrieves sent/received messages matching the filter.
func (s *SMSService) History(ctx context.Context, filter HistoryFilter) ([]Message, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	apiKey := s.apiKey
	s.mu.Unlock()

	params := url.Values{}
	if filter.PageSize > 0 {
		params.Set("page[size]", strconv.Itoa(filter.PageSize))
	}
	if filter.PageNumber > 0 {
		params.Set("page[number]", strconv.Itoa(filter.PageNumber))
	}
	if filter.From != "" {
		params.Set("filter[from][contains]", filter.From)
	}
	if filter.To != "" {
		params.Set("filter[to][contains]", filter.To)
	}
	if !filter.StartTime.IsZero() {
		params.Set("filter[time_created][gte]", filter.StartTime.Format(time.RFC3339))
	}
	if !filter.EndTime.IsZero() {
		params.Set("filter[time_created][lte]", filter.EndTime.Format(time.RFC3339))
	}

	reqURL := s.baseURL + "/v2/messages"
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get SMS history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var envelope struct {
		Data []Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return envelope.Data, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}
	var payload struct {
		Errors []ProviderError `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Errors = payload.Errors
	}
	return apiErr
}
