package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*SMSService, *int64) {
	t.Helper()
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	s := NewSMSService(nil)
	s.baseURL = srv.URL
	return s, &requests
}

func TestInitialize_Validation(t *testing.T) {
	s := NewSMSService(nil)
	assert.Error(t, s.Initialize("", "profile-1", ""))
	assert.Error(t, s.Initialize("key-1", "", ""))
	assert.NoError(t, s.Initialize("key-1", "profile-1", ""))
}

func TestSendSMS_NotInitialized(t *testing.T) {
	s, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})

	msg, err := s.SendSMS(context.Background(), "+15551234567", "hello", "")
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.EqualValues(t, 0, atomic.LoadInt64(requests))
}

func TestHistory_NotInitialized(t *testing.T) {
	s, requests := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := s.History(context.Background(), HistoryFilter{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.EqualValues(t, 0, atomic.LoadInt64(requests))
}

func TestSendSMS(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]string

	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/messages", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"m1","status":"queued","to":"+15551234567"}}`)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", "+15550001111"))

	msg, err := s.SendSMS(context.Background(), "+15551234567", "hello there", "")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "queued", msg.Status)
	assert.Equal(t, "Bearer key-1", gotAuth)
	assert.Equal(t, map[string]string{
		"from":                 "+15550001111",
		"to":                   "+15551234567",
		"text":                 "hello there",
		"messaging_profile_id": "profile-1",
	}, gotPayload)
}

func TestSendSMS_ExplicitFromOverridesDefault(t *testing.T) {
	var gotPayload map[string]string
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"data":{"id":"m1","status":"queued"}}`)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", "+15550001111"))

	_, err := s.SendSMS(context.Background(), "+15551234567", "hi", "+15559998888")
	require.NoError(t, err)
	assert.Equal(t, "+15559998888", gotPayload["from"])
}

func TestSendSMS_ProviderError(t *testing.T) {
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"errors":[{"code":"40300","title":"Invalid destination","detail":"not a phone number"}]}`)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", ""))

	msg, err := s.SendSMS(context.Background(), "bogus", "hello", "")
	assert.Nil(t, msg)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "40300", apiErr.Errors[0].Code)
	assert.Contains(t, apiErr.Error(), "Invalid destination")
}

func TestSendSMS_ErrorWithoutBody(t *testing.T) {
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", ""))

	_, err := s.SendSMS(context.Background(), "+15551234567", "hello", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, apiErr.Errors)
}

func TestHistory_QueryParams(t *testing.T) {
	var gotQuery map[string][]string
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"data":[{"id":"m1","direction":"outbound"},{"id":"m2","direction":"inbound"}]}`)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", ""))

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	msgs, err := s.History(context.Background(), HistoryFilter{
		PageSize:   25,
		PageNumber: 2,
		From:       "+1555000",
		To:         "+1555111",
		StartTime:  start,
		EndTime:    end,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)

	assert.Equal(t, []string{"25"}, gotQuery["page[size]"])
	assert.Equal(t, []string{"2"}, gotQuery["page[number]"])
	assert.Equal(t, []string{"+1555000"}, gotQuery["filter[from][contains]"])
	assert.Equal(t, []string{"+1555111"}, gotQuery["filter[to][contains]"])
	assert.Equal(t, []string{"2025-06-01T00:00:00Z"}, gotQuery["filter[time_created][gte]"])
	assert.Equal(t, []string{"2025-06-02T00:00:00Z"}, gotQuery["filter[time_created][lte]"])
}

func TestHistory_EmptyFilterSendsNoParams(t *testing.T) {
	var gotRawQuery string
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"data":[]}`)
	})
	require.NoError(t, s.Initialize("key-1", "profile-1", ""))

	msgs, err := s.History(context.Background(), HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, gotRawQuery)
}
