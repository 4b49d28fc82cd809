package africastalking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentBody = `{"SMSMessageData":{"Message":"Sent to 2/2 Total Cost: KES 1.6000","Recipients":[
{"statusCode":101,"number":"+254711000001","status":"Success","cost":"KES 0.8000","messageId":"ATXid_1"},
{"statusCode":101,"number":"+254711000002","status":"Success","cost":"KES 0.8000","messageId":"ATXid_2"}]}}`

func TestSendSMS_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/version1/messaging", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apiKey"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sandbox", r.PostForm.Get("username"))
		assert.Equal(t, "+254711000001,+254711000002", r.PostForm.Get("to"))
		assert.Equal(t, "Maize: KSh 3,500", r.PostForm.Get("message"))
		assert.Equal(t, "SokoPrice", r.PostForm.Get("from"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(sentBody)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("sandbox", "test-key", WithBaseURL(srv.URL+"/"))
	got, err := client.SendSMS(context.Background(), SendRequest{
		To:      []string{"+254711000001", "+254711000002"},
		Message: "Maize: KSh 3,500",
		From:    "SokoPrice",
	})

	require.NoError(t, err)
	require.Len(t, got.SMSMessageData.Recipients, 2)
	assert.Equal(t, "ATXid_1", got.SMSMessageData.Recipients[0].MessageID)
	assert.True(t, got.SMSMessageData.Recipients[1].Accepted())
}

func TestSendSMS_OmitsEmptySender(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, ok := r.PostForm["from"]
		assert.False(t, ok)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"SMSMessageData":{"Recipients":[]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("acct", "k", WithBaseURL(srv.URL))
	_, err := client.SendSMS(context.Background(), SendRequest{To: []string{"+254711000001"}, Message: "hi"})
	require.NoError(t, err)
}

func TestSendSMS_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance")) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("acct", "k", WithBaseURL(srv.URL))
	_, err := client.SendSMS(context.Background(), SendRequest{To: []string{"+254711000001"}, Message: "hi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "maintenance", apiErr.Body)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus())
	assert.Zero(t, apiErr.RetryAfter())
}

func TestSendSMS_RetryAfter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("acct", "k", WithBaseURL(srv.URL))
	_, err := client.SendSMS(context.Background(), SendRequest{To: []string{"+254711000001"}, Message: "hi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 7*time.Second, apiErr.RetryAfter())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestSendSMS_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("acct", "k", WithBaseURL(srv.URL))
	_, err := client.SendSMS(context.Background(), SendRequest{To: []string{"+254711000001"}, Message: "hi"})
	assert.ErrorContains(t, err, "decode response")
}

func TestSendSMS_RecipientLimits(t *testing.T) {
	t.Parallel()

	client := NewClient("acct", "k", WithBaseURL("http://127.0.0.1:0"))

	_, err := client.SendSMS(context.Background(), SendRequest{Message: "hi"})
	assert.ErrorContains(t, err, "no recipients")

	to := strings.Split(strings.Repeat("+254711000001,", MaxRecipients+1), ",")
	_, err = client.SendSMS(context.Background(), SendRequest{To: to[:MaxRecipients+1], Message: "hi"})
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestSendSMS_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"SMSMessageData":{"Recipients":[]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("acct", "k", WithBaseURL(srv.URL), WithRateLimit(0.1))
	req := SendRequest{To: []string{"+254711000001"}, Message: "hi"}

	_, err := client.SendSMS(context.Background(), req)
	require.NoError(t, err)

	// The single token is spent; the next call would wait ten seconds.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.SendSMS(ctx, req)
	assert.ErrorContains(t, err, "rate limit wait")
}

func TestNewClient_HostSelection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SandboxURL, NewClient("sandbox", "k").(*httpClient).baseURL)
	assert.Equal(t, ProductionURL, NewClient("sokoprice", "k").(*httpClient).baseURL)
	assert.Equal(t, "http://gw.local", NewClient("sokoprice", "k", WithBaseURL("http://gw.local")).(*httpClient).BaseURL())
}
