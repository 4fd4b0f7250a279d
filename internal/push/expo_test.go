package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExpoClient_Send(t *testing.T) {
	var received []Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"status":"ok","id":"t-1"},
			{"status":"error","message":"not registered","details":{"error":"DeviceNotRegistered"}}
		]}`))
	}))
	defer srv.Close()

	c := NewExpoClient(ExpoConfig{URL: srv.URL, AccessToken: "secret"}, zap.NewNop())
	tickets, err := c.Send(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Title: "Komentar Baru", Sound: "default", Priority: "high", ChannelID: "default",
			Data: map[string]any{"refType": "report", "refId": "r1"}},
		{To: "ExponentPushToken[b]", Title: "Komentar Baru"},
	})

	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, StatusOK, tickets[0].Status)
	assert.True(t, tickets[1].DeviceNotRegistered())
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, received, 2)
	assert.Equal(t, "high", received[0].Priority)
	assert.Equal(t, "r1", received[0].Data["refId"])
}

func TestExpoClient_NoAuthHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"status":"ok"}]}`))
	}))
	defer srv.Close()

	_, err := NewExpoClient(ExpoConfig{URL: srv.URL}, zap.NewNop()).Send(context.Background(), []Message{{To: "x"}})
	assert.NoError(t, err)
}

func TestExpoClient_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errors":[{"code":"TOO_MANY_REQUESTS"}]}`))
	}))
	defer srv.Close()

	_, err := NewExpoClient(ExpoConfig{URL: srv.URL}, zap.NewNop()).Send(context.Background(), []Message{{To: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExpoClient_RequestLevelErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"code":"PUSH_TOO_MANY_EXPERIENCE_IDS","message":"mixed projects"}]}`))
	}))
	defer srv.Close()

	_, err := NewExpoClient(ExpoConfig{URL: srv.URL}, zap.NewNop()).Send(context.Background(), []Message{{To: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUSH_TOO_MANY_EXPERIENCE_IDS")
}

func TestExpoClient_TicketCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"status":"ok"}]}`))
	}))
	defer srv.Close()

	_, err := NewExpoClient(ExpoConfig{URL: srv.URL}, zap.NewNop()).Send(context.Background(), []Message{{To: "a"}, {To: "b"}})
	assert.Error(t, err)
}

func TestExpoClient_EmptyBatchSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tickets, err := NewExpoClient(ExpoConfig{URL: srv.URL}, zap.NewNop()).Send(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, tickets)
	assert.False(t, called)
}

func TestExpoClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewExpoClient(ExpoConfig{URL: "http://127.0.0.1:1", RequestsPerSecond: 1}, zap.NewNop())
	_, err := c.Send(ctx, []Message{{To: "x"}})
	assert.Error(t, err)
}
