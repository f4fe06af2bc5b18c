package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testMessage() ChallengeMessage {
	return ChallengeMessage{
		Message:     "OneCard Login Request",
		AttemptID:   "attempt-1",
		EmpNo:       "E001",
		ClientID:    "svcA",
		ServiceName: "Service A",
		Data:        "deadbeef",
	}
}

func TestDispatcherSend(t *testing.T) {
	var received ChallengeMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, d.Send(context.Background(), testMessage()))
	assert.Equal(t, "attempt-1", received.AttemptID)
	assert.Equal(t, "deadbeef", received.Data)
}

func TestDispatcherMapsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, time.Second, zap.NewNop())
	err := d.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrPushRejected)
}

func TestDispatcherMapsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 20*time.Millisecond, zap.NewNop())
	err := d.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrPushTimeout)
}

func TestDispatcherMapsConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDispatcher(url, time.Second, zap.NewNop())
	err := d.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrPushUnavailable)
}
