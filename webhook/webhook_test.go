package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signed(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, Verify("s3cret", body, r.Header.Get(SignatureHeader)))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := NewNotifier()
	ev := NewEvent(EventAcquireCompleted, "req-1", "https://example.com/", map[string]string{"strategy": "direct"})
	require.NoError(t, n.Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Equal(t, EventAcquireCompleted, got.Type)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "https://example.com/", got.URL)
	assert.NotZero(t, got.Timestamp)
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, NewNotifier().Deliver(context.Background(), srv.URL, "", NewEvent(EventAcquireFailed, "r", "u", nil)))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewNotifier().Deliver(context.Background(), srv.URL, "", NewEvent(EventAcquireFailed, "r", "u", nil))
	assert.ErrorContains(t, err, "status 500")
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier()
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	n.DeliverAsync(srv.URL, "", NewEvent(EventAcquireCompleted, "r", "u", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Wait(ctx))
	assert.Equal(t, int32(3), calls.Load())
}

func TestVerify(t *testing.T) {
	body := []byte(`{"type":"acquire.completed"}`)
	sig := Sign("k", body)
	assert.True(t, Verify("k", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("k", []byte("tampered"), sig))
}
