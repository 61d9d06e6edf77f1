package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/test"
)

func newTestNotifier(t *testing.T, url string) *Notifier {
	t.Helper()
	res := NewNotifier()
	res.backoffF = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	require.Nil(t, res.Configure(map[string]string{"url": url}))
	return res
}

func TestType(t *testing.T) {
	assert.Equal(t, "webhook", NewNotifier().Type())
}

func TestValidateConfig(t *testing.T) {
	s := NewNotifier()
	assert.Nil(t, s.ValidateConfig(map[string]string{"url": "http://olia.lt/hook"}))
	assert.NotNil(t, s.ValidateConfig(map[string]string{}))
	assert.NotNil(t, s.ValidateConfig(map[string]string{"url": "olia"}))
}

func TestSendNotification(t *testing.T) {
	var got provider.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Nil(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	s := newTestNotifier(t, srv.URL)
	err := s.SendNotification(test.Ctx(t), &provider.Event{Condition: "file_failed",
		JobID: "j1", Message: "olia", At: time.Now()})
	require.Nil(t, err)
	assert.Equal(t, "file_failed", got.Condition)
	assert.Equal(t, "j1", got.JobID)
}

func TestSendNotification_Retries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	s := newTestNotifier(t, srv.URL)
	err := s.SendNotification(test.Ctx(t), &provider.Event{Condition: "test"})
	require.Nil(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendNotification_NoRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	s := newTestNotifier(t, srv.URL)
	err := s.SendNotification(test.Ctx(t), &provider.Event{Condition: "test"})
	assert.NotNil(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendNotification_FailNotConfigured(t *testing.T) {
	s := NewNotifier()
	err := s.SendNotification(test.Ctx(t), &provider.Event{Condition: "test"})
	assert.NotNil(t, err)
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev provider.Event
		require.Nil(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "test", ev.Condition)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	s := NewNotifier()
	assert.Nil(t, s.TestConnection(test.Ctx(t), map[string]string{"url": srv.URL}))
}
