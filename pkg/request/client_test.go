package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripweave/pkg/tracker"
)

func TestClient_Get_SequentialPerProvider(t *testing.T) {
	var concurrent int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&concurrent, 1)
		defer atomic.AddInt32(&concurrent, -1)
		if cur > 1 {
			t.Errorf("concurrent requests detected for same provider")
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	c := New(5*time.Second, 1, time.Millisecond, tracker.New())

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Get(context.Background(), svr.URL, nil)
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
}

func TestClient_RetriesOnTransientStatus(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	c := New(5*time.Second, 5, time.Millisecond, tracker.New())
	body, err := c.Get(context.Background(), svr.URL, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_PermanentErrorDoesNotRetry(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer svr.Close()

	c := New(5*time.Second, 5, time.Millisecond, tracker.New())
	_, err := c.Get(context.Background(), svr.URL, nil)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"generativelanguage.googleapis.com", "google"},
		{"maps.googleapis.com", "google"},
		{"other.example.com", "other.example.com"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, normalizeProvider(tt.host))
	}
}
