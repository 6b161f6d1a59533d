package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// plainStore is an in-package stand-in for the credential store; the real
// implementations live in a package that imports this one.
type plainStore struct {
	creds Credentials
	user  []byte
}

func (s *plainStore) SaveTokens(creds Credentials) error { s.creds = creds; return nil }
func (s *plainStore) LoadTokens() (Credentials, error)   { return s.creds, nil }
func (s *plainStore) SaveUser(data []byte) error         { s.user = data; return nil }
func (s *plainStore) LoadUser() ([]byte, error)          { return s.user, nil }
func (s *plainStore) Clear() error                       { s.creds = Credentials{}; s.user = nil; return nil }

// Waiters must receive the refresh outcome in the order they queued. The
// refresh is held open until both waiters are in line, and since outcomes
// are sent to the size-1 buffered channels sequentially, the first waiter's
// channel must already hold a value by the time the second one's does.
func TestRefreshOutcomeDeliveredInArrivalOrder(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Token refreshed.",
			"data":    map[string]string{"access": "access-new", "refresh": "refresh-new"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, &plainStore{creds: Credentials{Access: "stale", Refresh: "refresh-old"}})
	require.NoError(t, err)

	refresherDone := make(chan error, 1)
	go func() {
		token, err := c.waitForFreshToken(context.Background(), "stale")
		if err == nil && token != "access-new" {
			err = context.Canceled
		}
		refresherDone <- err
	}()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.refreshing
	}, time.Second, time.Millisecond, "refresher must mark the refresh in flight")

	// Queue two waiters in a known arrival order while the refresh is held.
	first := make(chan refreshOutcome, 1)
	second := make(chan refreshOutcome, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, first, second)
	c.mu.Unlock()

	close(release)

	var got refreshOutcome
	select {
	case got = <-second:
	case <-time.After(time.Second):
		t.Fatal("second waiter never resumed")
	}
	require.NoError(t, got.err)
	require.Equal(t, "access-new", got.access)

	// Delivery is ordered: once the later waiter has its outcome, the
	// earlier one's must already be buffered.
	select {
	case got = <-first:
	default:
		t.Fatal("first waiter must be resumed before the second")
	}
	require.NoError(t, got.err)
	require.Equal(t, "access-new", got.access)

	require.NoError(t, <-refresherDone)

	c.mu.Lock()
	require.Empty(t, c.waiters, "queue must be drained after delivery")
	require.False(t, c.refreshing)
	c.mu.Unlock()
}

// Same ordering contract on the failure path: every queued waiter is
// rejected, in arrival order, with the terminal outcome.
func TestFailedRefreshRejectsWaitersInArrivalOrder(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Token refresh failed.",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, &plainStore{creds: Credentials{Access: "stale", Refresh: "refresh-dead"}})
	require.NoError(t, err)

	refresherDone := make(chan error, 1)
	go func() {
		_, err := c.waitForFreshToken(context.Background(), "stale")
		refresherDone <- err
	}()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.refreshing
	}, time.Second, time.Millisecond)

	first := make(chan refreshOutcome, 1)
	second := make(chan refreshOutcome, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, first, second)
	c.mu.Unlock()

	close(release)

	var got refreshOutcome
	select {
	case got = <-second:
	case <-time.After(time.Second):
		t.Fatal("second waiter never resumed")
	}
	require.True(t, IsUnauthorized(got.err))

	select {
	case got = <-first:
	default:
		t.Fatal("first waiter must be rejected before the second")
	}
	require.True(t, IsUnauthorized(got.err))

	require.True(t, IsUnauthorized(<-refresherDone))
	require.False(t, c.IsAuthenticated())
}
