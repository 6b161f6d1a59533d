package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/client/credstore"
	"github.com/Skotchmaster/storefront/client/session"
)

type stubBackend struct {
	t *testing.T

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refreshFails bool
	refreshDelay time.Duration

	refreshCalls atomic.Int64
	dataCalls    atomic.Int64
}

func envelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func (b *stubBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.refreshFails {
			envelope(w, http.StatusUnauthorized, false, nil, "Token refresh failed.")
			return
		}

		var req struct {
			Refresh string `json:"refresh"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Refresh != b.refreshToken {
			envelope(w, http.StatusUnauthorized, false, nil, "Token refresh failed.")
			return
		}

		// Rotation: the old pair stops working.
		b.accessToken = fmt.Sprintf("access-%d", b.refreshCalls.Load())
		b.refreshToken = fmt.Sprintf("refresh-%d", b.refreshCalls.Load())
		envelope(w, http.StatusOK, true, map[string]string{
			"access":  b.accessToken,
			"refresh": b.refreshToken,
		}, "Token refreshed.")
	})

	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		b.dataCalls.Add(1)
		b.mu.Lock()
		want := "Bearer " + b.accessToken
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			envelope(w, http.StatusUnauthorized, false, nil, "Authentication required.")
			return
		}
		envelope(w, http.StatusOK, true, map[string]string{"value": "ok"}, "Success")
	})

	return mux
}

func newClient(t *testing.T, baseURL string, creds session.Credentials) (*session.Client, *credstore.Memory) {
	t.Helper()
	store := credstore.NewMemory()
	if creds.Valid() {
		require.NoError(t, store.SaveTokens(creds))
	}
	c, err := session.New(baseURL, store)
	require.NoError(t, err)
	return c, store
}

func TestSingleFlightRefresh(t *testing.T) {
	backend := &stubBackend{t: t, accessToken: "fresh", refreshToken: "valid-refresh", refreshDelay: 100 * time.Millisecond}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	// The client holds a stale access token but a valid refresh token.
	client, store := newClient(t, srv.URL, session.Credentials{Access: "stale", Refresh: "valid-refresh"})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				Value string `json:"value"`
			}
			errs[i] = client.Get(context.Background(), "/api/v1/data", &out)
			if errs[i] == nil && out.Value != "ok" {
				errs[i] = fmt.Errorf("unexpected payload %q", out.Value)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load(), "exactly one refresh for all concurrent 401s")

	creds, err := store.LoadTokens()
	require.NoError(t, err)
	require.Equal(t, "access-1", creds.Access)
	require.Equal(t, "refresh-1", creds.Refresh)
	require.True(t, client.IsAuthenticated())
}

func TestRefreshFailureRejectsAllAndEndsSession(t *testing.T) {
	backend := &stubBackend{t: t, accessToken: "fresh", refreshToken: "other", refreshFails: true, refreshDelay: 50 * time.Millisecond}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client, store := newClient(t, srv.URL, session.Credentials{Access: "stale", Refresh: "dead-refresh"})
	ended, stop := client.OnSessionEnd()
	defer stop()

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "/api/v1/data", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "request %d", i)
		require.True(t, session.IsUnauthorized(errs[i]), "request %d should be unauthorized, got %v", i, errs[i])
	}
	require.EqualValues(t, 1, backend.refreshCalls.Load())

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("session-end notification not delivered")
	}

	require.False(t, client.IsAuthenticated())
	creds, err := store.LoadTokens()
	require.NoError(t, err)
	require.False(t, creds.Valid(), "credentials must be cleared wholesale")
}

func TestRetryAtMostOnce(t *testing.T) {
	// Backend whose protected endpoint rejects every token: the client must
	// refresh once, retry once, and then give up instead of looping.
	refreshCalls := atomic.Int64{}
	dataCalls := atomic.Int64{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		n := refreshCalls.Add(1)
		envelope(w, http.StatusOK, true, map[string]string{
			"access":  fmt.Sprintf("access-%d", n),
			"refresh": fmt.Sprintf("refresh-%d", n),
		}, "Token refreshed.")
	})
	mux.HandleFunc("/api/v1/data", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		envelope(w, http.StatusUnauthorized, false, nil, "Authentication required.")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{Access: "a", Refresh: "r"})

	err := client.Get(context.Background(), "/api/v1/data", nil)
	require.True(t, session.IsUnauthorized(err))
	require.EqualValues(t, 2, dataCalls.Load(), "original call plus exactly one retry")
	require.EqualValues(t, 1, refreshCalls.Load())
}

func TestSecondRequestReusesCompletedRefresh(t *testing.T) {
	backend := &stubBackend{t: t, accessToken: "fresh", refreshToken: "valid-refresh"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{Access: "stale", Refresh: "valid-refresh"})

	require.NoError(t, client.Get(context.Background(), "/api/v1/data", nil))
	require.NoError(t, client.Get(context.Background(), "/api/v1/data", nil))
	require.EqualValues(t, 1, backend.refreshCalls.Load(), "second request must use the refreshed token")
}

func TestEnvelopeFailureIsValidationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Invalid input.",
			"errors":  map[string]any{"quantity": "Quantity must be between 1 and 99."},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{Access: "a", Refresh: "r"})

	err := client.Post(context.Background(), "/api/v1/thing", map[string]int{"quantity": 0}, nil)
	require.True(t, session.IsValidation(err), "success=false on HTTP 200 must surface as validation, got %v", err)

	var apiErr *session.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid input.", apiErr.Message)
	require.Contains(t, apiErr.Fields, "quantity")
}

func TestServerErrorKind(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusInternalServerError, false, nil, "Internal error.")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{Access: "a", Refresh: "r"})
	err := client.Get(context.Background(), "/api/v1/thing", nil)
	require.True(t, session.IsServer(err))
}

func TestNetworkErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, _ := newClient(t, url, session.Credentials{Access: "a", Refresh: "r"})
	err := client.Get(context.Background(), "/api/v1/thing", nil)
	require.True(t, session.IsNetwork(err))
}

func TestMalformedEnvelopeIsServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("<html>bad gateway page</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// A non-envelope body breaks the API contract even on 4xx: it is a
	// server-side fault, not a validation result.
	client, _ := newClient(t, srv.URL, session.Credentials{Access: "a", Refresh: "r"})
	err := client.Get(context.Background(), "/api/v1/thing", nil)
	require.True(t, session.IsServer(err))

	var apiErr *session.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "malformed response envelope", apiErr.Message)
}

func TestSessionEndUnsubscribe(t *testing.T) {
	backend := &stubBackend{t: t, accessToken: "fresh", refreshFails: true}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{Access: "stale", Refresh: "dead"})

	canceled, cancel := client.OnSessionEnd()
	active, stop := client.OnSessionEnd()
	defer stop()
	cancel()
	cancel() // idempotent

	err := client.Get(context.Background(), "/api/v1/data", nil)
	require.True(t, session.IsUnauthorized(err))

	select {
	case <-active:
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber not notified")
	}

	select {
	case <-canceled:
		t.Fatal("canceled subscriber must not be notified")
	default:
	}
}

func TestUnauthenticatedRequestDoesNotTriggerRefresh(t *testing.T) {
	backend := &stubBackend{t: t, accessToken: "fresh", refreshToken: "valid"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	client, _ := newClient(t, srv.URL, session.Credentials{})
	require.False(t, client.IsAuthenticated())

	err := client.Get(context.Background(), "/api/v1/data", nil)
	require.True(t, session.IsUnauthorized(err))
	require.EqualValues(t, 0, backend.refreshCalls.Load(), "no credentials, nothing to refresh")
}

func TestStoreTokensIsAtomicWithStore(t *testing.T) {
	client, store := newClient(t, "http://unused", session.Credentials{})

	require.Error(t, store.SaveTokens(session.Credentials{Access: "only-access"}),
		"partial pairs must be rejected by the store")

	pair := session.Credentials{Access: "a1", Refresh: "r1"}
	require.NoError(t, client.StoreTokens(pair))
	require.True(t, client.IsAuthenticated())

	got, err := store.LoadTokens()
	require.NoError(t, err)
	require.Equal(t, pair, got)

	require.NoError(t, client.ClearTokens())
	require.False(t, client.IsAuthenticated())
	got, err = store.LoadTokens()
	require.NoError(t, err)
	require.False(t, got.Valid())
}
