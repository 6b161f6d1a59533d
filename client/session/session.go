package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const refreshPath = "/api/v1/auth/refresh"

// Client wraps outbound API calls. It attaches the bearer access token,
// decodes the response envelope, and on a 401 coordinates a single
// credential refresh: the first failing request performs the refresh, every
// other request that fails while it is in flight queues and is resumed, in
// arrival order, with the outcome.
//
// All credential mutation goes through this type, which keeps the stored
// pair and the in-memory copy in step.
type Client struct {
	baseURL string
	httpc   *http.Client
	store   Store
	log     *slog.Logger

	refreshTimeout time.Duration

	mu         sync.Mutex
	creds      Credentials
	refreshing bool
	waiters    []chan refreshOutcome
	subs       []chan struct{}
}

type refreshOutcome struct {
	access string
	err    error
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, store Store, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpc:          &http.Client{Timeout: 30 * time.Second},
		store:          store,
		log:            slog.Default(),
		refreshTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	creds, err := store.LoadTokens()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	c.creds = creds
	return c, nil
}

// StoreTokens persists a new credential pair and makes it current.
func (c *Client) StoreTokens(creds Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SaveTokens(creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	c.creds = creds
	return nil
}

// ClearTokens drops the current pair, in memory and on disk.
func (c *Client) ClearTokens() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = Credentials{}
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Valid()
}

// OnSessionEnd returns a channel that receives one value when a credential
// refresh fails terminally and the session is over. Each caller gets its own
// channel; delivery is non-blocking. The returned cancel func removes the
// subscription; long-lived consumers must call it when done listening.
func (c *Client) OnSessionEnd() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

type requestOptions struct {
	unauthenticated bool
}

type RequestOption func(*requestOptions)

// Unauthenticated marks a request that must not carry a bearer token
// (login, register, refresh).
func Unauthenticated() RequestOption {
	return func(o *requestOptions) { o.unauthenticated = true }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do performs one API call. A 401 on an authenticated request triggers the
// refresh flow and the call is retried exactly once with the new token.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	token := ""
	if !o.unauthenticated {
		c.mu.Lock()
		token = c.creds.Access
		c.mu.Unlock()
	}

	status, raw, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !o.unauthenticated && token != "" {
		newToken, rerr := c.waitForFreshToken(ctx, token)
		if rerr != nil {
			return rerr
		}
		status, raw, err = c.send(ctx, method, path, payload, newToken)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return newError(KindUnauthorized, status, "unauthorized", nil)
		}
	}

	return decode(status, raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, newError(KindNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, newError(KindNetwork, resp.StatusCode, "read response", err)
	}
	return resp.StatusCode, raw, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]any  `json:"errors"`
}

func decode(status int, raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 500 {
			return newError(KindServer, status, http.StatusText(status), nil)
		}
		// The API contract guarantees an envelope on every response,
		// including 4xx. A body that is not one (proxy error page, truncated
		// write) is a fault on the server side of the wire regardless of the
		// status code, so it is not classified by status.
		return newError(KindServer, status, "malformed response envelope", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return newError(KindUnauthorized, status, env.Message, nil)
	case status >= 500:
		return newError(KindServer, status, env.Message, nil)
	case !env.Success:
		// The backend reports application-level failures in the envelope,
		// sometimes on HTTP 200.
		e := newError(KindValidation, status, env.Message, nil)
		e.Fields = env.Errors
		return e
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// waitForFreshToken is the single-flight refresh gate. The first caller with
// a stale token performs the refresh; callers arriving while it runs queue
// and block until the outcome is delivered to them in arrival order. On
// terminal failure every queued caller gets Unauthorized, credentials are
// cleared, and session-end subscribers are notified.
func (c *Client) waitForFreshToken(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()

	// Another request may have finished refreshing between our 401 and now.
	if c.creds.Access != "" && c.creds.Access != staleToken {
		token := c.creds.Access
		c.mu.Unlock()
		return token, nil
	}

	if c.refreshing {
		ch := make(chan refreshOutcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case res := <-ch:
			return res.access, res.err
		case <-ctx.Done():
			return "", newError(KindNetwork, 0, "canceled while waiting for refresh", ctx.Err())
		}
	}

	c.refreshing = true
	refreshToken := c.creds.Refresh
	c.mu.Unlock()

	pair, err := c.refresh(refreshToken)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil

	var outcome refreshOutcome
	var subs []chan struct{}
	if err != nil {
		c.creds = Credentials{}
		if cerr := c.store.Clear(); cerr != nil {
			c.log.Error("clear credentials failed", "error", cerr)
		}
		subs = append(subs, c.subs...)
		outcome = refreshOutcome{err: newError(KindUnauthorized, http.StatusUnauthorized, "session expired", err)}
	} else {
		c.creds = pair
		if serr := c.store.SaveTokens(pair); serr != nil {
			c.log.Error("save credentials failed", "error", serr)
		}
		outcome = refreshOutcome{access: pair.Access}
	}
	c.mu.Unlock()

	// Waiters queued in arrival order get the outcome in the same order.
	for _, w := range waiters {
		w <- outcome
	}

	if err != nil {
		c.log.Warn("token refresh failed, session ended", "error", err)
		for _, s := range subs {
			select {
			case s <- struct{}{}:
			default:
			}
		}
	} else {
		c.log.Debug("token refresh succeeded", "queued", len(waiters))
	}

	return outcome.access, outcome.err
}

// refresh exchanges the refresh token for a new pair. It runs on its own
// timeout: the caller that happened to trigger it may be canceled, but other
// queued requests still depend on the result.
func (c *Client) refresh(refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, fmt.Errorf("no refresh token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return Credentials{}, err
	}

	status, raw, err := c.send(ctx, http.MethodPost, refreshPath, payload, "")
	if err != nil {
		return Credentials{}, err
	}

	var data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := decode(status, raw, &data); err != nil {
		return Credentials{}, err
	}
	creds := Credentials{Access: data.Access, Refresh: data.Refresh}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("refresh response missing tokens")
	}
	return creds, nil
}
