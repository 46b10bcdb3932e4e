// Package client is a Go consumer of the platform API. It keeps the access
// token in memory only, refreshes it proactively before expiry and retries
// a request exactly once after a 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthorized is returned when a request stays 401 after the single
// silent refresh attempt.
var ErrUnauthorized = errors.New("client: unauthorized")

// AuthCallbacks is how the embedding application participates in the token
// lifecycle. Refresh obtains a new access token (typically via the refresh
// cookie endpoint); OnUnauthorized is invoked when refresh fails and the
// user must log in again.
type AuthCallbacks struct {
	Refresh        func(ctx context.Context) (token string, expiresAt time.Time, err error)
	OnUnauthorized func()
}

// TokenSnapshot is a point-in-time copy of the held token.
type TokenSnapshot struct {
	Token     string
	ExpiresAt time.Time
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRefreshMargin sets how long before expiry the proactive refresh
// fires. Default is one minute.
func WithRefreshMargin(margin time.Duration) Option {
	return func(c *Client) { c.margin = margin }
}

// WithStorage persists the active company/store selection between runs.
func WithStorage(s Storage) Option {
	return func(c *Client) { c.storage = s }
}

const minRefreshDelay = 5 * time.Second

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	callbacks AuthCallbacks
	margin    time.Duration
	storage   Storage

	mu    sync.RWMutex
	token TokenSnapshot
	timer *time.Timer

	refreshGroup singleflight.Group

	closeOnce sync.Once
	closed    chan struct{}
}

func New(baseURL string, callbacks AuthCallbacks, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		callbacks: callbacks,
		margin:    time.Minute,
		storage:   NewMemoryStorage(),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops the proactive refresh timer. The client must not be used
// after Close.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.mu.Unlock()
	})
}

// SetToken installs a token obtained out of band (login) and arms the
// proactive refresh timer.
func (c *Client) SetToken(token string, expiresAt time.Time) {
	c.mu.Lock()
	c.token = TokenSnapshot{Token: token, ExpiresAt: expiresAt}
	c.armTimerLocked()
	c.mu.Unlock()
}

// Token returns the current snapshot without blocking writers.
func (c *Client) Token() TokenSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// armTimerLocked schedules the next proactive refresh. Called under mu.
func (c *Client) armTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.token.ExpiresAt.IsZero() {
		return
	}
	delay := time.Until(c.token.ExpiresAt) - c.margin
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	c.timer = time.AfterFunc(delay, func() {
		select {
		case <-c.closed:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := c.refreshNow(ctx); err != nil && c.callbacks.OnUnauthorized != nil {
			c.callbacks.OnUnauthorized()
		}
	})
}

// refreshNow collapses concurrent refresh attempts into one upstream call.
func (c *Client) refreshNow(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		if c.callbacks.Refresh == nil {
			return "", ErrUnauthorized
		}
		token, expiresAt, err := c.callbacks.Refresh(ctx)
		if err != nil {
			return "", err
		}
		c.SetToken(token, expiresAt)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// envelope mirrors the server response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is a non-2xx server answer.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Do issues an authenticated request and decodes the envelope data into
// out (which may be nil). A 401 triggers exactly one silent refresh and
// retry; a second 401 surfaces as ErrUnauthorized after OnUnauthorized.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, status, err := c.roundTrip(ctx, method, path, body, c.Token().Token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, rerr := c.refreshNow(ctx)
		if rerr != nil {
			if c.callbacks.OnUnauthorized != nil {
				c.callbacks.OnUnauthorized()
			}
			return ErrUnauthorized
		}
		resp, status, err = c.roundTrip(ctx, method, path, body, token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			if c.callbacks.OnUnauthorized != nil {
				c.callbacks.OnUnauthorized()
			}
			return ErrUnauthorized
		}
	}

	if status < 200 || status > 299 {
		return &APIError{Status: status, Code: resp.Code, Message: resp.Message}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}, token string) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &env, resp.StatusCode, nil
}

// contextTokenResponse is the wire shape of /auth/context data.
type contextTokenResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// SelectContext switches the active company (and optionally store),
// exchanging the current token for a scoped one and persisting the
// selection.
func (c *Client) SelectContext(ctx context.Context, companyID string, storeID *string) error {
	payload := map[string]interface{}{"company_id": companyID}
	if storeID != nil {
		payload["store_id"] = *storeID
	}

	var data contextTokenResponse
	if err := c.Do(ctx, http.MethodPost, "/api/auth/context", payload, &data); err != nil {
		return err
	}
	c.SetToken(data.AccessToken, data.AccessExpiresAt)

	sid := ""
	if storeID != nil {
		sid = *storeID
	}
	if err := c.storage.SaveContext(companyID, sid); err != nil {
		return fmt.Errorf("persist context selection: %w", err)
	}
	return nil
}

// ActiveContext returns the persisted company/store selection.
func (c *Client) ActiveContext() (companyID, storeID string, err error) {
	return c.storage.LoadContext()
}
