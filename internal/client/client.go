// Package client keeps a group websocket open from the client side.
//
// After an unintentional close the client backs off exponentially and
// reconnects, and every new connection starts from a full snapshot: events
// missed while offline are never replayed, so local state is rebuilt from
// the server's sync message. After too many consecutive failures the client
// gives up and reports StateOffline. Close is the only intentional exit.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
)

var (
	ErrOffline      = errors.New("gave up reconnecting")
	ErrNotConnected = errors.New("not connected")
)

// State is the connection state reported to the caller.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateBackoff
	StateClosed
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	case StateOffline:
		return "offline"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transport is one open websocket.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a new Transport.
type DialFunc func(ctx context.Context) (Transport, error)

// Config configures a Client.
type Config struct {
	// BaseDelay is the first backoff delay; it doubles on each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// MaxAttempts is the number of consecutive failed attempts before the
	// client goes offline.
	MaxAttempts int

	OnEvent func(events.Event)
	OnState func(State)
}

// DefaultConfig backs off 1s, 2s, 4s ... up to 30s, for at most 10 attempts.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Client is a reconnecting group connection.
type Client struct {
	cfg   Config
	dial  DialFunc
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	conn     Transport
	synced   bool
	closed   bool
	snapshot *events.Sync
	done     chan struct{}
}

// New creates a client. Call Run to connect.
func New(dial DialFunc, cfg Config) *Client {
	return &Client{
		cfg:   cfg,
		dial:  dial,
		sleep: sleepContext,
		done:  make(chan struct{}),
	}
}

// WebsocketDialer dials the group websocket at baseURL (ws:// or wss://)
// presenting the member binding.
func WebsocketDialer(baseURL, groupID, memberID, token string) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("groupId", groupID)
		q.Set("memberId", memberID)
		u.RawQuery = q.Encode()

		header := http.Header{}
		header.Set(binding.HeaderName, token)
		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
		}
		return ws, nil
	}
}

// Backoff returns the delay before the given attempt (1-based): base
// doubled attempt-1 times, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	return min(d, max)
}

// Run connects and keeps reconnecting until ctx ends, Close is called, or
// the attempt budget is exhausted (ErrOffline).
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
		cancel()
		// Unblock a pending read.
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	}()

	failures := 0
	for {
		if c.stopped(ctx) {
			c.setState(StateClosed)
			return nil
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err == nil {
			c.setState(StateOpen)
			var synced bool
			synced, err = c.serve(ctx, conn)
			if synced {
				failures = 0
			}
		}
		if c.stopped(ctx) {
			c.setState(StateClosed)
			return nil
		}

		failures++
		slog.Debug("Connection lost", "attempt", failures, "error", err)
		if failures > c.cfg.MaxAttempts {
			c.setState(StateOffline)
			return ErrOffline
		}

		c.setState(StateBackoff)
		if err := c.sleep(ctx, Backoff(c.cfg.BaseDelay, c.cfg.MaxDelay, failures)); err != nil {
			c.setState(StateClosed)
			return nil
		}
	}
}

// serve reads from conn until it fails. It reports whether a snapshot was
// applied on this connection.
func (c *Client) serve(ctx context.Context, conn Transport) (bool, error) {
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return false, nil
	}
	c.conn = conn
	c.synced = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.synced = false
		c.mu.Unlock()
		conn.Close()
	}()

	asked := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return c.isSynced(), err
		}
		e, err := events.Decode(raw)
		if err != nil {
			slog.Debug("Ignoring unreadable event", "error", err)
			continue
		}

		if snap, ok := e.(events.Sync); ok {
			c.mu.Lock()
			c.synced = true
			c.snapshot = &snap
			c.mu.Unlock()
		} else if !c.isSynced() {
			// Deltas mean nothing without a base; ask for one once.
			if !asked {
				asked = true
				if err := c.Send(events.Resync{}); err != nil {
					return false, err
				}
			}
			continue
		}

		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(e)
		}
	}
}

// Send writes an action on the current connection.
func (c *Client) Send(a events.Action) error {
	raw, err := events.EncodeAction(a)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close stops the client for good.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the most recent sync received, or nil.
func (c *Client) Snapshot() *events.Sync {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Client) isSynced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

func (c *Client) stopped(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || ctx.Err() != nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
