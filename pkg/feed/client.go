// Package feed connects to the live aircraft feed over a WebSocket, parses
// its events and keeps the connection alive with exponential backoff.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
)

// State is the connection state.
type State int

const (
	// Disconnected: no connection; a retry may be pending
	Disconnected State = iota

	// Connecting: a dial is in flight
	Connecting

	// Open: connected and reading messages
	Open

	// Closed: the server closed the connection cleanly
	Closed

	// Error: the dial or the connection failed
	Error

	// Failed: retries are exhausted; only Reconnect leaves this state
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Error:
		return "error"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrClosedByServer is passed to OnDisconnect when the server closed the
// connection with a normal or going-away close frame.
var ErrClosedByServer = errors.New("connection closed by server")

// Handler receives connection events. Calls come from the client's own
// goroutines, one at a time, never while the client holds its lock; a UI
// implementation should forward them to its event loop rather than touch
// shared state.
type Handler interface {
	// OnOpen is called once the connection is established
	OnOpen()

	// OnMessage is called for every payload received, including Ignored ones
	OnMessage(msg Message)

	// OnDisconnect is called when a dial fails or a live connection drops
	OnDisconnect(err error)

	// OnRetry is called when reconnect attempt n has been scheduled
	OnRetry(attempt int, delay time.Duration)

	// OnFailure is called once retries are exhausted
	OnFailure(err error)
}

// Options configures a Client.
type Options struct {
	// URL is the ws:// or wss:// feed endpoint
	URL string

	// Policy is the reconnect schedule (default: backoff.DefaultPolicy)
	Policy backoff.Policy

	// HandshakeTimeout bounds the WebSocket handshake (default: 10 seconds)
	HandshakeTimeout time.Duration

	// ReadLimit caps a single message size in bytes (default: 8 MiB)
	ReadLimit int64

	// Header is sent with the handshake
	Header http.Header

	// Logger is used as given; callers add their own component field
	Logger zerolog.Logger
}

// Client maintains a single feed connection.
//
// Example usage:
//
//	c := feed.New(feed.Options{URL: "ws://localhost:8080/ws"}, handler)
//	c.Start()
//	defer c.Close()
type Client struct {
	opts    Options
	handler Handler
	dialer  *websocket.Dialer
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	attempt int
	conn    *websocket.Conn
	timer   *time.Timer
	started bool
	closed  bool

	wg sync.WaitGroup
}

// New creates a client. Nothing happens until Start.
func New(opts Options, h Handler) *Client {
	if opts.Policy.MaxAttempts == 0 && opts.Policy.Base == 0 {
		opts.Policy = backoff.DefaultPolicy()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		handler: h,
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  opts.HandshakeTimeout,
			EnableCompression: true,
		},
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the number of reconnects scheduled since the last
// successful open.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// URL returns the feed endpoint.
func (c *Client) URL() string {
	return c.opts.URL
}

// Start begins connecting. Calling it again has no effect.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.connectLocked()
}

// Reconnect restarts the connection after retries were exhausted, with a
// fresh attempt counter. It reports false in any other state.
func (c *Client) Reconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != Failed {
		return false
	}
	c.attempt = 0
	c.connectLocked()
	return true
}

// Close cancels any pending reconnect, closes the live connection and
// waits for the client's goroutines to exit. No handler calls are made
// after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		if werr := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); werr != nil {
			c.log.Debug().Err(werr).Msg("Failed to send close message")
		}
		err = conn.Close()
	}

	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.log.Info().Msg("Feed client closed")
	return err
}

// connectLocked starts one connection attempt. c.mu must be held.
func (c *Client) connectLocked() {
	c.state = Connecting
	c.wg.Add(1)
	go c.run()
}

// run dials, then reads until the connection fails.
func (c *Client) run() {
	defer c.wg.Done()

	c.log.Info().Str("url", c.opts.URL).Msg("Connecting")
	conn, resp, err := c.dialer.DialContext(c.ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("websocket dial failed: %w", err)
		}
		c.drop(Error, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	c.conn = conn
	c.state = Open
	c.attempt = 0
	c.mu.Unlock()

	c.log.Info().Msg("Connected")
	c.handler.OnOpen()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.drop(Closed, fmt.Errorf("%w: %w", ErrClosedByServer, err))
			} else {
				c.drop(Error, fmt.Errorf("read failed: %w", err))
			}
			return
		}

		c.handler.OnMessage(ParseMessage(data))
	}
}

// drop records a lost connection, notifies the handler and schedules the
// next attempt. Nothing is reported once the client is closed.
func (c *Client) drop(state State, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = state
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("state", state.String()).Msg("Connection lost")
	c.handler.OnDisconnect(err)
	c.scheduleRetry()
}

// scheduleRetry arms the reconnect timer, or gives up once the policy has
// no attempts left.
func (c *Client) scheduleRetry() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.attempt++
	attempt := c.attempt
	delay, ok := c.opts.Policy.Delay(attempt)
	if !ok {
		c.state = Failed
		c.mu.Unlock()

		err := fmt.Errorf("%w after %d attempts", backoff.ErrRetriesExhausted, c.opts.Policy.MaxAttempts)
		c.log.Error().Err(err).Msg("Giving up on feed connection")
		c.handler.OnFailure(err)
		return
	}

	c.state = Disconnected
	c.mu.Unlock()

	c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect scheduled")
	c.handler.OnRetry(attempt, delay)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.timer != timer {
			return
		}
		c.timer = nil
		c.connectLocked()
	})
	c.timer = timer
}
