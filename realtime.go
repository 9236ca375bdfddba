package qaboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"nhooyr.io/websocket"
)

// ============================================================================
// Transport
// ============================================================================

// Conn is one open message channel. Read blocks until the next text frame
// arrives or the channel fails.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Conn to a realtime endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const wsReadLimit = 1 << 20

// WebSocketDialer dials realtime endpoints over websocket.
type WebSocketDialer struct {
	Header map[string]string
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	var opts *websocket.DialOptions
	if len(d.Header) > 0 {
		opts = &websocket.DialOptions{HTTPHeader: make(map[string][]string, len(d.Header))}
		for k, v := range d.Header {
			opts.HTTPHeader.Set(k, v)
		}
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

// Read skips binary frames; the server only speaks JSON text.
func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// ============================================================================
// Configuration
// ============================================================================

// DefaultReconnectDelay is the flat delay between a close and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// RealtimeConfig configures a Connection.
type RealtimeConfig struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         Dialer
	Logger         *log.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Dialer == nil {
		c.Dialer = WebSocketDialer{}
	}
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

type stopper interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// ============================================================================
// Connection
// ============================================================================

// Connection owns a single realtime channel and keeps it alive. Every decoded
// message is passed to the handler on the read goroutine, in arrival order.
//
// A close of any kind (clean, error, or failed dial) schedules exactly one
// reconnect after the configured delay. Only Disconnect stops the cycle.
type Connection struct {
	url       string
	delay     time.Duration
	dialer    Dialer
	logger    *log.Logger
	handler   func(Message)
	afterFunc func(time.Duration, func()) stopper

	mu        sync.Mutex
	state     RealtimeState
	conn      Conn
	cancel    context.CancelFunc
	gen       uint64
	timer     stopper
	timerSeq  uint64
	listeners []func(RealtimeState)
}

// NewConnection creates an idle Connection. Call Connect to open it.
func NewConnection(config *RealtimeConfig, handler func(Message)) *Connection {
	cfg := *config
	cfg.defaults()
	return &Connection{
		url:       cfg.URL,
		delay:     cfg.ReconnectDelay,
		dialer:    cfg.Dialer,
		logger:    cfg.Logger.With("component", "realtime"),
		handler:   handler,
		afterFunc: realAfterFunc,
		state:     StateDisconnected,
	}
}

// OnStateChange registers a listener for connection state transitions.
func (c *Connection) OnStateChange(h func(RealtimeState)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, h)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Connection) State() RealtimeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts establishing the connection. It is a no-op while a
// connection is open or being established.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	notify()
	go c.run(ctx, gen)
}

// Disconnect cancels any pending reconnect and closes the live connection.
// The Connection stays idle until Connect is called again.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.stopTimerLocked()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	notify()
	if conn != nil {
		c.logger.Info("disconnected", "url", c.url)
		return conn.Close()
	}
	return nil
}

func (c *Connection) run(ctx context.Context, gen uint64) {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.logger.Warn("connect failed", "url", c.url, "err", err)
		c.closed(gen)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	notify := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.url)
	notify()

	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("connection closed", "url", c.url, "err", err)
			}
			c.closed(gen)
			return
		}
		msg, err := decodeMessage(frame)
		if err != nil {
			c.logger.Warn("dropping frame", "err", err)
			continue
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// closed tears down the connection of generation gen and arms the reconnect
// timer. Stale generations (after Disconnect or a newer Connect) are ignored.
func (c *Connection) closed(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	notify := c.setStateLocked(StateReconnecting)
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.logger.Info("reconnect scheduled", "delay", c.delay)
	notify()
}

func (c *Connection) scheduleReconnectLocked() {
	c.stopTimerLocked()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.afterFunc(c.delay, func() { c.fireReconnect(seq) })
}

func (c *Connection) fireReconnect(seq uint64) {
	c.mu.Lock()
	if c.timer == nil || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.Connect()
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setStateLocked records s and returns a func that notifies listeners; call it
// after releasing c.mu.
func (c *Connection) setStateLocked(s RealtimeState) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	listeners := append([]func(RealtimeState){}, c.listeners...)
	return func() {
		for _, h := range listeners {
			h(s)
		}
	}
}
