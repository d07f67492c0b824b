package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is a streaming WebSocket client with reconnection support.
// After every (re)connect it replays the subscription built by Subscribe.
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.Mutex
	reconnectWait time.Duration
	maxWait       time.Duration
	maxRetries    int
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	logger        zerolog.Logger
	headers       http.Header

	done chan struct{}
	wg   sync.WaitGroup

	// Handlers
	subscribe    func() interface{}
	onMessage    func([]byte)
	onDisconnect func(error)

	// State
	connected bool
	stateMu   sync.RWMutex
	closeOnce sync.Once
}

// Config holds WebSocket client configuration
type Config struct {
	URL           string
	ReconnectWait time.Duration
	MaxWait       time.Duration
	MaxRetries    int
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Logger        zerolog.Logger
	Headers       http.Header
}

// NewClient creates a new WebSocket client
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = -1 // Infinite retries
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}

	return &Client{
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		maxWait:       cfg.MaxWait,
		maxRetries:    cfg.MaxRetries,
		pingInterval:  cfg.PingInterval,
		pongWait:      cfg.PongWait,
		writeWait:     cfg.WriteWait,
		logger:        cfg.Logger,
		headers:       cfg.Headers,
		done:          make(chan struct{}),
	}
}

// SetHandlers sets the event handlers. subscribe builds the message sent
// right after each successful dial; it may be nil.
func (c *Client) SetHandlers(subscribe func() interface{}, onMessage func([]byte), onDisconnect func(error)) {
	c.subscribe = subscribe
	c.onMessage = onMessage
	c.onDisconnect = onDisconnect
}

// Run dials, reads until the connection drops and reconnects with
// exponential backoff until ctx ends or Close is called. The first dial
// error is returned when it happens before any connection succeeded and
// retries are exhausted.
func (c *Client) Run(ctx context.Context) error {
	c.wg.Add(1)
	defer c.wg.Done()

	wait := c.reconnectWait
	retries := 0
	for {
		err := c.connect(ctx)
		if err == nil {
			retries = 0
			wait = c.reconnectWait
			err = c.readLoop(ctx)
			c.setConnected(false)
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
		}

		if c.stopped(ctx) {
			return nil
		}

		retries++
		if c.maxRetries > 0 && retries >= c.maxRetries {
			return ErrMaxRetriesExceeded
		}

		c.logger.Warn().
			Err(err).
			Int("retry", retries).
			Dur("wait", wait).
			Msg("WebSocket disconnected, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.maxWait {
			wait = c.maxWait
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if c.subscribe != nil {
		if err := c.WriteJSON(c.subscribe()); err != nil {
			c.dropConn()
			return err
		}
	}

	c.setConnected(true)
	c.logger.Info().Str("url", c.url).Msg("WebSocket connected")
	return nil
}

// readLoop reads messages until the connection fails.
func (c *Client) readLoop(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.dropConn()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(ctx, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			return ErrConnectionLost
		}
		// Any frame counts as liveness.
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// pingLoop sends periodic ping frames while one connection lives.
func (c *Client) pingLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.dropConn()
			return
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

// WriteJSON sends a JSON message. Writes are serialized by the connection lock.
func (c *Client) WriteJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// Close stops the run loop and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.setConnected(false)
		c.wg.Wait()
	})
	return err
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = connected
}

func (c *Client) dropConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
