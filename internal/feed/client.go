package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pliefoog/helmdash/internal/observability/metrics"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultBackoffMin     = 1 * time.Second
	defaultBackoffMax     = 30 * time.Second
	defaultEnvelopeBuffer = 256

	// readLimit bounds one gateway frame. A full discovery scan of a
	// heavily instrumented vessel stays well under this.
	readLimit = 1 << 20
)

// Backoff holds reconnect backoff bounds.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Health tracks feed connection state for the status surface.
type Health struct {
	Connected      bool      `json:"connected"`
	ConnectedSince time.Time `json:"connectedSince,omitempty"`
	LastMessage    time.Time `json:"lastMessage,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
	ReconnectCount int       `json:"reconnectCount"`
	MessageCount   int64     `json:"messageCount"`
	DroppedCount   int64     `json:"droppedCount"`
}

// Client maintains the websocket subscription to the vessel gateway.
// Decoded envelopes are delivered on Envelopes; when the buffer fills
// the oldest envelope is evicted so consumers always see the freshest
// bus data.
type Client struct {
	url         string
	logger      zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	envelopes   chan Envelope
	errors      chan error
	backoff     Backoff
	dialTimeout time.Duration

	mu     sync.RWMutex
	conn   *websocket.Conn
	health Health
}

// NewClient creates a feed client for the gateway at url.
func NewClient(url string, queueSize int, logger zerolog.Logger) *Client {
	if queueSize <= 0 {
		queueSize = defaultEnvelopeBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:         url,
		logger:      logger.With().Str("component", "feed").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		envelopes:   make(chan Envelope, queueSize),
		errors:      make(chan error, 1),
		backoff:     Backoff{Min: defaultBackoffMin, Max: defaultBackoffMax},
		dialTimeout: defaultDialTimeout,
	}
}

// SetBackoff overrides the reconnect backoff bounds.
func (c *Client) SetBackoff(b Backoff) {
	if b.Min > 0 {
		c.backoff.Min = b.Min
	}
	if b.Max > 0 {
		c.backoff.Max = b.Max
	}
}

// Envelopes returns the channel of decoded gateway frames.
func (c *Client) Envelopes() <-chan Envelope {
	return c.envelopes
}

// Errors returns the error channel. One error is emitted per lost
// connection; the driver reconnects by calling Connect again.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// Done returns a channel that is closed when the client is shut down.
// Goroutines should select on this to exit when Close is called.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Health returns the current connection state.
func (c *Client) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// Connect establishes the websocket connection with retry logic,
// blocking until connected, the context is cancelled or the client is
// closed.
func (c *Client) Connect(ctx context.Context) error {
	// Close any existing connection before reconnecting so stale
	// sessions do not accumulate on the gateway.
	c.closeExisting()

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}

		err := c.connectOnce(ctx)
		if err == nil {
			c.mu.Lock()
			c.health.Connected = true
			c.health.LastError = ""
			c.health.ConnectedSince = time.Now()
			c.mu.Unlock()
			metrics.FeedConnected(true)
			return nil
		}

		attempt++
		backoff := c.backoffDuration(attempt)
		c.mu.Lock()
		c.health.Connected = false
		c.health.LastError = err.Error()
		c.health.ReconnectCount++
		c.mu.Unlock()
		metrics.FeedReconnect()

		c.logger.Warn().
			Err(err).
			Dur("backoff", backoff).
			Int("attempt", attempt).
			Msg("Feed connection failed, retrying")

		select {
		case <-time.After(backoff):
			continue
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *Client) closeExisting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// connectOnce attempts a single connection and starts the read loop.
func (c *Client) connectOnce(ctx context.Context) error {
	c.logger.Info().Str("url", c.url).Msg("Connecting to vessel gateway")

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial gateway: %w", err)
	}
	if c.ctx.Err() != nil {
		conn.Close()
		return c.ctx.Err()
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info().Msg("Feed connection established")
	return nil
}

// readLoop receives frames until the connection fails, then reports
// the error and returns. Connection loss is retried by Connect.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		if c.ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.markDisconnected(err)
			c.emitError(fmt.Errorf("read frame: %w", err))
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			metrics.ReadingDropped("malformed")
			c.logger.Warn().Err(err).Msg("Malformed gateway frame dropped")
			continue
		}
		c.push(env)
	}
}

// push queues one envelope, evicting the oldest when the buffer is
// full. On an instrument bus the newest reading always wins over a
// backlog.
func (c *Client) push(env Envelope) {
	c.mu.Lock()
	c.health.LastMessage = time.Now()
	c.health.MessageCount++
	c.mu.Unlock()

	select {
	case c.envelopes <- env:
		return
	default:
	}

	select {
	case <-c.envelopes:
		c.mu.Lock()
		c.health.DroppedCount++
		c.mu.Unlock()
		metrics.ReadingDropped("backlog")
		c.logger.Warn().Msg("Envelope buffer full, dropping oldest frame")
	default:
	}
	select {
	case c.envelopes <- env:
	default:
	}
}

func (c *Client) markDisconnected(err error) {
	c.mu.Lock()
	c.health.Connected = false
	c.health.LastError = err.Error()
	c.mu.Unlock()
	metrics.FeedConnected(false)
}

// emitError sends an error to the error channel, dropping it when the
// channel is full.
func (c *Client) emitError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// backoffDuration calculates exponential backoff with jitter.
func (c *Client) backoffDuration(attempt int) time.Duration {
	backoff := c.backoff.Min
	for i := 1; i < attempt && backoff < c.backoff.Max; i++ {
		backoff *= 2
	}
	if backoff > c.backoff.Max {
		backoff = c.backoff.Max
	}
	jitter := time.Duration(rand.Int63n(int64(c.backoff.Min)))
	return backoff + jitter
}

// Close shuts the client down and closes the websocket.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health.Connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
