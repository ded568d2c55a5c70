package heos

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPort is the TCP port of the HEOS CLI.
const DefaultPort = 1255

const (
	defaultCommandTimeout    = 5 * time.Second
	defaultHeartbeatInterval = 10 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxLineSize              = 1 << 20
)

var (
	// ErrNotConnected is returned for commands issued while no connection is up.
	ErrNotConnected = errors.New("heos: not connected")

	// ErrTimeout indicates the speaker did not answer a command in time.
	ErrTimeout = errors.New("heos: command timed out")

	// ErrCommandFailed wraps an error result reported by the speaker.
	ErrCommandFailed = errors.New("heos: command failed")
)

// Option configures a Client.
type Option func(*Client)

// WithPort overrides the CLI port.
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithCommandTimeout bounds how long a command waits for its reply.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) { c.commandTimeout = d }
}

// WithHeartbeatInterval sets how often the watchdog pings the speaker.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Client) { c.heartbeatInterval = d }
}

// WithReconnectInterval sets the delay between reconnect attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) { c.reconnectInterval = d }
}

// Client is a connection to the CLI of one HEOS speaker.
//
// Once Connect has succeeded the client supervises the connection on its
// own: a failed heartbeat emits EventWatchdogError, a dropped socket emits
// EventDisconnected, and the client then redials every reconnect interval
// until it succeeds (EventReconnected) or Disconnect is called. Callers
// never have to drive reconnection themselves.
type Client struct {
	port              int
	commandTimeout    time.Duration
	heartbeatInterval time.Duration
	reconnectInterval time.Duration
	logger            zerolog.Logger

	mu      sync.Mutex
	address string
	conn    net.Conn
	stop    chan struct{}
	closed  bool

	// one command in flight at a time; replies arrive in order
	cmdMu     sync.Mutex
	responses chan response

	subscribers   []chan Event
	subscribersMu sync.Mutex
}

// NewClient creates a client bound to address. It does not dial.
func NewClient(address string, opts ...Option) *Client {
	c := &Client{
		port:              DefaultPort,
		commandTimeout:    defaultCommandTimeout,
		heartbeatInterval: defaultHeartbeatInterval,
		reconnectInterval: defaultReconnectInterval,
		address:           address,
		closed:            true,
		responses:         make(chan response, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With().Str("component", "heos").Str("address", address).Logger()
	return c
}

// Address returns the address the client dials.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// SetAddress changes the address used by the next dial. A live connection
// is kept; the supervisor picks the new address up on its next reconnect.
func (c *Client) SetAddress(address string) {
	c.mu.Lock()
	old := c.address
	c.address = address
	c.mu.Unlock()

	if old != address {
		c.logger.Info().Str("new_address", address).Msg("Speaker address changed")
	}
}

// Connect dials the speaker and registers for change events. Calling it on
// a connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	wasClosed := c.closed
	c.closed = false
	if wasClosed {
		c.stop = make(chan struct{})
	}
	stop := c.stop
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		if wasClosed {
			c.mu.Lock()
			c.closed = true
			close(stop)
			c.mu.Unlock()
		}
		return err
	}

	if wasClosed {
		go c.watchdog(stop)
	}
	return nil
}

// Disconnect closes the connection and stops supervision.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.logger.Info().Msg("Disconnecting from speaker")
	return conn.Close()
}

// IsConnected reports whether a connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) dial(ctx context.Context) error {
	addr := net.JoinHostPort(c.Address(), strconv.Itoa(c.port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotConnected
	}
	if c.conn != nil {
		// raced with the supervisor, keep the connection it made
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	if _, err := c.command(ctx, "system/register_for_change_events", param{"enable", "on"}); err != nil {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("register for change events: %w", err)
	}

	c.logger.Debug().Str("addr", addr).Msg("Connected to speaker")
	return nil
}

// readLoop decodes lines until the connection fails, routing events to
// subscribers and replies to the pending command.
func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Debug().Err(err).Msg("Ignoring malformed line")
			continue
		}

		if resp.isEvent() {
			c.publish(parseEvent(resp))
			continue
		}

		select {
		case c.responses <- resp:
		default:
			c.logger.Warn().Str("command", resp.HEOS.Command).Msg("Dropping unsolicited reply")
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.lost(conn, EventDisconnected, err)
}

// watchdog pings the speaker and tears the connection down when a ping
// goes unanswered.
func (c *Client) watchdog(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.commandTimeout)
			_, err := c.command(ctx, "system/heart_beat")
			cancel()
			if err != nil {
				c.lost(conn, EventWatchdogError, err)
			}
		}
	}
}

// lost retires conn and starts reconnecting. Only the first caller for a
// given connection has any effect.
func (c *Client) lost(conn net.Conn, typ EventType, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	stop := c.stop
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn().Err(cause).Str("event", string(typ)).Msg("Lost connection to speaker")
	c.publish(Event{Type: typ, Err: cause})

	go c.reconnect(stop)
}

func (c *Client) reconnect(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(c.reconnectInterval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.commandTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info().Msg("Reconnected to speaker")
			c.publish(Event{Type: EventReconnected})
			return
		}
		c.logger.Debug().Err(err).Msg("Reconnect attempt failed")
	}
}

// command sends one command and waits for its final reply.
func (c *Client) command(ctx context.Context, command string, params ...param) (response, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return response{}, ErrNotConnected
	}

drain:
	for {
		select {
		case <-c.responses:
		default:
			break drain
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.commandTimeout))
	if _, err := io.WriteString(conn, encodeCommand(command, params...)); err != nil {
		return response{}, fmt.Errorf("send %s: %w", command, err)
	}

	timer := time.NewTimer(c.commandTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return response{}, ctx.Err()
		case <-timer.C:
			return response{}, fmt.Errorf("%w: %s", ErrTimeout, command)
		case resp := <-c.responses:
			if resp.HEOS.Command != command || resp.pending() {
				continue
			}
			if resp.HEOS.Result != resultSuccess {
				attrs := resp.attrs()
				return resp, fmt.Errorf("%w: %s: eid=%s %s", ErrCommandFailed, command, attrs["eid"], attrs["text"])
			}
			return resp, nil
		}
	}
}

// --- event subscription ---

// Subscribe returns a channel receiving every event of this client.
func (c *Client) Subscribe() chan Event {
	ch := make(chan Event, 64)
	c.subscribersMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subscribersMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription.
func (c *Client) Unsubscribe(ch chan Event) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (c *Client) publish(evt Event) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- evt:
		default:
			c.logger.Warn().Str("event", string(evt.Type)).Msg("Subscriber full, dropping event")
		}
	}
}
