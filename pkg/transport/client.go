package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
	"github.com/meshbridge/meshbridge-go/pkg/log"
)

// ErrClosed is returned by AutoConnect after Close.
var ErrClosed = errors.New("transport closed")

// DefaultDialTimeout bounds the TCP dial to a gateway.
const DefaultDialTimeout = 5 * time.Second

// StateHandler receives proxy connection state pushes.
type StateHandler func(connected bool)

// ClientConfig configures a gateway Client.
type ClientConfig struct {
	// Resolver locates the gateway. Required.
	Resolver Resolver

	// ClientID is sent in HELLO.
	ClientID string

	// SessionID tags journal events. Empty uses ClientID.
	SessionID string

	// DialTimeout bounds the TCP dial (default: 5s).
	DialTimeout time.Duration

	// MaxMessageSize is the maximum frame payload (default: 4KB).
	MaxMessageSize uint32

	// KeepAlive configures heartbeats on an open link.
	KeepAlive KeepAliveConfig

	// Breaker configures the dial circuit breaker.
	Breaker BreakerConfig

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// EventLogger receives journal events. Nil disables journaling.
	EventLogger log.Logger
}

// Client is the client side of a gateway link.
type Client struct {
	config  ClientConfig
	breaker *gobreaker.CircuitBreaker[net.Conn]
	logger  *slog.Logger
	events  log.Logger

	mu         sync.Mutex
	handler    StateHandler
	link       *link
	connecting bool
	closed     bool
}

// link is one TCP connection to a gateway.
type link struct {
	conn   net.Conn
	framer *Framer
	ka     *KeepAlive
	target Endpoint
	cancel context.CancelFunc

	// Guarded by Client.mu.
	connected bool
	ended     bool
}

// NewClient creates a gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	if err := errcode.ValidateParams(map[string]any{"resolver": config.Resolver}, "resolver"); err != nil {
		return nil, err
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.SessionID == "" {
		config.SessionID = config.ClientID
	}

	return &Client{
		config:  config,
		breaker: newDialBreaker("gateway", config.Breaker, config.Logger),
		logger:  config.Logger,
		events:  log.OrNoop(config.EventLogger),
	}, nil
}

// SetStateHandler registers the receiver of state pushes. Nil clears it.
func (c *Client) SetStateHandler(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// AutoConnect resolves and dials the gateway and requests a proxy link.
// It returns once the request is sent; CONNECTED or a disconnect is pushed
// to the state handler later. If a link is already open or being opened,
// AutoConnect returns nil without doing anything.
func (c *Client) AutoConnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.link != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	ep, err := c.config.Resolver.Resolve(ctx)
	if err != nil {
		c.journalError(err, "", "resolve gateway")
		return fmt.Errorf("resolve gateway: %w", err)
	}

	conn, err := c.dial(ctx, ep.Address)
	if err != nil {
		c.journalError(err, ep.Address, "dial gateway")
		return err
	}

	framer := NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	if err := framer.WriteMessage(&Message{Type: MsgHello, ClientID: c.config.ClientID}); err != nil {
		conn.Close()
		c.journalError(err, ep.Address, "send hello")
		return fmt.Errorf("send hello: %w", err)
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &link{conn: conn, framer: framer, target: ep, cancel: cancel}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return ErrClosed
	}
	c.link = l
	c.mu.Unlock()

	c.debugLog("gateway link opened", "address", ep.Address, "instance", ep.Instance)

	if !c.config.KeepAlive.Disabled {
		l.ka = NewKeepAlive(c.config.KeepAlive,
			func(seq uint32) error {
				return framer.WriteMessage(&Message{Type: MsgPing, Seq: seq})
			},
			func() {
				c.endLink(l, "heartbeat timeout")
			},
		)
		l.ka.Start(linkCtx)
	}

	go c.readLoop(l)
	return nil
}

// Close ends the link and disables the client. No state is pushed for the
// link it closes. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.link
	c.mu.Unlock()

	if l != nil {
		_ = l.framer.WriteMessage(&Message{Type: MsgBye, Reason: "client closing"})
		c.endLink(l, "closed by client")
	}
	return nil
}

// Connected reports whether the gateway last said CONNECTED on the open link.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil && c.link.connected
}

// Target returns the address of the open link, or "".
func (c *Client) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return ""
	}
	return c.link.target.Address
}

// BreakerState returns the dial circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) dial(ctx context.Context, address string) (net.Conn, error) {
	conn, err := c.breaker.Execute(func() (net.Conn, error) {
		dialer := &net.Dialer{Timeout: c.config.DialTimeout}
		return dialer.DialContext(ctx, "tcp", address)
	})
	if err != nil {
		if isBreakerRejection(err) {
			return nil, fmt.Errorf("gateway %s circuit open: %w", address, err)
		}
		return nil, fmt.Errorf("dial gateway %s: %w", address, err)
	}
	return conn, nil
}

func (c *Client) readLoop(l *link) {
	for {
		msg, err := l.framer.ReadMessage()
		if err != nil {
			reason := "gateway closed connection"
			if !errors.Is(err, io.EOF) {
				reason = err.Error()
			}
			c.endLink(l, reason)
			return
		}

		switch msg.Type {
		case MsgStatus:
			if msg.Status.Connected() {
				c.markConnected(l)
				continue
			}
			reason := msg.Status.String()
			if msg.Reason != "" {
				reason += ": " + msg.Reason
			}
			c.endLink(l, reason)
			return

		case MsgPing:
			_ = l.framer.WriteMessage(&Message{Type: MsgPong, Seq: msg.Seq})

		case MsgPong:
			if l.ka != nil {
				l.ka.PongReceived(msg.Seq)
			}

		case MsgBye:
			c.endLink(l, "gateway closing: "+msg.Reason)
			return

		default:
			c.debugLog("unexpected message from gateway", "type", msg.Type)
		}
	}
}

func (c *Client) markConnected(l *link) {
	c.mu.Lock()
	if l.ended || l.connected || c.link != l {
		c.mu.Unlock()
		return
	}
	l.connected = true
	handler := c.handler
	c.mu.Unlock()

	c.infoLog("gateway reports proxy connected", "address", l.target.Address)
	c.journalState(l.target.Address, StatusConnected.String(), true, "")

	if handler != nil {
		handler(true)
	}
}

// endLink tears down l and pushes a disconnect once.
func (c *Client) endLink(l *link, reason string) {
	c.mu.Lock()
	if l.ended {
		c.mu.Unlock()
		return
	}
	l.ended = true
	if c.link == l {
		c.link = nil
	}
	wasConnected := l.connected
	l.connected = false
	closed := c.closed
	handler := c.handler
	c.mu.Unlock()

	l.cancel()
	if l.ka != nil {
		l.ka.Stop()
	}
	l.conn.Close()

	newState := StatusDisconnected.String()
	if !wasConnected {
		newState = StatusConnectFail.String()
	}
	c.infoLog("gateway link ended", "address", l.target.Address, "reason", reason)
	c.journalState(l.target.Address, newState, false, reason)

	if !closed && handler != nil {
		handler(false)
	}
}

func (c *Client) journalState(target, newState string, connected bool, reason string) {
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.config.SessionID,
		Component: log.ComponentTransport,
		Category:  log.CategoryState,
		Target:    target,
		StateChange: &log.StateChangeEvent{
			NewState:  newState,
			Connected: connected,
			Reason:    reason,
		},
	})
}

func (c *Client) journalError(err error, target, what string) {
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.config.SessionID,
		Component: log.ComponentTransport,
		Category:  log.CategoryError,
		Target:    target,
		Error: &log.ErrorEventData{
			Kind:    log.ErrorTransportFailure,
			Message: err.Error(),
			Context: what,
		},
	})
}

// debugLog logs a debug message if logging is enabled.
func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) infoLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}
