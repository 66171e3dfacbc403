package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 10 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 3 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before disconnect.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int

	// Disabled turns heartbeats off.
	Disabled bool
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest a dead gateway can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c *KeepAliveConfig) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
}

// KeepAlive pings the gateway and reports a dead link after too many
// unanswered pings. One KeepAlive serves one link.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	pongCh   chan uint32
	stopOnce sync.Once
	stopCh   chan struct{}

	mu          sync.Mutex
	seq         uint32
	pending     bool
	sentAt      time.Time
	missedPongs int
	lastLatency time.Duration
}

// NewKeepAlive creates a keep-alive monitor. onTimeout is called at most once.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	config.applyDefaults()
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the monitor until ctx ends, Stop is called or the link times out.
func (ka *KeepAlive) Start(ctx context.Context) {
	go ka.loop(ctx)
}

// Stop ends monitoring. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.stopOnce.Do(func() { close(ka.stopCh) })
}

// PongReceived records a pong from the peer.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// MissedPongs returns the current count of unanswered pings.
func (ka *KeepAlive) MissedPongs() int {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.missedPongs
}

// Latency returns the round trip of the last answered ping.
func (ka *KeepAlive) Latency() time.Duration {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.lastLatency
}

func (ka *KeepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stopCh:
			return
		case seq := <-ka.pongCh:
			ka.pong(seq)
		case <-ticker.C:
			if ka.expired() {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		}
	}
}

func (ka *KeepAlive) ping() {
	ka.mu.Lock()
	ka.seq++
	seq := ka.seq
	ka.pending = true
	ka.sentAt = time.Now()
	ka.mu.Unlock()

	// A failed send is left to the pong timeout.
	_ = ka.sendPing(seq)
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	// Late pongs for an older ping are ignored.
	if ka.pending && seq == ka.seq {
		ka.pending = false
		ka.missedPongs = 0
		ka.lastLatency = time.Since(ka.sentAt)
	}
}

// expired counts an overdue ping and reports whether the limit was reached.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.pending && time.Since(ka.sentAt) >= ka.config.PongTimeout {
		ka.pending = false
		ka.missedPongs++
	}
	return ka.missedPongs >= ka.config.MaxMissedPongs
}
