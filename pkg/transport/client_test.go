package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []bool
	ch     chan bool
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan bool, 16)}
}

func (r *stateRecorder) handle(connected bool) {
	r.mu.Lock()
	r.states = append(r.states, connected)
	r.mu.Unlock()
	r.ch <- connected
}

func (r *stateRecorder) next(t *testing.T) bool {
	t.Helper()
	select {
	case c := <-r.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no state push")
		return false
	}
}

func (r *stateRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func startServer(t *testing.T, config ServerConfig) *Server {
	t.Helper()
	config.Address = "127.0.0.1:0"
	s := NewServer(config)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func newTestClient(t *testing.T, address string, mutate func(*ClientConfig)) (*Client, *stateRecorder) {
	t.Helper()
	cfg := ClientConfig{
		Resolver:  StaticResolver(address),
		ClientID:  "test-client",
		KeepAlive: KeepAliveConfig{Disabled: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	rec := newStateRecorder()
	c.SetStateHandler(rec.handle)
	return c, rec
}

func deadAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestNewClientRequiresResolver(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Equal(t, errcode.InvalidArgument, errcode.CodeOf(err, errcode.InitError))
}

func TestClientConnect(t *testing.T) {
	var hello string
	server := startServer(t, ServerConfig{
		Accept: func(clientID string) (Status, string) {
			hello = clientID
			return StatusConnected, ""
		},
	})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	require.NoError(t, client.AutoConnect(context.Background()))

	assert.True(t, rec.next(t))
	assert.True(t, client.Connected())
	assert.Equal(t, server.Addr().String(), client.Target())
	assert.Equal(t, "test-client", hello)
	assert.Eventually(t, func() bool { return server.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClientAutoConnectWhileLinked(t *testing.T) {
	server := startServer(t, ServerConfig{})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))

	require.NoError(t, client.AutoConnect(context.Background()))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, server.ConnectionCount(), "no second link")
	assert.Equal(t, []bool{true}, rec.get())
}

func TestClientGatewayDrops(t *testing.T) {
	server := startServer(t, ServerConfig{})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))
	require.Eventually(t, func() bool { return server.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, server.Drop("proxy node out of range"))

	assert.False(t, rec.next(t))
	assert.False(t, client.Connected())
	assert.Empty(t, client.Target())

	// A dropped link can be reopened.
	require.NoError(t, client.AutoConnect(context.Background()))
	assert.True(t, rec.next(t))
}

func TestClientGatewayCrash(t *testing.T) {
	server := startServer(t, ServerConfig{})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))
	require.Eventually(t, func() bool { return server.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	server.Kill()

	assert.False(t, rec.next(t))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.get(), "one disconnect per link")
}

func TestClientConnectFail(t *testing.T) {
	server := startServer(t, ServerConfig{
		Accept: func(string) (Status, string) {
			return StatusConnectFail, "no proxy node in range"
		},
	})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	// The request is accepted; the failure arrives as a push.
	require.NoError(t, client.AutoConnect(context.Background()))

	assert.False(t, rec.next(t))
	assert.False(t, client.Connected())
	assert.Equal(t, 0, server.ConnectionCount())
}

func TestClientHeartbeatTimeout(t *testing.T) {
	server := startServer(t, ServerConfig{})
	server.SetMuted(true)

	client, rec := newTestClient(t, server.Addr().String(), func(c *ClientConfig) {
		c.KeepAlive = KeepAliveConfig{
			PingInterval:   20 * time.Millisecond,
			PongTimeout:    10 * time.Millisecond,
			MaxMissedPongs: 2,
		}
	})

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))

	assert.False(t, rec.next(t), "silent gateway is treated as lost")
}

func TestClientHeartbeatAnswered(t *testing.T) {
	server := startServer(t, ServerConfig{})

	client, rec := newTestClient(t, server.Addr().String(), func(c *ClientConfig) {
		c.KeepAlive = KeepAliveConfig{
			PingInterval:   10 * time.Millisecond,
			PongTimeout:    5 * time.Millisecond,
			MaxMissedPongs: 2,
		}
	})

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, client.Connected())
	assert.Equal(t, []bool{true}, rec.get())
}

func TestClientDialFailureTripsBreaker(t *testing.T) {
	client, rec := newTestClient(t, deadAddress(t), func(c *ClientConfig) {
		c.Breaker = BreakerConfig{Failures: 2, OpenTimeout: time.Minute}
		c.DialTimeout = 500 * time.Millisecond
	})

	for i := 0; i < 2; i++ {
		err := client.AutoConnect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dial gateway")
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	err := client.AutoConnect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Contains(t, err.Error(), "circuit open")

	assert.Empty(t, rec.get(), "immediate rejections are returned, not pushed")
}

func TestClientResolveFailure(t *testing.T) {
	client, _ := newTestClient(t, "", nil)

	err := client.AutoConnect(context.Background())
	assert.ErrorIs(t, err, ErrGatewayNotFound)
}

func TestClientClose(t *testing.T) {
	server := startServer(t, ServerConfig{})
	client, rec := newTestClient(t, server.Addr().String(), nil)

	require.NoError(t, client.AutoConnect(context.Background()))
	require.True(t, rec.next(t))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return server.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.get(), "Close pushes nothing")

	assert.ErrorIs(t, client.AutoConnect(context.Background()), ErrClosed)
}

func TestServerStopIdempotent(t *testing.T) {
	s := NewServer(ServerConfig{Address: "127.0.0.1:0"})
	assert.NoError(t, s.Stop(), "stop before start")
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "already running")
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestServerRejectsMissingHello(t *testing.T) {
	server := startServer(t, ServerConfig{HelloTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	f := NewFramer(conn)
	require.NoError(t, f.WriteMessage(&Message{Type: MsgPing, Seq: 1}))

	_, err = f.ReadMessage()
	assert.Error(t, err, "server closes a link that does not start with HELLO")
}

func TestStaticResolver(t *testing.T) {
	ep, err := StaticResolver("10.0.0.5:7373").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:7373", ep.Address)
	assert.Empty(t, ep.Instance)
}
