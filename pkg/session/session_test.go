package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
	"github.com/meshbridge/meshbridge-go/pkg/retry"
	"github.com/meshbridge/meshbridge-go/pkg/scheduler"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

// fakeTransport lets tests script AutoConnect and push states.
type fakeTransport struct {
	mu        sync.Mutex
	handler   transport.StateHandler
	calls     int
	connect   func(f *fakeTransport, call int) error
	closed    bool
	closeWait time.Duration
	closeErr  error
}

func (f *fakeTransport) AutoConnect(context.Context) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.connect
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(f, call)
}

func (f *fakeTransport) SetStateHandler(h transport.StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) Close() error {
	if f.closeWait > 0 {
		time.Sleep(f.closeWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeTransport) push(connected bool) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(connected)
	}
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// connectsAsync pushes CONNECTED shortly after each AutoConnect.
func connectsAsync(f *fakeTransport, _ int) error {
	go f.push(true)
	return nil
}

type subscriber struct {
	mu     sync.Mutex
	states []bool
}

func (s *subscriber) on(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, connected)
}

func (s *subscriber) get() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.states...)
}

func newTestSession(t *testing.T, ft *fakeTransport) (*Session, *scheduler.Manual) {
	t.Helper()
	clock := scheduler.NewManual()
	supCfg := supervisor.DefaultConfig()
	supCfg.Scheduler = clock

	s := New(ft, Config{
		Supervisor:     supCfg,
		ConnectRetries: 3,
		ConnectDelay:   time.Millisecond,
		ConnectWait:    100 * time.Millisecond,
		CloseTimeout:   time.Second,
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, clock
}

func TestSessionID(t *testing.T) {
	s, _ := newTestSession(t, &fakeTransport{})
	_, err := uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.Equal(t, s.ID(), s.Status().ID)
}

func TestSessionOpen(t *testing.T) {
	ft := &fakeTransport{connect: connectsAsync}
	s, clock := newTestSession(t, ft)
	sub := &subscriber{}
	s.Subscribe(sub.on)

	require.NoError(t, s.Open(context.Background()))

	st := s.Status()
	assert.True(t, st.Open)
	assert.True(t, st.Connected)
	assert.False(t, st.Reconnecting)
	assert.Equal(t, supervisor.StateConnected, st.State)
	assert.Equal(t, []bool{true}, sub.get())
	assert.Equal(t, 1, ft.callCount())
	assert.Empty(t, clock.Pending())

	assert.ErrorIs(t, s.Open(context.Background()), ErrAlreadyOpen)
}

func TestSessionOpenSucceedsOnRetry(t *testing.T) {
	ft := &fakeTransport{connect: func(f *fakeTransport, call int) error {
		if call == 1 {
			return errors.New("scan rejected")
		}
		return connectsAsync(f, call)
	}}
	s, _ := newTestSession(t, ft)

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, 2, ft.callCount())
	assert.True(t, s.Status().Connected)
}

func TestSessionOpenFails(t *testing.T) {
	ft := &fakeTransport{connect: func(f *fakeTransport, _ int) error {
		// Gateway answers but never reaches a proxy.
		go f.push(false)
		return nil
	}}
	s, clock := newTestSession(t, ft)
	sub := &subscriber{}
	s.Subscribe(sub.on)

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Equal(t, errcode.ConnectionError, errcode.CodeOf(err, errcode.CommandError))
	assert.Equal(t, 3, ft.callCount())

	// Pushes during the initial connect never start a recovery cycle.
	assert.False(t, s.Status().Open)
	assert.False(t, s.Status().Reconnecting)
	assert.Empty(t, clock.Pending())
	assert.Empty(t, sub.get())

	// Open may be retried.
	ft.mu.Lock()
	ft.connect = connectsAsync
	ft.mu.Unlock()
	assert.NoError(t, s.Open(context.Background()))
}

func TestSessionRecoversAfterDrop(t *testing.T) {
	ft := &fakeTransport{connect: connectsAsync}
	s, clock := newTestSession(t, ft)
	sub := &subscriber{}
	s.Subscribe(sub.on)

	require.NoError(t, s.Open(context.Background()))

	ft.push(false)
	st := s.Status()
	require.True(t, st.Reconnecting)
	require.Equal(t, 1, st.Attempts)
	require.Equal(t, []time.Duration{2 * time.Second}, clock.Pending())

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return s.Status().Connected }, time.Second, time.Millisecond)

	clock.Advance(5 * time.Second)

	st = s.Status()
	assert.True(t, st.Connected)
	assert.False(t, st.Reconnecting)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, []bool{true, false, true}, sub.get())
	assert.Equal(t, 2, ft.callCount())
}

func TestSessionReconnect(t *testing.T) {
	ft := &fakeTransport{connect: connectsAsync}
	s, _ := newTestSession(t, ft)

	err := s.Reconnect()
	assert.ErrorIs(t, err, errcode.New(errcode.NotInitialized, ""))

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Reconnect())

	st := s.Status()
	assert.True(t, st.Reconnecting)
	assert.Equal(t, 1, st.Attempts)
}

func TestSessionUnsubscribe(t *testing.T) {
	ft := &fakeTransport{connect: connectsAsync}
	s, _ := newTestSession(t, ft)

	kept, dropped := &subscriber{}, &subscriber{}
	s.Subscribe(kept.on)
	unsubscribe := s.Subscribe(dropped.on)
	unsubscribe()

	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, []bool{true}, kept.get())
	assert.Empty(t, dropped.get())
}

func TestSessionClose(t *testing.T) {
	ft := &fakeTransport{connect: connectsAsync}
	s, clock := newTestSession(t, ft)
	sub := &subscriber{}
	s.Subscribe(sub.on)

	require.NoError(t, s.Open(context.Background()))
	ft.push(false)
	require.Len(t, clock.Pending(), 1)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	ft.mu.Lock()
	assert.True(t, ft.closed)
	assert.Nil(t, ft.handler, "state handler released")
	ft.mu.Unlock()

	assert.Empty(t, clock.Pending())
	clock.Advance(time.Hour)
	assert.Equal(t, 1, ft.callCount(), "no attempt after Close")
	assert.Equal(t, []bool{true, false}, sub.get())

	assert.ErrorIs(t, s.Open(context.Background()), ErrClosed)
	assert.False(t, s.Status().Open)
}

func TestSessionCloseTimeout(t *testing.T) {
	ft := &fakeTransport{closeWait: 300 * time.Millisecond}
	clock := scheduler.NewManual()
	s := New(ft, Config{
		Supervisor:   supervisor.Config{Scheduler: clock},
		CloseTimeout: 20 * time.Millisecond,
	})

	err := s.Close(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrOperationTimeout)
	assert.Equal(t, errcode.DisposeError, errcode.CodeOf(err, errcode.CommandError))
}

func TestSessionCloseError(t *testing.T) {
	ft := &fakeTransport{closeErr: errors.New("socket busy")}
	s := New(ft, Config{Supervisor: supervisor.Config{Scheduler: scheduler.NewManual()}})

	err := s.Close(context.Background())
	assert.ErrorIs(t, err, ft.closeErr)
}

func TestSessionWithGateway(t *testing.T) {
	server := transport.NewServer(transport.ServerConfig{Address: "127.0.0.1:0"})
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	client, err := transport.NewClient(transport.ClientConfig{
		Resolver:  transport.StaticResolver(server.Addr().String()),
		KeepAlive: transport.KeepAliveConfig{Disabled: true},
	})
	require.NoError(t, err)

	s := New(client, Config{
		Supervisor: supervisor.Config{
			BaseDelay:  10 * time.Millisecond,
			ResultWait: 50 * time.Millisecond,
		},
		ConnectDelay: 10 * time.Millisecond,
		ConnectWait:  time.Second,
	})
	defer s.Close(context.Background())

	require.NoError(t, s.Open(context.Background()))
	require.True(t, s.Status().Connected)

	// The subscriber reads the status it is notified about.
	dropped := make(chan Status, 1)
	s.Subscribe(func(connected bool) {
		if !connected {
			select {
			case dropped <- s.Status():
			default:
			}
		}
	})

	server.Drop("proxy node rebooting")

	select {
	case st := <-dropped:
		assert.True(t, st.Reconnecting)
		assert.Equal(t, 1, st.Attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("session never saw the drop")
	}

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Connected && !st.Reconnecting
	}, 3*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return server.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close(context.Background()))
	assert.Eventually(t, func() bool { return server.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionGatewayUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	client, err := transport.NewClient(transport.ClientConfig{
		Resolver:  transport.StaticResolver(addr),
		KeepAlive: transport.KeepAliveConfig{Disabled: true},
	})
	require.NoError(t, err)

	s := New(client, Config{
		Supervisor:     supervisor.Config{Scheduler: scheduler.NewManual()},
		ConnectRetries: 2,
		ConnectDelay:   time.Millisecond,
	})
	defer s.Close(context.Background())

	err = s.Open(context.Background())
	assert.ErrorIs(t, err, ErrConnectFailed)
}
