package interactive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
	"github.com/meshbridge/meshbridge-go/pkg/session"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
)

type fakeBridge struct {
	status    session.Status
	openErr   error
	opens     int
	forced    int
	resets    int
	listeners []func(bool)
}

func (b *fakeBridge) Open(context.Context) error {
	b.opens++
	return b.openErr
}

func (b *fakeBridge) Reconnect() error {
	if !b.status.Open {
		return errcode.New(errcode.NotInitialized, "session is not open")
	}
	b.forced++
	b.status.Reconnecting = true
	b.status.Attempts = 1
	return nil
}

func (b *fakeBridge) Status() session.Status { return b.status }

func (b *fakeBridge) Subscribe(fn func(bool)) func() {
	idx := len(b.listeners)
	b.listeners = append(b.listeners, fn)
	return func() { b.listeners[idx] = nil }
}

func (b *fakeBridge) ResetRecovery() { b.resets++ }

func (b *fakeBridge) emit(connected bool) {
	for _, fn := range b.listeners {
		if fn != nil {
			fn(connected)
		}
	}
}

type fakeLink struct{ target string }

func (l fakeLink) Target() string  { return l.target }
func (l fakeLink) Connected() bool { return l.target != "" }

func TestConsoleStatus(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBridge{status: session.Status{
		ID:           "6f1c2c1e-8d0f-4b6e-9a55-0c1f4f2b9e11",
		Open:         true,
		State:        supervisor.StateReconnecting,
		Reconnecting: true,
		Attempts:     3,
	}}
	c := newConsole(&out, b, fakeLink{})

	assert.False(t, c.Exec(context.Background(), "status"))

	got := out.String()
	assert.Contains(t, got, "Session:      6f1c2c1e-8d0f-4b6e-9a55-0c1f4f2b9e11")
	assert.Contains(t, got, "State:        RECONNECTING")
	assert.Contains(t, got, "Reconnecting: attempt 3")
	assert.Contains(t, got, "Gateway:      - (link up: false)")
}

func TestConsoleConnect(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBridge{openErr: errcode.New(errcode.ConnectionError, "initial connect failed")}
	c := newConsole(&out, b, nil)

	c.Exec(context.Background(), "connect")
	assert.Equal(t, 1, b.opens)
	assert.Contains(t, out.String(), "Connect failed [CONNECTION_ERROR]")

	out.Reset()
	b.openErr = nil
	c.Exec(context.Background(), "open")
	assert.Contains(t, out.String(), "Connected")
}

func TestConsoleForce(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBridge{}
	c := newConsole(&out, b, nil)

	c.Exec(context.Background(), "force")
	assert.Contains(t, out.String(), "Cannot reconnect [NOT_INITIALIZED]")
	assert.Zero(t, b.forced)

	out.Reset()
	b.status.Open = true
	c.Exec(context.Background(), "FORCE")
	assert.Equal(t, 1, b.forced)
	assert.Contains(t, out.String(), "Reconnect cycle started (attempt 1)")
}

func TestConsoleReset(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBridge{}
	c := newConsole(&out, b, nil)

	c.Exec(context.Background(), "reset")
	assert.Equal(t, 1, b.resets)
}

func TestConsoleWatch(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBridge{}
	c := newConsole(&out, b, nil)

	c.Exec(context.Background(), "watch")
	b.emit(false)
	assert.Contains(t, out.String(), "[WATCH] connected=false")

	// Re-enabling replaces the previous subscription.
	c.Exec(context.Background(), "watch on")
	out.Reset()
	b.emit(true)
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("[WATCH]")))

	c.Exec(context.Background(), "watch off")
	out.Reset()
	b.emit(false)
	assert.Empty(t, out.String())
}

func TestConsoleQuitAndUnknown(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, &fakeBridge{}, nil)

	assert.False(t, c.Exec(context.Background(), "   "))
	assert.False(t, c.Exec(context.Background(), "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	for _, cmd := range []string{"quit", "exit", "q"} {
		assert.True(t, c.Exec(context.Background(), cmd), fmt.Sprintf("%q exits", cmd))
	}
}

func TestConsoleConnectUncoded(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, &fakeBridge{openErr: errors.New("boom")}, nil)

	c.Exec(context.Background(), "connect")
	assert.Contains(t, out.String(), "[CONNECTION_ERROR]")
}
