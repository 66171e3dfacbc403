package meshbridge_test

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/log"
	"github.com/meshbridge/meshbridge-go/pkg/session"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

// fastRecovery keeps a full reconnect cycle under a second.
var fastRecovery = supervisor.Config{
	MaxAttempts: 5,
	BaseDelay:   20 * time.Millisecond,
	ResultWait:  100 * time.Millisecond,
}

type bridge struct {
	sess    *session.Session
	client  *transport.Client
	journal *log.FileLogger
	path    string
}

func newBridge(t *testing.T, gatewayAddr string, breaker transport.BreakerConfig) *bridge {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bridge.mbj")
	journal, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	client, err := transport.NewClient(transport.ClientConfig{
		Resolver:    transport.StaticResolver(gatewayAddr),
		ClientID:    "e2e-bridge",
		SessionID:   "e2e-session",
		DialTimeout: 200 * time.Millisecond,
		KeepAlive:   transport.KeepAliveConfig{Disabled: true},
		Breaker:     breaker,
		EventLogger: journal,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	sess := session.New(client, session.Config{
		ID:           "e2e-session",
		Supervisor:   fastRecovery,
		ConnectDelay: 10 * time.Millisecond,
		EventLogger:  journal,
	})

	b := &bridge{sess: sess, client: client, journal: journal, path: path}
	t.Cleanup(func() {
		_ = sess.Close(context.Background())
		_ = journal.Close()
	})
	return b
}

// events closes the journal and reads it back.
func (b *bridge) events(t *testing.T) []log.Event {
	t.Helper()
	if err := b.sess.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	b.journal.Close()

	reader, err := log.NewReader(b.path)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}
	return events
}

// countPhase counts supervisor attempt events; the initial connect journals
// its own attempts under ComponentRetry.
func countPhase(events []log.Event, phase log.AttemptPhase) int {
	n := 0
	for _, e := range events {
		if e.Component == log.ComponentSupervisor && e.Attempt != nil && e.Attempt.Phase == phase {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestE2E_Discovery tests that a bridge can find a gateway via mDNS.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ad, err := transport.Advertise(transport.AdvertiseConfig{
		Instance: "e2e-gateway",
		Port:     7399,
	})
	if err != nil {
		t.Fatalf("Failed to advertise: %v", err)
	}
	defer ad.Shutdown()

	// Give mDNS time to propagate
	time.Sleep(500 * time.Millisecond)

	resolver := transport.NewMDNSResolver(transport.MDNSConfig{
		Instance:      "e2e-gateway",
		BrowseTimeout: 5 * time.Second,
	})
	ep, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Failed to resolve gateway: %v", err)
	}

	if ep.Instance != "e2e-gateway" {
		t.Errorf("Instance mismatch: expected e2e-gateway, got %s", ep.Instance)
	}
	if _, port, _ := net.SplitHostPort(ep.Address); port != "7399" {
		t.Errorf("Port mismatch: expected 7399, got %s", port)
	}
}

// TestE2E_Reconnection restarts the gateway on the same address and checks
// the bridge recovers on its own.
func TestE2E_Reconnection(t *testing.T) {
	var mu sync.Mutex
	var server *transport.Server

	start := func(addr string) {
		mu.Lock()
		defer mu.Unlock()
		server = transport.NewServer(transport.ServerConfig{Address: addr})
		if err := server.Start(context.Background()); err != nil {
			t.Fatalf("Failed to start gateway: %v", err)
		}
	}
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		server.Stop()
	}

	start("127.0.0.1:0")
	addr := server.Addr().String()
	defer stop()

	b := newBridge(t, addr, transport.BreakerConfig{Failures: 10, OpenTimeout: time.Second})

	var states []bool
	var statesMu sync.Mutex
	b.sess.Subscribe(func(connected bool) {
		statesMu.Lock()
		states = append(states, connected)
		statesMu.Unlock()
	})

	if err := b.sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Gateway restart: the link drops, the first attempts hit a closed port.
	stop()
	waitFor(t, "reconnecting", func() bool { return b.sess.Status().Reconnecting })
	time.Sleep(50 * time.Millisecond)
	start(addr)

	waitFor(t, "recovery", func() bool {
		st := b.sess.Status()
		return st.Connected && !st.Reconnecting
	})

	statesMu.Lock()
	got := append([]bool(nil), states...)
	statesMu.Unlock()
	if len(got) < 3 || !got[0] || got[1] || !got[len(got)-1] {
		t.Errorf("unexpected state sequence %v", got)
	}

	events := b.events(t)
	if n := countPhase(events, log.AttemptSucceeded); n != 1 {
		t.Errorf("expected 1 successful recovery attempt in journal, got %d", n)
	}
	var openSucceeded bool
	for _, e := range events {
		if e.Component == log.ComponentRetry && e.Attempt != nil && e.Attempt.Phase == log.AttemptSucceeded {
			openSucceeded = true
		}
	}
	if !openSucceeded {
		t.Error("expected the initial connect to be journaled by the retry executor")
	}
	if countPhase(events, log.AttemptsExhausted) != 0 {
		t.Error("cycle should not be exhausted")
	}

	var transportErrors int
	for _, e := range events {
		if e.SessionID != "e2e-session" {
			t.Errorf("event tagged with session %q", e.SessionID)
		}
		if e.Error != nil && e.Component == log.ComponentTransport {
			transportErrors++
		}
	}
	if transportErrors == 0 {
		t.Error("expected dial failures journaled by the transport")
	}
}

// TestE2E_Exhaustion keeps the proxy out of range after a drop and checks the
// bridge gives up after the attempt budget.
func TestE2E_Exhaustion(t *testing.T) {
	var mu sync.Mutex
	inRange := true

	server := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		Accept: func(string) (transport.Status, string) {
			mu.Lock()
			defer mu.Unlock()
			if inRange {
				return transport.StatusConnected, ""
			}
			return transport.StatusConnectFail, "no proxy node in range"
		},
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start gateway: %v", err)
	}
	defer server.Stop()

	b := newBridge(t, server.Addr().String(), transport.BreakerConfig{})
	if err := b.sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	mu.Lock()
	inRange = false
	mu.Unlock()
	server.Drop("proxy node out of range")

	waitFor(t, "reconnecting", func() bool { return b.sess.Status().Reconnecting })
	waitFor(t, "exhaustion", func() bool { return !b.sess.Status().Reconnecting })

	st := b.sess.Status()
	if st.State != supervisor.StateDisconnected {
		t.Errorf("expected DISCONNECTED, got %s", st.State)
	}
	if st.Attempts != 0 {
		t.Errorf("attempt counter should reset after exhaustion, got %d", st.Attempts)
	}

	events := b.events(t)
	if n := countPhase(events, log.AttemptIssued); n != fastRecovery.MaxAttempts {
		t.Errorf("expected %d issued attempts, got %d", fastRecovery.MaxAttempts, n)
	}
	if n := countPhase(events, log.AttemptsExhausted); n != 1 {
		t.Errorf("expected 1 exhaustion event, got %d", n)
	}
}
