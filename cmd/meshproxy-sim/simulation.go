package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

// outageReason is sent to clients when the simulated proxy link drops.
const outageReason = "proxy node out of range"

// proxy simulates the mesh side of a gateway: whether a proxy node is in
// range, and scheduled outages.
type proxy struct {
	mu       sync.Mutex
	refusing bool
	until    time.Time
	now      func() time.Time

	server gatewayServer
}

// gatewayServer is the part of transport.Server the simulation drives.
type gatewayServer interface {
	Drop(reason string) int
	Kill() int
}

func newProxy(server gatewayServer, refuse bool) *proxy {
	return &proxy{server: server, refusing: refuse, now: time.Now}
}

// accept answers HELLO. During an outage it reports CONNECT_FAIL.
func (p *proxy) accept(clientID string) (transport.Status, string) {
	if p.inOutage() {
		log.Printf("[SIM] Refusing %s: no proxy node in range", clientID)
		return transport.StatusConnectFail, "no proxy node in range"
	}
	log.Printf("[SIM] Proxy link up for %s", clientID)
	return transport.StatusConnected, ""
}

func (p *proxy) inOutage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refusing {
		return true
	}
	return p.now().Before(p.until)
}

// outage drops every client and refuses new links for d. With crash set the
// links are closed without a notice.
func (p *proxy) outage(d time.Duration, crash bool) int {
	p.mu.Lock()
	p.until = p.now().Add(d)
	p.mu.Unlock()

	if crash {
		return p.server.Kill()
	}
	return p.server.Drop(outageReason)
}

// runSchedule triggers an outage every interval until ctx is done.
func (p *proxy) runSchedule(ctx context.Context, interval, length time.Duration, crash bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := p.outage(length, crash)
			log.Printf("[SIM] Outage for %s, dropped %d client(s)", length, n)
		}
	}
}
