package transport

import (
	"context"
	"net"
)

// GatewayLink is the client side of a gateway link as seen by a session.
// Implemented by Client.
type GatewayLink interface {
	// AutoConnect requests a proxy connection.
	AutoConnect(ctx context.Context) error

	// SetStateHandler registers the receiver of state pushes.
	SetStateHandler(h StateHandler)

	// Close ends the link.
	Close() error
}

// GatewayServer is a running gateway.
// Implemented by Server.
type GatewayServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// Compile-time interface satisfaction checks.
var (
	_ GatewayLink   = (*Client)(nil)
	_ GatewayServer = (*Server)(nil)
	_ Resolver      = StaticResolver("")
	_ Resolver      = (*MDNSResolver)(nil)
)
