// Package transport implements the mesh-proxy gateway link.
//
// A gateway is a BLE-to-IP bridge that holds the GATT proxy connection to
// the mesh on behalf of a remote client. The client side of the link is a
// supervisor.MeshTransport: AutoConnect resolves the gateway, dials it and
// asks it to bring up a proxy connection. The outcome arrives later as a
// status message and is pushed to the registered StateHandler.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   CBOR Messages (integer keys) │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// # Session Flow
//
//	client                         gateway
//	  │──── HELLO {client id} ────────▶│
//	  │◀─── STATUS CONNECTED ──────────│   proxy link up
//	  │◀──▶ PING / PONG ──────────────▶│   heartbeat
//	  │◀─── STATUS DISCONNECTED ───────│   proxy link lost
//
// A gateway that cannot reach a proxy node answers STATUS CONNECT_FAIL and
// closes the link. Closing the TCP connection without a status counts as a
// disconnect.
//
// # Discovery
//
// Gateways advertise _meshproxy._tcp over mDNS. A static address bypasses
// discovery.
package transport
