package transport

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidMessage indicates a decoded message with an unknown type.
var ErrInvalidMessage = errors.New("invalid message")

// MessageType identifies a gateway message.
type MessageType uint8

const (
	// MsgHello opens a link. Client to gateway.
	MsgHello MessageType = 1
	// MsgStatus reports the proxy connection state. Gateway to client.
	MsgStatus MessageType = 2
	// MsgPing is a heartbeat request.
	MsgPing MessageType = 3
	// MsgPong answers a ping with the same sequence number.
	MsgPong MessageType = 4
	// MsgBye announces an orderly close.
	MsgBye MessageType = 5
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgStatus:
		return "STATUS"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgBye:
		return "BYE"
	default:
		return "UNKNOWN"
	}
}

// Status is the proxy connection state reported by a gateway.
type Status uint8

const (
	// StatusConnected means the gateway holds a proxy connection to the mesh.
	StatusConnected Status = 1
	// StatusConnectFail means the gateway could not reach any proxy node.
	StatusConnectFail Status = 2
	// StatusDisconnected means the proxy connection was lost.
	StatusDisconnected Status = 3
)

// String returns the status name as it appears in gateway event logs.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "CONNECTED"
	case StatusConnectFail:
		return "CONNECT_FAIL"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connected maps the status onto the transport's boolean state.
func (s Status) Connected() bool {
	return s == StatusConnected
}

// ParseStatus returns the status with the given name.
func ParseStatus(name string) (Status, bool) {
	for _, s := range []Status{StatusConnected, StatusConnectFail, StatusDisconnected} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// Message is a gateway link message.
// CBOR: { 1: type, 2: status, 3: seq, 4: clientID, 5: reason }
type Message struct {
	Type     MessageType `cbor:"1,keyasint"`
	Status   Status      `cbor:"2,keyasint,omitempty"`
	Seq      uint32      `cbor:"3,keyasint,omitempty"`
	ClientID string      `cbor:"4,keyasint,omitempty"`
	Reason   string      `cbor:"5,keyasint,omitempty"`
}

var (
	msgEnc = mustEncMode()
	msgDec = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor enc mode: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor dec mode: %v", err))
	}
	return dm
}

// EncodeMessage encodes msg as CBOR.
func EncodeMessage(msg *Message) ([]byte, error) {
	return msgEnc.Marshal(msg)
}

// DecodeMessage decodes a CBOR message and checks its type.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := msgDec.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type < MsgHello || msg.Type > MsgBye {
		return nil, fmt.Errorf("%w: type %d", ErrInvalidMessage, msg.Type)
	}
	return &msg, nil
}
