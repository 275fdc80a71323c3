package relay

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message in the relay protocol.
type MessageType string

// Protocol message types exchanged over the WebSocket connection.
const (
	MsgHello    MessageType = "hello"
	MsgHelloAck MessageType = "hello_ack"
	MsgMessage  MessageType = "message"
	MsgResponse MessageType = "response"
	MsgError    MessageType = "error"
	MsgPing     MessageType = "ping"
	MsgPong     MessageType = "pong"
)

// Envelope is the wire format for all WebSocket messages. ID is the
// correlation ID: a response or error carries the ID of the message it
// answers.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HelloRequest is sent by a platform connector to authenticate.
type HelloRequest struct {
	Token      string `json:"token"`
	ClientName string `json:"client_name"`
	Platform   string `json:"platform,omitempty"`
}

// HelloAck is sent by the server after evaluating a hello.
type HelloAck struct {
	Accepted bool   `json:"accepted"`
	ClientID string `json:"client_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorPayload carries a human-readable failure description.
type ErrorPayload struct {
	Message string `json:"message"`
}
