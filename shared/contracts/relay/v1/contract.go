// Package v1 defines the Beacon relay wire protocol v1.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// EphemeralSeq tags server notices that are not part of the durable log.
// Clients must not advance their resume offset past it.
const EphemeralSeq int64 = -1

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server). It carries the
	// client's last observed sequence and the transport recovered flag.
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session handshake (server -> client).
	TypeHelloAck = "hello.ack"

	// TypeMessageSend requests appending a chat message (client -> server).
	// Unacknowledged sends are retried with the same dedup key.
	TypeMessageSend = "message.send"
	// TypeMessageAck confirms a send is durably recorded (server -> client).
	// It is emitted for fresh appends and for resolved duplicates alike.
	TypeMessageAck = "message.ack"

	// TypeChatMessage delivers a chat record (server -> client), both live
	// fan-out and replay.
	TypeChatMessage = "chat.message"
	// TypeSystemMessage delivers a system record (server -> client).
	// Seq == EphemeralSeq marks a notice that was never persisted.
	TypeSystemMessage = "system.message"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitzero"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeMessageSend,
		TypeMessageAck,
		TypeChatMessage,
		TypeSystemMessage,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session.
//
// LastSeq is the highest sequence the client has observed (0 = from the
// beginning). Recovered reports that the transport layer restored the
// session without gaps, which makes replay unnecessary.
type HelloPayload struct {
	LastSeq   int64 `json:"last_seq"`
	Recovered bool  `json:"recovered,omitempty"`
}

// HelloAckPayload carries the server-assigned session identity.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// MessageSendPayload requests appending a chat message to the log.
//
// DedupKey is a client-chosen idempotency token tied 1:1 to a logical send
// attempt; retries reuse it so the append is applied at most once.
type MessageSendPayload struct {
	Text     string `json:"text"`
	DedupKey string `json:"dedup_key"`
}

// MessageAckPayload confirms a send request is durably recorded.
type MessageAckPayload struct {
	DedupKey string `json:"dedup_key"`
	Seq      int64  `json:"seq"`
}

// ChatMessagePayload delivers one chat record.
type ChatMessagePayload struct {
	Content string `json:"content"`
	Seq     int64  `json:"seq"`
}

// SystemMessagePayload delivers one system record or an ephemeral notice.
type SystemMessagePayload struct {
	Content string `json:"content"`
	Seq     int64  `json:"seq"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
