package models

import (
	"encoding/json"
	"time"
)

// Client-to-server events.
const (
	EventJoinQueue    = "join_queue"
	EventCancelQueue  = "cancel_queue"
	EventSendMessage  = "send_message"
	EventLeaveSession = "leave_session"
	EventCallOffer    = "call_offer"
	EventCallAnswer   = "call_answer"
	EventCallDecline  = "call_decline"
	EventCallEnded    = "call_ended"
)

// Server-to-client events. Call offer and ended share their names with the
// client-to-server direction; the relay forwards them to the peer.
const (
	EventQueued         = "queued"
	EventQueueLeft      = "queue_left"
	EventMatchFound     = "match_found"
	EventReceiveMessage = "receive_message"
	EventUserLeft       = "user_left"
	EventCallAccepted   = "call_accepted"
	EventCallDeclined   = "call_declined"
	EventError          = "error"
)

// Envelope frames every message on the socket in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinQueuePayload requests pairing with a stranger. An empty alias
// defaults to "Stranger".
type JoinQueuePayload struct {
	Alias string `json:"alias" validate:"omitempty,max=32"`
}

// SendMessagePayload carries one encrypted chat message. The ciphertext is
// opaque to the server end to end.
type SendMessagePayload struct {
	SessionID  string `json:"sessionId" validate:"required"`
	Ciphertext string `json:"ciphertext" validate:"required"`
}

// SessionRefPayload references a session with no further data, as in
// leave_session, call_decline and call_ended.
type SessionRefPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// CallSignalPayload carries an opaque negotiation blob for call_offer and
// call_answer.
type CallSignalPayload struct {
	SessionID string          `json:"sessionId" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// MatchFoundPayload tells a queued participant it has been paired.
type MatchFoundPayload struct {
	SessionID    string `json:"sessionId"`
	PartnerAlias string `json:"partnerAlias"`
}

// ReceiveMessagePayload delivers a relayed chat message to the peer.
type ReceiveMessagePayload struct {
	SessionID  string    `json:"sessionId"`
	SenderID   string    `json:"senderId"`
	Ciphertext string    `json:"ciphertext"`
	Ts         time.Time `json:"ts"`
}

// CallRelayPayload delivers a relayed negotiation blob to the peer.
type CallRelayPayload struct {
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// UserLeftPayload notifies the survivor that the partner is gone.
type UserLeftPayload struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload reports a rejected operation back to its caller.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
