package core

import "time"

// Participant is an anonymous user identity, stable for one connection
// attempt. The alias is display-only.
type Participant struct {
	ID       string
	Alias    string
	JoinedAt time.Time
}

// Ticket is a pending, unmatched pairing request.
type Ticket struct {
	Participant Participant
	EnqueuedAt  time.Time
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateWaiting SessionState = "waiting"
	StateActive  SessionState = "active"
	StateEnded   SessionState = "ended"
)

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo struct {
	ID        string
	State     SessionState
	Members   []Participant
	CreatedAt time.Time
}

// MessageKind distinguishes user chat payloads from system notifications.
// The payload itself is opaque to the core either way.
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindSystem MessageKind = "system"
)

// Transport delivers an event to a connected participant. Implementations
// are asynchronous and best-effort; a failed delivery is reported as a
// TransportError and never retried by the core.
type Transport interface {
	Send(participantID, event string, payload any) error
}

// Lifecycle observes session state changes, typically to mirror metadata
// into an external store. Implementations must not block and must never
// surface failures into the core.
type Lifecycle interface {
	SessionStarted(info SessionInfo)
	MemberJoined(sessionID string, p Participant)
	MemberLeft(sessionID, participantID string)
	SessionEnded(sessionID string)
}

// NopLifecycle ignores all session events.
type NopLifecycle struct{}

func (NopLifecycle) SessionStarted(SessionInfo)       {}
func (NopLifecycle) MemberJoined(string, Participant) {}
func (NopLifecycle) MemberLeft(string, string)        {}
func (NopLifecycle) SessionEnded(string)              {}
