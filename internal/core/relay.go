package core

import (
	"log/slog"

	"github.com/samber/lo"
)

// RelayBus fans a payload out to the other present members of a session.
// It is storeless and at-most-once: no backlog, no replay, no retry, and a
// member absent at publish time never receives the payload. The payload is
// an opaque blob; the bus never inspects or logs its content.
//
// Per-sender ordering holds because each connection publishes from a single
// goroutine and Publish hands payloads to the transport synchronously, in
// call order.
type RelayBus struct {
	transport Transport
	registry  *SessionRegistry
	presence  *PresenceTracker
	log       *slog.Logger
}

func NewRelayBus(transport Transport, registry *SessionRegistry, presence *PresenceTracker, log *slog.Logger) *RelayBus {
	return &RelayBus{transport: transport, registry: registry, presence: presence, log: log}
}

// Publish delivers payload under the given event name to every present
// member of the session other than the sender. An empty senderID marks a
// system-originated publish with no exclusion. Delivery failures are logged
// and swallowed; absence is discovered through presence, not through
// per-message acknowledgment.
func (b *RelayBus) Publish(sessionID, senderID, event string, payload any, kind MessageKind) error {
	members, err := b.registry.Members(sessionID)
	if err != nil {
		return err
	}
	present := b.presence.PresentIDs(sessionID)

	recipients := lo.Filter(members, func(m Participant, _ int) bool {
		return m.ID != senderID && lo.Contains(present, m.ID)
	})
	for _, m := range recipients {
		if err := b.transport.Send(m.ID, event, payload); err != nil {
			terr := &TransportError{ParticipantID: m.ID, Event: event, Err: err}
			b.log.Warn("relay delivery failed", "session_id", sessionID, "event", event, "kind", string(kind), "error", terr)
		}
	}
	return nil
}
