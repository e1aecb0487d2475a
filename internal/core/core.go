package core

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/silent-echo/signaling/internal/models"
)

const defaultAlias = "Stranger"

// Core wires the matchmaking queue, session registry, presence tracker,
// relay bus and call coordinator behind one API. The transport adapter
// calls into it from one goroutine per live connection; every shared
// resource below is guarded by its owning component.
type Core struct {
	queue     *MatchmakingQueue
	registry  *SessionRegistry
	presence  *PresenceTracker
	relay     *RelayBus
	calls     *CallSignalingCoordinator
	transport Transport
	lifecycle Lifecycle
	log       *slog.Logger
}

type Option func(*Core)

// WithLifecycle attaches a session lifecycle observer, typically the Redis
// metadata mirror.
func WithLifecycle(l Lifecycle) Option {
	return func(c *Core) { c.lifecycle = l }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Core) { c.log = log }
}

func New(transport Transport, opts ...Option) *Core {
	c := &Core{
		transport: transport,
		lifecycle: NopLifecycle{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = NewMatchmakingQueue()
	c.registry = NewSessionRegistry(c.lifecycle, c.log)
	c.presence = NewPresenceTracker(c.registry, c.log)
	c.relay = NewRelayBus(transport, c.registry, c.presence, c.log)
	c.calls = NewCallSignalingCoordinator(c.relay, c.registry, c.log)
	return c
}

// JoinQueue requests pairing with a stranger. It never blocks waiting for a
// partner: the caller either gets matched against the parked ticket right
// away or is acknowledged as queued, with match_found arriving later.
func (c *Core) JoinQueue(p Participant) error {
	if p.ID == "" {
		return &ValidationError{Field: "participantId", Reason: "must not be empty"}
	}
	if p.Alias == "" {
		p.Alias = defaultAlias
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	if sid, ok := c.registry.SessionFor(p.ID); ok {
		return &StateConflictError{Op: "join queue", Detail: "already in session " + sid}
	}

	out := c.queue.Enqueue(p)
	if !out.Matched {
		c.log.Info("participant queued", "participant_id", p.ID)
		c.send(p.ID, models.EventQueued, nil)
		return nil
	}

	partner := out.Partner.Participant
	info, err := c.registry.StartActive(partner, p)
	if err != nil {
		c.queue.Restore(out.Partner)
		return err
	}
	if err := c.presence.Register(info.ID, partner.ID); err != nil {
		return err
	}
	if err := c.presence.Register(info.ID, p.ID); err != nil {
		return err
	}

	c.send(partner.ID, models.EventMatchFound, models.MatchFoundPayload{
		SessionID:    info.ID,
		PartnerAlias: p.Alias,
	})
	c.send(p.ID, models.EventMatchFound, models.MatchFoundPayload{
		SessionID:    info.ID,
		PartnerAlias: partner.Alias,
	})
	return nil
}

// CancelQueue withdraws a pending pairing request. A cancel that lost the
// race to a match is a no-op; the caller is in a session by then and has to
// leave it instead.
func (c *Core) CancelQueue(participantID string) bool {
	removed := c.queue.Cancel(participantID)
	if removed {
		c.log.Info("participant left queue", "participant_id", participantID)
		c.send(participantID, models.EventQueueLeft, nil)
	}
	return removed
}

// SendMessage relays an opaque ciphertext to the other member of an Active
// session. The sender never receives its own message back and gets no
// delivery acknowledgment.
func (c *Core) SendMessage(sessionID, senderID, ciphertext string) error {
	if ciphertext == "" {
		return &ValidationError{Field: "ciphertext", Reason: "must not be empty"}
	}
	if err := c.requireActiveMember(sessionID, senderID, "send message"); err != nil {
		return err
	}
	return c.relay.Publish(sessionID, senderID, models.EventReceiveMessage, models.ReceiveMessagePayload{
		SessionID:  sessionID,
		SenderID:   senderID,
		Ciphertext: ciphertext,
		Ts:         time.Now(),
	}, KindChat)
}

// LeaveSession removes a member voluntarily. The partner is notified and
// the session ends.
func (c *Core) LeaveSession(sessionID, participantID string) error {
	info, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if info.State == StateEnded {
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}
	if _, ok := memberOf(info, participantID); !ok {
		return &StateConflictError{Op: "leave session", Detail: "participant is not a session member"}
	}

	dep := c.presence.Deregister(sessionID, participantID)
	c.settleDeparture(sessionID, participantID, dep)
	c.lifecycle.MemberLeft(sessionID, participantID)
	return nil
}

// CallOffer starts a voice call handshake.
func (c *Core) CallOffer(sessionID, fromID string, payload json.RawMessage) error {
	return c.calls.StartOffer(sessionID, fromID, payload)
}

// CallAnswer accepts a pending voice call offer.
func (c *Core) CallAnswer(sessionID, fromID string, payload json.RawMessage) error {
	return c.calls.SubmitAnswer(sessionID, fromID, payload)
}

// CallDecline rejects a pending voice call offer.
func (c *Core) CallDecline(sessionID, fromID string) error {
	return c.calls.Decline(sessionID, fromID)
}

// CallEnd tears down a call in any negotiation phase. Either member may
// end it, and ending an already-idle call does nothing.
func (c *Core) CallEnd(sessionID, fromID string) error {
	info, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if _, ok := memberOf(info, fromID); !ok {
		return &StateConflictError{Op: "end call", Detail: "participant is not a session member"}
	}
	return c.calls.Teardown(sessionID)
}

// Disconnect is the transport adapter's disconnect callback. It clears any
// pending ticket and treats the lost connection as a presence loss in the
// participant's session.
func (c *Core) Disconnect(participantID string) {
	if c.queue.Cancel(participantID) {
		c.log.Info("queued participant disconnected", "participant_id", participantID)
	}
	sessionID, ok := c.registry.SessionFor(participantID)
	if !ok {
		return
	}
	dep := c.presence.Deregister(sessionID, participantID)
	c.settleDeparture(sessionID, participantID, dep)
	c.lifecycle.MemberLeft(sessionID, participantID)
}

// Session exposes a snapshot of a live or just-ended session.
func (c *Core) Session(sessionID string) (SessionInfo, error) {
	return c.registry.Get(sessionID)
}

// settleDeparture finishes an end-of-session transition after a presence
// removal. The Departure carries whether this removal was the one that
// ended the session, so notifications fire exactly once no matter how many
// leave and disconnect signals race in.
func (c *Core) settleDeparture(sessionID, leaverID string, dep Departure) {
	if dep.Ended {
		if err := c.relay.Publish(sessionID, leaverID, models.EventUserLeft, models.UserLeftPayload{
			SessionID: sessionID,
		}, KindSystem); err != nil {
			c.log.Warn("partner-left notification failed", "session_id", sessionID, "error", err)
		}
		if err := c.calls.Teardown(sessionID); err != nil {
			c.log.Warn("call teardown on session end failed", "session_id", sessionID, "error", err)
		}
		c.presence.Forget(sessionID)
		c.registry.Remove(sessionID)
		return
	}

	if !dep.Removed {
		return
	}
	// A host abandoning a session that never activated ends it quietly.
	if info, err := c.registry.Get(sessionID); err == nil && info.State == StateWaiting {
		if ended, _, _ := c.registry.End(sessionID); ended {
			c.presence.Forget(sessionID)
			c.registry.Remove(sessionID)
		}
	}
}

func (c *Core) requireActiveMember(sessionID, participantID, op string) error {
	info, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if info.State == StateEnded {
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}
	if info.State != StateActive {
		return &StateConflictError{Op: op, Detail: "session is not active"}
	}
	if _, ok := memberOf(info, participantID); !ok {
		return &StateConflictError{Op: op, Detail: "participant is not a session member"}
	}
	return nil
}

func (c *Core) send(participantID, event string, payload any) {
	if err := c.transport.Send(participantID, event, payload); err != nil {
		terr := &TransportError{ParticipantID: participantID, Event: event, Err: err}
		c.log.Warn("send failed", "event", event, "error", terr)
	}
}

func memberOf(info SessionInfo, participantID string) (Participant, bool) {
	for _, m := range info.Members {
		if m.ID == participantID {
			return m, true
		}
	}
	return Participant{}, false
}
