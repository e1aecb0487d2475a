package core

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/silent-echo/signaling/internal/models"
)

// SignalPhase is the phase of a session's call negotiation.
type SignalPhase string

const (
	PhaseIdle        SignalPhase = "idle"
	PhaseOfferSent   SignalPhase = "offer_sent"
	PhaseAnswerSent  SignalPhase = "answer_sent"
	PhaseEstablished SignalPhase = "established"
)

// SignalingState tracks one session's offer/answer exchange. It is created
// lazily on the first offer and discarded on teardown or session end.
type SignalingState struct {
	Phase       SignalPhase
	InitiatorID string
	Offer       json.RawMessage
	Answer      json.RawMessage
}

// CallSignalingCoordinator runs the single-shot offer/answer handshake for
// voice calls on top of the relay. It tracks negotiation-message exchange
// only; whether a media connection actually comes up is between the peers.
//
// A second offer while one is outstanding is rejected with a
// StateConflictError. The initiator must tear down or the answerer decline
// before a new offer is accepted. An unanswered offer has no timeout: it
// persists until explicit decline, teardown, or session end.
type CallSignalingCoordinator struct {
	mu    sync.Mutex
	calls map[string]*SignalingState

	relay    *RelayBus
	registry *SessionRegistry
	log      *slog.Logger
}

func NewCallSignalingCoordinator(relay *RelayBus, registry *SessionRegistry, log *slog.Logger) *CallSignalingCoordinator {
	return &CallSignalingCoordinator{
		calls:    make(map[string]*SignalingState),
		relay:    relay,
		registry: registry,
		log:      log,
	}
}

// StartOffer opens the handshake from the Idle phase on an Active session
// and relays the opaque offer blob to the other member.
func (c *CallSignalingCoordinator) StartOffer(sessionID, initiatorID string, payload json.RawMessage) error {
	if err := c.requireActiveMember(sessionID, initiatorID, "start offer"); err != nil {
		return err
	}

	c.mu.Lock()
	if st, ok := c.calls[sessionID]; ok && st.Phase != PhaseIdle {
		c.mu.Unlock()
		return &StateConflictError{Op: "start offer", Detail: "a call is already being negotiated"}
	}
	c.calls[sessionID] = &SignalingState{
		Phase:       PhaseOfferSent,
		InitiatorID: initiatorID,
		Offer:       payload,
	}
	c.mu.Unlock()

	c.log.Info("call offer relayed", "session_id", sessionID)
	return c.relay.Publish(sessionID, initiatorID, models.EventCallOffer, models.CallRelayPayload{
		SessionID: sessionID,
		From:      initiatorID,
		Payload:   payload,
	}, KindSystem)
}

// SubmitAnswer accepts a pending offer. Only the non-initiating member may
// answer; the phase moves to AnswerSent, the answer blob is relayed to the
// initiator, and the negotiation is then considered Established.
func (c *CallSignalingCoordinator) SubmitAnswer(sessionID, answererID string, payload json.RawMessage) error {
	if err := c.requireActiveMember(sessionID, answererID, "submit answer"); err != nil {
		return err
	}

	c.mu.Lock()
	st, ok := c.calls[sessionID]
	if !ok || st.Phase != PhaseOfferSent {
		c.mu.Unlock()
		return &StateConflictError{Op: "submit answer", Detail: "no pending offer"}
	}
	if st.InitiatorID == answererID {
		c.mu.Unlock()
		return &StateConflictError{Op: "submit answer", Detail: "initiator cannot answer its own offer"}
	}
	st.Phase = PhaseAnswerSent
	st.Answer = payload
	c.mu.Unlock()

	err := c.relay.Publish(sessionID, answererID, models.EventCallAccepted, models.CallRelayPayload{
		SessionID: sessionID,
		From:      answererID,
		Payload:   payload,
	}, KindSystem)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if st, ok := c.calls[sessionID]; ok && st.Phase == PhaseAnswerSent {
		st.Phase = PhaseEstablished
	}
	c.mu.Unlock()
	c.log.Info("call established", "session_id", sessionID)
	return nil
}

// Decline rejects a pending offer, resets the negotiation to Idle and
// notifies the initiator.
func (c *CallSignalingCoordinator) Decline(sessionID, answererID string) error {
	if err := c.requireActiveMember(sessionID, answererID, "decline call"); err != nil {
		return err
	}

	c.mu.Lock()
	st, ok := c.calls[sessionID]
	if !ok || st.Phase != PhaseOfferSent {
		c.mu.Unlock()
		return &StateConflictError{Op: "decline call", Detail: "no pending offer"}
	}
	if st.InitiatorID == answererID {
		c.mu.Unlock()
		return &StateConflictError{Op: "decline call", Detail: "initiator cannot decline its own offer"}
	}
	delete(c.calls, sessionID)
	c.mu.Unlock()

	return c.relay.Publish(sessionID, answererID, models.EventCallDeclined, models.SessionRefPayload{
		SessionID: sessionID,
	}, KindSystem)
}

// Teardown resets the negotiation from any phase and notifies the present
// members that the call is over. It is idempotent: with nothing to tear
// down it does nothing, so racing teardown signals produce at most one
// notification.
func (c *CallSignalingCoordinator) Teardown(sessionID string) error {
	c.mu.Lock()
	st, ok := c.calls[sessionID]
	if !ok || st.Phase == PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	delete(c.calls, sessionID)
	c.mu.Unlock()

	c.log.Info("call torn down", "session_id", sessionID)
	return c.relay.Publish(sessionID, "", models.EventCallEnded, models.SessionRefPayload{
		SessionID: sessionID,
	}, KindSystem)
}

// Phase reports the current negotiation phase of a session.
func (c *CallSignalingCoordinator) Phase(sessionID string) SignalPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.calls[sessionID]; ok {
		return st.Phase
	}
	return PhaseIdle
}

func (c *CallSignalingCoordinator) requireActiveMember(sessionID, participantID, op string) error {
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
	for _, m := range info.Members {
		if m.ID == participantID {
			return nil
		}
	}
	return &StateConflictError{Op: op, Detail: "participant is not a session member"}
}
