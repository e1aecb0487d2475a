package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silent-echo/signaling/internal/models"
)

type callFixture struct {
	*relayFixture
	coordinator *CallSignalingCoordinator
}

func newCallFixture(t *testing.T) *callFixture {
	t.Helper()
	f := newRelayFixture(t)
	return &callFixture{
		relayFixture: f,
		coordinator:  NewCallSignalingCoordinator(f.bus, f.registry, testLogger()),
	}
}

func offerBlob() json.RawMessage {
	return json.RawMessage(`{"sdp":"opaque-offer"}`)
}

func answerBlob() json.RawMessage {
	return json.RawMessage(`{"sdp":"opaque-answer"}`)
}

func TestCallSignaling_Handshake(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	// When Alice offers
	req.NoError(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()))

	// Then Bob receives the offer and the phase is OfferSent
	req.Equal(1, f.transport.count("bob", models.EventCallOffer))
	req.Equal(0, f.transport.count("alice", models.EventCallOffer))
	req.Equal(PhaseOfferSent, f.coordinator.Phase(f.sessionID))

	// When Bob answers
	req.NoError(f.coordinator.SubmitAnswer(f.sessionID, "bob", answerBlob()))

	// Then Alice receives the answer and the negotiation is Established
	req.Equal(1, f.transport.count("alice", models.EventCallAccepted))
	req.Equal(PhaseEstablished, f.coordinator.Phase(f.sessionID))
}

func TestCallSignaling_SecondOfferIsRejected(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	req.NoError(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()))

	// A second offer while one is outstanding is rejected, whoever sends it
	var conflict *StateConflictError
	req.ErrorAs(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()), &conflict)
	req.ErrorAs(f.coordinator.StartOffer(f.sessionID, "bob", offerBlob()), &conflict)

	// The pending offer is untouched
	req.Equal(PhaseOfferSent, f.coordinator.Phase(f.sessionID))
	req.Equal(1, f.transport.count("bob", models.EventCallOffer))
}

func TestCallSignaling_SelfAnswerIsRejected(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	req.NoError(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()))

	var conflict *StateConflictError
	req.ErrorAs(f.coordinator.SubmitAnswer(f.sessionID, "alice", answerBlob()), &conflict)
	req.Equal(PhaseOfferSent, f.coordinator.Phase(f.sessionID))
}

func TestCallSignaling_AnswerWithoutOffer(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	var conflict *StateConflictError
	req.ErrorAs(f.coordinator.SubmitAnswer(f.sessionID, "bob", answerBlob()), &conflict)
}

func TestCallSignaling_Decline(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	req.NoError(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()))

	// The initiator cannot decline its own offer
	var conflict *StateConflictError
	req.ErrorAs(f.coordinator.Decline(f.sessionID, "alice"), &conflict)

	// When Bob declines
	req.NoError(f.coordinator.Decline(f.sessionID, "bob"))

	// Then Alice is notified and the negotiation is Idle again
	req.Equal(1, f.transport.count("alice", models.EventCallDeclined))
	req.Equal(PhaseIdle, f.coordinator.Phase(f.sessionID))

	// A fresh offer is accepted after the reset
	req.NoError(f.coordinator.StartOffer(f.sessionID, "bob", offerBlob()))
	req.Equal(PhaseOfferSent, f.coordinator.Phase(f.sessionID))
}

func TestCallSignaling_TeardownIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)
	req.NoError(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()))
	req.NoError(f.coordinator.SubmitAnswer(f.sessionID, "bob", answerBlob()))

	// The first teardown notifies both members
	req.NoError(f.coordinator.Teardown(f.sessionID))
	req.Equal(1, f.transport.count("alice", models.EventCallEnded))
	req.Equal(1, f.transport.count("bob", models.EventCallEnded))
	req.Equal(PhaseIdle, f.coordinator.Phase(f.sessionID))

	// Tearing down again produces nothing
	req.NoError(f.coordinator.Teardown(f.sessionID))
	req.Equal(1, f.transport.count("alice", models.EventCallEnded))
	req.Equal(1, f.transport.count("bob", models.EventCallEnded))
}

func TestCallSignaling_OfferRequiresActiveSession(t *testing.T) {
	req := require.New(t)
	f := newCallFixture(t)

	// Unknown session
	var notFound *ResourceNotFoundError
	req.ErrorAs(f.coordinator.StartOffer("missing", "alice", offerBlob()), &notFound)

	// Non-member
	var conflict *StateConflictError
	req.ErrorAs(f.coordinator.StartOffer(f.sessionID, "mallory", offerBlob()), &conflict)

	// Ended session
	ended, _, err := f.registry.End(f.sessionID)
	req.NoError(err)
	req.True(ended)
	req.ErrorAs(f.coordinator.StartOffer(f.sessionID, "alice", offerBlob()), &notFound)
}
