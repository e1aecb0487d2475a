package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T) (*PresenceTracker, *SessionRegistry) {
	t.Helper()
	r := newTestRegistry()
	return NewPresenceTracker(r, testLogger()), r
}

func TestPresenceTracker_RegisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	tr, r := newTestPresence(t)
	info, err := r.StartActive(participant("alice", "Alice"), participant("bob", "Bob"))
	req.NoError(err)

	req.NoError(tr.Register(info.ID, "alice"))
	req.NoError(tr.Register(info.ID, "alice"))
	req.NoError(tr.Register(info.ID, "bob"))

	req.Equal(2, tr.ActiveCount(info.ID))
}

func TestPresenceTracker_RegisterUnknownSession(t *testing.T) {
	req := require.New(t)
	tr, _ := newTestPresence(t)

	var notFound *ResourceNotFoundError
	req.ErrorAs(tr.Register("missing", "alice"), &notFound)
}

func TestPresenceTracker_SecondPresenceActivatesWaitingSession(t *testing.T) {
	req := require.New(t)
	tr, r := newTestPresence(t)

	// Given a Waiting session with two members
	info, err := r.StartWaiting(participant("host", "Host"))
	req.NoError(err)
	req.NoError(r.Join(info.ID, participant("guest", "Guest")))

	// When only the host is present the session keeps Waiting
	req.NoError(tr.Register(info.ID, "host"))
	got, err := r.Get(info.ID)
	req.NoError(err)
	req.Equal(StateWaiting, got.State)

	// When the guest's presence is observed the session goes Active
	req.NoError(tr.Register(info.ID, "guest"))
	got, err = r.Get(info.ID)
	req.NoError(err)
	req.Equal(StateActive, got.State)
}

func TestPresenceTracker_DropBelowTwoEndsActiveSession(t *testing.T) {
	req := require.New(t)
	tr, r := newTestPresence(t)
	info, err := r.StartActive(participant("alice", "Alice"), participant("bob", "Bob"))
	req.NoError(err)
	req.NoError(tr.Register(info.ID, "alice"))
	req.NoError(tr.Register(info.ID, "bob"))

	// When Alice's connection goes away
	dep := tr.Deregister(info.ID, "alice")

	// Then the session ends exactly once with Bob surviving
	req.True(dep.Removed)
	req.True(dep.Ended)
	req.Len(dep.Survivors, 1)
	req.Equal("bob", dep.Survivors[0].ID)

	got, err := r.Get(info.ID)
	req.NoError(err)
	req.Equal(StateEnded, got.State)

	// A racing removal signal for the same participant is inert
	dep = tr.Deregister(info.ID, "alice")
	req.False(dep.Removed)
	req.False(dep.Ended)

	// The survivor's own departure does not end anything again
	dep = tr.Deregister(info.ID, "bob")
	req.True(dep.Removed)
	req.False(dep.Ended)
	req.Equal(0, dep.Remaining)
}

func TestPresenceTracker_DeregisterUnknownSession(t *testing.T) {
	req := require.New(t)
	tr, _ := newTestPresence(t)

	dep := tr.Deregister("missing", "alice")
	req.False(dep.Removed)
	req.False(dep.Ended)
}
