package core

import (
	"log/slog"
	"sync"
)

// Departure describes what a presence removal did to the session.
type Departure struct {
	Removed   bool
	Remaining int
	// Ended is true when this removal was the one that dropped an Active
	// session below two members and transitioned it to Ended.
	Ended     bool
	Survivors []Participant
}

// PresenceTracker maps transport-connection liveness onto session
// membership. Presence has no heartbeat of its own: a participant is
// present exactly as long as the transport reports its connection open,
// and the transport's disconnect path is the sole source of involuntary
// leave detection.
type PresenceTracker struct {
	mu      sync.Mutex
	present map[string]map[string]struct{}

	registry *SessionRegistry
	log      *slog.Logger
}

func NewPresenceTracker(registry *SessionRegistry, log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		present:  make(map[string]map[string]struct{}),
		registry: registry,
		log:      log,
	}
}

// Register records a participant as present in a session. Duplicate calls
// for the same participant are idempotent. When a Waiting session reaches
// two present members it is promoted to Active.
func (t *PresenceTracker) Register(sessionID, participantID string) error {
	info, err := t.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if info.State == StateEnded {
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}

	t.mu.Lock()
	set, ok := t.present[sessionID]
	if !ok {
		set = make(map[string]struct{})
		t.present[sessionID] = set
	}
	set[participantID] = struct{}{}
	count := len(set)
	t.mu.Unlock()

	if info.State == StateWaiting && count == 2 {
		if err := t.registry.Activate(sessionID); err != nil {
			return err
		}
	}
	return nil
}

// Deregister removes a participant's presence. If the removal drops an
// Active session below two members, the session is ended (exactly once,
// however many removal signals race in) and the surviving members are
// reported so the caller can notify them.
func (t *PresenceTracker) Deregister(sessionID, participantID string) Departure {
	t.mu.Lock()
	set, ok := t.present[sessionID]
	if !ok {
		t.mu.Unlock()
		return Departure{}
	}
	_, present := set[participantID]
	if present {
		delete(set, participantID)
	}
	remaining := len(set)
	if remaining == 0 {
		delete(t.present, sessionID)
	}
	t.mu.Unlock()

	dep := Departure{Removed: present, Remaining: remaining}
	if !present {
		return dep
	}

	info, err := t.registry.Get(sessionID)
	if err != nil || info.State != StateActive {
		return dep
	}
	ended, members, err := t.registry.End(sessionID)
	if err != nil || !ended {
		return dep
	}
	dep.Ended = true
	for _, m := range members {
		if m.ID != participantID {
			dep.Survivors = append(dep.Survivors, m)
		}
	}
	t.log.Info("presence lost on active session", "session_id", sessionID, "remaining", remaining)
	return dep
}

// ActiveCount reports how many members are currently present in a session.
func (t *PresenceTracker) ActiveCount(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.present[sessionID])
}

// PresentIDs returns the ids of the members currently present in a session.
func (t *PresenceTracker) PresentIDs(sessionID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.present[sessionID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Forget drops all presence bookkeeping for a session.
func (t *PresenceTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.present, sessionID)
}
