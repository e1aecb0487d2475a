package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type session struct {
	mu        sync.Mutex
	id        string
	state     SessionState
	members   []Participant
	createdAt time.Time
}

func (s *session) snapshot() SessionInfo {
	members := make([]Participant, len(s.members))
	copy(members, s.members)
	return SessionInfo{ID: s.id, State: s.state, Members: members, CreatedAt: s.createdAt}
}

func (s *session) member(participantID string) (Participant, bool) {
	for _, m := range s.members {
		if m.ID == participantID {
			return m, true
		}
	}
	return Participant{}, false
}

// SessionRegistry owns session records and their Waiting -> Active -> Ended
// state machine. Ended is terminal: a session never regains members, and
// repeated end signals are absorbed without re-triggering side effects.
//
// Lock order: the registry mutex is always taken before a session mutex.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	byMember map[string]string

	lifecycle Lifecycle
	log       *slog.Logger
}

func NewSessionRegistry(lifecycle Lifecycle, log *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*session),
		byMember:  make(map[string]string),
		lifecycle: lifecycle,
		log:       log,
	}
}

// StartActive creates a session that is Active from the start, holding both
// matched participants. Each participant may be in at most one live session.
func (r *SessionRegistry) StartActive(a, b Participant) (SessionInfo, error) {
	if a.ID == b.ID {
		return SessionInfo{}, &StateConflictError{Op: "start session", Detail: "participant cannot be paired with itself"}
	}

	r.mu.Lock()
	if sid, ok := r.byMember[a.ID]; ok {
		r.mu.Unlock()
		return SessionInfo{}, &StateConflictError{Op: "start session", Detail: "participant " + a.ID + " already in session " + sid}
	}
	if sid, ok := r.byMember[b.ID]; ok {
		r.mu.Unlock()
		return SessionInfo{}, &StateConflictError{Op: "start session", Detail: "participant " + b.ID + " already in session " + sid}
	}

	s := &session{
		id:        uuid.NewString(),
		state:     StateActive,
		members:   []Participant{a, b},
		createdAt: time.Now(),
	}
	r.sessions[s.id] = s
	r.byMember[a.ID] = s.id
	r.byMember[b.ID] = s.id
	info := s.snapshot()
	r.mu.Unlock()

	r.log.Info("session started", "session_id", info.ID)
	r.lifecycle.SessionStarted(info)
	return info, nil
}

// StartWaiting creates a session holding only its host. It stays Waiting
// until a second member joins and both presences are confirmed.
func (r *SessionRegistry) StartWaiting(host Participant) (SessionInfo, error) {
	r.mu.Lock()
	if sid, ok := r.byMember[host.ID]; ok {
		r.mu.Unlock()
		return SessionInfo{}, &StateConflictError{Op: "start session", Detail: "participant " + host.ID + " already in session " + sid}
	}

	s := &session{
		id:        uuid.NewString(),
		state:     StateWaiting,
		members:   []Participant{host},
		createdAt: time.Now(),
	}
	r.sessions[s.id] = s
	r.byMember[host.ID] = s.id
	info := s.snapshot()
	r.mu.Unlock()

	r.log.Info("session waiting for partner", "session_id", info.ID)
	r.lifecycle.SessionStarted(info)
	return info, nil
}

// Join adds a second member to a Waiting session. The session stays Waiting;
// promotion to Active happens once presence confirms both members.
func (r *SessionRegistry) Join(sessionID string, p Participant) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}
	if sid, ok := r.byMember[p.ID]; ok && sid != sessionID {
		r.mu.Unlock()
		return &StateConflictError{Op: "join session", Detail: "participant " + p.ID + " already in session " + sid}
	}

	s.mu.Lock()
	switch {
	case s.state == StateEnded:
		s.mu.Unlock()
		r.mu.Unlock()
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	case s.state != StateWaiting:
		s.mu.Unlock()
		r.mu.Unlock()
		return &StateConflictError{Op: "join session", Detail: "session is not waiting for a partner"}
	}
	if _, ok := s.member(p.ID); ok {
		s.mu.Unlock()
		r.mu.Unlock()
		return nil
	}
	if len(s.members) >= 2 {
		s.mu.Unlock()
		r.mu.Unlock()
		return &StateConflictError{Op: "join session", Detail: "session is full"}
	}
	s.members = append(s.members, p)
	s.mu.Unlock()
	r.byMember[p.ID] = sessionID
	r.mu.Unlock()

	r.lifecycle.MemberJoined(sessionID, p)
	return nil
}

// Activate promotes a Waiting session with two confirmed-present members to
// Active. Activating an already Active session is a no-op.
func (r *SessionRegistry) Activate(sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return nil
	case StateEnded:
		return &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}
	if len(s.members) != 2 {
		return &StateConflictError{Op: "activate session", Detail: "session does not have two members"}
	}
	s.state = StateActive
	r.log.Info("session active", "session_id", sessionID)
	return nil
}

// End transitions a session to Ended. The first call wins: it reports
// ended=true and the member snapshot so callers can notify survivors;
// every later call reports ended=false and does nothing.
func (r *SessionRegistry) End(sessionID string) (ended bool, members []Participant, err error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return false, nil, &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}

	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		r.mu.Unlock()
		return false, nil, nil
	}
	s.state = StateEnded
	members = make([]Participant, len(s.members))
	copy(members, s.members)
	s.mu.Unlock()

	for _, m := range members {
		if r.byMember[m.ID] == sessionID {
			delete(r.byMember, m.ID)
		}
	}
	r.mu.Unlock()

	r.log.Info("session ended", "session_id", sessionID)
	r.lifecycle.SessionEnded(sessionID)
	return true, members, nil
}

// Remove discards an Ended session record once nobody is present anymore.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.mu.Lock()
	terminal := s.state == StateEnded
	s.mu.Unlock()
	if terminal {
		delete(r.sessions, sessionID)
	}
}

// Get returns a snapshot of the session, Ended included.
func (r *SessionRegistry) Get(sessionID string) (SessionInfo, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Members returns the member snapshot of a known session regardless of its
// state. Callers gate on state themselves; end-of-session notifications
// still need the member list after the transition to Ended.
func (r *SessionRegistry) Members(sessionID string) ([]Participant, error) {
	info, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return info.Members, nil
}

// SessionFor returns the live (Waiting or Active) session a participant
// belongs to.
func (r *SessionRegistry) SessionFor(participantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byMember[participantID]
	return sid, ok
}

func (r *SessionRegistry) lookup(sessionID string) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, &ResourceNotFoundError{Resource: "session", ID: sessionID}
	}
	return s, nil
}
