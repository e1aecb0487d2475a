package core

import (
	"sync"
	"time"
)

// MatchmakingQueue pairs strangers with a single-slot compare-and-pair
// scheme: the first caller parks a Ticket, the next distinct identity takes
// it. One mutex guards the slot; concurrent joins can never both observe an
// empty slot and produce divergent pairings.
type MatchmakingQueue struct {
	mu      sync.Mutex
	waiting *Ticket
}

func NewMatchmakingQueue() *MatchmakingQueue {
	return &MatchmakingQueue{}
}

// EnqueueOutcome reports the result of an Enqueue call. When Matched is
// true, Partner holds the ticket that was taken out of the slot.
type EnqueueOutcome struct {
	Matched bool
	Partner Ticket
}

// Enqueue registers a pairing request and returns immediately. If the slot
// already holds a ticket for the same identity (retry, duplicate tab) the
// call is idempotent: the original ticket stays and the caller keeps
// waiting. A participant is never matched with itself.
func (q *MatchmakingQueue) Enqueue(p Participant) EnqueueOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting == nil {
		q.waiting = &Ticket{Participant: p, EnqueuedAt: time.Now()}
		return EnqueueOutcome{}
	}
	if q.waiting.Participant.ID == p.ID {
		return EnqueueOutcome{}
	}

	partner := *q.waiting
	q.waiting = nil
	return EnqueueOutcome{Matched: true, Partner: partner}
}

// Cancel removes the waiting ticket if it is owned by the given participant.
// It reports whether a ticket was removed; a cancel that lost the race to a
// match is a no-op.
func (q *MatchmakingQueue) Cancel(participantID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting == nil || q.waiting.Participant.ID != participantID {
		return false
	}
	q.waiting = nil
	return true
}

// Restore puts a ticket back into the slot after a failed pairing attempt.
// It reports false if another waiter arrived in the meantime.
func (q *MatchmakingQueue) Restore(t Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting != nil {
		return false
	}
	q.waiting = &t
	return true
}

// Waiting returns the currently parked ticket, if any.
func (q *MatchmakingQueue) Waiting() (Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.waiting == nil {
		return Ticket{}, false
	}
	return *q.waiting, true
}
