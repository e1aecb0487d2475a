package core

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

type delivery struct {
	participantID string
	event         string
	payload       any
}

// fakeTransport records every delivery so tests can assert who received
// what, in which order.
type fakeTransport struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (f *fakeTransport) Send(participantID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{participantID: participantID, event: event, payload: payload})
	return nil
}

func (f *fakeTransport) eventsFor(participantID string) []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivery
	for _, d := range f.deliveries {
		if d.participantID == participantID {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeTransport) count(participantID, event string) int {
	n := 0
	for _, d := range f.eventsFor(participantID) {
		if d.event == event {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCore() (*Core, *fakeTransport) {
	ft := &fakeTransport{}
	return New(ft, WithLogger(testLogger())), ft
}

func participant(id, alias string) Participant {
	return Participant{ID: id, Alias: alias, JoinedAt: time.Now()}
}
