package transport

import (
	"sync"

	"github.com/google/uuid"
)

// refreshOutcome is broadcast to every waiter when the in-flight refresh
// settles. accessToken is set on success; err is set on failure and already
// carries the session-ended classification.
type refreshOutcome struct {
	accessToken string
	err         error
}

// refreshGate is the single-flight state machine: Idle when refreshing is
// false, Refreshing otherwise. Requests that hit an expired-token response
// join the gate; exactly one joiner becomes the leader and runs the refresh,
// every other joiner waits on its own channel. A waiter that is canceled by
// its caller leaves the gate without affecting the refresh or its siblings.
type refreshGate struct {
	lock       sync.Mutex
	refreshing bool
	waiters    map[uuid.UUID]chan refreshOutcome
}

func newRefreshGate() *refreshGate {
	return &refreshGate{waiters: make(map[uuid.UUID]chan refreshOutcome)}
}

// join registers a waiter and reports whether the caller became the leader
// responsible for running the refresh.
func (g *refreshGate) join() (uuid.UUID, <-chan refreshOutcome, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()

	id := uuid.New()
	ch := make(chan refreshOutcome, 1)
	g.waiters[id] = ch

	leader := !g.refreshing
	g.refreshing = true
	return id, ch, leader
}

// leave removes a canceled waiter from the queue. Safe to call after settle.
func (g *refreshGate) leave(id uuid.UUID) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.waiters, id)
}

// settle transitions back to Idle and releases every queued waiter. Each
// waiter channel is buffered, so delivery never blocks on a receiver that
// already left.
func (g *refreshGate) settle(outcome refreshOutcome) {
	g.lock.Lock()
	waiters := g.waiters
	g.waiters = make(map[uuid.UUID]chan refreshOutcome)
	g.refreshing = false
	g.lock.Unlock()

	for _, ch := range waiters {
		ch <- outcome
	}
}

// pending reports the number of queued waiters.
func (g *refreshGate) pending() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.waiters)
}
