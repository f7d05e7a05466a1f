package writeback

import (
	"context"
	"log"
	"sync"
	"time"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Scheduler debounces durable writes per connection. Touch arms (or re-arms)
// a timer; only the document present when the timer fires is persisted, so a
// burst of edits costs one store write. At most one pending timer exists per
// connection; re-arming is cancel-then-schedule, never schedule-and-ignore.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*pendingWrite // connectionID -> armed debounce
	store    interfaces.SessionStore
	interval time.Duration
	timeout  time.Duration
}

// pendingWrite is one armed debounce window. The timer pointer doubles as a
// generation marker: a fire callback that finds a different timer registered
// for its connection knows it was superseded and does nothing.
type pendingWrite struct {
	timer *time.Timer
	doc   types.Document
}

// NewScheduler creates a write-back scheduler flushing to the given store.
// interval is the debounce window; timeout bounds each store write.
func NewScheduler(store interfaces.SessionStore, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		pending:  make(map[string]*pendingWrite),
		store:    store,
		interval: interval,
		timeout:  timeout,
	}
}

// Touch records the latest document for a connection and re-arms its
// debounce timer. Intermediate states are never persisted; only the state
// present after a full quiet interval reaches the store.
func (s *Scheduler) Touch(connectionID string, doc types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.pending[connectionID]; exists {
		entry.timer.Stop()
	}

	entry := &pendingWrite{doc: doc}
	entry.timer = time.AfterFunc(s.interval, func() {
		s.fire(connectionID, entry)
	})
	s.pending[connectionID] = entry
}

// fire runs when a debounce window elapses. A stopped-too-late timer whose
// entry has been replaced is a no-op, which makes re-arm races harmless.
func (s *Scheduler) fire(connectionID string, armed *pendingWrite) {
	s.mu.Lock()
	current, exists := s.pending[connectionID]
	if !exists || current != armed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, connectionID)
	doc := current.doc
	s.mu.Unlock()

	s.write(connectionID, doc)
}

// FlushNow cancels any pending timer and writes the given document
// immediately. Used on disconnect so the final edits are not lost to the
// debounce window. Exactly one write results no matter how many touches
// preceded it.
func (s *Scheduler) FlushNow(connectionID string, doc types.Document) {
	s.mu.Lock()
	if entry, exists := s.pending[connectionID]; exists {
		entry.timer.Stop()
		delete(s.pending, connectionID)
	}
	s.mu.Unlock()

	s.write(connectionID, doc)
}

// Cancel drops a pending timer without writing. Used when a session is
// discarded with nothing worth keeping.
func (s *Scheduler) Cancel(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.pending[connectionID]; exists {
		entry.timer.Stop()
		delete(s.pending, connectionID)
	}
}

// write performs the durable upsert. Failures are logged and dropped: a
// subsequent touch re-attempts with newer, superset state, so at most one
// debounce window of data is at risk on store failure.
func (s *Scheduler) write(connectionID string, doc types.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.store.UpsertDocument(ctx, connectionID, doc, time.Now()); err != nil {
		log.Printf("Durable write failed for connection %s: %v", connectionID, err)
	}
}

// FlushAll stops every pending timer and writes the captured documents
// immediately. Used during shutdown so in-flight debounce windows do not
// lose edits.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	drained := make(map[string]types.Document, len(s.pending))
	for connectionID, entry := range s.pending {
		entry.timer.Stop()
		drained[connectionID] = entry.doc
	}
	s.pending = make(map[string]*pendingWrite)
	s.mu.Unlock()

	for connectionID, doc := range drained {
		s.write(connectionID, doc)
	}
}

// PendingCount reports armed timers for the health endpoint.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
