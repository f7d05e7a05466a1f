package router

import (
	"log"
	"sync"

	"classcast/internal/registry"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Router tracks, per viewer, which single student session it is subscribed
// to, and narrows document fanout to exactly the interested viewers. A
// viewer has zero or one target; several viewers may watch the same target.
type Router struct {
	mu       sync.RWMutex
	registry *registry.Registry

	// targets maps viewer connection ID to its single current target;
	// watchers is the reverse index resolved at delivery time.
	targets  map[string]string
	watchers map[string]map[string]interfaces.Sender
}

// NewRouter creates a subscription router over the session registry.
func NewRouter(reg *registry.Registry) *Router {
	return &Router{
		registry: reg,
		targets:  make(map[string]string),
		watchers: make(map[string]map[string]interfaces.Sender),
	}
}

// Subscribe atomically retargets a viewer and returns the target's current
// session snapshot. A vanished target yields (nil, nil), not an error: the
// race between a viewer's request and a student disconnect is expected.
func (r *Router) Subscribe(viewer interfaces.Sender, targetConnectionID string) (*types.Session, error) {
	if viewer == nil {
		return nil, ErrNilViewer
	}
	viewerID := viewer.ConnectionID()

	r.mu.Lock()
	r.clearTargetLocked(viewerID)
	r.targets[viewerID] = targetConnectionID
	if r.watchers[targetConnectionID] == nil {
		r.watchers[targetConnectionID] = make(map[string]interfaces.Sender)
	}
	r.watchers[targetConnectionID][viewerID] = viewer
	r.mu.Unlock()

	// Snapshot read happens after the routing switch, so the viewer never
	// sees an update from the old target that postdates its snapshot.
	snapshot, exists := r.registry.Get(targetConnectionID)
	if !exists {
		return nil, nil
	}
	return snapshot, nil
}

// Unsubscribe clears the viewer's routing. Called on viewer disconnect and
// idempotent by design.
func (r *Router) Unsubscribe(viewerConnectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearTargetLocked(viewerConnectionID)
}

// clearTargetLocked removes the viewer's current target edge. Caller holds mu.
func (r *Router) clearTargetLocked(viewerConnectionID string) {
	target, exists := r.targets[viewerConnectionID]
	if !exists {
		return
	}

	delete(r.targets, viewerConnectionID)
	if set, ok := r.watchers[target]; ok {
		delete(set, viewerConnectionID)
		if len(set) == 0 {
			delete(r.watchers, target)
		}
	}
}

// Route delivers an updated document to the viewers currently subscribed to
// the source connection. The subscriber set is resolved at delivery time, so
// a viewer that switched targets never receives a stale delivery.
func (r *Router) Route(sourceConnectionID string, doc types.Document) int {
	r.mu.RLock()
	set := r.watchers[sourceConnectionID]
	recipients := make([]interfaces.Sender, 0, len(set))
	for _, sender := range set {
		recipients = append(recipients, sender)
	}
	r.mu.RUnlock()

	if len(recipients) == 0 {
		return 0
	}

	event := &types.Event{
		Type: types.EventDocumentUpdated,
		Payload: types.DocumentUpdatedPayload{
			ConnectionID: sourceConnectionID,
			Document:     doc,
		},
	}

	delivered := 0
	for _, sender := range recipients {
		if err := sender.Send(event); err != nil {
			// Delivery continues to the remaining viewers; the viewer's own
			// disconnect path cleans up its routing.
			log.Printf("Failed to deliver document update to viewer %s: %v", sender.ConnectionID(), err)
			continue
		}
		delivered++
	}
	return delivered
}

// WatcherCount reports how many viewers are subscribed to a source.
func (r *Router) WatcherCount(sourceConnectionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers[sourceConnectionID])
}

// GetStats returns router statistics for the health endpoint.
func (r *Router) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"subscribed_viewers": len(r.targets),
		"watched_sessions":   len(r.watchers),
	}
}
