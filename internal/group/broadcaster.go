package group

import (
	"log"
	"sync"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Broadcaster delivers low-frequency membership and control events to every
// connection joined to a class group. Groups are an explicit mapping from
// class code to member set, with Join and Leave as the only mutators, so
// fanout is auditable without a live transport.
type Broadcaster struct {
	mu     sync.Mutex
	groups map[string]map[string]interfaces.Sender // classCode -> connectionID -> sender
}

// NewBroadcaster creates an empty group broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		groups: make(map[string]map[string]interfaces.Sender),
	}
}

// Join adds a connection to a class group.
func (b *Broadcaster) Join(classCode string, member interfaces.Sender) {
	if member == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.groups[classCode] == nil {
		b.groups[classCode] = make(map[string]interfaces.Sender)
	}
	b.groups[classCode][member.ConnectionID()] = member
}

// Leave removes a connection from a class group. Idempotent; empty groups
// are dropped so the map does not accumulate dead class codes.
func (b *Broadcaster) Leave(classCode, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, exists := b.groups[classCode]
	if !exists {
		return
	}

	delete(members, connectionID)
	if len(members) == 0 {
		delete(b.groups, classCode)
	}
}

// Notify delivers an event to every member of the group except the excluded
// originator (pass "" to include everyone). Delivery happens under the group
// lock: notifications within one group are FIFO relative to each other, and
// each member's single-writer connection preserves that order on the wire.
func (b *Broadcaster) Notify(classCode string, event *types.Event, excludeConnectionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, exists := b.groups[classCode]
	if !exists {
		return 0
	}

	delivered := 0
	for connectionID, member := range members {
		if connectionID == excludeConnectionID {
			continue
		}
		if err := member.Send(event); err != nil {
			log.Printf("Failed to deliver group event to %s in class %s: %v", connectionID, classCode, err)
			continue
		}
		delivered++
	}
	return delivered
}

// MemberCount reports group size.
func (b *Broadcaster) MemberCount(classCode string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups[classCode])
}

// GetStats returns broadcaster statistics for the health endpoint.
func (b *Broadcaster) GetStats() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, members := range b.groups {
		total += len(members)
	}

	return map[string]int{
		"groups":        len(b.groups),
		"group_members": total,
	}
}
