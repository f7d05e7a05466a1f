package group

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcast/pkg/types"
)

type fakeSender struct {
	mu     sync.Mutex
	id     string
	events []*types.Event
	fail   bool
}

func (f *fakeSender) ConnectionID() string { return f.id }

func (f *fakeSender) Send(event *types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) received() []*types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestNotifyReachesAllMembers(t *testing.T) {
	b := NewBroadcaster()

	alice := &fakeSender{id: "conn-alice"}
	bob := &fakeSender{id: "conn-bob"}
	b.Join("MATH101", alice)
	b.Join("MATH101", bob)

	event := &types.Event{Type: types.EventMemberJoined}
	delivered := b.Notify("MATH101", event, "")
	assert.Equal(t, 2, delivered)
	assert.Len(t, alice.received(), 1)
	assert.Len(t, bob.received(), 1)
}

func TestNotifyExcludesOriginator(t *testing.T) {
	b := NewBroadcaster()

	alice := &fakeSender{id: "conn-alice"}
	bob := &fakeSender{id: "conn-bob"}
	b.Join("MATH101", alice)
	b.Join("MATH101", bob)

	event := &types.Event{Type: types.EventGroupMessage}
	delivered := b.Notify("MATH101", event, "conn-alice")
	assert.Equal(t, 1, delivered)
	assert.Empty(t, alice.received())
	assert.Len(t, bob.received(), 1)
}

func TestNotifyScopedToClass(t *testing.T) {
	b := NewBroadcaster()

	mathMember := &fakeSender{id: "conn-1"}
	bioMember := &fakeSender{id: "conn-2"}
	b.Join("MATH101", mathMember)
	b.Join("BIO200", bioMember)

	b.Notify("MATH101", &types.Event{Type: types.EventMemberJoined}, "")
	assert.Len(t, mathMember.received(), 1)
	assert.Empty(t, bioMember.received())
}

func TestNotifyUnknownGroup(t *testing.T) {
	b := NewBroadcaster()
	assert.Equal(t, 0, b.Notify("EMPTY1", &types.Event{Type: types.EventMemberJoined}, ""))
}

func TestNotifyOrderIsFIFOPerMember(t *testing.T) {
	b := NewBroadcaster()

	member := &fakeSender{id: "conn-1"}
	b.Join("MATH101", member)

	joined := &types.Event{Type: types.EventMemberJoined}
	left := &types.Event{Type: types.EventMemberLeft}
	b.Notify("MATH101", joined, "")
	b.Notify("MATH101", left, "")

	events := member.received()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventMemberJoined, events[0].Type)
	assert.Equal(t, types.EventMemberLeft, events[1].Type)
}

func TestNotifyContinuesPastFailedMember(t *testing.T) {
	b := NewBroadcaster()

	broken := &fakeSender{id: "conn-1", fail: true}
	healthy := &fakeSender{id: "conn-2"}
	b.Join("MATH101", broken)
	b.Join("MATH101", healthy)

	delivered := b.Notify("MATH101", &types.Event{Type: types.EventMemberJoined}, "")
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.received(), 1)
}

func TestLeaveDropsEmptyGroups(t *testing.T) {
	b := NewBroadcaster()

	member := &fakeSender{id: "conn-1"}
	b.Join("MATH101", member)
	assert.Equal(t, 1, b.MemberCount("MATH101"))

	b.Leave("MATH101", "conn-1")
	assert.Equal(t, 0, b.MemberCount("MATH101"))
	assert.Equal(t, 0, b.GetStats()["groups"])

	// Idempotent.
	b.Leave("MATH101", "conn-1")
	b.Leave("NEVER1", "conn-1")
}

func TestJoinReplacesSameConnection(t *testing.T) {
	b := NewBroadcaster()

	member := &fakeSender{id: "conn-1"}
	b.Join("MATH101", member)
	b.Join("MATH101", member)
	assert.Equal(t, 1, b.MemberCount("MATH101"))
}

func TestGetStats(t *testing.T) {
	b := NewBroadcaster()

	b.Join("MATH101", &fakeSender{id: "conn-1"})
	b.Join("MATH101", &fakeSender{id: "conn-2"})
	b.Join("BIO200", &fakeSender{id: "conn-3"})

	stats := b.GetStats()
	assert.Equal(t, 2, stats["groups"])
	assert.Equal(t, 3, stats["group_members"])
}
