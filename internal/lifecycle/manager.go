package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"classcast/internal/group"
	"classcast/internal/registry"
	"classcast/internal/router"
	"classcast/internal/writeback"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Manager orchestrates the relay core across connect, rejoin, disconnect,
// and moderation. All live-state tables are injected dependencies rather
// than package globals, so the whole lifecycle is testable with fakes.
type Manager struct {
	registry    *registry.Registry
	router      *router.Router
	scheduler   *writeback.Scheduler
	broadcaster *group.Broadcaster
	directory   interfaces.ClassDirectory
	store       interfaces.SessionStore
	limiter     *router.RateLimiter

	capacity  int
	retention time.Duration

	// conns tracks every live connection (students and viewers) and gates
	// disconnect idempotency: the first Disconnect removes the entry, any
	// later one finds nothing and returns.
	mu    sync.Mutex
	conns map[string]*connState
}

// connState is the lifecycle's view of one live connection.
type connState struct {
	sender    interfaces.Sender
	role      string
	classCode string
}

// Config bundles the lifecycle manager's dependencies and policy knobs.
type Config struct {
	Registry    *registry.Registry
	Router      *router.Router
	Scheduler   *writeback.Scheduler
	Broadcaster *group.Broadcaster
	Directory   interfaces.ClassDirectory
	Store       interfaces.SessionStore
	Limiter     *router.RateLimiter
	Capacity    int
	Retention   time.Duration
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		registry:    cfg.Registry,
		router:      cfg.Router,
		scheduler:   cfg.Scheduler,
		broadcaster: cfg.Broadcaster,
		directory:   cfg.Directory,
		store:       cfg.Store,
		limiter:     cfg.Limiter,
		capacity:    cfg.Capacity,
		retention:   cfg.Retention,
		conns:       make(map[string]*connState),
	}
}

// Join handles a fresh student join. On success the student is registered,
// the class group is notified, and join_accepted is sent to the student.
// Validation failures return a taxonomy error for the caller to convert
// into a join_rejected event.
func (m *Manager) Join(ctx context.Context, sender interfaces.Sender, studentName, classCode string) error {
	classCode = types.NormalizeClassCode(classCode)

	if !types.IsValidStudentName(studentName) {
		return ErrInvalidStudentName
	}
	if err := m.validateClass(ctx, classCode); err != nil {
		return err
	}

	studentID := uuid.New().String()
	session := &types.Session{
		ConnectionID: sender.ConnectionID(),
		StudentID:    studentID,
		StudentName:  studentName,
		ClassCode:    classCode,
		LastUpdate:   time.Now(),
	}

	if err := m.admit(sender, session, false); err != nil {
		return err
	}

	m.persistCreate(session)
	m.announceJoin(session, sender)

	return sender.Send(&types.Event{
		Type: types.EventJoinAccepted,
		Payload: types.JoinAcceptedPayload{
			ConnectionID: session.ConnectionID,
			StudentID:    studentID,
			ClassCode:    classCode,
		},
	})
}

// Rejoin re-associates a returning student with prior durable state. A stale
// live session left by the student's dead connection is evicted first so
// capacity counting never double-counts the student. Existing viewer
// subscriptions keep pointing at the old connection ID and resolve to empty;
// viewers re-subscribe explicitly.
func (m *Manager) Rejoin(ctx context.Context, sender interfaces.Sender, studentID, studentName, classCode string) error {
	classCode = types.NormalizeClassCode(classCode)

	if !types.IsValidStudentID(studentID) {
		return ErrInvalidStudentID
	}
	if !types.IsValidStudentName(studentName) {
		return ErrInvalidStudentName
	}
	if err := m.validateClass(ctx, classCode); err != nil {
		return err
	}

	session := &types.Session{
		ConnectionID: sender.ConnectionID(),
		StudentID:    studentID,
		StudentName:  studentName,
		ClassCode:    classCode,
		LastUpdate:   time.Now(),
	}

	if err := m.admit(sender, session, true); err != nil {
		return err
	}

	m.persistRejoin(session)
	m.announceJoin(session, sender)

	return sender.Send(&types.Event{
		Type: types.EventRejoinAccepted,
		Payload: types.JoinAcceptedPayload{
			ConnectionID: session.ConnectionID,
			StudentID:    studentID,
			ClassCode:    classCode,
		},
	})
}

// admit registers a student session under the lifecycle lock: stale-slot
// eviction, the capacity check, and registration are atomic with respect to
// concurrent joins, so the 61st concurrent join always loses.
func (m *Manager) admit(sender interfaces.Sender, session *types.Session, evictStale bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[session.ConnectionID]; exists {
		return ErrAlreadyJoined
	}

	if evictStale {
		if stale, found := m.registry.FindByStudentID(session.ClassCode, session.StudentID); found {
			m.evictStaleLocked(stale)
		}
	}

	if m.registry.CountByClass(session.ClassCode) >= m.capacity {
		return ErrClassFull
	}

	m.registry.Put(session)
	m.conns[session.ConnectionID] = &connState{
		sender:    sender,
		role:      types.RoleStudent,
		classCode: session.ClassCode,
	}
	return nil
}

// evictStaleLocked drops the leftovers of a dead connection whose disconnect
// never ran: registry entry, pending debounce, group membership, limiter
// state. The socket itself is gone; no events are sent to it.
func (m *Manager) evictStaleLocked(stale *types.Session) {
	m.registry.Remove(stale.ConnectionID)
	m.scheduler.Cancel(stale.ConnectionID)
	m.broadcaster.Leave(stale.ClassCode, stale.ConnectionID)
	m.limiter.Forget(stale.ConnectionID)
	delete(m.conns, stale.ConnectionID)
}

// validateClass resolves the class code through the directory.
func (m *Manager) validateClass(ctx context.Context, classCode string) error {
	if !types.IsValidClassCode(classCode) {
		return ErrInvalidClassCode
	}

	status, err := m.directory.Lookup(ctx, classCode)
	if err != nil {
		return err
	}
	if !status.Found {
		return ErrInvalidClassCode
	}
	if !status.Active {
		return ErrClassInactive
	}
	return nil
}

// persistCreate schedules durable creation fire-and-forget; the live join
// already succeeded and a store failure degrades durability, not liveness.
func (m *Manager) persistCreate(session *types.Session) {
	record := m.recordFor(session)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.store.CreateRecord(ctx, record); err != nil {
			log.Printf("Durable create failed for connection %s: %v", record.ConnectionID, err)
		}
	}()
}

func (m *Manager) persistRejoin(session *types.Session) {
	record := m.recordFor(session)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.store.RejoinRecord(ctx, record); err != nil {
			log.Printf("Durable rejoin failed for connection %s: %v", record.ConnectionID, err)
		}
	}()
}

func (m *Manager) recordFor(session *types.Session) *types.SessionRecord {
	return &types.SessionRecord{
		ConnectionID: session.ConnectionID,
		StudentID:    session.StudentID,
		StudentName:  session.StudentName,
		ClassCode:    session.ClassCode,
		Document:     session.Document,
		LastUpdate:   session.LastUpdate,
		ExpiresAt:    time.Now().Add(m.retention),
	}
}

// announceJoin joins the student to the class group and notifies the rest
// of the group, excluding the student itself.
func (m *Manager) announceJoin(session *types.Session, sender interfaces.Sender) {
	m.broadcaster.Join(session.ClassCode, sender)
	m.broadcaster.Notify(session.ClassCode, &types.Event{
		Type: types.EventMemberJoined,
		Payload: types.MemberJoinedPayload{
			ConnectionID: session.ConnectionID,
			StudentID:    session.StudentID,
			StudentName:  session.StudentName,
		},
	}, session.ConnectionID)
}

// DocumentUpdate applies a whole-document replace from a student: registry
// mutation, selective fanout, and debounce re-arm. Over-limit updates are
// dropped silently; the document is whole-state, so the next allowed update
// carries everything.
func (m *Manager) DocumentUpdate(connectionID string, doc types.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if !m.limiter.Allow(connectionID) {
		return nil
	}

	session, ok := m.registry.UpdateDocument(connectionID, doc, time.Now())
	if !ok {
		return ErrNotJoined
	}

	m.router.Route(connectionID, doc)
	m.scheduler.Touch(connectionID, session.Document)
	return nil
}

// ViewerJoinGroup registers a viewer connection into a class group so it
// receives membership and moderation events. The viewer role is trusted by
// the caller; no student-side state is checked. A connection already
// tracked in any role is rejected: each socket holds one role and one
// class for its lifetime.
func (m *Manager) ViewerJoinGroup(ctx context.Context, sender interfaces.Sender, classCode string) error {
	classCode = types.NormalizeClassCode(classCode)
	if err := m.validateClass(ctx, classCode); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.conns[sender.ConnectionID()]; exists {
		m.mu.Unlock()
		return ErrAlreadyJoined
	}
	m.conns[sender.ConnectionID()] = &connState{
		sender:    sender,
		role:      types.RoleViewer,
		classCode: classCode,
	}
	m.mu.Unlock()

	m.broadcaster.Join(classCode, sender)
	return nil
}

// Subscribe retargets a viewer onto a student session and returns the
// initial snapshot to the viewer. A vanished target yields an empty
// snapshot, never a fault.
func (m *Manager) Subscribe(viewer interfaces.Sender, targetConnectionID string) error {
	snapshot, err := m.router.Subscribe(viewer, targetConnectionID)
	if err != nil {
		return err
	}

	payload := types.DocumentSnapshotPayload{ConnectionID: targetConnectionID}
	if snapshot != nil {
		payload.StudentName = snapshot.StudentName
		payload.Document = snapshot.Document
		payload.Found = true
	}

	return viewer.Send(&types.Event{
		Type:    types.EventDocumentSnapshot,
		Payload: payload,
	})
}

// MemberList sends the live roster of a class to the requesting viewer.
func (m *Manager) MemberList(sender interfaces.Sender, classCode string) error {
	classCode = types.NormalizeClassCode(classCode)

	sessions := m.registry.ListByClass(classCode)
	members := make([]types.Member, 0, len(sessions))
	for _, session := range sessions {
		members = append(members, types.Member{
			ConnectionID: session.ConnectionID,
			StudentID:    session.StudentID,
			StudentName:  session.StudentName,
		})
	}

	return sender.Send(&types.Event{
		Type: types.EventMemberList,
		Payload: types.MemberListPayload{
			ClassCode: classCode,
			Members:   members,
		},
	})
}

// Broadcast delivers a moderation message to the class group, excluding the
// originating viewer.
func (m *Manager) Broadcast(sender interfaces.Sender, classCode, text string) error {
	classCode = types.NormalizeClassCode(classCode)

	m.broadcaster.Notify(classCode, &types.Event{
		Type: types.EventGroupMessage,
		Payload: types.GroupMessagePayload{
			ClassCode: classCode,
			Text:      text,
		},
	}, sender.ConnectionID())
	return nil
}

// ForceRemove delivers a termination notice to the target student, then
// drives the normal disconnect path and closes the socket.
func (m *Manager) ForceRemove(targetConnectionID, reason string) error {
	m.mu.Lock()
	state, exists := m.conns[targetConnectionID]
	m.mu.Unlock()

	if !exists || state.role != types.RoleStudent {
		return ErrTargetNotFound
	}

	if err := state.sender.Send(&types.Event{
		Type:    types.EventForceRemoved,
		Payload: types.ForceRemovedPayload{Reason: reason},
	}); err != nil {
		log.Printf("Failed to deliver removal notice to %s: %v", targetConnectionID, err)
	}

	m.Disconnect(targetConnectionID, "removed")

	// Closing the socket makes the read loop exit; its deferred disconnect
	// finds nothing left to do.
	if err := state.sender.Close(); err != nil {
		log.Printf("Failed to close removed connection %s: %v", targetConnectionID, err)
	}
	return nil
}

// Disconnect tears down a connection from any reachable state. Idempotent:
// a double disconnect neither double-flushes nor double-emits member_left.
// For students the final document is flushed immediately so no edits are
// lost to the debounce window.
func (m *Manager) Disconnect(connectionID, reason string) {
	// A viewer that only ever subscribed has routing state but no conns
	// entry; clearing routing cannot be gated on connection tracking.
	m.router.Unsubscribe(connectionID)

	m.mu.Lock()
	state, exists := m.conns[connectionID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.conns, connectionID)
	m.mu.Unlock()

	if state.role == types.RoleStudent {
		if session, ok := m.registry.Remove(connectionID); ok {
			m.scheduler.FlushNow(connectionID, session.Document)
		}
		m.limiter.Forget(connectionID)
	}

	m.broadcaster.Leave(state.classCode, connectionID)

	if state.role == types.RoleStudent {
		m.broadcaster.Notify(state.classCode, &types.Event{
			Type: types.EventMemberLeft,
			Payload: types.MemberLeftPayload{
				ConnectionID: connectionID,
				Reason:       reason,
			},
		}, connectionID)
	}
}

// GetStats aggregates core statistics for the health endpoint.
func (m *Manager) GetStats() map[string]int {
	m.mu.Lock()
	connections := len(m.conns)
	m.mu.Unlock()

	stats := map[string]int{
		"connections":     connections,
		"pending_flushes": m.scheduler.PendingCount(),
	}
	for k, v := range m.registry.GetStats() {
		stats[k] = v
	}
	for k, v := range m.router.GetStats() {
		stats[k] = v
	}
	for k, v := range m.broadcaster.GetStats() {
		stats[k] = v
	}
	return stats
}
