package interfaces

import (
	"context"
	"time"

	"classcast/pkg/types"
)

// SessionStore is the durable session store consumed by the relay core.
// The store is a lagging mirror of the in-memory registry, never a source
// of truth for live reads. Records self-expire after the retention window
// independent of connection lifetime.
type SessionStore interface {
	// CreateRecord inserts a fresh durable record for a new join, keyed by
	// connection ID.
	CreateRecord(ctx context.Context, record *types.SessionRecord) error

	// RejoinRecord re-associates an existing durable record with a new
	// connection. The match key is the student ID; if no record survives
	// the retention window the call upserts a fresh one.
	RejoinRecord(ctx context.Context, record *types.SessionRecord) error

	// UpsertDocument writes the latest document state for a connection.
	// This is the target of the write-back scheduler's debounced flushes.
	UpsertDocument(ctx context.Context, connectionID string, doc types.Document, lastUpdate time.Time) error

	// PurgeExpired removes records past their retention window and reports
	// how many were dropped. Backends with native TTL may return (0, nil).
	PurgeExpired(ctx context.Context) (int, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// ClassDirectory resolves class codes for join-time authorization. The
// lifecycle manager only ever asks "does this code exist and is it active";
// class ownership lives behind the REST boundary.
type ClassDirectory interface {
	Lookup(ctx context.Context, classCode string) (types.ClassStatus, error)
}
