package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "classcast/pkg/database"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Manager owns the SQLite database behind the class directory and the
// durable session store. All writes funnel through a single goroutine;
// reads run concurrently against the WAL.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas, and ensures the schema.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// Single-writer goroutine; SQLite write contention is eliminated by
	// construction rather than by busy-wait retries.
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// --- Class directory operations ---

// CreateClass inserts a new class record.
func (m *Manager) CreateClass(ctx context.Context, class *types.Class) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO classes (id, code, name, active, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			class.ID,
			class.Code,
			class.Name,
			boolToInt(class.Active),
			class.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}
		return nil
	})
}

// GetClassByCode retrieves a class by code. Matching is case-insensitive
// through the NOCASE collation on the code column.
func (m *Manager) GetClassByCode(ctx context.Context, code string) (*types.Class, error) {
	query := `
		SELECT id, code, name, active, created_at
		FROM classes
		WHERE code = ?
	`

	row := m.db.QueryRowContext(ctx, query, code)

	var class types.Class
	var active int

	err := row.Scan(&class.ID, &class.Code, &class.Name, &active, &class.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to query class: %w", err)
	}

	class.Active = active != 0
	return &class, nil
}

// ListClasses returns all class records, newest first.
func (m *Manager) ListClasses(ctx context.Context) ([]*types.Class, error) {
	query := `
		SELECT id, code, name, active, created_at
		FROM classes
		ORDER BY created_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var classes []*types.Class

	for rows.Next() {
		var class types.Class
		var active int

		if err := rows.Scan(&class.ID, &class.Code, &class.Name, &active, &class.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}

		class.Active = active != 0
		classes = append(classes, &class)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class rows: %w", err)
	}

	return classes, nil
}

// SetClassActive flips the active flag on a class.
func (m *Manager) SetClassActive(ctx context.Context, code string, active bool) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE classes SET active = ? WHERE code = ?`,
			boolToInt(active), code,
		)
		if err != nil {
			return fmt.Errorf("failed to update class: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrClassNotFound
		}
		return nil
	})
}

// --- Durable session record operations (interfaces.SessionStore) ---

// CreateRecord inserts a fresh durable record keyed by connection ID.
// A leftover row for the same connection ID is replaced outright.
func (m *Manager) CreateRecord(ctx context.Context, record *types.SessionRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO session_records
				(connection_id, student_id, student_name, class_code, html, css, last_update, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			record.ConnectionID,
			record.StudentID,
			record.StudentName,
			record.ClassCode,
			record.Document.HTML,
			record.Document.CSS,
			record.LastUpdate,
			record.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session record: %w", err)
		}
		return nil
	})
}

// RejoinRecord re-keys the durable record matching the student ID onto the
// new connection. Falls back to a fresh insert when the prior record has
// already expired out of the table.
func (m *Manager) RejoinRecord(ctx context.Context, record *types.SessionRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			UPDATE session_records
			SET connection_id = ?, student_name = ?, class_code = ?, last_update = ?, expires_at = ?
			WHERE student_id = ?
		`,
			record.ConnectionID,
			record.StudentName,
			record.ClassCode,
			record.LastUpdate,
			record.ExpiresAt,
			record.StudentID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session record: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rejoin result: %w", err)
		}
		if affected > 0 {
			return nil
		}

		// No surviving record for this student; insert a fresh one.
		_, err = db.ExecContext(ctx, `
			INSERT OR REPLACE INTO session_records
				(connection_id, student_id, student_name, class_code, html, css, last_update, expires_at)
			VALUES (?, ?, ?, ?, '', '', ?, ?)
		`,
			record.ConnectionID,
			record.StudentID,
			record.StudentName,
			record.ClassCode,
			record.LastUpdate,
			record.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert rejoin record: %w", err)
		}
		return nil
	})
}

// UpsertDocument writes the latest document for a connection. Create and
// upsert share the single writer queue, so the join-time create always lands
// before the first debounced flush for the same connection.
func (m *Manager) UpsertDocument(ctx context.Context, connectionID string, doc types.Document, lastUpdate time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			UPDATE session_records
			SET html = ?, css = ?, last_update = ?
			WHERE connection_id = ?
		`,
			doc.HTML, doc.CSS, lastUpdate, connectionID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check upsert result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrRecordNotFound
		}
		return nil
	})
}

// GetRecord retrieves a durable record by connection ID.
func (m *Manager) GetRecord(ctx context.Context, connectionID string) (*types.SessionRecord, error) {
	query := `
		SELECT connection_id, student_id, student_name, class_code, html, css, last_update, expires_at
		FROM session_records
		WHERE connection_id = ?
	`

	row := m.db.QueryRowContext(ctx, query, connectionID)

	var record types.SessionRecord
	err := row.Scan(
		&record.ConnectionID,
		&record.StudentID,
		&record.StudentName,
		&record.ClassCode,
		&record.Document.HTML,
		&record.Document.CSS,
		&record.LastUpdate,
		&record.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query session record: %w", err)
	}

	return &record, nil
}

// PurgeExpired deletes records past their retention window.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	var purged int
	err := m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`DELETE FROM session_records WHERE expires_at < ?`, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to purge expired records: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count purged records: %w", err)
		}
		purged = int(affected)
		return nil
	})
	return purged, err
}

// HealthCheck validates database connectivity and schema.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return dbconfig.ValidateSchema(m.db)
}

// GetDB returns the underlying connection for schema validation in tests.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
