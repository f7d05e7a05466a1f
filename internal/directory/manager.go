package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classcast/internal/database"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Alphabet for generated class codes; ambiguous glyphs (0/O, 1/I) excluded
// because codes are read aloud in classrooms.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const generatedCodeLength = 6

// Manager is the class directory: an in-memory cache over the classes table
// answering the relay's join-time lookups, plus the admin operations behind
// the REST boundary. Lookup is case-insensitive exact match.
type Manager struct {
	db     *database.Manager
	mu     sync.RWMutex
	byCode map[string]*types.Class // normalized code -> Class
}

// NewManager creates a directory manager and warms the cache from the
// database.
func NewManager(db *database.Manager) (*Manager, error) {
	m := &Manager{
		db:     db,
		byCode: make(map[string]*types.Class),
	}

	if err := m.refreshCache(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// refreshCache reloads all classes from the database.
func (m *Manager) refreshCache(ctx context.Context) error {
	classes, err := m.db.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("failed to load classes: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byCode = make(map[string]*types.Class, len(classes))
	for _, class := range classes {
		m.byCode[types.NormalizeClassCode(class.Code)] = class
	}

	log.Printf("Loaded %d classes into directory cache", len(classes))
	return nil
}

// Lookup resolves a class code to {found, active} for the lifecycle manager.
// Cache-only: every class mutation goes through this manager, so the cache
// never lags its own database.
func (m *Manager) Lookup(ctx context.Context, classCode string) (types.ClassStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	class, exists := m.byCode[types.NormalizeClassCode(classCode)]
	if !exists {
		return types.ClassStatus{}, nil
	}
	return types.ClassStatus{Found: true, Active: class.Active}, nil
}

// CreateClass creates a class with the supplied code, or a generated one
// when code is empty.
func (m *Manager) CreateClass(ctx context.Context, name, code string) (*types.Class, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 200 {
		return nil, ErrInvalidClassName
	}

	if code == "" {
		generated, err := m.generateCode()
		if err != nil {
			return nil, err
		}
		code = generated
	} else {
		code = types.NormalizeClassCode(code)
		if !types.IsValidClassCode(code) {
			return nil, ErrInvalidClassCode
		}
		m.mu.RLock()
		_, taken := m.byCode[code]
		m.mu.RUnlock()
		if taken {
			return nil, ErrCodeTaken
		}
	}

	class := &types.Class{
		ID:        uuid.New().String(),
		Code:      code,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := m.db.CreateClass(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	m.mu.Lock()
	m.byCode[code] = class
	m.mu.Unlock()

	log.Printf("Created class: code=%s name=%s", class.Code, class.Name)
	return class, nil
}

// generateCode picks an unused random code.
func (m *Manager) generateCode() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for attempt := 0; attempt < 100; attempt++ {
		raw := uuid.New()
		code := make([]byte, generatedCodeLength)
		for i := range code {
			code[i] = codeAlphabet[int(raw[i])%len(codeAlphabet)]
		}
		if _, taken := m.byCode[string(code)]; !taken {
			return string(code), nil
		}
	}
	return "", errors.New("failed to generate unused class code")
}

// GetClass returns a class by code.
func (m *Manager) GetClass(ctx context.Context, code string) (*types.Class, error) {
	m.mu.RLock()
	class, exists := m.byCode[types.NormalizeClassCode(code)]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrClassNotFound
	}
	return class, nil
}

// ListClasses returns all classes, newest first per the database ordering.
func (m *Manager) ListClasses(ctx context.Context) ([]*types.Class, error) {
	return m.db.ListClasses(ctx)
}

// SetActive flips a class between accepting joins and rejecting them.
// Deactivation does not evict already-joined students; capacity and
// activity are only checked at join time.
func (m *Manager) SetActive(ctx context.Context, code string, active bool) (*types.Class, error) {
	normalized := types.NormalizeClassCode(code)

	m.mu.RLock()
	class, exists := m.byCode[normalized]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrClassNotFound
	}

	if err := m.db.SetClassActive(ctx, class.Code, active); err != nil {
		if errors.Is(err, interfaces.ErrClassNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to update class: %w", err)
	}

	m.mu.Lock()
	updated := *class
	updated.Active = active
	m.byCode[normalized] = &updated
	m.mu.Unlock()

	log.Printf("Class %s set active=%t", class.Code, active)
	return &updated, nil
}

// GetStats returns directory statistics for the health endpoint.
func (m *Manager) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, class := range m.byCode {
		if class.Active {
			active++
		}
	}

	return map[string]int{
		"classes":        len(m.byCode),
		"active_classes": active,
	}
}
