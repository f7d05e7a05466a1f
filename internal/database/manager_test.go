package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "classcast/pkg/database"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "classcast_test.db")

	manager, err := NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

func newTestClass(code string, active bool) *types.Class {
	return &types.Class{
		ID:        uuid.New().String(),
		Code:      code,
		Name:      "Test Class " + code,
		Active:    active,
		CreatedAt: time.Now(),
	}
}

func newTestRecord(connectionID, studentID string) *types.SessionRecord {
	return &types.SessionRecord{
		ConnectionID: connectionID,
		StudentID:    studentID,
		StudentName:  "Student " + studentID,
		ClassCode:    "MATH101",
		Document:     types.Document{HTML: "<p>hello</p>", CSS: "p { }"},
		LastUpdate:   time.Now(),
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
}

func TestNewManagerInvalidConfig(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = ""

	_, err := NewManager(config)
	assert.Error(t, err)
}

func TestCreateAndGetClass(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	class := newTestClass("MATH101", true)
	require.NoError(t, manager.CreateClass(ctx, class))

	got, err := manager.GetClassByCode(ctx, "MATH101")
	require.NoError(t, err)
	assert.Equal(t, class.ID, got.ID)
	assert.True(t, got.Active)

	// Code lookup is case-insensitive.
	got, err = manager.GetClassByCode(ctx, "math101")
	require.NoError(t, err)
	assert.Equal(t, class.ID, got.ID)
}

func TestGetClassNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetClassByCode(context.Background(), "NOPE99")
	assert.ErrorIs(t, err, interfaces.ErrClassNotFound)
}

func TestCreateClassDuplicateCode(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.CreateClass(ctx, newTestClass("MATH101", true)))
	assert.Error(t, manager.CreateClass(ctx, newTestClass("MATH101", true)))
	// The unique index collates NOCASE.
	assert.Error(t, manager.CreateClass(ctx, newTestClass("math101", true)))
}

func TestListClasses(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.CreateClass(ctx, newTestClass("MATH101", true)))
	require.NoError(t, manager.CreateClass(ctx, newTestClass("BIO200", false)))

	classes, err := manager.ListClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestSetClassActive(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.CreateClass(ctx, newTestClass("MATH101", true)))
	require.NoError(t, manager.SetClassActive(ctx, "MATH101", false))

	got, err := manager.GetClassByCode(ctx, "MATH101")
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, manager.SetClassActive(ctx, "NOPE99", true), interfaces.ErrClassNotFound)
}

func TestCreateAndGetRecord(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	record := newTestRecord("conn-1", "stu-1")
	require.NoError(t, manager.CreateRecord(ctx, record))

	got, err := manager.GetRecord(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", got.StudentID)
	assert.Equal(t, "<p>hello</p>", got.Document.HTML)
}

func TestGetRecordNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetRecord(context.Background(), "conn-missing")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestUpsertDocument(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.CreateRecord(ctx, newTestRecord("conn-1", "stu-1")))

	doc := types.Document{HTML: "<p>v2</p>", CSS: "p { color: red }"}
	require.NoError(t, manager.UpsertDocument(ctx, "conn-1", doc, time.Now()))

	got, err := manager.GetRecord(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", got.Document.HTML)
}

func TestUpsertDocumentNoRecord(t *testing.T) {
	manager := newTestManager(t)

	err := manager.UpsertDocument(context.Background(), "conn-missing", types.Document{HTML: "x"}, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestRejoinRecordReKeysConnection(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.CreateRecord(ctx, newTestRecord("conn-old", "stu-1")))

	rejoin := newTestRecord("conn-new", "stu-1")
	require.NoError(t, manager.RejoinRecord(ctx, rejoin))

	// The prior document survives under the new connection ID.
	got, err := manager.GetRecord(ctx, "conn-new")
	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", got.Document.HTML)

	_, err = manager.GetRecord(ctx, "conn-old")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestRejoinRecordWithoutPriorRecord(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	rejoin := newTestRecord("conn-new", "stu-unknown")
	require.NoError(t, manager.RejoinRecord(ctx, rejoin))

	// A fresh record with an empty document is created.
	got, err := manager.GetRecord(ctx, "conn-new")
	require.NoError(t, err)
	assert.Equal(t, "", got.Document.HTML)
}

func TestPurgeExpired(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	expired := newTestRecord("conn-expired", "stu-1")
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, manager.CreateRecord(ctx, expired))

	fresh := newTestRecord("conn-fresh", "stu-2")
	require.NoError(t, manager.CreateRecord(ctx, fresh))

	purged, err := manager.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = manager.GetRecord(ctx, "conn-expired")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	_, err = manager.GetRecord(ctx, "conn-fresh")
	assert.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	manager := newTestManager(t)
	assert.NoError(t, manager.HealthCheck(context.Background()))
}

func TestCloseIdempotent(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	err := manager.CreateClass(context.Background(), newTestClass("MATH101", true))
	assert.Error(t, err)
}

func TestConcurrentWrites(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			record := newTestRecord(fmt.Sprintf("conn-%d", n), fmt.Sprintf("stu-%d", n))
			assert.NoError(t, manager.CreateRecord(ctx, record))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		_, err := manager.GetRecord(ctx, fmt.Sprintf("conn-%d", i))
		assert.NoError(t, err)
	}
}
