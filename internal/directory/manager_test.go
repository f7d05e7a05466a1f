package directory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classcast/internal/database"
	dbconfig "classcast/pkg/database"
)

func newTestDirectory(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "directory_test.db")

	db, err := database.NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir, err := NewManager(db)
	require.NoError(t, err)
	return dir
}

func TestCreateClassWithGeneratedCode(t *testing.T) {
	dir := newTestDirectory(t)

	class, err := dir.CreateClass(context.Background(), "Algebra I", "")
	require.NoError(t, err)

	assert.Len(t, class.Code, 6)
	assert.True(t, class.Active)
	for _, r := range class.Code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}

func TestCreateClassWithSuppliedCode(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	class, err := dir.CreateClass(ctx, "Algebra I", "math101")
	require.NoError(t, err)
	assert.Equal(t, "MATH101", class.Code)

	_, err = dir.CreateClass(ctx, "Another", "MATH101")
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreateClassValidation(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.CreateClass(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = dir.CreateClass(ctx, strings.Repeat("x", 201), "")
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = dir.CreateClass(ctx, "Algebra I", "a!")
	assert.ErrorIs(t, err, ErrInvalidClassCode)
}

func TestLookup(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.CreateClass(ctx, "Algebra I", "MATH101")
	require.NoError(t, err)

	status, err := dir.Lookup(ctx, "math101")
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.True(t, status.Active)

	status, err = dir.Lookup(ctx, "NOPE99")
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestSetActive(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.CreateClass(ctx, "Algebra I", "MATH101")
	require.NoError(t, err)

	updated, err := dir.SetActive(ctx, "MATH101", false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	status, err := dir.Lookup(ctx, "MATH101")
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.False(t, status.Active)

	_, err = dir.SetActive(ctx, "NOPE99", true)
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestGetClass(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	created, err := dir.CreateClass(ctx, "Algebra I", "MATH101")
	require.NoError(t, err)

	got, err := dir.GetClass(ctx, "math101")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = dir.GetClass(ctx, "NOPE99")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestCacheWarmsFromDatabase(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "warm_test.db")

	db, err := database.NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	first, err := NewManager(db)
	require.NoError(t, err)
	_, err = first.CreateClass(context.Background(), "Algebra I", "MATH101")
	require.NoError(t, err)

	// A fresh manager over the same database sees the class immediately.
	second, err := NewManager(db)
	require.NoError(t, err)
	status, err := second.Lookup(context.Background(), "MATH101")
	require.NoError(t, err)
	assert.True(t, status.Found)
}

func TestListClassesAndStats(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	_, err := dir.CreateClass(ctx, "Algebra I", "MATH101")
	require.NoError(t, err)
	_, err = dir.CreateClass(ctx, "Biology", "BIO200")
	require.NoError(t, err)
	_, err = dir.SetActive(ctx, "BIO200", false)
	require.NoError(t, err)

	classes, err := dir.ListClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)

	stats := dir.GetStats()
	assert.Equal(t, 2, stats["classes"])
	assert.Equal(t, 1, stats["active_classes"])
}
