package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/conorfennell/ankipack/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.anki21")
	db, err := Create(path, Schema, Statement{
		Query: `INSERT INTO col VALUES (1, 0, 0, 0, 11, 0, 0, 0, '{}', '{}', '{}', '{}', '{}')`,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if !db.IsClosed() {
			_ = db.Close()
		}
	})
	return db
}

func TestCreate_AppliesSchemaAndSeed(t *testing.T) {
	db := newTestDB(t)

	n, err := db.Count("col")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, table := range []string{"notes", "cards", "revlog", "graves"} {
		n, err := db.Count(table)
		require.NoError(t, err, table)
		assert.Zero(t, n, table)
	}
}

func TestCreate_RefusesExistingFile(t *testing.T) {
	db := newTestDB(t)

	_, err := Create(db.Path(), Schema, Statement{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStorage))
}

func TestQueryRow(t *testing.T) {
	db := newTestDB(t)

	var ver int
	found, err := db.QueryRow("SELECT ver FROM col WHERE id = ?", []any{1}, &ver)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 11, ver)

	found, err = db.QueryRow("SELECT ver FROM col WHERE id = ?", []any{2}, &ver)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExec_ReportsRowsAffectedAndTagsErrors(t *testing.T) {
	db := newTestDB(t)

	n, err := db.Exec("UPDATE col SET mod = ? WHERE id = ?", 42, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.Exec("UPDATE col SET mod = ? WHERE id = ?", 42, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.Exec("INSERT INTO no_such_table VALUES (1)")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStorage))
}

func TestClose_Twice(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Close())
	assert.True(t, db.IsClosed())

	err := db.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrState))

	_, err = db.Exec("UPDATE col SET mod = 1")
	assert.True(t, errors.Is(err, common.ErrStorage))
}

func TestOpen_SeesPersistedRows(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec("UPDATE col SET mod = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := Open(db.Path())
	require.NoError(t, err)
	defer reopened.Close()

	var mod int64
	found, err := reopened.QueryRow("SELECT mod FROM col", nil, &mod)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(99), mod)
}
