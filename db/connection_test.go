package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/lpharvest/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)

		// If Open() succeeds (lazy connection on some platforms), Ping() will fail
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("creates database file if it doesn't exist", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "new.db")

		_, err := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})
}

func TestOpen_WithLogger(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "insert")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("constraint failed")))

	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	db.Close()
	_, err = db.Exec("SELECT 1")
	assert.True(t, IsDatabaseClosed(err))
}

func TestIsDatabaseBusy(t *testing.T) {
	assert.False(t, IsDatabaseBusy(nil))
	assert.True(t, IsDatabaseBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsDatabaseBusy(errors.Wrap(sqlite3.Error{Code: sqlite3.ErrLocked}, "insert")))
	assert.False(t, IsDatabaseBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil, "commit"))

	err := Classify(sqlite3.Error{Code: sqlite3.ErrBusy}, "commit")
	assert.True(t, errors.Is(err, ErrDatabaseBusy))
	assert.Contains(t, err.Error(), "commit")
	assert.NotEmpty(t, errors.FlattenHints(err))

	err = Classify(sql.ErrConnDone, "insert row")
	assert.True(t, errors.Is(err, ErrDatabaseClosed))

	err = Classify(errors.New("constraint failed"), "insert row")
	assert.False(t, errors.Is(err, ErrDatabaseClosed))
	assert.False(t, errors.Is(err, ErrDatabaseBusy))
}
