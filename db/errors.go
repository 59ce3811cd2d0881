package db

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/lpharvest/errors"
)

// ErrDatabaseClosed marks work attempted after the connection was closed
var ErrDatabaseClosed = errors.New("database is closed")

// ErrDatabaseBusy marks writes that gave up after SQLiteBusyTimeoutMS because
// another connection held the lock
var ErrDatabaseBusy = errors.New("database is busy")

// IsDatabaseClosed reports whether err means the connection is gone. The sql
// package reports this with its own error values, so the message is checked
// as well.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsDatabaseBusy reports SQLITE_BUSY and SQLITE_LOCKED
func IsDatabaseBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseBusy) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Classify wraps a driver error with context and marks it with the matching
// sentinel, so callers can test with errors.Is.
func Classify(err error, what string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, what)
	switch {
	case IsDatabaseClosed(err):
		return errors.Mark(wrapped, ErrDatabaseClosed)
	case IsDatabaseBusy(err):
		return errors.WithHint(errors.Mark(wrapped, ErrDatabaseBusy),
			"another process has the output database open")
	}
	return wrapped
}
