package sqlite

import (
	"context"
	"errors"
	"fmt"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/todo-tracker/internal/apperror"
)

// storageError wraps a driver error for op.
//
// LOCK CONTENTION IS NOT CORRUPTION:
// SQLITE_BUSY and SQLITE_LOCKED mean another connection (typically the
// backup CLI) held the lock for longer than we waited. Those become
// apperror.Busy, which callers may retry; everything else is ErrStorage.
//
// SQLITE_INTERRUPT only happens when the driver aborts a statement because
// its ctx ended, so it carries context.Canceled and IsFatal skips it.
func storageError(op string, err error) error {
	switch driverCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return apperror.Busy(op, err)
	case sqlite3.SQLITE_INTERRUPT:
		return apperror.Storage(op, fmt.Errorf("%w: %w", context.Canceled, err))
	}
	return apperror.Storage(op, err)
}

// driverCode returns the primary result code of a driver error, so the
// extended codes (SQLITE_BUSY_SNAPSHOT and friends) fold into their family.
// It returns -1 for anything that did not come from SQLite.
func driverCode(err error) int {
	var sqlErr *sqlitedriver.Error
	if !errors.As(err, &sqlErr) {
		return -1
	}
	return sqlErr.Code() & 0xff
}
