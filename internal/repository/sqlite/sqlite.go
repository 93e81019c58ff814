// Package sqlite is the storage engine: it owns the SQLite database file, the
// connection settings, the schema and the session (transaction) lifecycle, and
// implements repository.TodoRepository on top of it.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere Go works.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql" — a generic interface for SQL databases.
// Key types:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Tx      — a transaction (wrapped here as a Session)
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
//
// SINGLE WRITER:
// SQLite allows one writer at a time per file. We lean into that instead of
// fighting it: the pool holds exactly one connection and every transaction
// starts with BEGIN IMMEDIATE, so sessions run one after another and a write
// never has to be retried halfway through because another writer got there first.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/todo-tracker/internal/apperror"

	// BLANK IMPORT:
	// The underscore import registers the driver with database/sql under the
	// name "sqlite". After this, sql.Open("sqlite", ...) knows how to talk to SQLite.
	_ "modernc.org/sqlite"
)

// defaultBusyTimeout is how long a connection waits for another process to
// release a lock before giving up with SQLITE_BUSY.
const defaultBusyTimeout = 5 * time.Second

// MemoryPath opens a private in-memory database. Handy for tests.
const MemoryPath = ":memory:"

// DB is the storage engine. Create it with Open or New, share it by pointer,
// and Close it once when the process is done with the file.
type DB struct {
	conn *sql.DB
	path string
}

// Open connects to the database file at path, creating the file and its
// parent directory if needed. It does NOT create the schema; call Initialize
// (or use New) before running queries against the todo table.
//
// CONNECTION SETTINGS (passed through the DSN so every pooled connection gets them):
//   - journal_mode=WAL   readers don't block the writer
//   - foreign_keys=ON    off by default in SQLite for backwards compatibility
//   - busy_timeout=5000  wait up to 5s when another process (the backup CLI) holds a lock
//   - _txlock=immediate  every BEGIN takes the write lock up front
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, apperror.Storage("sqlite: opening database", fmt.Errorf("empty path"))
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperror.Storage("sqlite: creating database directory", err)
		}
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, apperror.Storage("sqlite: opening database", err)
	}

	// One connection: sessions serialize, and an in-memory database survives
	// for as long as the pool does (each new connection would get an empty one).
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	// sql.Open does NOT actually connect. Ping forces the first connection so a
	// bad path or permissions issue surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, apperror.Storage("sqlite: pinging database", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// New opens the database and makes sure the schema exists. This is what the
// server calls once at startup; an error here is fatal to the caller.
func New(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", defaultBusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Path returns the database file path the engine was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection pool. With WAL, closing the last connection also
// checkpoints the write-ahead log back into the main file.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SnapshotTo writes a consistent, point-in-time copy of the database to dst
// using VACUUM INTO. Unlike copying the file bytes, this is safe while other
// connections (even other processes) are writing. dst must not exist yet.
func (db *DB) SnapshotTo(ctx context.Context, dst string) error {
	if _, err := db.conn.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return storageError("sqlite: writing snapshot", err)
	}
	return nil
}

// Checkpoint copies every committed page from the write-ahead log into the
// main database file and truncates the log. After it returns nil, the main
// file alone holds the full committed state.
//
// The pragma itself succeeds even when it could not finish: it reports
// busy=1 when another connection's read transaction still needs the log.
// That case is an ErrBusy, and the -wal file must be kept. Waiting for the
// readers is bounded by ctx's deadline, the same way OpenSession is.
func (db *DB) Checkpoint(ctx context.Context) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return storageError("sqlite: checkpointing WAL", err)
	}
	defer release(conn)
	if err := setBusyTimeout(ctx, conn, busyTimeoutFor(ctx)); err != nil {
		return storageError("sqlite: checkpointing WAL", err)
	}

	var busy, logFrames, checkpointed int
	err = conn.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`).
		Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return storageError("sqlite: checkpointing WAL", err)
	}
	if busy != 0 {
		return apperror.Busy("sqlite: checkpointing WAL",
			fmt.Errorf("checkpoint blocked by another connection: %d of %d frames copied", checkpointed, logFrames))
	}
	return nil
}

// IntegrityCheck runs PRAGMA quick_check and fails unless SQLite reports "ok".
func (db *DB) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := db.conn.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return storageError("sqlite: checking integrity", err)
	}
	if result != "ok" {
		return apperror.Storage("sqlite: checking integrity", fmt.Errorf("quick_check: %s", result))
	}
	return nil
}

// Ping checks that the database still answers.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return storageError("sqlite: pinging database", err)
	}
	return nil
}
