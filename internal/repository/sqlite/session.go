package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is a unit of work bound to one transaction. It is never shared
// between requests and must end in exactly one Commit or Rollback.
//
// Most code should not juggle sessions by hand; use DB.WithSession, which
// guarantees the release on every exit path.
type Session struct {
	conn *sql.Conn
	tx   *sql.Tx
	done bool
}

// OpenSession starts a transaction. If ctx is cancelled before Commit,
// database/sql rolls the transaction back on its own, so an abandoned request
// can never leave a half-written change behind.
//
// WAITING FOR THE WRITE LOCK:
// BEGIN IMMEDIATE waits up to busy_timeout for another process to let go of
// the file. That wait happens inside SQLite where ctx can't reach it, so the
// session's connection gets a busy_timeout no longer than ctx's remaining
// time. A request with a 300ms deadline gives up after 300ms, not 5s.
func (db *DB) OpenSession(ctx context.Context) (*Session, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, storageError("sqlite: opening session", err)
	}
	if err := setBusyTimeout(ctx, conn, busyTimeoutFor(ctx)); err != nil {
		conn.Close()
		return nil, storageError("sqlite: opening session", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		release(conn)
		return nil, storageError("sqlite: opening session", err)
	}
	return &Session{conn: conn, tx: tx}, nil
}

// busyTimeoutFor is defaultBusyTimeout, capped by ctx's deadline.
func busyTimeoutFor(ctx context.Context) time.Duration {
	timeout := defaultBusyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = max(remaining, 0)
		}
	}
	return timeout
}

func setBusyTimeout(ctx context.Context, conn *sql.Conn, d time.Duration) error {
	_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
	return err
}

// release restores the default busy_timeout and hands conn back to the pool.
func release(conn *sql.Conn) {
	_ = setBusyTimeout(context.Background(), conn, defaultBusyTimeout)
	_ = conn.Close()
}

// Commit makes the session's writes durable.
func (s *Session) Commit() error {
	if s.done {
		return sql.ErrTxDone
	}
	s.done = true
	defer release(s.conn)
	if err := s.tx.Commit(); err != nil {
		return storageError("sqlite: committing session", err)
	}
	return nil
}

// Rollback discards the session's writes. Rolling back a session that
// already ended is a no-op, so it is safe to defer.
func (s *Session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Rollback()
	release(s.conn)
	// ErrTxDone: database/sql already rolled back after ctx was cancelled.
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return storageError("sqlite: rolling back session", err)
	}
	return nil
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

// WithSession runs fn inside a fresh session.
//
//   - fn returns nil  → commit
//   - fn returns err  → rollback, err is returned unchanged
//   - fn panics       → rollback, then the panic continues
//
// This is Go's answer to try/finally: the deferred function runs no matter how
// fn exits, so the single connection is always handed back to the pool.
func (db *DB) WithSession(ctx context.Context, fn func(s *Session) error) (err error) {
	s, err := db.OpenSession(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
		if err != nil {
			_ = s.Rollback()
		}
	}()

	if err = fn(s); err != nil {
		return err
	}
	return s.Commit()
}
