// Package backup takes, lists and restores snapshots of the SQLite database file.
//
// It works on the file directly and never goes through the repository or
// the service, so it runs the same whether or not the server is up.
//
// SNAPSHOT LAYOUT:
//
//	<database_dir>/database.db                                 live database
//	<database_dir>/backups/database_backup_20240115_103000.db  regular backup
//	<database_dir>/backups/pre_restore_20240115_104500.db      taken before a restore
//
// HOW A SNAPSHOT IS TAKEN:
// A plain byte copy of a SQLite file can catch a write halfway through, and in
// WAL mode the newest commits aren't in the main file at all. So snapshots are
// written by SQLite itself (VACUUM INTO), which reads one consistent
// transaction even while another process is writing.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/todo-tracker/internal/apperror"
	"github.com/sakif/todo-tracker/internal/clock"
	"github.com/sakif/todo-tracker/internal/metrics"
	"github.com/sakif/todo-tracker/internal/repository/sqlite"
)

// DefaultRetention is how many snapshots of each kind are kept.
const DefaultRetention = 10

// Database is the part of the storage engine the backup subsystem needs.
// *sqlite.DB satisfies it.
type Database interface {
	SnapshotTo(ctx context.Context, dst string) error
	Checkpoint(ctx context.Context) error
	IntegrityCheck(ctx context.Context) error
	Close() error
}

// Opener opens the database file at path.
type Opener func(path string) (Database, error)

// OpenSQLite is the Opener used outside tests.
func OpenSQLite(path string) (Database, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}

var _ Database = (*sqlite.DB)(nil)

type Config struct {
	DatabasePath string
	BackupDir    string
	// Retention caps the snapshots kept per kind. Zero means DefaultRetention.
	Retention int
}

// Manager runs backups and restores. It holds no open handles between calls.
type Manager struct {
	cfg     Config
	open    Opener
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a Manager.
type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithOpener replaces how database files are opened.
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	m := &Manager{
		cfg:    cfg,
		open:   OpenSQLite,
		clock:  clock.Real{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackupResult is what a Backup call produced.
type BackupResult struct {
	Snapshot Snapshot
	// Pruned lists the snapshots deleted by the retention policy.
	Pruned []string
}

// RestoreResult is what a Restore call did.
type RestoreResult struct {
	Restored Snapshot
	// SafetyBackup is nil when there was no live database to preserve.
	SafetyBackup *Snapshot
	// Size is the size in bytes of the live database after the restore.
	Size int64
}

// Backup writes a new database_backup snapshot of the live database and then
// deletes the oldest regular backups beyond the retention count.
//
// The live database must exist. A snapshot with the same name (a second
// backup within the same second) is a Conflict, never an overwrite.
// A failed Backup leaves the live file alone and no partial snapshot behind.
func (m *Manager) Backup(ctx context.Context) (result *BackupResult, err error) {
	started := time.Now()
	log := m.logger.With(slog.String("op_id", xid.New().String()), slog.String("op", "backup"))
	defer func() {
		m.metrics.ObserveBackup(string(KindBackup), started, err)
		if err != nil {
			log.Error("backup failed", slog.String("error", err.Error()))
		}
	}()

	live, err := fileExists(m.cfg.DatabasePath)
	if err != nil {
		return nil, apperror.Storage("backup: checking live database", err)
	}
	if !live {
		return nil, apperror.NotFound("database file", m.cfg.DatabasePath)
	}

	db, err := m.open(m.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	snap, err := m.takeSnapshot(ctx, db, KindBackup)
	if err != nil {
		return nil, err
	}
	log.Info("backup created",
		slog.String("snapshot", snap.Name),
		slog.Int64("size", snap.Size),
	)

	pruned := m.prune(KindBackup, log)
	return &BackupResult{Snapshot: *snap, Pruned: pruned}, nil
}

// List returns the snapshots in the backup directory, oldest first (the most
// recent is last). Files that don't follow the naming scheme are ignored.
//
// With no kinds, every snapshot is returned, regular backups and pre_restore
// copies interleaved by time. Retention applies per kind, so that list can
// hold up to twice the retention count. Pass KindBackup to see only the
// regular backups.
func (m *Manager) List(_ context.Context, kinds ...Kind) ([]Snapshot, error) {
	snapshots, err := readSnapshots(m.cfg.BackupDir)
	if err != nil {
		return nil, apperror.Storage("backup: listing snapshots", err)
	}
	if len(kinds) == 0 {
		return snapshots, nil
	}
	return filterKind(snapshots, kinds...), nil
}

// Restore replaces the live database with the snapshot called name.
//
// ORDER OF OPERATIONS:
//  1. Validate name and find the snapshot (ValidationError / NotFound).
//  2. Copy the snapshot next to the live file and integrity-check the copy.
//  3. If a live database exists, write a pre_restore snapshot of it.
//     Failure here is ErrSafetyBackup and nothing else happens.
//  4. Checkpoint and close the live database so its main file holds everything.
//  5. Remove the -wal/-shm side files and rename the copy over the live file.
//
// Steps 1–4 never modify the live data, and step 5 is a single atomic rename,
// so a failed Restore leaves the live database exactly as it was. Restore does
// not restart anything: a running server must be restarted to see the result.
func (m *Manager) Restore(ctx context.Context, name string) (result *RestoreResult, err error) {
	started := time.Now()
	log := m.logger.With(
		slog.String("op_id", xid.New().String()),
		slog.String("op", "restore"),
		slog.String("snapshot", name),
	)
	defer func() {
		m.metrics.ObserveBackup("restore", started, err)
		if err != nil {
			log.Error("restore failed", slog.String("error", err.Error()))
		}
	}()

	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, apperror.ValidationFailed("snapshot", "snapshot name must be a plain file name")
	}
	kind, createdAt, ok := ParseSnapshotName(name)
	if !ok {
		return nil, apperror.NotFound("snapshot", name)
	}
	src := filepath.Join(m.cfg.BackupDir, name)
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperror.NotFound("snapshot", name)
		}
		return nil, apperror.Storage("restore: reading snapshot", err)
	}
	restored := Snapshot{Name: name, Kind: kind, CreatedAt: createdAt, Size: info.Size(), Path: src}

	if err := os.MkdirAll(filepath.Dir(m.cfg.DatabasePath), 0o755); err != nil {
		return nil, apperror.Storage("restore: creating database directory", err)
	}
	staged, err := m.stage(ctx, src)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(staged)
			_ = removeSidecars(staged)
		}
	}()

	live, err := fileExists(m.cfg.DatabasePath)
	if err != nil {
		return nil, apperror.Storage("restore: checking live database", err)
	}

	var safety *Snapshot
	if live {
		safety, err = m.quiesceLive(ctx, log)
		if err != nil {
			return nil, err
		}
	}

	if err := removeSidecars(m.cfg.DatabasePath); err != nil {
		return nil, apperror.Storage("restore: removing WAL files", err)
	}
	if err := commitTemp(staged, m.cfg.DatabasePath); err != nil {
		return nil, apperror.Storage("restore: replacing live database", err)
	}
	committed = true
	_ = removeSidecars(staged)

	result = &RestoreResult{Restored: restored, SafetyBackup: safety}
	if info, err := os.Stat(m.cfg.DatabasePath); err == nil {
		result.Size = info.Size()
	}
	log.Info("database restored", slog.Int64("size", result.Size))

	m.prune(KindPreRestore, log)
	return result, nil
}

// stage copies src next to the live database and checks that the copy is a
// healthy SQLite database. It returns the staged file's path.
func (m *Manager) stage(ctx context.Context, src string) (string, error) {
	staged, err := copyToTemp(src, m.cfg.DatabasePath)
	if err != nil {
		return "", apperror.Storage("restore: copying snapshot", err)
	}

	check := func() error {
		db, err := m.open(staged)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.IntegrityCheck(ctx)
	}
	if err := check(); err != nil {
		_ = os.Remove(staged)
		_ = removeSidecars(staged)
		return "", err
	}
	return staged, nil
}

// quiesceLive snapshots the live database as pre_restore, then checkpoints and
// closes it.
func (m *Manager) quiesceLive(ctx context.Context, log *slog.Logger) (*Snapshot, error) {
	db, err := m.open(m.cfg.DatabasePath)
	if err != nil {
		return nil, apperror.SafetyBackupFailed(err)
	}
	defer db.Close()

	safety, err := m.takeSnapshot(ctx, db, KindPreRestore)
	if err != nil {
		return nil, apperror.SafetyBackupFailed(err)
	}
	log.Info("live database saved", slog.String("safety_backup", safety.Name))

	if err := db.Checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, apperror.Storage("restore: closing live database", err)
	}
	return safety, nil
}

// takeSnapshot writes a snapshot of kind from db into the backup directory.
// The file appears under its final name only once it is complete and synced.
func (m *Manager) takeSnapshot(ctx context.Context, db Database, kind Kind) (*Snapshot, error) {
	if err := os.MkdirAll(m.cfg.BackupDir, 0o755); err != nil {
		return nil, apperror.Storage("backup: creating backup directory", err)
	}

	now := m.clock.Now()
	name := SnapshotName(kind, now)
	dst := filepath.Join(m.cfg.BackupDir, name)

	exists, err := fileExists(dst)
	if err != nil {
		return nil, apperror.Storage("backup: checking snapshot", err)
	}
	if exists {
		return nil, apperror.Conflict("snapshot", name)
	}

	// VACUUM INTO needs a path that doesn't exist yet; the xid keeps
	// concurrent runs from colliding on it.
	partial := filepath.Join(m.cfg.BackupDir, "."+name+".partial-"+xid.New().String())
	if err := db.SnapshotTo(ctx, partial); err != nil {
		_ = os.Remove(partial)
		return nil, err
	}
	if err := syncFile(partial); err != nil {
		_ = os.Remove(partial)
		return nil, apperror.Storage("backup: syncing snapshot", err)
	}
	if err := commitTemp(partial, dst); err != nil {
		return nil, apperror.Storage("backup: finalizing snapshot", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, apperror.Storage("backup: reading snapshot", err)
	}
	createdAt, _ := time.ParseInLocation(TimestampLayout, now.UTC().Format(TimestampLayout), time.UTC)
	return &Snapshot{
		Name:      name,
		Kind:      kind,
		CreatedAt: createdAt,
		Size:      info.Size(),
		Path:      dst,
	}, nil
}

// prune deletes the oldest snapshots of kind beyond the retention count and
// returns their names. Pruning is best effort: a failure is logged and the
// backup or restore that triggered it still counts as a success.
func (m *Manager) prune(kind Kind, log *slog.Logger) []string {
	all, err := readSnapshots(m.cfg.BackupDir)
	if err != nil {
		log.Warn("could not list snapshots for pruning", slog.String("error", err.Error()))
		return nil
	}
	snapshots := filterKind(all, kind)
	if len(snapshots) <= m.cfg.Retention {
		return nil
	}

	var pruned []string
	for _, s := range snapshots[:len(snapshots)-m.cfg.Retention] {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("could not remove old snapshot",
				slog.String("snapshot", s.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		pruned = append(pruned, s.Name)
		log.Info("removed old snapshot", slog.String("snapshot", s.Name))
	}
	return pruned
}

// FormatSize renders a byte count the way the CLI prints it.
func FormatSize(n int64) string {
	return fmt.Sprintf("%d bytes (%.2f KB)", n, float64(n)/1024)
}
