package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"
)

// Kind tells a regular backup from the automatic copy taken before a restore.
type Kind string

const (
	KindBackup     Kind = "backup"
	KindPreRestore Kind = "pre-restore"
)

// File name prefixes, one per Kind.
const (
	PrefixBackup     = "database_backup"
	PrefixPreRestore = "pre_restore"

	// TimestampLayout is the second-precision timestamp embedded in every
	// snapshot name (strftime %Y%m%d_%H%M%S).
	TimestampLayout = "20060102_150405"

	snapshotExt = ".db"
)

var snapshotName = regexp.MustCompile(`^(` + PrefixBackup + `|` + PrefixPreRestore + `)_(\d{8}_\d{6})\.db$`)

// Snapshot describes one snapshot file in the backup directory.
type Snapshot struct {
	Name      string
	Kind      Kind
	CreatedAt time.Time // parsed from Name, UTC
	Size      int64
	Path      string
}

func prefixFor(kind Kind) string {
	if kind == KindPreRestore {
		return PrefixPreRestore
	}
	return PrefixBackup
}

// SnapshotName returns the file name for a snapshot of kind taken at t.
func SnapshotName(kind Kind, t time.Time) string {
	return prefixFor(kind) + "_" + t.UTC().Format(TimestampLayout) + snapshotExt
}

// ParseSnapshotName splits a snapshot file name into its kind and timestamp.
// ok is false for anything that isn't a snapshot name, including temp files.
func ParseSnapshotName(name string) (kind Kind, createdAt time.Time, ok bool) {
	m := snapshotName.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	createdAt, err := time.ParseInLocation(TimestampLayout, m[2], time.UTC)
	if err != nil {
		// Matches the shape but not the calendar, e.g. month 13.
		return "", time.Time{}, false
	}
	kind = KindBackup
	if m[1] == PrefixPreRestore {
		kind = KindPreRestore
	}
	return kind, createdAt, true
}

// readSnapshots lists the snapshots in dir, oldest first. A missing directory
// simply has no snapshots.
func readSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Snapshot{}, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	snapshots := []Snapshot{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		kind, createdAt, ok := ParseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// Pruned by a concurrent run between ReadDir and Info.
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		snapshots = append(snapshots, Snapshot{
			Name:      entry.Name(),
			Kind:      kind,
			CreatedAt: createdAt,
			Size:      info.Size(),
			Path:      filepath.Join(dir, entry.Name()),
		})
	}

	sortSnapshots(snapshots)
	return snapshots, nil
}

// sortSnapshots orders by the timestamp in the name, oldest first. Names break
// ties so the order is stable when a backup and a pre-restore copy share a second.
func sortSnapshots(snapshots []Snapshot) {
	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
		}
		return snapshots[i].Name < snapshots[j].Name
	})
}

// filterKind keeps the snapshots whose Kind is one of kinds, in order.
func filterKind(snapshots []Snapshot, kinds ...Kind) []Snapshot {
	out := make([]Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if slices.Contains(kinds, s.Kind) {
			out = append(out, s)
		}
	}
	return out
}
