package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sakif/todo-tracker/internal/backup"
)

func newBackupCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "backup",
		Short:   "Take a snapshot of the live database",
		Example: "  DATABASE_DIR=/app/data todo-backup backup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(deps)
			if err != nil {
				return err
			}
			defer e.closeLog()

			fmt.Fprintf(deps.Out, "Database: %s\n", e.cfg.DatabasePath())
			fmt.Fprintf(deps.Out, "Backup directory: %s\n\n", e.cfg.BackupDir())

			result, err := e.manager.Backup(cmd.Context())
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Fprintln(deps.Out, "Backup created successfully")
			fmt.Fprintf(deps.Out, "  Backup file: %s\n", result.Snapshot.Name)
			fmt.Fprintf(deps.Out, "  Size: %s\n", backup.FormatSize(result.Snapshot.Size))
			fmt.Fprintf(deps.Out, "  Location: %s\n", result.Snapshot.Path)
			for _, name := range result.Pruned {
				fmt.Fprintf(deps.Out, "  Removed old backup: %s\n", name)
			}
			return nil
		},
	}
}

func newListCommand(deps Deps) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		Long: "Lists the regular backups, oldest first.\n" +
			"With --all, also lists the pre_restore snapshots taken automatically\n" +
			"before each restore. Each kind keeps its own retention count.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(deps)
			if err != nil {
				return err
			}
			defer e.closeLog()

			_, err = printSnapshots(cmd, deps.Out, e, all)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include pre_restore snapshots")
	return cmd
}

func newRestoreCommand(deps Deps) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "restore [snapshot]",
		Short: "Restore the live database from a snapshot",
		Long: "Without an argument, lists the available backups (--all adds the\n" +
			"pre_restore snapshots). With one, replaces the live database with it\n" +
			"after saving the current database as a pre_restore snapshot.\n" +
			"Any snapshot name is accepted, including a pre_restore one.\n" +
			"Restart the server afterwards.",
		Example: "  todo-backup restore\n" +
			"  todo-backup restore database_backup_20240115_103000.db",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(deps)
			if err != nil {
				return err
			}
			defer e.closeLog()

			if len(args) == 0 {
				snapshots, err := printSnapshots(cmd, deps.Out, e, all)
				if err != nil || len(snapshots) == 0 {
					return err
				}
				fmt.Fprintln(deps.Out, "To restore a snapshot, run:")
				fmt.Fprintf(deps.Out, "  todo-backup restore %s\n", snapshots[len(snapshots)-1].Name)
				return nil
			}

			result, err := e.manager.Restore(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if result.SafetyBackup != nil {
				fmt.Fprintf(deps.Out, "Backed up current database to: %s\n", result.SafetyBackup.Name)
			}
			fmt.Fprintln(deps.Out, "Database restored successfully")
			fmt.Fprintf(deps.Out, "  Restored from: %s\n", result.Restored.Name)
			fmt.Fprintf(deps.Out, "  Database size: %s\n\n", backup.FormatSize(result.Size))
			fmt.Fprintln(deps.Out, "Note: restart the server for the change to take effect.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also list pre_restore snapshots")
	return cmd
}

// printSnapshots writes the snapshot table and returns what it printed.
// Only regular backups are shown unless all is set.
func printSnapshots(cmd *cobra.Command, out io.Writer, e *env, all bool) ([]backup.Snapshot, error) {
	kinds := []backup.Kind{backup.KindBackup}
	if all {
		kinds = append(kinds, backup.KindPreRestore)
	}
	snapshots, err := e.manager.List(cmd.Context(), kinds...)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		fmt.Fprintf(out, "No snapshots found in %s\n", e.cfg.BackupDir())
		return nil, nil
	}

	fmt.Fprintln(out, "Available snapshots:")
	fmt.Fprintln(out)
	for i, s := range snapshots {
		fmt.Fprintf(out, "  %d. %s\n", i+1, s.Name)
		fmt.Fprintf(out, "     Kind: %s\n", s.Kind)
		fmt.Fprintf(out, "     Size: %s\n", backup.FormatSize(s.Size))
		fmt.Fprintf(out, "     Created: %s UTC\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(out)
	}
	return snapshots, nil
}
