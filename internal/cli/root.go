// Package cli implements the todo-backup command line tool.
//
// COMMANDS:
//
//	todo-backup backup            take a snapshot of the live database
//	todo-backup list              show every snapshot, oldest first
//	todo-backup restore           same as list, plus a hint
//	todo-backup restore <name>    replace the live database with a snapshot
//	todo-backup config            print the effective configuration as TOML
//
// Settings come from the same place as the server's (see internal/config), so
// DATABASE_DIR=/srv/todo todo-backup backup snapshots the server's database.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/todo-tracker/internal/backup"
	"github.com/sakif/todo-tracker/internal/config"
	"github.com/sakif/todo-tracker/internal/logging"
)

// Deps is everything the commands read from or write to outside their flags.
type Deps struct {
	Out    io.Writer // user-facing output
	ErrOut io.Writer // logs
	Getenv func(string) string
	// ManagerOptions are appended to the backup manager's options (tests pass a clock).
	ManagerOptions []backup.Option
}

// NewRootCommand builds the command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "todo-backup",
		Short:         "Back up and restore the todo database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(deps.Out)
	cmd.SetErr(deps.ErrOut)

	cmd.AddCommand(
		newBackupCommand(deps),
		newListCommand(deps),
		newRestoreCommand(deps),
		newConfigCommand(deps),
	)
	return cmd
}

// env bundles the loaded configuration with a ready backup manager.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *backup.Manager
	closeLog func() error
}

func loadEnv(deps Deps) (*env, error) {
	cfg, err := config.Load(deps.Getenv)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.NewTo(deps.ErrOut, logging.Options{
		Level: cfg.SlogLevel(),
		File:  cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}

	manager := backup.NewManager(backup.Config{
		DatabasePath: cfg.DatabasePath(),
		BackupDir:    cfg.BackupDir(),
		Retention:    cfg.BackupRetention,
	}, logger, deps.ManagerOptions...)

	return &env{cfg: cfg, logger: logger, manager: manager, closeLog: closeLog}, nil
}

func newConfigCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.Getenv)
			if err != nil {
				return err
			}
			m := &config.Manager{}
			return m.Write(deps.Out, cfg)
		},
	}
}
