package cli

import (
	"github.com/spf13/cobra"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database path, schema version and record count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return storeFailure(f, "failed to open database", err)
			}
			defer rootOpts.closeStore(st)

			ctx := cmd.Context()
			version, err := st.SchemaVersion(ctx)
			if err != nil {
				return storeFailure(f, "failed to read schema version", err)
			}
			count, err := st.All().Count(ctx)
			if err != nil {
				return storeFailure(f, "failed to count records", err)
			}

			return f.Success(InfoResult{
				Database:      st.Path(),
				SchemaVersion: version,
				Records:       count,
			})
		},
	}
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Write a consistent copy of the database",
		Long: `Write a consistent, compacted copy of the database to dest.
dest must not exist yet.

Example:
  hoarder backup ~/hoarder-$(date +%F).db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return storeFailure(f, "failed to open database", err)
			}
			defer rootOpts.closeStore(st)

			if err := st.Backup(cmd.Context(), args[0]); err != nil {
				_ = f.Error(ErrCodeWriteFailed, "backup failed: "+err.Error(), nil)
				return WrapExitError(ExitCommandError, "backup failed", err)
			}

			return f.Success(BackupResult{Source: st.Path(), Destination: args[0]})
		},
	}
}
