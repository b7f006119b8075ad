package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/hoarder/internal/config"
	"github.com/roach88/hoarder/internal/record"
	"github.com/roach88/hoarder/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is resolved from defaults, the config file and flags before
	// any subcommand runs.
	Config config.Config

	// Logger is built from the resolved log level and writes to stderr.
	Logger *slog.Logger

	// IDGenerator overrides identity generation (for testing).
	// If nil, the store uses UUIDv7 identities.
	IDGenerator record.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hoarder CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hoarder",
		Short: "hoarder - keep track of the movies you own",
		Long: `A local catalogue of movie records. Each record holds a code (usually a
scanned barcode), a localized title and an original title.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewExistsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the config file and applies flag overrides on top of it.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	// Validate format flag
	if !isValidFormat(o.Format) {
		msg := fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats)
		f := &OutputFormatter{Format: "text", Writer: cmd.ErrOrStderr()}
		_ = f.Error(ErrCodeInvalidArgs, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return configFailure(o.formatter(cmd), "failed to load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("format") {
		cfg.Format = o.Format
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return configFailure(o.formatter(cmd), "invalid configuration", err)
	}

	o.Config = cfg
	o.Database = cfg.Database
	o.Format = cfg.Format
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	o.Logger.Debug("configuration resolved",
		"config", o.ConfigPath,
		"db", cfg.Database,
		"format", cfg.Format,
		"busy_timeout", cfg.BusyTimeout,
		"poll_interval", cfg.PollInterval,
	)
	return nil
}

func configFailure(f *OutputFormatter, message string, err error) error {
	_ = f.Error(ErrCodeConfig, message, err.Error())
	return WrapExitError(ExitCommandError, message, err)
}

// formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}

// logger returns the resolved logger, or the default one if resolve did
// not run.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// openStore opens the configured database.
func (o *RootOptions) openStore(extra ...store.Option) (*store.Store, error) {
	opts := []store.Option{
		store.WithLogger(o.logger()),
		store.WithBusyTimeout(o.Config.BusyTimeout),
	}
	if o.IDGenerator != nil {
		opts = append(opts, store.WithIDGenerator(o.IDGenerator))
	}
	opts = append(opts, extra...)

	o.logger().Debug("opening database", "path", o.Config.Database)
	return store.Open(o.Config.Database, opts...)
}

// closeStore closes st and logs a failure.
func (o *RootOptions) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		o.logger().Error("error closing database", "error", err)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
