package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hoarder/internal/record"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	As string // code | localized | original
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <value>",
		Short: "Add a record from a code or a title",
		Long: `Add a record with exactly one field set.

A code is only added if no record with exactly that code exists yet;
otherwise the command reports "You have that one!" and exits with 1.
Titles are always added.

Examples:
  hoarder add 5901234123457
  hoarder add --as localized "Obcy - 8. pasażer Nostromo"
  hoarder add --as original Alien`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "code", "field to set (code|localized|original)")

	return cmd
}

func runAdd(opts *AddOptions, value string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	field, err := record.ParseField(opts.As)
	if err != nil {
		_ = f.Error(ErrCodeInvalidArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --as", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return storeFailure(f, "failed to open database", err)
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()

	var id string
	if field == record.FieldCode {
		var created bool
		id, created, err = st.CreateCodeIfAbsent(ctx, value)
		if err != nil {
			return storeFailure(f, "failed to add record", err)
		}
		if !created {
			_ = f.Error(ErrCodeDuplicate, DuplicateMessage, map[string]string{"code": value})
			return WrapExitError(ExitFailure, DuplicateMessage, fmt.Errorf("%w: %s", ErrDuplicateCode, value))
		}
	} else {
		id, err = st.Create(ctx, field, value)
		if err != nil {
			return storeFailure(f, "failed to add record", err)
		}
	}

	opts.logger().Debug("record added", "id", id, "field", field)
	return f.Success(AddResult{ID: id, Field: field.String(), Value: value})
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every record in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, "", false, cmd)
		},
	}
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Find records by code or title",
		Long: `Find records whose code, localized title or original title contains
the text, ignoring case and diacritics. Empty text lists every record.

Examples:
  hoarder search obcy
  hoarder search AMELIE
  hoarder search ""`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "")
			return runQuery(rootOpts, text, true, cmd)
		},
	}
}

func runQuery(opts *RootOptions, text string, search bool, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return storeFailure(f, "failed to open database", err)
	}
	defer opts.closeStore(st)

	view := st.All()
	if search {
		view = st.Search(text)
	}
	recs, err := view.Records(cmd.Context())
	if err != nil {
		return storeFailure(f, "failed to read records", err)
	}

	return f.Success(newRecordList(text, recs))
}

// NewExistsCommand creates the exists command.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <code>",
		Short: "Check whether a record with exactly this code exists",
		Long: `Check whether a record with exactly this code exists.
The comparison is exact and case-sensitive.

Exit codes:
  0 - A record with the code exists
  1 - No record has the code
  2 - Command error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExists(rootOpts, args[0], cmd)
		},
	}
}

func runExists(opts *RootOptions, code string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return storeFailure(f, "failed to open database", err)
	}
	defer opts.closeStore(st)

	exists, err := st.ExistsByCode(cmd.Context(), code)
	if err != nil {
		return storeFailure(f, "failed to check code", err)
	}

	if err := f.Success(ExistsResult{Code: code, Exists: exists}); err != nil {
		return err
	}
	if !exists {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeAbsent, code))
	}
	return nil
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show all fields of one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return storeFailure(f, "failed to open database", err)
			}
			defer rootOpts.closeStore(st)

			rec, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return storeFailure(f, "failed to read record", err)
			}
			return f.Success(newRecordView(rec))
		},
	}
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Code      string
	Localized string
	Original  string
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the fields of a record",
		Long: `Change the fields of a record. Fields whose flag is not given keep
their current value; pass an empty string to clear a field.

Examples:
  hoarder edit 0192f3a4-... --localized Obcy --original Alien
  hoarder edit 0192f3a4-... --code ""`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Code, "code", "", "new code")
	cmd.Flags().StringVar(&opts.Localized, "localized", "", "new localized title")
	cmd.Flags().StringVar(&opts.Original, "original", "", "new original title")

	return cmd
}

func runEdit(opts *EditOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return storeFailure(f, "failed to open database", err)
	}
	defer opts.closeStore(st)

	ctx := cmd.Context()
	rec, err := st.Get(ctx, id)
	if err != nil {
		return storeFailure(f, "failed to read record", err)
	}

	flags := cmd.Flags()
	if flags.Changed("code") {
		rec.Code = opts.Code
	}
	if flags.Changed("localized") {
		rec.TitleLocalized = opts.Localized
	}
	if flags.Changed("original") {
		rec.TitleOriginal = opts.Original
	}

	if err := st.Update(ctx, rec.ID, rec.Code, rec.TitleLocalized, rec.TitleOriginal); err != nil {
		return storeFailure(f, "failed to update record", err)
	}

	opts.logger().Debug("record updated", "id", rec.ID)
	return f.Success(newRecordView(rec))
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return storeFailure(f, "failed to open database", err)
			}
			defer rootOpts.closeStore(st)

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return storeFailure(f, "failed to delete record", err)
			}

			rootOpts.logger().Debug("record deleted", "id", args[0])
			return f.Success(DeleteResult{ID: args[0]})
		},
	}
}
