package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hoarder/internal/store"
)

// DefaultWatchInterval is how often watch looks for commits from other
// processes when the config sets no poll interval.
const DefaultWatchInterval = time.Second

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Query    string
	Interval time.Duration
}

// ChangeView is the output form of one change batch.
type ChangeView struct {
	Kind          string       `json:"kind"`
	Records       []RecordView `json:"records"`
	Deletions     []int        `json:"deletions,omitempty"`
	Insertions    []int        `json:"insertions,omitempty"`
	Modifications []int        `json:"modifications,omitempty"`
	Error         string       `json:"error,omitempty"`
}

func newChangeView(c store.Change) ChangeView {
	list := newRecordList("", c.Records)
	v := ChangeView{
		Kind:          c.Kind.String(),
		Records:       list.Records,
		Deletions:     c.Deletions,
		Insertions:    c.Insertions,
		Modifications: c.Modifications,
	}
	if c.Err != nil {
		v.Error = c.Err.Error()
	}
	return v
}

func (v ChangeView) String() string {
	var b strings.Builder
	switch v.Kind {
	case "initial":
		fmt.Fprintf(&b, "[initial] %d record(s)", len(v.Records))
	case "error":
		fmt.Fprintf(&b, "[error] %s", v.Error)
		return b.String()
	default:
		fmt.Fprintf(&b, "[update] deleted %v inserted %v modified %v",
			orEmpty(v.Deletions), orEmpty(v.Insertions), orEmpty(v.Modifications))
	}
	for _, r := range v.Records {
		b.WriteString("\n  ")
		b.WriteString(r.line())
	}
	return b.String()
}

func orEmpty(idx []int) []int {
	if idx == nil {
		return []int{}
	}
	return idx
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change batches as the catalogue changes",
		Long: `Print the current records, then one batch per change until interrupted.

Writes made by other processes are picked up by polling the database.
Deletions refer to positions in the previous batch; insertions and
modifications refer to positions in the batch they arrive with.

With --format json each batch is printed as one JSON object per line.

Examples:
  hoarder watch
  hoarder watch --query alien --interval 250ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "only watch records matching this search text")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (default: config poll_interval, else 1s)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger()

	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Config.PollInterval
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	st, err := opts.openStore(store.WithPollInterval(interval))
	if err != nil {
		return storeFailure(f, "failed to open database", err)
	}
	defer opts.closeStore(st)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	w := cmd.OutOrStdout()
	terminal := make(chan error, 1)

	view := st.All()
	if opts.Query != "" {
		view = st.Search(opts.Query)
	}

	sub, err := view.Subscribe(func(c store.Change) {
		if err := writeChange(w, f.Format, newChangeView(c)); err != nil {
			logger.Error("failed to write change", "error", err)
		}
		if c.Kind == store.ChangeError {
			terminal <- c.Err
		}
	})
	if err != nil {
		return storeFailure(f, "failed to subscribe", err)
	}
	defer sub.Stop()

	logger.Debug("watching", "db", opts.Config.Database, "query", opts.Query, "interval", interval)

	select {
	case <-ctx.Done():
		logger.Debug("watch stopped")
		return nil
	case err := <-terminal:
		return WrapExitError(ExitCommandError, "storage became unreadable", err)
	}
}

// writeChange prints one batch. JSON batches are written one per line.
func writeChange(w io.Writer, format string, v ChangeView) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(v)
	}
	_, err := fmt.Fprintln(w, v)
	return err
}
