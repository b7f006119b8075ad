package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/roach88/hoarder/internal/record"
	"github.com/roach88/hoarder/internal/store"
)

// Harness executes scenario steps against one store.
type Harness struct {
	store   *store.Store
	aliases map[string]string
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh temp-file database for isolation. Records
// get the identities "rec-1", "rec-2", ... in creation order so traces are
// reproducible.
//
// Execution flow:
// 1. Create a fresh database and subscribe to All()
// 2. Execute steps, checking each step's expectations
// 3. Close the store, which delivers every pending change batch
// 4. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "hoarder-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	st, err := store.Open(filepath.Join(dir, "scenario.db"),
		store.WithIDGenerator(record.NewFixedGenerator(scenarioIDs(scenario.createCount())...)),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			st.Close()
		}
	}()

	var mu sync.Mutex
	changes := []ChangeEvent{}
	if _, err := st.All().Subscribe(func(c store.Change) {
		ev := changeEvent(c)
		mu.Lock()
		changes = append(changes, ev)
		mu.Unlock()
	}); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	h := &Harness{
		store:   st,
		aliases: make(map[string]string),
		logger:  logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	final, err := st.All().Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	closed = true
	if err := st.Close(); err != nil {
		return nil, fmt.Errorf("failed to close scenario store: %w", err)
	}

	mu.Lock()
	result.Changes = changes
	mu.Unlock()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, final) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and records its outcome.
//
// Store errors are part of the outcome: they are recorded in the step event
// and checked against expect_error. Only failures of the harness itself are
// returned.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	ev := StepEvent{Index: i, Op: step.Op}

	var opErr error
	switch step.Op {
	case OpCreate:
		field, err := record.ParseField(step.Field)
		if err != nil {
			return err
		}
		id, err := h.store.Create(ctx, field, step.Value)
		opErr = err
		if err == nil {
			ev.ID = id
			h.bind(step.As, id)
		}

	case OpCreateUnique:
		id, created, err := h.store.CreateCodeIfAbsent(ctx, step.Value)
		opErr = err
		if err == nil {
			ev.ID = id
			ev.Created = &created
			if created {
				h.bind(step.As, id)
			}
			if step.Expect != nil && *step.Expect.Bool != created {
				result.AddError(fmt.Sprintf("steps[%d] create_unique %q: expected created=%t, got %t",
					i, step.Value, *step.Expect.Bool, created))
			}
		}

	case OpUpdate:
		id := h.resolve(step.Ref)
		ev.ID = id
		opErr = h.store.Update(ctx, id, step.Code, step.Localized, step.Original)

	case OpDelete:
		id := h.resolve(step.Ref)
		ev.ID = id
		opErr = h.store.Delete(ctx, id)

	case OpExists:
		exists, err := h.store.ExistsByCode(ctx, step.Value)
		opErr = err
		if err == nil {
			ev.Exists = &exists
			if *step.Expect.Bool != exists {
				result.AddError(fmt.Sprintf("steps[%d] exists %q: expected %t, got %t",
					i, step.Value, *step.Expect.Bool, exists))
			}
		}

	case OpSearch, OpList:
		view := h.store.All()
		if step.Op == OpSearch {
			view = h.store.Search(step.Query)
		}
		recs, err := view.Records(ctx)
		opErr = err
		if err == nil {
			titles := displayTitles(recs)
			count := len(titles)
			ev.Titles = titles
			ev.Count = &count
			if step.Expect != nil && !slices.Equal(step.Expect.Titles, titles) {
				result.AddError(fmt.Sprintf("steps[%d] %s %q: expected %q, got %q",
					i, step.Op, step.Query, step.Expect.Titles, titles))
			}
		}

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if opErr != nil {
		ev.Error = errorName(opErr)
		h.logger.Debug("step failed", "index", i, "op", step.Op, "error", opErr)
	}

	switch {
	case step.ExpectError == "" && opErr != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Op, opErr))
	case step.ExpectError != "" && opErr == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got success", i, step.Op, step.ExpectError))
	case step.ExpectError != "" && ev.Error != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %v", i, step.Op, step.ExpectError, opErr))
	}

	result.AddStep(ev)
	return nil
}

func (h *Harness) bind(alias, id string) {
	if alias != "" {
		h.aliases[alias] = id
	}
}

// resolve maps an alias to its identity. Unbound refs are literal identities.
func (h *Harness) resolve(ref string) string {
	if id, ok := h.aliases[ref]; ok {
		return id
	}
	return ref
}

// errorName classifies a store error for traces.
func errorName(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrorNotFound
	case errors.Is(err, store.ErrClosed):
		return "closed"
	case errors.Is(err, store.ErrStorageUnreadable):
		return "storage_unreadable"
	case store.IsTransactionError(err):
		return "transaction"
	default:
		return "error"
	}
}

func changeEvent(c store.Change) ChangeEvent {
	ev := ChangeEvent{
		Kind:          c.Kind.String(),
		Records:       make([]string, len(c.Records)),
		Deletions:     c.Deletions,
		Insertions:    c.Insertions,
		Modifications: c.Modifications,
	}
	for i, rec := range c.Records {
		ev.Records[i] = rec.ID + "=" + rec.DisplayTitle()
	}
	if c.Err != nil {
		ev.Error = errorName(c.Err)
	}
	return ev
}

func displayTitles(recs []record.Record) []string {
	titles := make([]string, len(recs))
	for i, rec := range recs {
		titles[i] = rec.DisplayTitle()
	}
	return titles
}

// scenarioIDs returns "rec-1" through "rec-n".
func scenarioIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec-%d", i+1)
	}
	return ids
}
