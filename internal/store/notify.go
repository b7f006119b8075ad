package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gammazero/workerpool"

	"github.com/roach88/hoarder/internal/record"
)

// ChangeKind distinguishes change events.
type ChangeKind int

const (
	// ChangeInitial carries the first snapshot of a view.
	ChangeInitial ChangeKind = iota + 1
	// ChangeUpdate carries the index sets of one committed write.
	ChangeUpdate
	// ChangeError is terminal: the view could not be read. Err wraps
	// ErrStorageUnreadable and no further events follow.
	ChangeError
)

// String returns the lowercase name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeInitial:
		return "initial"
	case ChangeUpdate:
		return "update"
	case ChangeError:
		return "error"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one notification batch for a subscribed view.
//
// Deletions index the previous snapshot. Insertions and Modifications
// index Records, the snapshot after the change.
type Change struct {
	Kind          ChangeKind
	Records       []record.Record
	Deletions     []int
	Insertions    []int
	Modifications []int
	Err           error
}

// Empty reports whether the batch carries no index changes.
func (c Change) Empty() bool {
	return len(c.Deletions) == 0 && len(c.Insertions) == 0 && len(c.Modifications) == 0
}

// Handler receives change batches for one subscription.
type Handler func(Change)

// Subscription is an active registration on a view.
//
// Each subscription has its own single-worker executor, so its handler is
// never invoked concurrently with itself and batches arrive in commit order.
type Subscription struct {
	id      uint64
	store   *Store
	view    *Results
	handler Handler
	pool    *workerpool.WorkerPool

	// last is the snapshot the next diff is computed against.
	// Guarded by store.mu.
	last []row

	stopped atomic.Bool
}

// Subscribe registers handler for changes to the view. The first event is
// always ChangeInitial with the current snapshot.
//
// Returns an error wrapping ErrStorageUnreadable if the view cannot be read
// at registration time.
func (r *Results) Subscribe(handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("subscribe: nil handler")
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("subscribe: %w", ErrClosed)
	}

	rows, err := r.load(context.Background(), s.db)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w: %w", ErrStorageUnreadable, err)
	}

	s.nextSubID++
	sub := &Subscription{
		id:      s.nextSubID,
		store:   s,
		view:    r,
		handler: handler,
		pool:    workerpool.New(1),
		last:    rows,
	}
	s.subs[sub.id] = sub

	sub.deliver(Change{Kind: ChangeInitial, Records: recordsOf(rows)})

	s.logger.Debug("subscribed", "subscription", sub.id, "query", r.text)
	return sub, nil
}

// Stop cancels the subscription. No handler call starts after Stop
// returns; a call already running completes. Safe to call from inside the
// handler and more than once.
func (sub *Subscription) Stop() {
	sub.stopped.Store(true)

	s := sub.store
	s.mu.Lock()
	_, active := s.subs[sub.id]
	delete(s.subs, sub.id)
	s.mu.Unlock()

	if active {
		// Stop waits for the running task, which may be the caller.
		go sub.pool.Stop()
	}
}

// deliver queues c for the handler. Callers hold store.mu and only deliver
// to registered subscriptions, so the pool is never stopped here.
func (sub *Subscription) deliver(c Change) {
	sub.pool.Submit(func() {
		if sub.stopped.Load() {
			return
		}
		sub.handler(c)
	})
}

// drain delivers queued batches and stops the executor.
func (sub *Subscription) drain() {
	sub.pool.StopWait()
}

// publishLocked re-evaluates every subscribed view and queues one batch per
// view whose contents changed. Subscriptions are visited in registration
// order. Caller must hold s.mu.
func (s *Store) publishLocked(ctx context.Context) error {
	// A cancelled caller must not turn a committed write into a read failure.
	ctx = context.WithoutCancel(ctx)

	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		sub := s.subs[id]

		rows, err := sub.view.load(ctx, s.db)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrStorageUnreadable, err)
			s.terminateLocked(sub, err)
			errs = append(errs, err)
			continue
		}

		change := diff(sub.last, rows)
		sub.last = rows
		if change.Empty() {
			continue
		}
		change.Kind = ChangeUpdate
		change.Records = recordsOf(rows)
		sub.deliver(change)
	}

	return errors.Join(errs...)
}

// failAllLocked terminates every subscription with err.
// Caller must hold s.mu.
func (s *Store) failAllLocked(err error) {
	for _, sub := range s.subs {
		s.terminateLocked(sub, err)
	}
}

// terminateLocked delivers the terminal error event and unregisters sub.
// Caller must hold s.mu.
func (s *Store) terminateLocked(sub *Subscription, err error) {
	s.logger.Warn("subscription terminated", "subscription", sub.id, "error", err)
	delete(s.subs, sub.id)
	sub.deliver(Change{Kind: ChangeError, Err: err})
	go sub.pool.StopWait()
}

// diff computes index sets between two snapshots of the same view.
// Both snapshots are in seq order, so surviving records keep their
// relative order and no moves are reported.
func diff(prev, cur []row) Change {
	prevIdx := make(map[string]int, len(prev))
	for i, rw := range prev {
		prevIdx[rw.rec.ID] = i
	}
	curIDs := make(map[string]struct{}, len(cur))
	for _, rw := range cur {
		curIDs[rw.rec.ID] = struct{}{}
	}

	var c Change
	for i, rw := range prev {
		if _, ok := curIDs[rw.rec.ID]; !ok {
			c.Deletions = append(c.Deletions, i)
		}
	}
	for j, rw := range cur {
		i, ok := prevIdx[rw.rec.ID]
		if !ok {
			c.Insertions = append(c.Insertions, j)
			continue
		}
		if prev[i].rev != rw.rev || prev[i].rec != rw.rec {
			c.Modifications = append(c.Modifications, j)
		}
	}
	return c
}
