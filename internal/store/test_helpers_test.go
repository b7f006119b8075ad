package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestStore creates a new temp-file store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createV0Database writes a database in the version 0 layout, as an older
// build would have left it: records carry only a code.
func createV0Database(t *testing.T, path string, rows map[string]string, order []string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)

	for _, id := range order {
		_, err := db.Exec(`INSERT INTO records (id, code) VALUES (?, ?)`, id, rows[id])
		require.NoError(t, err)
	}

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	require.Equal(t, 0, version)
}

// codesOf returns the codes of a view in order.
func codesOf(t *testing.T, r *Results) []string {
	t.Helper()
	recs, err := r.Records(context.Background())
	require.NoError(t, err)
	codes := make([]string, len(recs))
	for i, rec := range recs {
		codes[i] = rec.Code
	}
	return codes
}

// changeRecorder collects change batches and detects overlapping delivery.
type changeRecorder struct {
	mu         sync.Mutex
	changes    []Change
	inFlight   atomic.Int32
	overlapped atomic.Bool
	delay      time.Duration
}

func (r *changeRecorder) handle(c Change) {
	if r.inFlight.Add(1) > 1 {
		r.overlapped.Store(true)
	}
	defer r.inFlight.Add(-1)

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) snapshot() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}

// waitFor blocks until at least n batches were delivered.
func (r *changeRecorder) waitFor(t *testing.T, n int) []Change {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.snapshot()) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d change batches", n)
	return r.snapshot()
}
