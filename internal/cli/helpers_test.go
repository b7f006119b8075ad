package cli

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/hoarder/internal/testutil"
)

// cliEnv runs commands against one database. Records get the identities
// rec-1, rec-2, ... across all calls.
type cliEnv struct {
	t   *testing.T
	db  string
	ids *testutil.SequentialIDs
}

func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:   t,
		db:  filepath.Join(t.TempDir(), "hoarder.db"),
		ids: testutil.NewSequentialIDs("rec"),
	}
}

// run executes the root command with --db set and returns stdout, stderr
// and the command error.
func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()

	opts := &RootOptions{IDGenerator: e.ids}
	cmd := newRootCommand(opts)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
