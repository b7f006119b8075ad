package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hoarder/internal/record"
)

var _ record.IDGenerator = (*SequentialIDs)(nil)

func TestSequentialIDs_Sequence(t *testing.T) {
	gen := NewSequentialIDs("movie")
	assert.Equal(t, 0, gen.Issued())

	assert.Equal(t, "movie-1", gen.Generate())
	assert.Equal(t, "movie-2", gen.Generate())
	assert.Equal(t, "movie-3", gen.Generate())
	assert.Equal(t, 3, gen.Issued())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "rec-1", gen.Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	gen := NewSequentialIDs("rec")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, 0, gen.Issued())
	assert.Equal(t, "rec-1", gen.Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDs("rec")
	const numGoroutines = 50
	const callsPerGoroutine = 50

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine, "every id must be unique")
	assert.Equal(t, numGoroutines*callsPerGoroutine, gen.Issued())
}

func TestOpenStore(t *testing.T) {
	s := OpenStore(t)
	ctx := context.Background()

	id, err := s.CreateWithCode(ctx, "590123")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)

	id, err = s.CreateWithTitleLocalized(ctx, "Obcy")
	require.NoError(t, err)
	assert.Equal(t, "rec-2", id)
}
