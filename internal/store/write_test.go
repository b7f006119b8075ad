package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hoarder/internal/record"
)

func TestCreateWithCode_ThenExists(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"ABC123", "", "ąę ü", "5901234123457"} {
		id, err := s.CreateWithCode(ctx, code)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		exists, err := s.ExistsByCode(ctx, code)
		require.NoError(t, err)
		assert.True(t, exists, "ExistsByCode(%q)", code)
	}
}

func TestExistsByCode_Scenario(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CreateWithCode(ctx, "ABC123")
	require.NoError(t, err)

	exists, err := s.ExistsByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ExistsByCode(ctx, "XYZ")
	require.NoError(t, err)
	assert.False(t, exists)

	// Exact and case-sensitive.
	exists, err = s.ExistsByCode(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.ExistsByCode(ctx, "ABC")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreate_SetsOnlyOneField(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(record.NewFixedGenerator("rec-1", "rec-2", "rec-3")))
	ctx := context.Background()

	_, err := s.CreateWithCode(ctx, "590123")
	require.NoError(t, err)
	_, err = s.CreateWithTitleLocalized(ctx, "Obcy")
	require.NoError(t, err)
	_, err = s.CreateWithTitleOriginal(ctx, "Alien")
	require.NoError(t, err)

	recs, err := s.All().Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []record.Record{
		{ID: "rec-1", Code: "590123"},
		{ID: "rec-2", TitleLocalized: "Obcy"},
		{ID: "rec-3", TitleOriginal: "Alien"},
	}, recs)
}

func TestCreate_TitlesHaveNoDuplicateGuard(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CreateWithTitleLocalized(ctx, "Obcy")
	require.NoError(t, err)
	_, err = s.CreateWithTitleLocalized(ctx, "Obcy")
	require.NoError(t, err)

	n, err := s.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreate_UnknownField(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Create(context.Background(), record.Field(42), "x")
	assert.Error(t, err)
}

func TestCreate_DuplicateIDIsTransactionError(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(record.NewFixedGenerator("dup", "dup")))
	ctx := context.Background()

	_, err := s.CreateWithCode(ctx, "A")
	require.NoError(t, err)

	_, err = s.CreateWithCode(ctx, "B")
	require.Error(t, err)
	assert.True(t, IsTransactionError(err))

	var te *TransactionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "create", te.Op)

	// No partial effect.
	assert.Equal(t, []string{"A"}, codesOf(t, s.All()))
}

func TestCreateCodeIfAbsent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, created, err := s.CreateCodeIfAbsent(ctx, "ABC123")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	id2, created, err := s.CreateCodeIfAbsent(ctx, "ABC123")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, id2)

	// Different case is a different code.
	_, created, err = s.CreateCodeIfAbsent(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, []string{"ABC123", "abc123"}, codesOf(t, s.All()))
}

func TestUpdate_PreservesIdentityAndCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.CreateWithCode(ctx, "590123")
	require.NoError(t, err)
	second, err := s.CreateWithTitleLocalized(ctx, "Obcy")
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, second, "590999", "Obcy - 8. pasażer Nostromo", "Alien"))

	recs, err := s.All().Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first, recs[0].ID)
	assert.Equal(t, record.Record{
		ID:             second,
		Code:           "590999",
		TitleLocalized: "Obcy - 8. pasażer Nostromo",
		TitleOriginal:  "Alien",
	}, recs[1])
}

func TestUpdate_ClearsFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.CreateWithCode(ctx, "590123")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, id, "", "", ""))

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record.Record{ID: id}, rec)
}

func TestUpdate_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.Update(context.Background(), "missing", "a", "b", "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsTransactionError(err))
}

func TestDelete_Scenario(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := make(map[string]string)
	for _, code := range []string{"A", "B", "C"} {
		id, err := s.CreateWithCode(ctx, code)
		require.NoError(t, err)
		ids[code] = id
	}

	before, err := s.All().Count(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ids["B"]))

	after, err := s.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)
	assert.Equal(t, []string{"A", "C"}, codesOf(t, s.All()))

	_, err = s.Get(ctx, ids["B"])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_IdentityStaysInvalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.CreateWithCode(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, id, "A", "", ""), ErrNotFound)
}

func TestDelete_ThenCreateKeepsOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.CreateWithCode(ctx, "A")
	require.NoError(t, err)
	_, err = s.CreateWithCode(ctx, "B")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a))
	_, err = s.CreateWithCode(ctx, "C")
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C"}, codesOf(t, s.All()))
}
