package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hoarder/internal/record"
)

func TestMigrations_Ordered(t *testing.T) {
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].version, migrations[i-1].version, "migrations must be strictly ascending")
	}
	assert.Equal(t, currentSchemaVersion, migrations[len(migrations)-1].version)
}

func TestMigrate_FromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v0.db")
	createV0Database(t, path,
		map[string]string{"old-1": "590123", "old-2": "ABC123"},
		[]string{"old-1", "old-2"},
	)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	recs, err := s.All().Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []record.Record{
		{ID: "old-1", Code: "590123"},
		{ID: "old-2", Code: "ABC123"},
	}, recs)
}

func TestMigrate_WaitsForConcurrentMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	createV0Database(t, path, map[string]string{"old-1": "590123"}, []string{"old-1"})

	// Another process migrates the file and titles a record, holding the
	// write lock while Open starts.
	other, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec("PRAGMA journal_mode = WAL")
	require.NoError(t, err)

	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	for _, stmt := range []string{
		"BEGIN IMMEDIATE",
		"ALTER TABLE records ADD COLUMN title_localized TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE records ADD COLUMN title_original TEXT NOT NULL DEFAULT ''",
		"CREATE INDEX IF NOT EXISTS idx_records_code ON records(code)",
		"UPDATE records SET title_localized = 'Obcy', title_original = 'Alien' WHERE id = 'old-1'",
		"PRAGMA user_version = 1",
	} {
		_, err := conn.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	commitErr := make(chan error, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, err := conn.ExecContext(ctx, "COMMIT")
		commitErr <- err
	}()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, <-commitErr)

	rec, err := s.Get(ctx, "old-1")
	require.NoError(t, err)
	assert.Equal(t, record.Record{ID: "old-1", Code: "590123", TitleLocalized: "Obcy", TitleOriginal: "Alien"}, rec)
}

func TestMigrate_AtTargetIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.CreateWithCode(ctx, "590123")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, id, "590123", "Obcy", "Alien"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record.Record{ID: id, Code: "590123", TitleLocalized: "Obcy", TitleOriginal: "Alien"}, rec)
}

func TestMigrate_NewerVersionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 7")
	require.NoError(t, err)
	db.Close()

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, IsMigrationError(err))

	var me *MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 7, me.From)
	assert.Equal(t, currentSchemaVersion, me.To)
}

func TestMigrate_FailedStepRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")

	// A version 0 records table without a code column cannot take the
	// code index created by step 1.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE records (seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL UNIQUE, rev INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	db.Close()

	_, err = Open(path)
	require.Error(t, err)

	var me *MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 0, me.From)
	assert.Equal(t, 1, me.Version)

	// Nothing from the failed step survived.
	db, err = sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 0, version)
	assert.NotContains(t, getTableColumns(t, db, "records"), "title_localized")
}

func TestMigrate_AppliesPendingStepsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)

	var applied []int
	step := func(v int) migration {
		return migration{version: v, name: fmt.Sprintf("step %d", v), apply: func(ctx context.Context, tx *sql.Tx) error {
			applied = append(applied, v)
			return nil
		}}
	}

	from, err := migrate(ctx, db, []migration{step(1), step(2), step(3), step(4)}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, from)
	assert.Equal(t, []int{2, 3}, applied)

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 3, version)
}

func TestMigrate_StepErrorIsWrapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	steps := []migration{{version: 1, name: "explode", apply: func(ctx context.Context, tx *sql.Tx) error {
		return boom
	}}}

	_, err = migrate(context.Background(), db, steps, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step 1")
	assert.Contains(t, err.Error(), "explode")

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 0, version)
}
