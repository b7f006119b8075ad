package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (records carry only a code)
// 1 - Added title_localized and title_original
const currentSchemaVersion = 1

// migration transforms the schema from version-1 to version.
// Steps run inside the open transaction and must not commit.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations MUST be sorted by version, with the last entry at
// currentSchemaVersion. New schema changes append a step here.
var migrations = []migration{
	{version: 1, name: "add titles", apply: migrateToV1},
}

// migrate brings the database from its stored user_version up to target.
//
// The version check, the base schema, every pending step and the version
// bump share one transaction: either the database ends at target or
// nothing changes. A database already at target is left untouched.
// Open's connections begin transactions IMMEDIATE, so a second process
// opening the same file waits here and then sees the migrated version.
//
// Returns the version found on disk.
func migrate(ctx context.Context, db *sql.DB, steps []migration, target int) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &MigrationError{To: target, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	var from int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&from); err != nil {
		return 0, &MigrationError{To: target, Err: fmt.Errorf("get user_version: %w", err)}
	}

	if from > target {
		return from, &MigrationError{
			From: from,
			To:   target,
			Err:  fmt.Errorf("database schema version %d is newer than supported version %d", from, target),
		}
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return from, &MigrationError{From: from, To: target, Err: fmt.Errorf("apply base schema: %w", err)}
	}

	for _, m := range steps {
		if m.version <= from || m.version > target {
			continue
		}
		if err := m.apply(ctx, tx); err != nil {
			return from, &MigrationError{From: from, To: target, Version: m.version, Err: fmt.Errorf("%s: %w", m.name, err)}
		}
	}

	if from != target {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
			return from, &MigrationError{From: from, To: target, Err: fmt.Errorf("set user_version: %w", err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return from, &MigrationError{From: from, To: target, Err: fmt.Errorf("commit: %w", err)}
	}

	return from, nil
}

// migrateToV1 introduces the two title fields. Records written by version 0
// only carried a code; after this step both titles are the empty string and
// code and identity are untouched.
func migrateToV1(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "records")
	if err != nil {
		return err
	}

	for _, col := range []string{"title_localized", "title_original"} {
		if cols[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE records ADD COLUMN %s TEXT NOT NULL DEFAULT ''", col)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE records SET title_localized = '', title_original = ''`); err != nil {
		return fmt.Errorf("reset titles: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_records_code ON records(code)`); err != nil {
		return fmt.Errorf("create code index: %w", err)
	}

	return nil
}

// tableColumns returns the set of column names of table.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return cols, nil
}
