package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hoarder/internal/record"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// row is a record plus the bookkeeping columns used for change detection.
type row struct {
	seq int64
	rev int64
	rec record.Record
}

// Results is a live view over the record set.
//
// A Results value holds a query, not data: every read re-runs it, so the
// view always reflects the latest committed writes. Records are returned
// in insertion order.
type Results struct {
	s      *Store
	search bool
	text   string
	folded string
}

// All returns the view of every record.
func (s *Store) All() *Results {
	return &Results{s: s}
}

// Search returns the view of records whose code, localized title or
// original title contains text, ignoring case and diacritics.
// A record matching on several fields appears once.
//
// Search("") matches every record. Non-empty text that folds to nothing,
// such as a lone combining accent, matches no record.
func (s *Store) Search(text string) *Results {
	return &Results{s: s, search: true, text: text, folded: foldText(text)}
}

// Query returns the search text, or "" for the All view.
func (r *Results) Query() string {
	return r.text
}

// Records returns a snapshot of the view.
// Returns an empty slice (not nil) if no records match.
func (r *Results) Records(ctx context.Context) ([]record.Record, error) {
	rows, err := r.load(ctx, r.s.db)
	if err != nil {
		return nil, err
	}
	return recordsOf(rows), nil
}

// Count returns the number of records in the view.
func (r *Results) Count(ctx context.Context) (int, error) {
	where, args := r.where()
	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// where builds the filter clause for the view.
func (r *Results) where() (string, []any) {
	switch {
	case !r.search || r.text == "":
		return "", nil
	case r.folded == "":
		return ` WHERE 0`, nil
	}
	return `
		WHERE instr(hoard_fold(code), ?) > 0
		   OR instr(hoard_fold(title_localized), ?) > 0
		   OR instr(hoard_fold(title_original), ?) > 0`,
		[]any{r.folded, r.folded, r.folded}
}

// load runs the view query with deterministic ordering.
func (r *Results) load(ctx context.Context, q queryer) ([]row, error) {
	where, args := r.where()
	rows, err := q.QueryContext(ctx, `
		SELECT seq, rev, id, code, title_localized, title_original
		FROM records`+where+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(
			&rw.seq, &rw.rev, &rw.rec.ID, &rw.rec.Code, &rw.rec.TitleLocalized, &rw.rec.TitleOriginal,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return out, nil
}

// ExistsByCode reports whether any record has exactly this code.
// The comparison is case-sensitive.
func (s *Store) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return existsByCode(ctx, s.db, code)
}

func existsByCode(ctx context.Context, q queryer, code string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// Get retrieves a single record by identity.
// Returns an error wrapping ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	var rec record.Record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, title_localized, title_original
		FROM records
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Code, &rec.TitleLocalized, &rec.TitleOriginal)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, fmt.Errorf("get: %w: %s", ErrNotFound, id)
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("get: %w", err)
	}
	return rec, nil
}

// recordsOf strips bookkeeping columns. Never returns nil.
func recordsOf(rows []row) []record.Record {
	out := make([]record.Record, len(rows))
	for i, rw := range rows {
		out[i] = rw.rec
	}
	return out
}
