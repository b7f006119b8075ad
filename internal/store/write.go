package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hoarder/internal/record"
)

// CreateWithCode inserts a record with only Code set.
// Returns the new record's identity.
func (s *Store) CreateWithCode(ctx context.Context, code string) (string, error) {
	return s.Create(ctx, record.FieldCode, code)
}

// CreateWithTitleLocalized inserts a record with only TitleLocalized set.
func (s *Store) CreateWithTitleLocalized(ctx context.Context, title string) (string, error) {
	return s.Create(ctx, record.FieldTitleLocalized, title)
}

// CreateWithTitleOriginal inserts a record with only TitleOriginal set.
func (s *Store) CreateWithTitleOriginal(ctx context.Context, title string) (string, error) {
	return s.Create(ctx, record.FieldTitleOriginal, title)
}

// Create inserts a record with field set to value and the other two fields
// empty. No duplicate check is made; see CreateCodeIfAbsent.
func (s *Store) Create(ctx context.Context, field record.Field, value string) (string, error) {
	rec, err := record.With(field, value)
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	var id string
	err = s.write(ctx, "create", func(tx *sql.Tx) error {
		var err error
		id, err = s.insert(ctx, tx, rec)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateCodeIfAbsent inserts a record with code unless a record with exactly
// that code already exists. The check and the insert share one transaction.
//
// Returns the new identity and created=true, or "" and created=false when
// the code was already present.
func (s *Store) CreateCodeIfAbsent(ctx context.Context, code string) (id string, created bool, err error) {
	err = s.write(ctx, "create", func(tx *sql.Tx) error {
		exists, err := existsByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		id, err = s.insert(ctx, tx, record.Record{Code: code})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// Update overwrites all three fields of the record with the given identity.
// Identity and insertion position are preserved.
//
// Returns an error wrapping ErrNotFound if the identity is not present.
func (s *Store) Update(ctx context.Context, id, code, titleLocalized, titleOriginal string) error {
	return s.write(ctx, "update", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE records
			SET code = ?, title_localized = ?, title_original = ?, rev = rev + 1
			WHERE id = ?
		`, code, titleLocalized, titleOriginal, id)
		if err != nil {
			return err
		}
		return requireAffected(result, id)
	})
}

// Delete removes the record with the given identity. The identity stays
// invalid afterwards.
//
// Returns an error wrapping ErrNotFound if the identity is not present.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.write(ctx, "delete", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(result, id)
	})
}

// write runs fn in a single transaction under the store mutex, then
// publishes the resulting change batches before releasing the mutex.
//
// Failures roll back and surface as *TransactionError, except a missing
// identity which wraps ErrNotFound.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransactionError{Op: op, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &TransactionError{Op: op, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &TransactionError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}

	// The write is durable at this point. View failures become terminal
	// events for their subscribers and do not fail the write.
	if err := s.publishLocked(ctx); err != nil {
		s.logger.Warn("change notification failed", "op", op, "error", err)
	}

	return nil
}

// insert adds rec with a freshly generated identity.
func (s *Store) insert(ctx context.Context, tx *sql.Tx, rec record.Record) (string, error) {
	id := s.ids.Generate()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, code, title_localized, title_original)
		VALUES (?, ?, ?, ?)
	`, id, rec.Code, rec.TitleLocalized, rec.TitleOriginal)
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

// requireAffected maps a zero-row UPDATE or DELETE to ErrNotFound.
func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
