package pgnumbers

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// List returns the saved numbers in insertion order.
func (s *Storage) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT track_number FROM tracked_numbers ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "select tracked numbers")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan tracked numbers")
	}
	return out, nil
}

// Add inserts the numbers that are not stored yet and returns the ones actually added.
func (s *Storage) Add(ctx context.Context, numbers []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	added := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO tracked_numbers (track_number)
VALUES ($1)
ON CONFLICT (track_number) DO NOTHING
`, n)
		if err != nil {
			return nil, errors.Wrap(err, "insert tracked number")
		}
		if tag.RowsAffected() == 1 {
			added = append(added, n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return added, nil
}

// Save replaces the whole list.
func (s *Storage) Save(ctx context.Context, numbers []string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tracked_numbers`); err != nil {
		return errors.Wrap(err, "clear tracked numbers")
	}
	for _, n := range numbers {
		if _, err := tx.Exec(ctx, `INSERT INTO tracked_numbers (track_number) VALUES ($1) ON CONFLICT DO NOTHING`, n); err != nil {
			return errors.Wrap(err, "insert tracked number")
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (s *Storage) Remove(ctx context.Context, number string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tracked_numbers WHERE track_number = $1`, number)
	if err != nil {
		return false, errors.Wrap(err, "delete tracked number")
	}
	return tag.RowsAffected() > 0, nil
}
