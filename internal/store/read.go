package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/qic/internal/qicode"
)

// ErrNotFound is returned when a run, program or result does not exist.
var ErrNotFound = errors.New("not found")

// Run fetches one run record by token.
func (s *Store) Run(ctx context.Context, token string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, name, shots, mode, config, created_at
		FROM runs WHERE token = ?
	`, token)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// Runs returns all run records, newest first. Token breaks ties so the
// order is stable.
func (s *Store) Runs(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, name, shots, mode, config, created_at
		FROM runs
		ORDER BY created_at DESC, token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

// Programs returns the stored per-cell programs of a run, ordered by
// cell index.
func (s *Store) Programs(ctx context.Context, token string) ([]Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cell, words, static_region, listing
		FROM programs
		WHERE run_token = ?
		ORDER BY cell ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read programs: %w", err)
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		var prog Program
		var words, static []byte
		if err := rows.Scan(&prog.Cell, &words, &static, &prog.Listing); err != nil {
			return nil, fmt.Errorf("read programs: %w", err)
		}
		if prog.Words, err = unmarshalWords(words); err != nil {
			return nil, fmt.Errorf("read programs: %w", err)
		}
		if prog.StaticRegion, err = unmarshalStatic(static); err != nil {
			return nil, fmt.Errorf("read programs: %w", err)
		}
		programs = append(programs, prog)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read programs: %w", err)
	}
	return programs, nil
}

// Result fetches one result box of a run. The box name is
// NFC-normalized before the lookup, matching SaveResult.
func (s *Store) Result(ctx context.Context, token, box string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT box, cell, shape, payload, counts
		FROM results
		WHERE run_token = ? AND box = ?
	`, token, normKey(box))
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s/%s: %w", token, box, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return res, nil
}

// Results returns all result boxes of a run, ordered by box name.
func (s *Store) Results(ctx context.Context, token string) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT box, cell, shape, payload, counts
		FROM results
		WHERE run_token = ?
		ORDER BY box ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("read results: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return results, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var created string
	if err := row.Scan(&run.Token, &run.Name, &run.Shots, &run.Mode, &run.Config, &created); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	run.CreatedAt = ts
	return &run, nil
}

func scanResult(row scanner) (*Result, error) {
	var res Result
	var shape, counts string
	var payload []byte
	if err := row.Scan(&res.Box, &res.Cell, &shape, &payload, &counts); err != nil {
		return nil, err
	}

	values, err := unmarshalValues(payload)
	if err != nil {
		return nil, err
	}
	dims, err := unmarshalShape(shape)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 || len(dims) > 0 {
		res.Data = &qicode.Frame{Shape: dims, Values: values}
	}

	if res.Counts, err = unmarshalCounts(counts); err != nil {
		return nil, err
	}
	return &res, nil
}
