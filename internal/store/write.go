package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRun inserts a run record and returns its token. A zero Token
// is replaced with a fresh uuid; a zero CreatedAt is replaced with the
// current time. Re-inserting an existing token is a silent no-op.
func (s *Store) CreateRun(ctx context.Context, run *Run) (string, error) {
	if run.Token == "" {
		run.Token = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(token, name, shots, mode, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		run.Token,
		run.Name,
		run.Shots,
		run.Mode,
		run.Config,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	return run.Token, nil
}

// SaveProgram stores one cell's compiled program under a run.
// Saving the same cell again replaces the previous row.
//
// Note: The run referenced by token must exist (foreign key constraint).
func (s *Store) SaveProgram(ctx context.Context, token string, prog Program) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs
		(run_token, cell, words, static_region, listing)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_token, cell) DO UPDATE SET
			words = excluded.words,
			static_region = excluded.static_region,
			listing = excluded.listing
	`,
		token,
		prog.Cell,
		marshalWords(prog.Words),
		marshalStatic(prog.StaticRegion),
		prog.Listing,
	)
	if err != nil {
		return fmt.Errorf("save program: %w", err)
	}
	return nil
}

// SaveResult stores one processed result box under a run. The box name
// is NFC-normalized before it becomes the key. Saving the same box
// again replaces the previous row, so reprocessing a run is safe.
//
// Note: The run referenced by token must exist (foreign key constraint).
func (s *Store) SaveResult(ctx context.Context, token string, res Result) error {
	var shape string
	var payload []byte
	if res.Data != nil {
		shape = marshalShape(res.Data.Shape)
		payload = marshalValues(res.Data.Values)
	} else {
		payload = []byte{}
	}

	counts, err := marshalCounts(res.Counts)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results
		(run_token, box, cell, shape, payload, counts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_token, box) DO UPDATE SET
			cell = excluded.cell,
			shape = excluded.shape,
			payload = excluded.payload,
			counts = excluded.counts
	`,
		token,
		normKey(res.Box),
		res.Cell,
		shape,
		payload,
		counts,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}
