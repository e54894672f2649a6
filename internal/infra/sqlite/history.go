package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Batch History ──────────────────────────────────────────────────────────
// Implements domain.BatchStore. started_at is unix milliseconds;
// results_json is NULL for responses with absent results.

// RecordBatch stores a finished batch and all of its responses atomically.
func (d *DB) RecordBatch(ctx context.Context, b domain.BatchRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, started_at, mode, workers, items, failed, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.StartedAt.UnixMilli(), string(b.Mode), b.Workers,
		b.Items, b.Failed, b.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO responses (batch_id, idx, item, ok, results_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range b.Responses {
		var results sql.NullString
		if r.OK() {
			data, err := json.Marshal(r.Results)
			if err != nil {
				return fmt.Errorf("encode results %d: %w", r.Index, err)
			}
			results = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, b.ID, r.Index, string(r.Item), r.OK(), results); err != nil {
			return fmt.Errorf("insert response %d: %w", r.Index, err)
		}
	}

	return tx.Commit()
}

// ListBatches returns the most recent batches first. limit <= 0 means all.
func (d *DB) ListBatches(ctx context.Context, limit int) ([]domain.BatchSummary, error) {
	query := `SELECT id, started_at, mode, workers, items, failed, duration_ms
		FROM batches ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []domain.BatchSummary{}
	for rows.Next() {
		s, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *s)
	}
	return batches, rows.Err()
}

// GetBatch returns one batch with its responses ordered by index.
// Returns domain.ErrBatchNotFound for an unknown id.
func (d *DB) GetBatch(ctx context.Context, id string) (*domain.BatchRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, started_at, mode, workers, items, failed, duration_ms
		 FROM batches WHERE id = ?`, id)
	s, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT idx, item, ok, results_json FROM responses WHERE batch_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec := &domain.BatchRecord{BatchSummary: *s, Responses: []domain.Response{}}
	for rows.Next() {
		var (
			r       domain.Response
			item    string
			ok      bool
			results sql.NullString
		)
		if err := rows.Scan(&r.Index, &item, &ok, &results); err != nil {
			return nil, err
		}
		r.Item = domain.Item(item)
		if ok {
			r.Results = []domain.RankedResult{}
			if results.Valid {
				if err := json.Unmarshal([]byte(results.String), &r.Results); err != nil {
					return nil, fmt.Errorf("decode results %d: %w", r.Index, err)
				}
			}
		}
		rec.Responses = append(rec.Responses, r)
	}
	return rec, rows.Err()
}

// DeleteBatchesBefore removes batches started before t, with their
// responses. Returns the number of batches removed.
func (d *DB) DeleteBatchesBefore(ctx context.Context, t time.Time) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := t.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM responses WHERE batch_id IN (SELECT id FROM batches WHERE started_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func scanBatch(s scanner) (*domain.BatchSummary, error) {
	var (
		b          domain.BatchSummary
		startedAt  int64
		mode       string
		durationMS int64
	)
	if err := s.Scan(&b.ID, &startedAt, &mode, &b.Workers, &b.Items, &b.Failed, &durationMS); err != nil {
		return nil, err
	}
	b.StartedAt = time.UnixMilli(startedAt)
	b.Mode = domain.Mode(mode)
	b.Duration = time.Duration(durationMS) * time.Millisecond
	return &b, nil
}
