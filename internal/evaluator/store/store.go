// Package store keeps the history of evaluation runs in PostgreSQL so
// retrieval quality can be compared across models and corpus revisions.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/resilience"
)

// Schema creates the two tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
    id          BIGSERIAL PRIMARY KEY,
    model       TEXT NOT NULL,
    weighting   TEXT NOT NULL,
    operator    TEXT NOT NULL DEFAULT '',
    k           INTEGER NOT NULL,
    precision   DOUBLE PRECISION NOT NULL,
    recall      DOUBLE PRECISION NOT NULL,
    f1          DOUBLE PRECISION NOT NULL,
    map         DOUBLE PRECISION NOT NULL,
    ndcg        DOUBLE PRECISION NOT NULL,
    report      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS evaluation_queries (
    run_id      BIGINT NOT NULL REFERENCES evaluation_runs(id) ON DELETE CASCADE,
    query       TEXT NOT NULL,
    precision   DOUBLE PRECISION NOT NULL,
    recall      DOUBLE PRECISION NOT NULL,
    ap          DOUBLE PRECISION NOT NULL,
    ndcg        DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, query)
);`

// Run is one persisted evaluation.
type Run struct {
	ID        int64            `json:"id"`
	Report    evaluator.Report `json:"report"`
	CreatedAt time.Time        `json:"created_at"`
}

type Store struct {
	db      *postgres.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Store whose statements are each bounded by timeout.
func New(db *postgres.Client, timeout time.Duration) *Store {
	return &Store{
		db:      db,
		timeout: timeout,
		logger:  slog.Default().With("component", "evaluation-store"),
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	return resilience.WithTimeout(ctx, s.timeout, "evaluation-store.migrate", func(ctx context.Context) error {
		if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
			return fmt.Errorf("applying evaluation schema: %w", err)
		}
		return nil
	})
}

// Save writes the run summary and its per-query rows in one transaction and
// returns the new run id.
func (s *Store) Save(ctx context.Context, report *evaluator.Report) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshaling report: %w", err)
	}

	var id int64
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, Retryable: transient}
	err = resilience.Retry(ctx, "evaluation-store.save", retry, func() error {
		return resilience.WithTimeout(ctx, s.timeout, "evaluation-store.save", func(ctx context.Context) error {
			return s.save(ctx, report, data, &id)
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("evaluation run saved",
		"run_id", id,
		"model", report.Settings.Model,
		"k", report.Settings.K,
		"map", report.MAP,
	)
	return id, nil
}

func (s *Store) save(ctx context.Context, report *evaluator.Report, data []byte, id *int64) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		set := report.Settings
		err := tx.QueryRowContext(ctx,
			`INSERT INTO evaluation_runs (model, weighting, operator, k, precision, recall, f1, map, ndcg, report, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			string(set.Model), string(set.Weighting), string(set.Operator), set.K,
			report.Precision, report.Recall, report.F1, report.MAP, report.NDCG,
			data, report.StartedAt,
		).Scan(id)
		if err != nil {
			return fmt.Errorf("inserting evaluation run: %w", err)
		}
		for _, q := range report.Queries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO evaluation_queries (run_id, query, precision, recall, ap, ndcg)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				*id, q.Query, q.Precision, q.Recall, q.AP, q.NDCG,
			)
			if err != nil {
				return fmt.Errorf("inserting query %q: %w", q.Query, err)
			}
		}
		return nil
	})
}

// transient reports whether a failed save may succeed if repeated: dropped
// connections, serialization failures, deadlocks and statement timeouts.
func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, apperrors.ErrTimeout) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "08", "40", "57":
		return true
	}
	return false
}

// Latest returns the newest run, or nil when none exist.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := resilience.WithTimeout(ctx, s.timeout, "evaluation-store.list", func(ctx context.Context) error {
		rows, err := s.db.DB.QueryContext(ctx,
			`SELECT id, report, created_at FROM evaluation_runs ORDER BY created_at DESC, id DESC LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("listing evaluation runs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var run Run
			var data []byte
			if err := rows.Scan(&run.ID, &data, &run.CreatedAt); err != nil {
				return fmt.Errorf("scanning evaluation run: %w", err)
			}
			if err := json.Unmarshal(data, &run.Report); err != nil {
				s.logger.Warn("skipping corrupt evaluation run", "run_id", run.ID, "error", err)
				continue
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}
