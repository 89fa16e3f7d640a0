package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signals/internal/domain"
	"signals/internal/estimate"
)

// CounterRepositoryPG implements domain.CounterRepository on PostgreSQL.
//
// ApplyBatch is the aggregation step of the pipeline: an explicit transaction
// over upsert-with-increment statements, so a batch of N metrics is applied
// all-or-nothing and concurrent batches serialize at the row increments.
type CounterRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewCounterRepository(pool *pgxpool.Pool) *CounterRepositoryPG {
	return &CounterRepositoryPG{pool: pool}
}

const upsertCounterSQL = `
INSERT INTO metric_daily_counters (day, name, noisy_count, epsilon, batches, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, now(), now())
ON CONFLICT (day, name) DO UPDATE SET
    noisy_count = metric_daily_counters.noisy_count + EXCLUDED.noisy_count,
    epsilon     = EXCLUDED.epsilon,
    batches     = metric_daily_counters.batches + 1,
    updated_at  = now();
`

// ApplyBatch folds every metric contribution into its (day, name) counter and
// merges the submitter token into the day's contributor filters, in a single
// transaction.
func (r *CounterRepositoryPG) ApplyBatch(ctx context.Context, day time.Time, hour int, submitter string, metrics []domain.MetricContribution) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin aggregation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range metrics {
		if _, err := tx.Exec(ctx, upsertCounterSQL, day, m.Name, m.NoisyCount, m.Epsilon); err != nil {
			return fmt.Errorf("upsert counter %s: %w", m.Name, err)
		}
		if err := mergeContributor(ctx, tx, day, m.Name, hour, submitter); err != nil {
			return fmt.Errorf("merge contributor filter %s: %w", m.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit aggregation tx: %w", err)
	}
	return nil
}

// mergeContributor locks the (day, name) contributor row, folds the token
// into the filter, and writes it back. The row lock serializes concurrent
// read-modify-write of the filter blob.
func mergeContributor(ctx context.Context, tx pgx.Tx, day time.Time, name string, hour int, submitter string) error {
	var blob []byte
	var hoursSeen uint32
	err := tx.QueryRow(ctx,
		`SELECT filter, hours_seen FROM metric_daily_contributors WHERE day = $1 AND name = $2 FOR UPDATE`,
		day, name,
	).Scan(&blob, &hoursSeen)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	contributors, err := estimate.Load(blob, hoursSeen)
	if err != nil {
		return err
	}
	contributors.Observe(submitter, hour)

	encoded, err := contributors.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO metric_daily_contributors (day, name, hours_seen, filter)
VALUES ($1, $2, $3, $4)
ON CONFLICT (day, name) DO UPDATE SET
    hours_seen = EXCLUDED.hours_seen,
    filter     = EXCLUDED.filter;
`, day, name, contributors.HoursSeen(), encoded)
	return err
}

// Contributors returns the contributor records for every metric of a day.
func (r *CounterRepositoryPG) Contributors(ctx context.Context, day time.Time) ([]domain.ContributorRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT day, name, hours_seen, filter FROM metric_daily_contributors WHERE day = $1 ORDER BY name`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("query contributors: %w", err)
	}
	defer rows.Close()

	var records []domain.ContributorRecord
	for rows.Next() {
		var rec domain.ContributorRecord
		if err := rows.Scan(&rec.Day, &rec.Name, &rec.HoursSeen, &rec.Filter); err != nil {
			return nil, fmt.Errorf("scan contributor record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Suppress flags the named counters for the day as not reportable. Re-running
// with the same arguments is a no-op.
func (r *CounterRepositoryPG) Suppress(ctx context.Context, day time.Time, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE metric_daily_counters SET suppressed = true, updated_at = now() WHERE day = $1 AND name = ANY($2)`,
		day, names,
	)
	if err != nil {
		return fmt.Errorf("suppress counters: %w", err)
	}
	return nil
}

// PurgeBefore deletes counters and contributor filters older than cutoff,
// returning the number of counter rows removed.
func (r *CounterRepositoryPG) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM metric_daily_contributors WHERE day < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("purge contributors: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM metric_daily_counters WHERE day < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purge tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EnsureSchema creates the two tables if they do not exist yet.
func (r *CounterRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS metric_daily_counters (
    day         date        NOT NULL,
    name        text        NOT NULL,
    noisy_count bigint      NOT NULL DEFAULT 0,
    epsilon     float8      NOT NULL,
    batches     bigint      NOT NULL DEFAULT 0,
    suppressed  boolean     NOT NULL DEFAULT false,
    created_at  timestamptz NOT NULL DEFAULT now(),
    updated_at  timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (day, name)
);
CREATE TABLE IF NOT EXISTS metric_daily_contributors (
    day        date  NOT NULL,
    name       text  NOT NULL,
    hours_seen int   NOT NULL DEFAULT 0,
    filter     bytea,
    PRIMARY KEY (day, name)
);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

var _ domain.CounterRepository = (*CounterRepositoryPG)(nil)
