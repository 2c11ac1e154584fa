package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-reconcile/internal/db"
	"github.com/sells-group/case-reconcile/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	row_count   INTEGER NOT NULL DEFAULT 0,
	submitted   INTEGER NOT NULL DEFAULT 0,
	found       INTEGER NOT NULL DEFAULT 0,
	not_found   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	abandoned   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS record_outcomes (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	case_id    TEXT NOT NULL,
	row_index  INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	reason     TEXT NOT NULL DEFAULT '',
	error_type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_record_outcomes_run_id ON record_outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_record_outcomes_case_id ON record_outcomes(case_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = model.RunStatusRunning

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, input_path, output_path, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.InputPath, run.OutputPath, string(run.Status), run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, run model.Run) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, row_count = $2, submitted = $3, found = $4, not_found = $5,
			failed = $6, abandoned = $7, error = $8, finished_at = $9 WHERE id = $10`,
		string(run.Status), run.Rows, run.Submitted, run.Found, run.NotFound,
		run.Failed, run.Abandoned, run.Error, finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", run.ID)
	}
	return nil
}

const postgresRunColumns = `id, input_path, output_path, status, row_count, submitted, found, not_found, failed, abandoned, error, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.InputPath != "" {
		query += fmt.Sprintf(` AND input_path = $%d`, argIdx)
		args = append(args, filter.InputPath)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var outcomeColumns = []string{"id", "run_id", "case_id", "row_index", "name", "outcome", "attempts", "reason", "error_type"}

// RecordOutcomes bulk-loads outcomes with COPY.
func (s *PostgresStore) RecordOutcomes(ctx context.Context, runID string, outcomes []model.RecordOutcome) error {
	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []any{
			uuid.New().String(), runID, o.CaseID, o.RowIndex, o.Name, string(o.Outcome),
			o.Attempts, o.Reason, o.ErrorType,
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "record_outcomes", outcomeColumns, rows)
	return eris.Wrapf(err, "postgres: record outcomes for run %s", runID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]model.RecordOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, case_id, row_index, name, outcome, attempts, reason, error_type FROM record_outcomes WHERE run_id = $1 ORDER BY row_index`,
		runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.RecordOutcome
	for rows.Next() {
		var o model.RecordOutcome
		var outcome string
		if err := rows.Scan(&o.RunID, &o.CaseID, &o.RowIndex, &o.Name, &outcome,
			&o.Attempts, &o.Reason, &o.ErrorType); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o.Outcome = model.Outcome(outcome)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var finished *time.Time

	if err := row.Scan(&r.ID, &r.InputPath, &r.OutputPath, &status, &r.Rows, &r.Submitted,
		&r.Found, &r.NotFound, &r.Failed, &r.Abandoned, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if finished != nil {
		r.FinishedAt = *finished
	}
	return &r, nil
}
