package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Connection pool settings.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// PostgresStore implements Store on a Postgres database. The request
// and outcome travel as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to Postgres, verifies the connection, and
// applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// migrate applies the schema.
func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS provisioning_jobs (
		id UUID PRIMARY KEY,
		request JSONB NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		outcome JSONB,
		error_message TEXT,
		attempt INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT valid_status CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled'))
	);

	CREATE INDEX IF NOT EXISTS idx_provisioning_jobs_status ON provisioning_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_provisioning_jobs_created ON provisioning_jobs(created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Create persists a new pending job.
func (s *PostgresStore) Create(ctx context.Context, job *types.Job) error {
	job.ID = uuid.New().String()
	job.Status = types.JobPending
	job.Attempt = 0
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	query := `
		INSERT INTO provisioning_jobs (id, request, status, attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		job.ID, request, job.Status, job.Attempt, job.CreatedAt, job.UpdatedAt); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get returns the job by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Job, error) {
	query := `
		SELECT id, request, status, outcome, error_message, attempt, created_at, updated_at
		FROM provisioning_jobs
		WHERE id = $1
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, narrowed by the filter.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]types.Job, error) {
	query := `
		SELECT id, request, status, outcome, error_message, attempt, created_at, updated_at
		FROM provisioning_jobs
	`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions the job to running and bumps the attempt
// counter.
func (s *PostgresStore) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE provisioning_jobs
		SET status = $1, attempt = attempt + 1, updated_at = NOW()
		WHERE id = $2
	`
	return s.exec(ctx, query, types.JobRunning, id)
}

// Complete records the outcome and the terminal status.
func (s *PostgresStore) Complete(ctx context.Context, id string, status types.JobStatus, outcome *types.JobOutcome, errMsg string) error {
	var encoded []byte
	if outcome != nil {
		var err error
		encoded, err = json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
	}

	query := `
		UPDATE provisioning_jobs
		SET status = $1, outcome = $2, error_message = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4
	`
	return s.exec(ctx, query, status, encoded, errMsg, id)
}

// Cancel transitions a pending job to cancelled.
func (s *PostgresStore) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE provisioning_jobs
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	result, err := s.db.ExecContext(ctx, query, types.JobCancelled, id, types.JobPending)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing job from one that already moved on.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotPending
	}
	return nil
}

// Stale returns pending jobs untouched for at least the given age.
func (s *PostgresStore) Stale(ctx context.Context, age time.Duration) ([]types.Job, error) {
	query := `
		SELECT id, request, status, outcome, error_message, attempt, created_at, updated_at
		FROM provisioning_jobs
		WHERE status = $1 AND updated_at <= NOW() - $2::interval
		ORDER BY updated_at ASC
	`
	interval := fmt.Sprintf("%d seconds", int(age.Seconds()))
	rows, err := s.db.QueryContext(ctx, query, types.JobPending, interval)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// exec runs a statement and checks a row matched.
func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob decodes one job row including its JSONB columns.
func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job     types.Job
		request []byte
		outcome []byte
		errMsg  sql.NullString
	)
	if err := row.Scan(&job.ID, &request, &job.Status, &outcome, &errMsg,
		&job.Attempt, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if len(outcome) > 0 {
		job.Outcome = &types.JobOutcome{}
		if err := json.Unmarshal(outcome, job.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
	}
	job.Error = errMsg.String
	return &job, nil
}

// Verify PostgresStore implements the store interface.
var _ Store = (*PostgresStore)(nil)
