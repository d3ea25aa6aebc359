// Package jobs provides the PostgreSQL-backed repository for upload jobs:
// creation, lifecycle transitions and the active-job count used by admission.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/server/models"
)

// PostgresRepository implements job storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, user_id, device_id, source, status, file_meta, storage,
	raw_result, ai_result, error_log, note_id, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, job *models.Job) error {
	fileMeta, err := json.Marshal(job.FileMeta)
	if err != nil {
		return fmt.Errorf("marshal file_meta: %w", err)
	}
	storage, err := json.Marshal(job.Storage)
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}

	query := `
		INSERT INTO upload_jobs (id, user_id, device_id, source, status, file_meta, storage)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.DeviceID, job.Source, job.Status, fileMeta, storage)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upload_jobs WHERE id=$1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select job: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) List(ctx context.Context, owner models.Owner, status models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upload_jobs
		WHERE (user_id = $1 OR (user_id IS NULL AND device_id = $2))`
	args := []any{owner.Key(), owner.DeviceID}
	if status != "" {
		query += ` AND status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()

	var result []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, owner models.Owner, source string) (int, error) {
	query := `SELECT COUNT(*) FROM upload_jobs
		WHERE (user_id = $1 OR (user_id IS NULL AND device_id = $2))
		AND status NOT IN ('FAILED', 'PERSISTED')`
	args := []any{owner.Key(), owner.DeviceID}
	if source != "" {
		query += ` AND source = $3`
		args = append(args, source)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) SetStored(ctx context.Context, id string, stored []models.StorageDescriptor) error {
	storage, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}
	query := `UPDATE upload_jobs
		SET storage=$2, status='STORED', updated_at=now()
		WHERE id=$1 AND status='RECEIVED';`
	res, err := r.db.ExecContext(ctx, query, id, storage)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRowOr(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}
	query := `UPDATE upload_jobs SET status=$3, updated_at=now() WHERE id=$1 AND status=$2;`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRowOr(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, jobErr models.JobError) error {
	record, err := json.Marshal([]models.JobError{jobErr})
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}
	query := `UPDATE upload_jobs
		SET status='FAILED', error_log = error_log || $2::jsonb, updated_at=now()
		WHERE id=$1 AND status NOT IN ('FAILED', 'PERSISTED');`
	res, err := r.db.ExecContext(ctx, query, id, record)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRowOr(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) StoreResults(ctx context.Context, id string, raw, ai json.RawMessage) error {
	query := `UPDATE upload_jobs
		SET raw_result=$2, ai_result=$3, status='AI_DONE', updated_at=now()
		WHERE id=$1 AND status='AI_PENDING';`
	res, err := r.db.ExecContext(ctx, query, id, []byte(raw), []byte(ai))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRowOr(res, common.ErrInvalidTransition)
}

func (r *PostgresRepository) LinkNote(ctx context.Context, id string, noteID string) error {
	query := `UPDATE upload_jobs
		SET note_id=$2, status='PERSISTED', updated_at=now()
		WHERE id=$1 AND status='AI_DONE';`
	res, err := r.db.ExecContext(ctx, query, id, noteID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRowOr(res, common.ErrInvalidTransition)
}

// oneRowOr maps rows-affected to the outcome: exactly one row means success,
// zero rows means the guard did not match.
func oneRowOr(res sql.Result, guardErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return guardErr
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		item      models.Job
		userID    sql.NullString
		noteID    sql.NullString
		fileMeta  []byte
		storage   []byte
		rawResult []byte
		aiResult  []byte
		errorLog  []byte
	)
	if err := row.Scan(
		&item.ID, &userID, &item.DeviceID, &item.Source, &item.Status,
		&fileMeta, &storage, &rawResult, &aiResult, &errorLog,
		&noteID, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		item.UserID = &userID.String
	}
	if noteID.Valid {
		item.NoteID = &noteID.String
	}
	if err := json.Unmarshal(fileMeta, &item.FileMeta); err != nil {
		return nil, fmt.Errorf("unmarshal file_meta: %w", err)
	}
	if err := json.Unmarshal(storage, &item.Storage); err != nil {
		return nil, fmt.Errorf("unmarshal storage: %w", err)
	}
	if err := json.Unmarshal(errorLog, &item.ErrorLog); err != nil {
		return nil, fmt.Errorf("unmarshal error_log: %w", err)
	}
	item.RawResult = rawResult
	item.AIResult = aiResult
	return &item, nil
}
