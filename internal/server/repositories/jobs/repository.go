package jobs

import (
	"context"
	"encoding/json"

	"github.com/cjbpq/ai-note-app/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, owner models.Owner, status models.JobStatus) ([]*models.Job, error)

	// CountActive counts the owner's jobs whose status is not terminal,
	// optionally filtered by source. The count is read against committed
	// rows with no locking: the admission quota built on it is best-effort
	// and eventually consistent, not an exact bound under heavy concurrent
	// submission.
	CountActive(ctx context.Context, owner models.Owner, source string) (int, error)

	// SetStored records the storage descriptors and promotes the job
	// RECEIVED -> STORED. Called inside the ingestion transaction so that
	// byte persistence and the status change commit together.
	SetStored(ctx context.Context, id string, stored []models.StorageDescriptor) error

	// SetStatus moves a job from one status to the next. The update is
	// guarded by the expected prior status; a job that already moved on
	// (or reached a terminal state) yields ErrInvalidTransition.
	SetStatus(ctx context.Context, id string, from, to models.JobStatus) error

	// MarkFailed appends a structured error record and sets FAILED.
	// Valid from any non-terminal state.
	MarkFailed(ctx context.Context, id string, jobErr models.JobError) error

	// StoreResults persists the raw collaborator response and the structured
	// payload, transitioning AI_PENDING -> AI_DONE.
	StoreResults(ctx context.Context, id string, raw, ai json.RawMessage) error

	// LinkNote records the created note id, transitioning AI_DONE -> PERSISTED.
	// note_id is set if and only if the job reaches PERSISTED.
	LinkNote(ctx context.Context, id string, noteID string) error
}
