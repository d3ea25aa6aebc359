// Package pipeline implements the asynchronous ingestion pipeline: upload
// validation and job creation (gateway), the per-owner admission quota, the
// bounded background queue and the AI processing worker.
package pipeline

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/repomanager"
	"github.com/cjbpq/ai-note-app/internal/server/storage"
)

// Limits bounds what the ingestion gateway accepts.
type Limits struct {
	MaxFiles      int
	MaxFileSize   int64
	MaxActiveJobs int
}

// DefaultLimits mirrors the reference values: 10 files, 10MB each, 10
// concurrent non-terminal jobs per owner.
func DefaultLimits() Limits {
	return Limits{MaxFiles: 10, MaxFileSize: 10 << 20, MaxActiveJobs: 10}
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tiff": {},
}

// UploadFile is one file of a submission as received by the HTTP layer.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Gateway validates uploads, persists their bytes through the storage
// backend and creates jobs. All files of a batch are validated before any
// byte is written; a failed submission leaves no job row behind.
type Gateway struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  storage.Backend
	queue  *Queue
	limits Limits
	logger logging.Logger
}

func NewGateway(db *sql.DB, repos repomanager.RepositoryManager, store storage.Backend, queue *Queue, limits Limits, logger logging.Logger) *Gateway {
	return &Gateway{
		db:     db,
		repos:  repos,
		store:  store,
		queue:  queue,
		limits: limits,
		logger: logger.With("module", "pipeline_gateway"),
	}
}

// CheckAdmission rejects the submission when the owner already has the
// configured number of non-terminal jobs. The count is read against
// committed rows with no locking, so this is a best-effort quota, not a
// hard bound under concurrent submission.
func (g *Gateway) CheckAdmission(ctx context.Context, owner models.Owner, source string) error {
	active, err := g.repos.Jobs(g.db).CountActive(ctx, owner, source)
	if err != nil {
		return fmt.Errorf("count active jobs: %w", err)
	}
	if active >= g.limits.MaxActiveJobs {
		return fmt.Errorf("%w: %d active jobs, limit %d", common.ErrQuotaExceeded, active, g.limits.MaxActiveJobs)
	}
	return nil
}

// CreateJob validates the batch, writes the bytes and creates the job.
// The job row goes in as RECEIVED and is promoted to STORED in the same
// transaction that records the storage descriptors; on failure the
// transaction rolls back and any objects already written are deleted.
func (g *Gateway) CreateJob(ctx context.Context, owner models.Owner, source string, files []UploadFile) (*models.Job, error) {
	if err := g.CheckAdmission(ctx, owner, source); err != nil {
		return nil, err
	}

	metas, err := g.validate(files)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	job := &models.Job{
		ID:       jobID,
		DeviceID: owner.DeviceID,
		Source:   source,
		Status:   models.JobReceived,
		FileMeta: metas,
	}
	if !owner.Anonymous() {
		userID := owner.UserID
		job.UserID = &userID
	}

	var stored []models.StorageDescriptor
	err = dbx.WithTx(ctx, g.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repos.Jobs(tx)
		if err := repo.Create(ctx, job); err != nil {
			return err
		}

		for i, f := range files {
			name := jobID + metas[i].Extension
			if len(files) > 1 {
				name = fmt.Sprintf("%s_%d%s", jobID, i, metas[i].Extension)
			}
			desc, err := g.store.Store(ctx, f.Data, name, metas[i].ContentType)
			if err != nil {
				return fmt.Errorf("store %q: %w", f.Name, err)
			}
			stored = append(stored, models.StorageDescriptor{
				Location:    desc.Location,
				Path:        desc.Path,
				Bucket:      desc.Bucket,
				URL:         desc.URL,
				ContentType: desc.ContentType,
				Size:        desc.Size,
			})
		}

		return repo.SetStored(ctx, jobID, stored)
	})
	if err != nil {
		g.cleanup(ctx, stored)
		return nil, err
	}

	job.Storage = stored
	job.Status = models.JobStored
	return job, nil
}

// Enqueue moves the stored job to QUEUED and offers it to the background
// queue. A full queue fails the job with an ADMISSION record and returns
// ErrQueueBusy; nothing is dropped silently.
func (g *Gateway) Enqueue(ctx context.Context, job *models.Job, category string, tags []string) error {
	repo := g.repos.Jobs(g.db)
	if err := repo.SetStatus(ctx, job.ID, models.JobStored, models.JobQueued); err != nil {
		return err
	}
	job.Status = models.JobQueued

	task := Task{JobID: job.ID, Owner: job.Owner(), Category: category, Tags: tags}
	if !g.queue.TryEnqueue(task) {
		jobErr := models.JobError{
			Stage:  models.StageAdmission,
			Detail: "processing queue is full",
			At:     nowUTC(),
		}
		if err := repo.MarkFailed(ctx, job.ID, jobErr); err != nil {
			g.logger.Error(ctx, "failed to mark job failed after queue rejection", "job_id", job.ID, "error", err)
		}
		return common.ErrQueueBusy
	}

	g.logger.Info(ctx, "job enqueued", "job_id", job.ID, "source", job.Source, "queued", g.queue.Len())
	return nil
}

func (g *Gateway) validate(files []UploadFile) ([]models.FileMeta, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no uploaded files", common.ErrValidation)
	}
	if len(files) > g.limits.MaxFiles {
		return nil, fmt.Errorf("%w: too many files, max allowed is %d", common.ErrValidation, g.limits.MaxFiles)
	}

	metas := make([]models.FileMeta, 0, len(files))
	for _, f := range files {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: missing filename", common.ErrValidation)
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrValidation, ext)
		}
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: empty file %q", common.ErrValidation, f.Name)
		}
		if int64(len(f.Data)) > g.limits.MaxFileSize {
			return nil, fmt.Errorf("%w: file too large (%d bytes max): %q", common.ErrValidation, g.limits.MaxFileSize, f.Name)
		}

		sum := sha256.Sum256(f.Data)
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		metas = append(metas, models.FileMeta{
			OriginalName: f.Name,
			Extension:    ext,
			Size:         int64(len(f.Data)),
			ContentType:  contentType,
			Checksum:     hex.EncodeToString(sum[:]),
		})
	}
	return metas, nil
}

// cleanup deletes objects written before a rolled-back submission.
func (g *Gateway) cleanup(ctx context.Context, stored []models.StorageDescriptor) {
	for _, desc := range stored {
		if err := g.store.Delete(ctx, desc.Path); err != nil {
			g.logger.Warn(ctx, "failed to delete orphaned object", "path", desc.Path, "error", err)
		}
	}
}

// GetJob returns the job snapshot for status queries.
func (g *Gateway) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := g.repos.Jobs(g.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
