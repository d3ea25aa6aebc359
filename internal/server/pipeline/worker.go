package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/prompts"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/jobs"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/notes"
	"github.com/cjbpq/ai-note-app/internal/server/storage"
	"github.com/cjbpq/ai-note-app/internal/server/textclean"
	"github.com/cjbpq/ai-note-app/internal/server/vision"
)

const untitledNote = "未命名笔记"

func nowUTC() time.Time { return time.Now().UTC() }

// Worker drives queued jobs through AI processing. Exactly one worker
// invocation owns a job for its processing lifetime; a multi-worker
// deployment across processes would need an explicit claim step before
// AI_PENDING, which the single-node design deliberately omits.
type Worker struct {
	jobs   jobs.Repository
	notes  notes.Repository
	store  storage.Backend
	vision vision.Client
	reg    prompts.Registry
	logger logging.Logger
}

func NewWorker(jobRepo jobs.Repository, noteRepo notes.Repository, store storage.Backend, vc vision.Client, reg prompts.Registry, logger logging.Logger) *Worker {
	return &Worker{
		jobs:   jobRepo,
		notes:  noteRepo,
		store:  store,
		vision: vc,
		reg:    reg,
		logger: logger.With("module", "pipeline_worker"),
	}
}

// Run consumes tasks until the context is cancelled. The current task is
// always finished; cancellation only stops pickup of new work.
func (w *Worker) Run(ctx context.Context, queue *Queue) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-queue.Tasks():
			w.Process(context.WithoutCancel(ctx), task)
		}
	}
}

// Process runs one job to a terminal state. Every failure is recorded on the
// job with its stage; panics are caught and logged as UNEXPECTED. Processing
// never crashes the host process and never retries.
func (w *Worker) Process(ctx context.Context, task Task) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error(ctx, "panic while processing job", "job_id", task.JobID, "panic", p)
			w.fail(ctx, task.JobID, models.StageUnexpected, fmt.Sprintf("panic: %v", p))
		}
	}()

	job, err := w.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		w.logger.Warn(ctx, "queued job not found", "job_id", task.JobID, "error", err)
		return
	}

	if err := w.jobs.SetStatus(ctx, job.ID, models.JobQueued, models.JobAIPending); err != nil {
		w.logger.Warn(ctx, "job pickup rejected", "job_id", job.ID, "error", err)
		return
	}

	if ok, reason := w.vision.Available(); !ok {
		w.fail(ctx, job.ID, models.StageCollaborator, reason)
		return
	}

	rendered, err := w.reg.Resolve(task.Category, task.Tags)
	if err != nil {
		w.fail(ctx, job.ID, models.StageCollaborator, fmt.Sprintf("resolve prompt: %v", err))
		return
	}

	images, err := w.loadImages(ctx, job)
	if err != nil {
		w.fail(ctx, job.ID, models.StageStorage, err.Error())
		return
	}

	result, err := w.vision.Generate(ctx, images, vision.Prompt(*rendered))
	if err != nil {
		w.fail(ctx, job.ID, models.StageCollaborator, collaboratorDetail(err))
		return
	}

	cleaned := textclean.Clean(result.RawText)

	rawResult, err := json.Marshal(map[string]any{
		"provider":     "vision",
		"text":         result.RawText,
		"cleaned_text": cleaned,
		"response":     result.RawResponse,
	})
	if err != nil {
		w.fail(ctx, job.ID, models.StageUnexpected, fmt.Sprintf("marshal raw result: %v", err))
		return
	}

	if err := w.jobs.StoreResults(ctx, job.ID, rawResult, result.Structured); err != nil {
		w.fail(ctx, job.ID, models.StageUnexpected, fmt.Sprintf("store results: %v", err))
		return
	}

	note := w.buildNote(job, task, result, cleaned)
	if err := w.notes.Create(ctx, note); err != nil {
		w.fail(ctx, job.ID, models.StageUnexpected, fmt.Sprintf("create note: %v", err))
		return
	}

	if err := w.jobs.LinkNote(ctx, job.ID, note.ID); err != nil {
		w.fail(ctx, job.ID, models.StageUnexpected, fmt.Sprintf("link note: %v", err))
		return
	}

	w.logger.Info(ctx, "job processed", "job_id", job.ID, "note_id", note.ID)
}

func (w *Worker) loadImages(ctx context.Context, job *models.Job) ([]vision.Image, error) {
	if len(job.Storage) == 0 {
		return nil, errors.New("job has no storage descriptors")
	}
	images := make([]vision.Image, 0, len(job.Storage))
	for i, desc := range job.Storage {
		data, err := w.store.Get(ctx, desc.Path)
		if err != nil {
			return nil, fmt.Errorf("read stored image %q: %v", desc.Path, err)
		}
		name := desc.Path
		if i < len(job.FileMeta) {
			name = job.FileMeta[i].OriginalName
		}
		images = append(images, vision.Image{
			Name:        name,
			ContentType: desc.ContentType,
			Data:        data,
		})
	}
	return images, nil
}

func (w *Worker) buildNote(job *models.Job, task Task, result *vision.Result, cleaned string) *models.Note {
	title := result.Title
	if title == "" {
		title = untitledNote
	}
	text := cleaned
	if text == "" {
		text = result.RawText
	}

	urls := make([]string, len(job.Storage))
	names := make([]string, len(job.Storage))
	sizes := make([]int64, len(job.Storage))
	for i, desc := range job.Storage {
		urls[i] = desc.URL
		sizes[i] = desc.Size
		if i < len(job.FileMeta) {
			names[i] = job.FileMeta[i].OriginalName
		}
	}

	note := &models.Note{
		ID:             uuid.New().String(),
		UserID:         job.UserID,
		DeviceID:       job.DeviceID,
		Title:          title,
		Category:       task.Category,
		Tags:           normalizeTags(task.Tags),
		ImageURLs:      urls,
		ImageFilenames: names,
		ImageSizes:     sizes,
		OriginalText:   text,
		StructuredData: result.Structured,
	}
	return note
}

func (w *Worker) fail(ctx context.Context, jobID string, stage models.ErrorStage, detail string) {
	jobErr := models.JobError{Stage: stage, Detail: detail, At: nowUTC()}
	if err := w.jobs.MarkFailed(ctx, jobID, jobErr); err != nil {
		w.logger.Error(ctx, "failed to record job failure", "job_id", jobID, "stage", stage, "error", err)
		return
	}
	w.logger.Warn(ctx, "job failed", "job_id", jobID, "stage", stage, "detail", detail)
}

func collaboratorDetail(err error) string {
	var collabErr *vision.CollaboratorError
	if errors.As(err, &collabErr) {
		return collabErr.Reason
	}
	if errors.Is(err, common.ErrCollaboratorUnavailable) {
		return err.Error()
	}
	return err.Error()
}

func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := strings.TrimSpace(tag); t != "" {
			result = append(result, t)
		}
	}
	return result
}
