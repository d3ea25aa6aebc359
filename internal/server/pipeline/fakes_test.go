package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/prompts"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/deletions"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/jobs"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/notes"
	"github.com/cjbpq/ai-note-app/internal/server/storage"
	"github.com/cjbpq/ai-note-app/internal/server/vision"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// -------- repository fakes --------

type fakeJobsRepo struct {
	jobs.Repository

	mu sync.Mutex

	countActive int
	countErr    error

	created   []*models.Job
	createErr error

	stored       []models.StorageDescriptor
	setStoredErr error

	transitions  []string
	setStatusErr error

	failures []models.JobError

	getJob *models.Job
	getErr error

	storedRaw json.RawMessage
	storedAI  json.RawMessage

	linkedNoteID string
	linkErr      error
}

func (f *fakeJobsRepo) CountActive(ctx context.Context, owner models.Owner, source string) (int, error) {
	return f.countActive, f.countErr
}

func (f *fakeJobsRepo) Create(ctx context.Context, job *models.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobsRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return f.getJob, f.getErr
}

func (f *fakeJobsRepo) SetStored(ctx context.Context, id string, stored []models.StorageDescriptor) error {
	if f.setStoredErr != nil {
		return f.setStoredErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = stored
	return nil
}

func (f *fakeJobsRepo) SetStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, fmt.Sprintf("%s->%s", from, to))
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, jobErr models.JobError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, jobErr)
	return nil
}

func (f *fakeJobsRepo) StoreResults(ctx context.Context, id string, raw, ai json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storedRaw = raw
	f.storedAI = ai
	return nil
}

func (f *fakeJobsRepo) LinkNote(ctx context.Context, id string, noteID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkedNoteID = noteID
	return nil
}

type fakeNotesRepo struct {
	notes.Repository

	mu        sync.Mutex
	created   []*models.Note
	createErr error
}

func (f *fakeNotesRepo) Create(ctx context.Context, note *models.Note) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, note)
	return nil
}

type fakeManager struct {
	jobs  jobs.Repository
	notes notes.Repository
}

func (f *fakeManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeManager) Jobs(db dbx.DBTX) jobs.Repository                    { return f.jobs }
func (f *fakeManager) Notes(db dbx.DBTX) notes.Repository                  { return f.notes }
func (f *fakeManager) Deletions(db dbx.DBTX) deletions.Repository          { return nil }

// -------- storage fake --------

type fakeBackend struct {
	mu sync.Mutex

	storedNames []string
	failAfter   int // fail the N+1-th Store call; 0 means never

	objects map[string][]byte
	getErr  error

	deleted []string
}

func (f *fakeBackend) Store(ctx context.Context, data []byte, name string, contentType string) (*storage.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.storedNames) >= f.failAfter {
		return nil, fmt.Errorf("bucket unavailable")
	}
	f.storedNames = append(f.storedNames, name)
	return &storage.Descriptor{
		Location:    "fake",
		Path:        "objects/" + name,
		URL:         "http://files/" + name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (f *fakeBackend) Get(ctx context.Context, path string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %q not found", path)
	}
	return data, nil
}

func (f *fakeBackend) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

// -------- vision and prompt fakes --------

type fakeVision struct {
	available bool
	reason    string

	gotImages []vision.Image
	gotPrompt vision.Prompt

	result *vision.Result
	err    error
}

func (f *fakeVision) Available() (bool, string) { return f.available, f.reason }

func (f *fakeVision) Generate(ctx context.Context, images []vision.Image, prompt vision.Prompt) (*vision.Result, error) {
	f.gotImages = images
	f.gotPrompt = prompt
	return f.result, f.err
}

type fakeRegistry struct {
	rendered *prompts.Rendered
	err      error
}

func (f *fakeRegistry) Resolve(category string, tags []string) (*prompts.Rendered, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rendered != nil {
		return f.rendered, nil
	}
	return &prompts.Rendered{System: "sys", User: "user " + category}, nil
}

func (f *fakeRegistry) Reload() error { return nil }
