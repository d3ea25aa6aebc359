package jobs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func jobRows(t *testing.T, id, status string) *sqlmock.Rows {
	t.Helper()
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "device_id", "source", "status", "file_meta", "storage",
		"raw_result", "ai_result", "error_log", "note_id", "created_at", "updated_at",
	}).AddRow(id, nil, "dev1", "upload", status,
		[]byte(`[{"original_name":"a.jpg","extension":".jpg","size":3,"content_type":"image/jpeg","checksum":"x"}]`),
		[]byte(`[{"location":"s3","path":"notes/2026/01/01/a.jpg","url":"http://u","content_type":"image/jpeg","size":3}]`),
		nil, nil, []byte(`[]`), nil, now, now)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO upload_jobs .* VALUES .*`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", nil, "dev1", "upload", models.JobReceived,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Job{
		ID:       "j1",
		DeviceID: "dev1",
		Source:   "upload",
		Status:   models.JobReceived,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM upload_jobs WHERE id=.*`)
	mock.ExpectQuery(q.String()).WithArgs("j1").WillReturnRows(jobRows(t, "j1", "QUEUED"))

	job, err := repo.GetByID(context.Background(), "j1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "j1" || job.Status != models.JobQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.UserID != nil {
		t.Fatalf("expected nil user id, got %v", *job.UserID)
	}
	if len(job.FileMeta) != 1 || job.FileMeta[0].OriginalName != "a.jpg" {
		t.Fatalf("unexpected file meta: %+v", job.FileMeta)
	}
	if len(job.Storage) != 1 || job.Storage[0].Path != "notes/2026/01/01/a.jpg" {
		t.Fatalf("unexpected storage: %+v", job.Storage)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM upload_jobs WHERE id=.*`)
	mock.ExpectQuery(q.String()).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestCountActive_OwnershipArgs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT COUNT.* FROM upload_jobs WHERE .*user_id = .* OR .*user_id IS NULL AND device_id = .* AND status NOT IN .*`)
	mock.ExpectQuery(q.String()).
		WithArgs("u1", "dev1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountActive(context.Background(), models.Owner{UserID: "u1", DeviceID: "dev1"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
}

func TestCountActive_AnonymousUsesDeviceKey(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT COUNT.* FROM upload_jobs .*`)
	mock.ExpectQuery(q.String()).
		WithArgs("dev1", "dev1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	if _, err := repo.CountActive(context.Background(), models.Owner{DeviceID: "dev1"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetStored_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET storage=.* status='STORED'.* WHERE id=.* AND status='RECEIVED';`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStored(context.Background(), "j1", []models.StorageDescriptor{{Path: "p"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetStored_GuardRowsAffected0(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET storage=.*`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStored(context.Background(), "j1", nil)
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestSetStatus_RejectsInvalidTransitionWithoutQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.SetStatus(context.Background(), "j1", models.JobReceived, models.JobAIDone)
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
	// no expectation was registered: the guard fires before any SQL
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected db interaction: %v", err)
	}
}

func TestSetStatus_GuardedUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET status=.* WHERE id=.* AND status=.*;`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", models.JobQueued, models.JobAIPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetStatus(context.Background(), "j1", models.JobQueued, models.JobAIPending); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetStatus_LostRace(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET status=.*`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", models.JobQueued, models.JobAIPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetStatus(context.Background(), "j1", models.JobQueued, models.JobAIPending)
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestMarkFailed_AppendsRecord(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET status='FAILED', error_log = error_log .* WHERE id=.* AND status NOT IN .*;`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), "j1", models.JobError{
		Stage:  models.StageCollaborator,
		Detail: "provider returned status 502",
		At:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkFailed_TerminalJobUntouched(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET status='FAILED'.*`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkFailed(context.Background(), "j1", models.JobError{Stage: models.StageUnexpected})
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestStoreResults_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET raw_result=.* ai_result=.* status='AI_DONE'.* WHERE id=.* AND status='AI_PENDING';`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", []byte(`{"text":"raw"}`), []byte(`{"title":"t"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.StoreResults(context.Background(), "j1", []byte(`{"text":"raw"}`), []byte(`{"title":"t"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLinkNote_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET note_id=.* status='PERSISTED'.* WHERE id=.* AND status='AI_DONE';`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", "n1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.LinkNote(context.Background(), "j1", "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLinkNote_WrongState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE upload_jobs SET note_id=.*`)
	mock.ExpectExec(q.String()).
		WithArgs("j1", "n1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LinkNote(context.Background(), "j1", "n1")
	if !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}
