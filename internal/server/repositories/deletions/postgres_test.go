package deletions

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	deletedAt := time.Now().UTC()
	q := regexp.MustCompile(`INSERT INTO deletion_logs .* VALUES .*`)
	mock.ExpectExec(q.String()).
		WithArgs("t1", "n1", "u1", deletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.DeletionLog{
		ID: "t1", NoteID: "n1", UserID: "u1", DeletedAt: deletedAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSelectBetween_ReturnsOrderedIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	q := regexp.MustCompile(`SELECT note_id FROM deletion_logs WHERE user_id = .* AND deleted_at > .* AND deleted_at <= .* ORDER BY deleted_at ASC`)
	mock.ExpectQuery(q.String()).
		WithArgs("u1", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"note_id"}).AddRow("n1").AddRow("n2"))

	ids, err := repo.SelectBetween(context.Background(), models.Owner{UserID: "u1", DeviceID: "dev1"}, since, until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "n1" || ids[1] != "n2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestSelectBetween_DeviceOwnerUsesDeviceKey(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	q := regexp.MustCompile(`SELECT note_id FROM deletion_logs .*`)
	mock.ExpectQuery(q.String()).
		WithArgs("dev1", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"note_id"}))

	ids, err := repo.SelectBetween(context.Background(), models.Owner{DeviceID: "dev1"}, since, until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
