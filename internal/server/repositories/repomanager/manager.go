package repomanager

import (
	"context"
	"database/sql"

	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/deletions"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/jobs"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/notes"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Jobs(db dbx.DBTX) jobs.Repository
	Notes(db dbx.DBTX) notes.Repository
	Deletions(db dbx.DBTX) deletions.Repository
}
