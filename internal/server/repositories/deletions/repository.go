package deletions

import (
	"context"
	"time"

	"github.com/cjbpq/ai-note-app/internal/server/models"
)

type Repository interface {
	// Insert writes a tombstone. Tombstones are immutable once written and
	// are only ever inserted in the same transaction as the note deletion.
	Insert(ctx context.Context, tombstone *models.DeletionLog) error

	// SelectBetween returns tombstoned note ids for the owner with
	// deleted_at in (since, until].
	SelectBetween(ctx context.Context, owner models.Owner, since, until time.Time) ([]string, error)
}
