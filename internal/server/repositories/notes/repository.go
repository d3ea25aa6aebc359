package notes

import (
	"context"
	"time"

	"github.com/cjbpq/ai-note-app/internal/server/models"
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Category     string
	FavoriteOnly bool
	Skip         int
	Limit        int
}

type Repository interface {
	Create(ctx context.Context, note *models.Note) error

	// GetByID returns the note only when the owner resolution matches;
	// foreign and archived notes yield common.ErrorNotFound.
	GetByID(ctx context.Context, id string, owner models.Owner) (*models.Note, error)

	List(ctx context.Context, owner models.Owner, filter ListFilter) ([]*models.Note, error)
	Search(ctx context.Context, owner models.Owner, query string) ([]*models.Note, error)

	// Update applies the non-nil patch fields and returns the new updated_at.
	Update(ctx context.Context, id string, owner models.Owner, patch models.NotePatch) (time.Time, error)
	SetFavorite(ctx context.Context, id string, owner models.Owner, favorite bool) (time.Time, error)

	// Delete removes the note row only. Callers must use the service-level
	// delete primitive, which pairs this with a tombstone insert in one
	// transaction.
	Delete(ctx context.Context, id string, owner models.Owner) error

	// SelectUpdatedBetween returns lightweight summaries of the owner's notes
	// with updated_at in (since, until].
	SelectUpdatedBetween(ctx context.Context, owner models.Owner, since, until time.Time) ([]*models.NoteSummary, error)

	// SelectByIDs returns full notes for the given ids, silently omitting
	// unknown and foreign ids.
	SelectByIDs(ctx context.Context, owner models.Owner, ids []string) ([]*models.Note, error)
}
