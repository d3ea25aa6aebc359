// Package notesvc implements note business logic: CRUD with ownership
// resolution, the delete-with-tombstone primitive, incremental sync deltas
// and idempotent offline-mutation replay.
package notesvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/notes"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/repomanager"
)

// SyncEpoch is the sentinel watermark meaning "full snapshot". Clients that
// have never synced pass it (or nothing) as since.
var SyncEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Service owns all note reads and writes. Every query goes through the
// ownership filter; physical deletion always pairs with a tombstone insert
// in one transaction.
type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	now    func() time.Time
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *Service {
	return &Service{
		db:     db,
		repos:  repos,
		logger: logger.With("module", "note_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if err := s.repos.Notes(s.db).Create(ctx, note); err != nil {
		return err
	}
	s.logger.Info(ctx, "note created", "note_id", note.ID, "category", note.Category)
	return nil
}

func (s *Service) Get(ctx context.Context, id string, owner models.Owner) (*models.Note, error) {
	return s.repos.Notes(s.db).GetByID(ctx, id, owner)
}

func (s *Service) List(ctx context.Context, owner models.Owner, filter notes.ListFilter) ([]*models.Note, error) {
	return s.repos.Notes(s.db).List(ctx, owner, filter)
}

func (s *Service) Search(ctx context.Context, owner models.Owner, query string) ([]*models.Note, error) {
	return s.repos.Notes(s.db).Search(ctx, owner, query)
}

func (s *Service) Update(ctx context.Context, id string, owner models.Owner, patch models.NotePatch) (time.Time, error) {
	return s.repos.Notes(s.db).Update(ctx, id, owner, patch)
}

func (s *Service) SetFavorite(ctx context.Context, id string, owner models.Owner, favorite bool) (time.Time, error) {
	return s.repos.Notes(s.db).SetFavorite(ctx, id, owner, favorite)
}

// Delete is the single delete primitive shared by the direct endpoint and
// mutation replay. The row removal and the tombstone insert commit in one
// transaction: no note disappears without a tombstone, and a missing note
// never produces one.
func (s *Service) Delete(ctx context.Context, id string, owner models.Owner) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Notes(tx).Delete(ctx, id, owner); err != nil {
			return err
		}
		tombstone := &models.DeletionLog{
			ID:        uuid.New().String(),
			NoteID:    id,
			UserID:    owner.Key(),
			DeletedAt: s.now(),
		}
		return s.repos.Deletions(tx).Insert(ctx, tombstone)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("delete note: %w", err)
	}
	s.logger.Warn(ctx, "note deleted", "note_id", id, "owner", owner.Key())
	return nil
}

// SyncResult is one incremental delta: summaries updated in the window,
// tombstoned ids, and the watermark the client must persist as its next
// since value.
type SyncResult struct {
	Updated    []*models.NoteSummary
	DeletedIDs []string
	ServerTime time.Time
}

// Sync computes the delta for (since, until] where until is fixed at entry.
// A zero since requests a full snapshot from the epoch sentinel.
func (s *Service) Sync(ctx context.Context, owner models.Owner, since time.Time) (*SyncResult, error) {
	until := s.now()
	if since.IsZero() {
		since = SyncEpoch
	}

	updated, err := s.repos.Notes(s.db).SelectUpdatedBetween(ctx, owner, since, until)
	if err != nil {
		return nil, fmt.Errorf("select updated notes: %w", err)
	}
	deleted, err := s.repos.Deletions(s.db).SelectBetween(ctx, owner, since, until)
	if err != nil {
		return nil, fmt.Errorf("select tombstones: %w", err)
	}

	return &SyncResult{Updated: updated, DeletedIDs: deleted, ServerTime: until}, nil
}

// MaxBatchIDs bounds one hydration request.
const MaxBatchIDs = 50

// BatchGet returns full payloads for the requested ids. Unknown and foreign
// ids are silently omitted, never errors: the ownership filter is part of
// the query.
func (s *Service) BatchGet(ctx context.Context, owner models.Owner, ids []string) ([]*models.Note, error) {
	if len(ids) > MaxBatchIDs {
		return nil, fmt.Errorf("%w: at most %d note ids per batch", common.ErrValidation, MaxBatchIDs)
	}
	return s.repos.Notes(s.db).SelectByIDs(ctx, owner, ids)
}
