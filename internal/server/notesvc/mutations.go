package notesvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/server/models"
)

// Mutation types accepted by replay.
const (
	MutationUpdateNote  = "update_note"
	MutationSetFavorite = "set_favorite"
	MutationDeleteNote  = "delete_note"
)

// Mutation statuses reported per item.
const (
	StatusApplied  = "applied"
	StatusInvalid  = "invalid"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

// MaxMutations bounds one replay batch.
const MaxMutations = 100

// Mutation is one recorded offline change. OpID is a client-chosen
// correlation id echoed back in the result.
type Mutation struct {
	OpID       string
	Type       string
	NoteID     string
	Patch      *models.NotePatch
	IsFavorite *bool
}

// MutationResult reports the outcome of a single mutation.
type MutationResult struct {
	OpID      string
	Type      string
	NoteID    string
	Status    string
	Code      int
	Message   string
	UpdatedAt *time.Time
}

// MutationBatchResult aggregates a replayed batch.
type MutationBatchResult struct {
	Results      []MutationResult
	AppliedCount int
	FailedCount  int
	ServerTime   time.Time
}

// ApplyMutations replays an ordered batch of offline mutations. Each item is
// applied independently: invalid input yields 422, a missing or foreign note
// 404, and any unexpected failure 500 — without aborting the rest of the
// batch. Deletes go through the shared delete-with-tombstone primitive, so
// replaying a delete twice reports not_found the second time and never
// writes a duplicate tombstone.
func (s *Service) ApplyMutations(ctx context.Context, owner models.Owner, mutations []Mutation) (*MutationBatchResult, error) {
	if len(mutations) > MaxMutations {
		return nil, fmt.Errorf("%w: at most %d mutations per batch", common.ErrValidation, MaxMutations)
	}

	results := make([]MutationResult, 0, len(mutations))
	for _, m := range mutations {
		results = append(results, s.applyOne(ctx, owner, m))
	}

	applied := 0
	for _, r := range results {
		if r.Status == StatusApplied {
			applied++
		}
	}
	return &MutationBatchResult{
		Results:      results,
		AppliedCount: applied,
		FailedCount:  len(results) - applied,
		ServerTime:   s.now(),
	}, nil
}

func (s *Service) applyOne(ctx context.Context, owner models.Owner, m Mutation) (res MutationResult) {
	res = MutationResult{OpID: m.OpID, Type: m.Type, NoteID: m.NoteID}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error(ctx, "panic applying mutation", "op_id", m.OpID, "panic", p)
			res.Status = StatusFailed
			res.Code = 500
			res.Message = fmt.Sprintf("panic: %v", p)
		}
	}()

	switch m.Type {
	case MutationUpdateNote:
		if m.Patch == nil {
			return invalid(res, "update_note requires patch")
		}
		if m.Patch.Empty() {
			return invalid(res, "update_note patch cannot be empty")
		}
		updatedAt, err := s.Update(ctx, m.NoteID, owner, *m.Patch)
		return outcome(res, updatedAt, err)

	case MutationSetFavorite:
		if m.IsFavorite == nil {
			return invalid(res, "set_favorite requires is_favorite")
		}
		updatedAt, err := s.SetFavorite(ctx, m.NoteID, owner, *m.IsFavorite)
		return outcome(res, updatedAt, err)

	case MutationDeleteNote:
		err := s.Delete(ctx, m.NoteID, owner)
		return outcome(res, time.Time{}, err)

	default:
		return invalid(res, fmt.Sprintf("unknown mutation type %q", m.Type))
	}
}

func invalid(res MutationResult, msg string) MutationResult {
	res.Status = StatusInvalid
	res.Code = 422
	res.Message = msg
	return res
}

func outcome(res MutationResult, updatedAt time.Time, err error) MutationResult {
	switch {
	case err == nil:
		res.Status = StatusApplied
		res.Code = 200
		if !updatedAt.IsZero() {
			res.UpdatedAt = &updatedAt
		}
	case errors.Is(err, common.ErrorNotFound):
		res.Status = StatusNotFound
		res.Code = 404
		res.Message = "note not found"
	default:
		res.Status = StatusFailed
		res.Code = 500
		res.Message = err.Error()
	}
	return res
}
