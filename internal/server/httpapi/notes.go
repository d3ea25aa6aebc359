package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/notesvc"
	"github.com/cjbpq/ai-note-app/internal/server/repositories/notes"
)

// defaultCategory is applied when the client leaves the category blank.
const defaultCategory = "学习笔记"

type noteDTO struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	Tags           []string        `json:"tags"`
	ImageURLs      []string        `json:"image_urls"`
	ImageFilenames []string        `json:"image_filenames"`
	ImageSizes     []int64         `json:"image_sizes"`
	OriginalText   string          `json:"original_text"`
	StructuredData json.RawMessage `json:"structured_data"`
	IsFavorite     bool            `json:"is_favorite"`
	IsArchived     bool            `json:"is_archived"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toNoteDTO(n *models.Note) noteDTO {
	return noteDTO{
		ID:             n.ID,
		Title:          n.Title,
		Category:       n.Category,
		Tags:           n.Tags,
		ImageURLs:      n.ImageURLs,
		ImageFilenames: n.ImageFilenames,
		ImageSizes:     n.ImageSizes,
		OriginalText:   n.OriginalText,
		StructuredData: n.StructuredData,
		IsFavorite:     n.IsFavorite,
		IsArchived:     n.IsArchived,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func toNoteDTOs(ns []*models.Note) []noteDTO {
	out := make([]noteDTO, 0, len(ns))
	for _, n := range ns {
		out = append(out, toNoteDTO(n))
	}
	return out
}

type summaryDTO struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags"`
	ImageURLs      []string  `json:"image_urls"`
	ImageFilenames []string  `json:"image_filenames"`
	ImageSizes     []int64   `json:"image_sizes"`
	IsFavorite     bool      `json:"is_favorite"`
	IsArchived     bool      `json:"is_archived"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// handleSync returns the incremental delta since the client watermark.
// A missing or unparsable since yields the full snapshot.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	owner := callerOwner(r)

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "since must be RFC3339")
			return
		}
		since = parsed
	}

	result, err := s.notes.Sync(r.Context(), owner, since)
	if err != nil {
		mapError(w, err)
		return
	}

	updated := make([]summaryDTO, 0, len(result.Updated))
	for _, n := range result.Updated {
		updated = append(updated, summaryDTO{
			ID:             n.ID,
			Title:          n.Title,
			Category:       n.Category,
			Tags:           n.Tags,
			ImageURLs:      n.ImageURLs,
			ImageFilenames: n.ImageFilenames,
			ImageSizes:     n.ImageSizes,
			IsFavorite:     n.IsFavorite,
			IsArchived:     n.IsArchived,
			CreatedAt:      n.CreatedAt,
			UpdatedAt:      n.UpdatedAt,
		})
	}
	deleted := result.DeletedIDs
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated":     updated,
		"deleted_ids": deleted,
		"server_time": result.ServerTime,
	})
}

func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NoteIDs []string `json:"note_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	found, err := s.notes.BatchGet(r.Context(), callerOwner(r), req.NoteIDs)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": toNoteDTOs(found),
		"total": len(found),
	})
}

type patchDTO struct {
	Title      *string  `json:"title"`
	Category   *string  `json:"category"`
	Tags       []string `json:"tags"`
	IsFavorite *bool    `json:"is_favorite"`
	IsArchived *bool    `json:"is_archived"`
}

func (p *patchDTO) toModel() *models.NotePatch {
	if p == nil {
		return nil
	}
	return &models.NotePatch{
		Title:      p.Title,
		Category:   p.Category,
		Tags:       p.Tags,
		IsFavorite: p.IsFavorite,
		IsArchived: p.IsArchived,
	}
}

type mutationDTO struct {
	OpID       string    `json:"op_id"`
	Type       string    `json:"type"`
	NoteID     string    `json:"note_id"`
	Patch      *patchDTO `json:"patch"`
	IsFavorite *bool     `json:"is_favorite"`
}

type mutationResultDTO struct {
	OpID      string     `json:"op_id"`
	Type      string     `json:"type"`
	NoteID    string     `json:"note_id"`
	Status    string     `json:"status"`
	Code      int        `json:"code"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// handleMutations replays an ordered batch of offline mutations. The batch
// always answers 200; per-item outcomes carry their own status codes.
func (s *Server) handleMutations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mutations []mutationDTO `json:"mutations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	mutations := make([]notesvc.Mutation, 0, len(req.Mutations))
	for _, m := range req.Mutations {
		mutations = append(mutations, notesvc.Mutation{
			OpID:       m.OpID,
			Type:       m.Type,
			NoteID:     m.NoteID,
			Patch:      m.Patch.toModel(),
			IsFavorite: m.IsFavorite,
		})
	}

	batch, err := s.notes.ApplyMutations(r.Context(), callerOwner(r), mutations)
	if err != nil {
		mapError(w, err)
		return
	}

	results := make([]mutationResultDTO, 0, len(batch.Results))
	for _, res := range batch.Results {
		results = append(results, mutationResultDTO{
			OpID:      res.OpID,
			Type:      res.Type,
			NoteID:    res.NoteID,
			Status:    res.Status,
			Code:      res.Code,
			Message:   res.Message,
			UpdatedAt: res.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":       results,
		"applied_count": batch.AppliedCount,
		"failed_count":  batch.FailedCount,
		"server_time":   batch.ServerTime,
	})
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := notes.ListFilter{
		Category:     q.Get("category"),
		FavoriteOnly: q.Get("favorites") == "true",
		Skip:         atoiOr(q.Get("skip"), 0),
		Limit:        atoiOr(q.Get("limit"), 50),
	}
	found, err := s.notes.List(r.Context(), callerOwner(r), filter)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": toNoteDTOs(found)})
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "q is required")
		return
	}
	found, err := s.notes.Search(r.Context(), callerOwner(r), query)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": toNoteDTOs(found)})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.notes.Get(r.Context(), r.PathValue("id"), callerOwner(r))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteDTO(note))
}

// handleCreateNote stores a fully client-authored note, bypassing the image
// pipeline. Offline-first clients use this for notes typed by hand.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	owner := callerOwner(r)

	var req struct {
		Title          string          `json:"title"`
		Category       string          `json:"category"`
		Tags           []string        `json:"tags"`
		OriginalText   string          `json:"original_text"`
		StructuredData json.RawMessage `json:"structured_data"`
		IsFavorite     bool            `json:"is_favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if req.Title == "" && req.OriginalText == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "title or original_text is required")
		return
	}
	if req.Title == "" {
		req.Title = "未命名笔记"
	}
	if req.Category == "" {
		req.Category = defaultCategory
	}

	note := &models.Note{
		Title:          req.Title,
		Category:       req.Category,
		Tags:           req.Tags,
		OriginalText:   req.OriginalText,
		StructuredData: req.StructuredData,
		IsFavorite:     req.IsFavorite,
		DeviceID:       owner.DeviceID,
	}
	if owner.UserID != "" {
		note.UserID = &owner.UserID
	}

	if err := s.notes.Create(r.Context(), note); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": note.ID, "category": note.Category})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var patch patchDTO
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	model := patch.toModel()
	if model.Empty() {
		writeError(w, http.StatusBadRequest, "validation_error", "empty patch")
		return
	}
	updatedAt, err := s.notes.Update(r.Context(), r.PathValue("id"), callerOwner(r), *model)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "updated_at": updatedAt})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Delete(r.Context(), r.PathValue("id"), callerOwner(r)); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "deleted": true})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsFavorite bool `json:"is_favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	updatedAt, err := s.notes.SetFavorite(r.Context(), r.PathValue("id"), callerOwner(r), req.IsFavorite)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": r.PathValue("id"), "is_favorite": req.IsFavorite, "updated_at": updatedAt,
	})
}

func atoiOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
