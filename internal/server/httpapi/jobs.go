package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/pipeline"
)

type createJobResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	FileURLs    []string  `json:"file_urls"`
	QueuedAt    time.Time `json:"queued_at"`
	ProgressURL string    `json:"progress_url"`
}

// handleCreateJob accepts a multipart batch, creates and stores the job, and
// enqueues it for background processing. The client gets 202 as soon as the
// job is safely queued.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	owner := callerOwner(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	category := r.FormValue("category")
	if category == "" {
		category = defaultCategory
	}
	tags := splitTags(r.FormValue("tags"))
	source := r.FormValue("source")
	if source == "" {
		source = "upload"
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}

	files := make([]pipeline.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("cannot read file %q", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("cannot read file %q", fh.Filename))
			return
		}
		files = append(files, pipeline.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	job, err := s.gateway.CreateJob(r.Context(), owner, source, files)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := s.gateway.Enqueue(r.Context(), job, category, tags); err != nil {
		mapError(w, err)
		return
	}

	urls := make([]string, 0, len(job.Storage))
	for _, d := range job.Storage {
		urls = append(urls, d.URL)
	}
	writeJSON(w, http.StatusAccepted, createJobResponse{
		JobID:       job.ID,
		Status:      "ENQUEUED",
		FileURLs:    urls,
		QueuedAt:    time.Now().UTC(),
		ProgressURL: "/api/v1/jobs/" + job.ID + "/stream",
	})
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type jobSnapshot struct {
	ID        string            `json:"id"`
	Status    models.JobStatus  `json:"status"`
	UpdatedAt time.Time         `json:"updated_at"`
	NoteID    *string           `json:"note_id"`
	ErrorLog  []models.JobError `json:"error_log"`
}

func snapshotOf(job *models.Job) jobSnapshot {
	return jobSnapshot{
		ID:        job.ID,
		Status:    job.Status,
		UpdatedAt: job.UpdatedAt,
		NoteID:    job.NoteID,
		ErrorLog:  job.ErrorLog,
	}
}

// jobDTO is the full job record: everything the server tracks about the
// upload, including retained raw collaborator output. The stream endpoint
// sends the slim jobSnapshot instead.
type jobDTO struct {
	ID        string                     `json:"id"`
	Status    models.JobStatus           `json:"status"`
	Source    string                     `json:"source"`
	FileMeta  []models.FileMeta          `json:"file_meta"`
	Storage   []models.StorageDescriptor `json:"storage"`
	RawResult json.RawMessage            `json:"raw_result"`
	AIResult  json.RawMessage            `json:"ai_result"`
	ErrorLog  []models.JobError          `json:"error_log"`
	NoteID    *string                    `json:"note_id"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.loadAuthorizedJob(r)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobDTO{
		ID:        job.ID,
		Status:    job.Status,
		Source:    job.Source,
		FileMeta:  job.FileMeta,
		Storage:   job.Storage,
		RawResult: job.RawResult,
		AIResult:  job.AIResult,
		ErrorLog:  job.ErrorLog,
		NoteID:    job.NoteID,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
}

func (s *Server) loadAuthorizedJob(r *http.Request) (*models.Job, error) {
	id := r.PathValue("id")
	job, err := s.gateway.GetJob(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := authorizeJob(job, callerOwner(r)); err != nil {
		return nil, err
	}
	return job, nil
}

// handleStreamJob serves job progress as server-sent events. The job row is
// polled and a snapshot is emitted only when it differs from the previous
// one; the stream closes after a terminal snapshot. Ownership is
// re-checked on every poll in case the job is claimed mid-stream.
func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	if _, err := s.loadAuthorizedJob(r); err != nil {
		mapError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var last []byte
	emit := func() (done bool) {
		job, err := s.loadAuthorizedJob(r)
		if err != nil {
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			return true
		}
		payload, err := json.Marshal(snapshotOf(job))
		if err != nil {
			return true
		}
		if string(payload) != string(last) {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			last = payload
		}
		return job.Status.Terminal()
	}

	if emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if emit() {
				return
			}
		}
	}
}

// handleReloadPrompts re-reads the prompt profile file. Registered users
// only; device-only callers cannot poke server configuration.
func (s *Server) handleReloadPrompts(w http.ResponseWriter, r *http.Request) {
	if callerOwner(r).Anonymous() {
		mapError(w, common.ErrorUnauthorized)
		return
	}
	if err := s.registry.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
