// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	JobReceived  JobStatus = "RECEIVED"
	JobStored    JobStatus = "STORED"
	JobQueued    JobStatus = "QUEUED"
	JobAIPending JobStatus = "AI_PENDING"
	JobAIDone    JobStatus = "AI_DONE"
	JobPersisted JobStatus = "PERSISTED"
	JobFailed    JobStatus = "FAILED"
)

// successors is the fixed transition graph of the success path.
// FAILED is reachable from every non-terminal state and handled in CanTransition.
var successors = map[JobStatus]JobStatus{
	JobReceived:  JobStored,
	JobStored:    JobQueued,
	JobQueued:    JobAIPending,
	JobAIPending: JobAIDone,
	JobAIDone:    JobPersisted,
}

// Terminal reports whether no further transition is valid from s.
func (s JobStatus) Terminal() bool {
	return s == JobPersisted || s == JobFailed
}

// CanTransition reports whether next is a valid successor of s.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobFailed {
		return true
	}
	return successors[s] == next
}

// ErrorStage tags a job failure record with the pipeline stage it came from.
type ErrorStage string

const (
	StageAdmission    ErrorStage = "ADMISSION"
	StageStorage      ErrorStage = "STORAGE"
	StageCollaborator ErrorStage = "COLLABORATOR"
	StageUnexpected   ErrorStage = "UNEXPECTED"
)

// JobError is one append-only failure record on a job.
type JobError struct {
	Stage  ErrorStage `json:"stage"`
	Detail string     `json:"detail"`
	At     time.Time  `json:"at"`
}

// FileMeta describes one uploaded file as accepted by the ingestion gateway.
type FileMeta struct {
	OriginalName string `json:"original_name"`
	Extension    string `json:"extension"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
	Checksum     string `json:"checksum"`
}

// Job tracks a unit of work from ingestion through AI processing to
// note persistence. Jobs are never deleted; failed ones stay inspectable.
//
// Invariant: NoteID is set if and only if Status is JobPersisted.
type Job struct {
	ID        string
	UserID    *string
	DeviceID  string
	Source    string
	Status    JobStatus
	FileMeta  []FileMeta
	Storage   []StorageDescriptor
	RawResult json.RawMessage
	AIResult  json.RawMessage
	ErrorLog  []JobError
	NoteID    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owner returns the ownership identity of the job.
func (j *Job) Owner() Owner {
	o := Owner{DeviceID: j.DeviceID}
	if j.UserID != nil {
		o.UserID = *j.UserID
	}
	return o
}
