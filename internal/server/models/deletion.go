package models

import "time"

// DeletionLog is a tombstone: a durable record that a note was deleted,
// read by sync clients. Rows are immutable once written, and every physical
// note deletion writes exactly one tombstone in the same transaction.
type DeletionLog struct {
	ID        string
	NoteID    string
	UserID    string
	DeletedAt time.Time
}
