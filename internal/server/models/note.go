package models

import (
	"encoding/json"
	"time"
)

// Note stores one AI-generated structured note. Images are kept as parallel
// arrays (urls/filenames/sizes) supporting 1..N source images.
type Note struct {
	ID             string
	UserID         *string
	DeviceID       string
	Title          string
	Category       string
	Tags           []string
	ImageURLs      []string
	ImageFilenames []string
	ImageSizes     []int64
	OriginalText   string
	StructuredData json.RawMessage
	IsFavorite     bool
	IsArchived     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NoteSummary is the lightweight projection returned by the sync delta query.
// Large fields (original text, structured data) are deliberately excluded.
type NoteSummary struct {
	ID             string
	Title          string
	Category       string
	Tags           []string
	ImageURLs      []string
	ImageFilenames []string
	ImageSizes     []int64
	IsFavorite     bool
	IsArchived     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotePatch is a partial update; nil fields are left untouched.
type NotePatch struct {
	Title      *string
	Category   *string
	Tags       []string
	IsFavorite *bool
	IsArchived *bool
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.Tags == nil &&
		p.IsFavorite == nil && p.IsArchived == nil
}
