// Package notes provides the PostgreSQL-backed repository for note
// persistence, ownership-filtered reads and the sync delta query.
package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/server/models"
)

// PostgresRepository implements note storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const noteColumns = `id, user_id, device_id, title, category, tags,
	image_urls, image_filenames, image_sizes, original_text, structured_data,
	is_favorite, is_archived, created_at, updated_at`

// ownershipFilter resolves note ownership: a note belongs to its user_id if
// set, otherwise to its device_id. $n is the user key, $n+1 the device id.
func ownershipFilter(n int) string {
	return fmt.Sprintf("(user_id = $%d OR (user_id IS NULL AND device_id = $%d))", n, n+1)
}

func (r *PostgresRepository) Create(ctx context.Context, note *models.Note) error {
	tags, err := json.Marshal(orEmpty(note.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	urls, err := json.Marshal(orEmpty(note.ImageURLs))
	if err != nil {
		return fmt.Errorf("marshal image_urls: %w", err)
	}
	names, err := json.Marshal(orEmpty(note.ImageFilenames))
	if err != nil {
		return fmt.Errorf("marshal image_filenames: %w", err)
	}
	sizes, err := json.Marshal(orEmpty(note.ImageSizes))
	if err != nil {
		return fmt.Errorf("marshal image_sizes: %w", err)
	}
	structured := note.StructuredData
	if len(structured) == 0 {
		structured = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO notes (id, user_id, device_id, title, category, tags,
			image_urls, image_filenames, image_sizes, original_text, structured_data,
			is_favorite, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err = r.db.ExecContext(ctx, query,
		note.ID, note.UserID, note.DeviceID, note.Title, note.Category, tags,
		urls, names, sizes, note.OriginalText, []byte(structured),
		note.IsFavorite, note.IsArchived)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string, owner models.Owner) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE id = $1 AND ` + ownershipFilter(2) + ` AND is_archived = false`
	note, err := scanNote(r.db.QueryRowContext(ctx, query, id, owner.Key(), owner.DeviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select note: %w", err)
	}
	return note, nil
}

func (r *PostgresRepository) List(ctx context.Context, owner models.Owner, filter ListFilter) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE ` + ownershipFilter(1) + ` AND is_archived = false`
	args := []any{owner.Key(), owner.DeviceID}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.FavoriteOnly {
		query += " AND is_favorite = true"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Skip > 0 {
		args = append(args, filter.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.selectNotes(ctx, query, args...)
}

func (r *PostgresRepository) Search(ctx context.Context, owner models.Owner, search string) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE ` + ownershipFilter(1) + ` AND is_archived = false
		AND (title ILIKE $3 OR original_text ILIKE $3)
		ORDER BY created_at DESC`
	pattern := "%" + search + "%"
	return r.selectNotes(ctx, query, owner.Key(), owner.DeviceID, pattern)
}

func (r *PostgresRepository) Update(ctx context.Context, id string, owner models.Owner, patch models.NotePatch) (time.Time, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id, owner.Key(), owner.DeviceID}

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Tags != nil {
		tags, err := json.Marshal(patch.Tags)
		if err != nil {
			return time.Time{}, fmt.Errorf("marshal tags: %w", err)
		}
		add("tags", tags)
	}
	if patch.IsFavorite != nil {
		add("is_favorite", *patch.IsFavorite)
	}
	if patch.IsArchived != nil {
		add("is_archived", *patch.IsArchived)
	}

	query := `UPDATE notes SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1 AND ` + ownershipFilter(2) + ` AND is_archived = false
		RETURNING updated_at;`
	var updatedAt time.Time
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, common.ErrorNotFound
		}
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return updatedAt, nil
}

func (r *PostgresRepository) SetFavorite(ctx context.Context, id string, owner models.Owner, favorite bool) (time.Time, error) {
	query := `UPDATE notes SET is_favorite = $4, updated_at = now()
		WHERE id = $1 AND ` + ownershipFilter(2) + ` AND is_archived = false
		RETURNING updated_at;`
	var updatedAt time.Time
	if err := r.db.QueryRowContext(ctx, query, id, owner.Key(), owner.DeviceID, favorite).Scan(&updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, common.ErrorNotFound
		}
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return updatedAt, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, owner models.Owner) error {
	query := `DELETE FROM notes WHERE id = $1 AND ` + ownershipFilter(2) + `;`
	res, err := r.db.ExecContext(ctx, query, id, owner.Key(), owner.DeviceID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) SelectUpdatedBetween(ctx context.Context, owner models.Owner, since, until time.Time) ([]*models.NoteSummary, error) {
	query := `SELECT id, title, category, tags, image_urls, image_filenames,
		image_sizes, is_favorite, is_archived, created_at, updated_at
		FROM notes
		WHERE ` + ownershipFilter(1) + ` AND updated_at > $3 AND updated_at <= $4
		ORDER BY updated_at ASC`
	rows, err := r.db.QueryContext(ctx, query, owner.Key(), owner.DeviceID, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to select updated notes: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteSummary
	for rows.Next() {
		var (
			item  models.NoteSummary
			tags  []byte
			urls  []byte
			names []byte
			sizes []byte
		)
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Category, &tags, &urls, &names,
			&sizes, &item.IsFavorite, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := unmarshalColumns(tags, &item.Tags, urls, &item.ImageURLs, names, &item.ImageFilenames, sizes, &item.ImageSizes); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SelectByIDs(ctx context.Context, owner models.Owner, ids []string) ([]*models.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := []any{owner.Key(), owner.DeviceID}
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE ` + ownershipFilter(1) + ` AND id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at DESC`
	return r.selectNotes(ctx, query, args...)
}

func (r *PostgresRepository) selectNotes(ctx context.Context, query string, args ...any) ([]*models.Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var (
		item       models.Note
		userID     sql.NullString
		tags       []byte
		urls       []byte
		names      []byte
		sizes      []byte
		structured []byte
	)
	if err := row.Scan(
		&item.ID, &userID, &item.DeviceID, &item.Title, &item.Category, &tags,
		&urls, &names, &sizes, &item.OriginalText, &structured,
		&item.IsFavorite, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		item.UserID = &userID.String
	}
	if err := unmarshalColumns(tags, &item.Tags, urls, &item.ImageURLs, names, &item.ImageFilenames, sizes, &item.ImageSizes); err != nil {
		return nil, err
	}
	item.StructuredData = structured
	return &item, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// unmarshalColumns decodes alternating raw jsonb / target pairs.
func unmarshalColumns(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].([]byte)
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, pairs[i+1]); err != nil {
			return fmt.Errorf("unmarshal column: %w", err)
		}
	}
	return nil
}
