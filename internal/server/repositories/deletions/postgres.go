// Package deletions provides the PostgreSQL-backed repository for note
// deletion tombstones read by sync clients.
package deletions

import (
	"context"
	"fmt"
	"time"

	"github.com/cjbpq/ai-note-app/internal/dbx"
	"github.com/cjbpq/ai-note-app/internal/server/models"
)

// PostgresRepository implements tombstone storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, tombstone *models.DeletionLog) error {
	query := `
		INSERT INTO deletion_logs (id, note_id, user_id, deleted_at)
		VALUES ($1, $2, $3, $4);
	`
	_, err := r.db.ExecContext(ctx, query,
		tombstone.ID, tombstone.NoteID, tombstone.UserID, tombstone.DeletedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SelectBetween(ctx context.Context, owner models.Owner, since, until time.Time) ([]string, error) {
	query := `SELECT note_id FROM deletion_logs
		WHERE user_id = $1 AND deleted_at > $2 AND deleted_at <= $3
		ORDER BY deleted_at ASC`
	rows, err := r.db.QueryContext(ctx, query, owner.Key(), since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var noteID string
		if err := rows.Scan(&noteID); err != nil {
			return nil, err
		}
		result = append(result, noteID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
