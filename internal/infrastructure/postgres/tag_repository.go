package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
)

// TagRepository implements transaction.TagRepository for PostgreSQL.
type TagRepository struct {
	db *DB
}

func NewTagRepository(db *DB) *TagRepository {
	return &TagRepository{db: db}
}

// CreateTag creates a tag, or returns the existing one with the same name.
func (r *TagRepository) CreateTag(ctx context.Context, name string) (*transaction.Tag, error) {
	query := `
		INSERT INTO tags (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at
	`

	var t transaction.Tag
	err := r.db.QueryRowContext(ctx, query, uuid.NewString(), name).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return &t, nil
}

func (r *TagRepository) ListTags(ctx context.Context) ([]*transaction.Tag, error) {
	query := `SELECT id, name, created_at FROM tags ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*transaction.Tag
	for rows.Next() {
		var t transaction.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

func (r *TagRepository) DeleteTag(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return transaction.ErrTagNotFound
	}
	return nil
}
