package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/crypto"
)

// ItemRepository implements item.Repository for PostgreSQL. Access tokens are
// encrypted before they touch the database and decrypted on the way out.
type ItemRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

func NewItemRepository(db *DB, encryptor *crypto.Encryptor) *ItemRepository {
	return &ItemRepository{db: db, encryptor: encryptor}
}

const itemColumns = `id, plaid_item_id, access_token, cursor, status, institution_id, institution_name, created_at, updated_at`

func (r *ItemRepository) Create(ctx context.Context, params item.CreateItemParams) (*item.Item, error) {
	encrypted, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO items (plaid_item_id, access_token, institution_id, institution_name)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + itemColumns

	return r.scanItem(r.db.QueryRowContext(
		ctx, query,
		params.PlaidItemID, encrypted, params.InstitutionID, params.InstitutionName,
	))
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return r.scanItem(r.db.QueryRowContext(ctx, query, id))
}

func (r *ItemRepository) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE plaid_item_id = $1`
	return r.scanItem(r.db.QueryRowContext(ctx, query, plaidItemID))
}

func (r *ItemRepository) List(ctx context.Context) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY created_at DESC`
	return r.queryItems(ctx, query)
}

func (r *ItemRepository) ListByStatus(ctx context.Context, status item.Status) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE status = $1 ORDER BY created_at DESC`
	return r.queryItems(ctx, query, status)
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, id int64, status item.Status) error {
	query := `UPDATE items SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return item.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *ItemRepository) scanItem(row scanner) (*item.Item, error) {
	var it item.Item
	var encrypted string
	var cursor, institutionID, institutionName sql.NullString

	err := row.Scan(
		&it.ID, &it.PlaidItemID, &encrypted, &cursor, &it.Status,
		&institutionID, &institutionName, &it.CreatedAt, &it.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, item.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	it.AccessToken, err = r.encryptor.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	if cursor.Valid {
		it.Cursor = &cursor.String
	}
	if institutionID.Valid {
		it.InstitutionID = &institutionID.String
	}
	if institutionName.Valid {
		it.InstitutionName = &institutionName.String
	}
	return &it, nil
}

func (r *ItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*item.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
