package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository and sync.Store for
// PostgreSQL.
type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, plaid_transaction_id, account_id, amount, iso_currency_code, transaction_date,
	       name, merchant_name, pending, category, subcategory, notes,
	       is_split, parent_transaction_id, original_transaction_id, created_at, updated_at`

// upsertTransactionQuery is keyed on (account_id, plaid_transaction_id) so
// re-applying the same provider delta refreshes the row instead of
// duplicating it. User edits (category, subcategory, notes) and split state
// are never overwritten by the provider.
const upsertTransactionQuery = `
	INSERT INTO transactions (
		id, plaid_transaction_id, account_id, amount, iso_currency_code, transaction_date,
		name, merchant_name, pending, category, subcategory
	)
	VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (account_id, plaid_transaction_id)
	DO UPDATE SET
		amount = EXCLUDED.amount,
		iso_currency_code = EXCLUDED.iso_currency_code,
		transaction_date = EXCLUDED.transaction_date,
		name = EXCLUDED.name,
		merchant_name = EXCLUDED.merchant_name,
		pending = EXCLUDED.pending,
		updated_at = CURRENT_TIMESTAMP
`

// ApplyDelta applies one accumulated sync delta and advances the item's
// cursor in a single transaction. If anything fails the cursor stays put, so
// the next run re-fetches the same delta and the upserts replay cleanly.
func (r *TransactionRepository) ApplyDelta(ctx context.Context, params sync.ApplyDeltaParams) error {
	return r.db.withTx(ctx, "db.ApplyDelta", func(tx *sql.Tx) error {
		for _, up := range params.Upserts {
			_, err := tx.ExecContext(ctx, upsertTransactionQuery,
				up.PlaidTransactionID, up.AccountID, up.Amount, up.ISOCurrencyCode,
				up.Date, up.Name, up.MerchantName, up.Pending, up.Category, up.Subcategory,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert transaction %s: %w", up.PlaidTransactionID, err)
			}
		}

		if len(params.RemovedIDs) > 0 {
			// Split children hang off the parent row and go with it (FK cascade).
			_, err := tx.ExecContext(ctx,
				`DELETE FROM transactions WHERE plaid_transaction_id = ANY($1)`,
				pq.Array(params.RemovedIDs),
			)
			if err != nil {
				return fmt.Errorf("failed to remove transactions: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE items SET cursor = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
			params.NextCursor, params.ItemID,
		)
		if err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("cursor update matched no item %d", params.ItemID)
		}
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *TransactionRepository) GetByPlaidTransactionID(ctx context.Context, plaidTransactionID string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE plaid_transaction_id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, plaidTransactionID))
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY transaction_date DESC, created_at DESC
		LIMIT $2 OFFSET $3`
	return r.queryTransactions(ctx, query, accountID, limit, offset)
}

func (r *TransactionRepository) ListChildren(ctx context.Context, parentID string) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE parent_transaction_id = $1
		ORDER BY created_at ASC, id ASC`
	return r.queryTransactions(ctx, query, parentID)
}

func (r *TransactionRepository) CountByItemID(ctx context.Context, itemID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.item_id = $1
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, itemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Update modifies the user-editable fields. Nil params leave the existing
// value untouched.
func (r *TransactionRepository) Update(ctx context.Context, id string, params transaction.UpdateParams) (*transaction.Transaction, error) {
	query := `
		UPDATE transactions
		SET category = COALESCE($2, category),
		    subcategory = COALESCE($3, subcategory),
		    notes = COALESCE($4, notes),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING ` + transactionColumns

	return scanTransaction(r.db.QueryRowContext(ctx, query, id, params.Category, params.Subcategory, params.Notes))
}

// SetCategory writes an automatic classification, but only if the user has
// not categorized the transaction already.
func (r *TransactionRepository) SetCategory(ctx context.Context, id string, category, subcategory string) error {
	query := `
		UPDATE transactions
		SET category = $2, subcategory = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND category IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, id, category, subcategory); err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	return nil
}

// CreateSplit marks the parent as split and inserts all children in one
// transaction. The is_split guard in the UPDATE is what makes a concurrent
// double split lose: the second transaction matches zero rows and fails with
// ErrAlreadySplit.
func (r *TransactionRepository) CreateSplit(ctx context.Context, parentID string, children []transaction.SplitChildParams) ([]*transaction.Transaction, error) {
	var created []*transaction.Transaction

	err := r.db.withTx(ctx, "db.CreateSplit", func(tx *sql.Tx) error {
		var accountID, currency string
		var date sql.NullTime
		err := tx.QueryRowContext(ctx, `
			UPDATE transactions
			SET is_split = TRUE, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND is_split = FALSE AND parent_transaction_id IS NULL
			RETURNING account_id, iso_currency_code, transaction_date
		`, parentID).Scan(&accountID, &currency, &date)

		if err == sql.ErrNoRows {
			// The guard matched nothing: missing row, already split, or a
			// synthetic child (which can never be split again).
			var isChild bool
			err := tx.QueryRowContext(ctx,
				`SELECT parent_transaction_id IS NOT NULL FROM transactions WHERE id = $1`, parentID,
			).Scan(&isChild)
			if err == sql.ErrNoRows {
				return transaction.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check parent: %w", err)
			}
			if isChild {
				return transaction.ErrSplitChild
			}
			return transaction.ErrAlreadySplit
		}
		if err != nil {
			return fmt.Errorf("failed to mark parent as split: %w", err)
		}

		for _, child := range children {
			row := tx.QueryRowContext(ctx, `
				INSERT INTO transactions (
					id, account_id, amount, iso_currency_code, transaction_date, name,
					merchant_name, category, subcategory, notes, parent_transaction_id, original_transaction_id
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
				RETURNING `+transactionColumns, child.ID, accountID, child.Amount, currency, date.Time,
				child.Name, child.MerchantName, child.Category, child.Subcategory, child.Notes, parentID,
			)
			c, err := scanTransaction(row)
			if err != nil {
				return fmt.Errorf("failed to insert split child: %w", err)
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetTransactionTags replaces the transaction's tag set.
func (r *TransactionRepository) SetTransactionTags(ctx context.Context, transactionID string, tagIDs []string) error {
	return r.db.withTx(ctx, "db.SetTransactionTags", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transaction_tags WHERE transaction_id = $1`, transactionID,
		); err != nil {
			return fmt.Errorf("failed to clear tags: %w", err)
		}

		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transaction_tags (transaction_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				transactionID, tagID,
			); err != nil {
				return fmt.Errorf("failed to tag transaction: %w", err)
			}
		}
		return nil
	})
}

func (r *TransactionRepository) GetTransactionTags(ctx context.Context, transactionID string) ([]string, error) {
	query := `SELECT tag_id FROM transaction_tags WHERE transaction_id = $1 ORDER BY tag_id`

	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction tags: %w", err)
	}
	defer rows.Close()

	var tagIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tag id: %w", err)
		}
		tagIDs = append(tagIDs, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tagIDs, nil
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

func scanTransaction(row scanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var plaidID, merchant, category, subcategory, notes, parentID, originalID sql.NullString

	err := row.Scan(
		&t.ID, &plaidID, &t.AccountID, &t.Amount, &t.ISOCurrencyCode, &t.Date,
		&t.Name, &merchant, &t.Pending, &category, &subcategory, &notes,
		&t.IsSplit, &parentID, &originalID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, transaction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if plaidID.Valid {
		t.PlaidTransactionID = &plaidID.String
	}
	if merchant.Valid {
		t.MerchantName = &merchant.String
	}
	if category.Valid {
		t.Category = &category.String
	}
	if subcategory.Valid {
		t.Subcategory = &subcategory.String
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	if parentID.Valid {
		t.ParentTransactionID = &parentID.String
	}
	if originalID.Valid {
		t.OriginalTransactionID = &originalID.String
	}
	return &t, nil
}
