package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/account"
)

// AccountRepository implements account.Repository for PostgreSQL.
type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, item_id, plaid_account_id, name, official_name, mask, account_type, subtype,
	       current_balance, available_balance, iso_currency_code, created_at, updated_at`

// Upsert inserts or refreshes an account keyed on the provider's account id.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertAccountParams) (*account.Account, error) {
	query := `
		INSERT INTO accounts (
			id, item_id, plaid_account_id, name, official_name, mask, account_type, subtype,
			current_balance, available_balance, iso_currency_code
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (plaid_account_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			mask = EXCLUDED.mask,
			account_type = EXCLUDED.account_type,
			subtype = EXCLUDED.subtype,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			iso_currency_code = EXCLUDED.iso_currency_code,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + accountColumns

	return scanAccount(r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.ItemID, params.PlaidAccountID, params.Name,
		params.OfficialName, params.Mask, params.AccountType, params.Subtype,
		params.CurrentBalance, params.AvailableBalance, params.ISOCurrencyCode,
	))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByPlaidAccountID(ctx context.Context, plaidAccountID string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE plaid_account_id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, plaidAccountID))
}

func (r *AccountRepository) ListByItemID(ctx context.Context, itemID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE item_id = $1 ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row scanner) (*account.Account, error) {
	var acc account.Account
	var officialName, mask sql.NullString
	var current, available sql.NullFloat64

	err := row.Scan(
		&acc.ID, &acc.ItemID, &acc.PlaidAccountID, &acc.Name,
		&officialName, &mask, &acc.AccountType, &acc.Subtype,
		&current, &available, &acc.ISOCurrencyCode,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if officialName.Valid {
		acc.OfficialName = &officialName.String
	}
	if mask.Valid {
		acc.Mask = &mask.String
	}
	if current.Valid {
		acc.CurrentBalance = &current.Float64
	}
	if available.Valid {
		acc.AvailableBalance = &available.Float64
	}
	return &acc, nil
}
