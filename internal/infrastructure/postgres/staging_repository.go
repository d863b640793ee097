package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/reconnect"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/crypto"
)

// StagingRepository implements reconnect.Store for PostgreSQL. Staged access
// tokens are encrypted with the same key as item tokens, so a confirmed swap
// can move the stored ciphertext straight into the items table.
type StagingRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

func NewStagingRepository(db *DB, encryptor *crypto.Encryptor) *StagingRepository {
	return &StagingRepository{db: db, encryptor: encryptor}
}

func (r *StagingRepository) CreateStaging(ctx context.Context, staging *reconnect.Staging) error {
	encrypted, err := r.encryptor.Encrypt(staging.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt staged token: %w", err)
	}

	accounts, err := json.Marshal(staging.Accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal staged accounts: %w", err)
	}

	query := `
		INSERT INTO reconnection_staging (
			token, existing_item_id, plaid_item_id, access_token,
			institution_id, institution_name, accounts, transaction_count, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		staging.Token, staging.ExistingItemID, staging.PlaidItemID, encrypted,
		staging.InstitutionID, staging.InstitutionName, accounts,
		staging.TransactionCount, staging.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create staging: %w", err)
	}
	return nil
}

// ConfirmReconnection consumes the staging row and performs the item swap in
// one transaction. DELETE ... RETURNING is what makes consumption exactly
// once: a concurrent confirmation with the same token sees zero rows. An
// expired row is evicted and reported as expired.
func (r *StagingRepository) ConfirmReconnection(ctx context.Context, token string, now time.Time) (*reconnect.ConfirmResult, error) {
	var result reconnect.ConfirmResult
	expired := false

	err := r.db.withTx(ctx, "db.ConfirmReconnection", func(tx *sql.Tx) error {
		var existingItemID int64
		var plaidItemID, encryptedToken string
		var institutionID, institutionName sql.NullString
		var accountsJSON []byte
		var expiresAt time.Time

		err := tx.QueryRowContext(ctx, `
			DELETE FROM reconnection_staging
			WHERE token = $1
			RETURNING existing_item_id, plaid_item_id, access_token,
			          institution_id, institution_name, accounts, expires_at
		`, token).Scan(
			&existingItemID, &plaidItemID, &encryptedToken,
			&institutionID, &institutionName, &accountsJSON, &expiresAt,
		)
		if err == sql.ErrNoRows {
			return reconnect.ErrStagingExpired
		}
		if err != nil {
			return fmt.Errorf("failed to consume staging: %w", err)
		}

		if now.After(expiresAt) {
			// Commit so the dead row is evicted, but refuse the swap.
			expired = true
			return nil
		}

		var staged []reconnect.StagedAccount
		if err := json.Unmarshal(accountsJSON, &staged); err != nil {
			return fmt.Errorf("failed to unmarshal staged accounts: %w", err)
		}

		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM transactions t
			JOIN accounts a ON a.id = t.account_id
			WHERE a.item_id = $1
		`, existingItemID).Scan(&result.TransactionsDeleted)
		if err != nil {
			return fmt.Errorf("failed to count doomed transactions: %w", err)
		}

		// Accounts and transactions go with the item via FK cascade.
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, existingItemID); err != nil {
			return fmt.Errorf("failed to delete replaced item: %w", err)
		}

		var newItemID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO items (plaid_item_id, access_token, institution_id, institution_name)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, plaidItemID, encryptedToken, institutionID, institutionName).Scan(&newItemID)
		if err != nil {
			return fmt.Errorf("failed to create replacement item: %w", err)
		}

		for _, acc := range staged {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (
					id, item_id, plaid_account_id, name, official_name, mask, account_type, subtype,
					current_balance, available_balance, iso_currency_code
				)
				VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, newItemID, acc.PlaidAccountID, acc.Name, acc.OfficialName, acc.Mask,
				acc.AccountType, acc.Subtype, acc.CurrentBalance, acc.AvailableBalance,
				acc.ISOCurrencyCode,
			)
			if err != nil {
				return fmt.Errorf("failed to link account %s: %w", acc.PlaidAccountID, err)
			}
		}
		result.AccountsLinked = len(staged)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, reconnect.ErrStagingExpired
	}
	return &result, nil
}

// DeleteExpiredStaging sweeps staged reconnections past their TTL. They hold
// live credentials, so they are not allowed to linger.
func (r *StagingRepository) DeleteExpiredStaging(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reconnection_staging WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep staging: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}
