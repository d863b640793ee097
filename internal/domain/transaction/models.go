package transaction

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrAlreadySplit = errors.New("transaction is already split")
	ErrSplitChild   = errors.New("a split child cannot be split again")
)

// Transaction is one ledger entry. Provider-sourced rows carry a
// PlaidTransactionID unique per account; synthetic split children have none
// and are never matched against incoming provider deltas.
type Transaction struct {
	ID                 string    `json:"id"`
	PlaidTransactionID *string   `json:"plaidTransactionId,omitempty"`
	AccountID          string    `json:"accountId"`
	Amount             float64   `json:"amount"`
	ISOCurrencyCode    string    `json:"isoCurrencyCode"`
	Date               time.Time `json:"date"`
	Name               string    `json:"name"`
	MerchantName       *string   `json:"merchantName,omitempty"`
	Pending            bool      `json:"pending"`
	Category           *string   `json:"category,omitempty"`
	Subcategory        *string   `json:"subcategory,omitempty"`
	Notes              *string   `json:"notes,omitempty"`

	// Split linkage. IsSplit means this transaction has been divided into
	// children and its own amount is inert for reporting; consuming queries
	// must filter IsSplit = false to avoid double-counting. Children point
	// back through both ParentTransactionID and OriginalTransactionID (equal
	// for the single level of nesting supported).
	IsSplit               bool    `json:"isSplit"`
	ParentTransactionID   *string `json:"parentTransactionId,omitempty"`
	OriginalTransactionID *string `json:"originalTransactionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpsertParams carries a provider-sourced row. The upsert key is
// (AccountID, PlaidTransactionID): re-applying the same row refreshes the
// mutable fields and is otherwise a no-op.
type UpsertParams struct {
	PlaidTransactionID string
	AccountID          string
	Amount             float64
	ISOCurrencyCode    string
	Date               time.Time
	Name               string
	MerchantName       *string
	Pending            bool
	Category           *string
	Subcategory        *string
}

// UpdateParams are the user-editable fields. Nil means "leave unchanged".
type UpdateParams struct {
	Category    *string
	Subcategory *string
	Notes       *string
}

// SplitChildParams describes one synthetic child created by a split. The
// child carries the parent's merchant; account, currency and date are copied
// by the repository from the parent row itself.
type SplitChildParams struct {
	ID           string
	Amount       float64
	Name         string
	MerchantName *string
	Category     *string
	Subcategory  *string
	Notes        *string
}

// Repository persists Transactions. CreateSplit must be atomic: it marks the
// parent as split and inserts all children in one storage transaction, and
// must fail with ErrAlreadySplit if the parent was split concurrently.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Transaction, error)
	GetByPlaidTransactionID(ctx context.Context, plaidTransactionID string) (*Transaction, error)
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
	ListChildren(ctx context.Context, parentID string) ([]*Transaction, error)
	CountByItemID(ctx context.Context, itemID int64) (int, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Transaction, error)
	SetCategory(ctx context.Context, id string, category, subcategory string) error
	CreateSplit(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error)
	SetTransactionTags(ctx context.Context, transactionID string, tagIDs []string) error
	GetTransactionTags(ctx context.Context, transactionID string) ([]string, error)
}
