package account

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("account not found")

type Account struct {
	ID               string    `json:"id"`
	ItemID           int64     `json:"itemId"`
	PlaidAccountID   string    `json:"plaidAccountId"`
	Name             string    `json:"name"`
	OfficialName     *string   `json:"officialName,omitempty"`
	Mask             *string   `json:"mask,omitempty"`
	AccountType      string    `json:"type"`
	Subtype          string    `json:"subtype"`
	CurrentBalance   *float64  `json:"currentBalance,omitempty"`
	AvailableBalance *float64  `json:"availableBalance,omitempty"`
	ISOCurrencyCode  string    `json:"isoCurrencyCode"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type UpsertAccountParams struct {
	ItemID           int64
	PlaidAccountID   string
	Name             string
	OfficialName     *string
	Mask             *string
	AccountType      string
	Subtype          string
	CurrentBalance   *float64
	AvailableBalance *float64
	ISOCurrencyCode  string
}

// Repository persists Accounts. Upsert is keyed on the provider's account id;
// accounts are deleted only when their owning Item is removed (cascade).
type Repository interface {
	Upsert(ctx context.Context, params UpsertAccountParams) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByPlaidAccountID(ctx context.Context, plaidAccountID string) (*Account, error)
	ListByItemID(ctx context.Context, itemID int64) ([]*Account, error)
}
