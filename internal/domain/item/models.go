package item

import (
	"context"
	"errors"
	"time"
)

// Status describes the connection health of an Item.
type Status string

const (
	StatusActive            Status = "ACTIVE"
	StatusLoginRequired     Status = "ITEM_LOGIN_REQUIRED"
	StatusPendingExpiration Status = "PENDING_EXPIRATION"
)

// ParseStatus normalizes a provider-reported status string. The provider
// reports login failures as either "ERROR" or "ITEM_LOGIN_REQUIRED";
// both map to StatusLoginRequired.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusLoginRequired, StatusPendingExpiration:
		return Status(s), true
	}
	if s == "ERROR" {
		return StatusLoginRequired, true
	}
	return "", false
}

var ErrNotFound = errors.New("item not found")

// Item represents one authenticated connection to a financial institution via
// the provider. One Item can have multiple Accounts (e.g., checking + credit
// card from same bank).
type Item struct {
	ID              int64     `json:"id"`
	PlaidItemID     string    `json:"plaidItemId"`
	AccessToken     string    `json:"-"` // encrypted at rest by the repository
	Cursor          *string   `json:"-"` // opaque provider sync cursor, nil = never synced
	Status          Status    `json:"status"`
	InstitutionID   *string   `json:"institutionId,omitempty"`
	InstitutionName *string   `json:"institutionName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CreateItemParams struct {
	PlaidItemID     string
	AccessToken     string
	InstitutionID   *string
	InstitutionName *string
}

// Repository persists Items. The access token is write-once: it is set at
// creation (or reconnection, which creates a new Item) and never mutated by
// sync. The cursor column is advanced only through the sync engine's atomic
// delta apply, never through this interface.
type Repository interface {
	Create(ctx context.Context, params CreateItemParams) (*Item, error)
	GetByID(ctx context.Context, id int64) (*Item, error)
	GetByPlaidItemID(ctx context.Context, plaidItemID string) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	ListByStatus(ctx context.Context, status Status) ([]*Item, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}
