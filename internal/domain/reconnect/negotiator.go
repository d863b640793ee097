package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/account"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/plaid"
)

// ErrStagingExpired means the staging token is unknown, already consumed, or
// past its TTL. Confirmation is consume-once; this error must never be
// silently re-applied.
var ErrStagingExpired = errors.New("reconnection staging expired or already used")

// ExchangeType classifies the outcome of a public-token exchange.
type ExchangeType string

const (
	ExchangeNew          ExchangeType = "new"
	ExchangeReauth       ExchangeType = "reauth"
	ExchangeReconnection ExchangeType = "reconnection"
)

// ExchangeResult is returned by PrepareExchange. For "new" and "reauth" the
// Item is already persisted/updated; for "reconnection" nothing has been
// mutated yet and the caller must surface TransactionCount to the user before
// confirming.
type ExchangeResult struct {
	Type             ExchangeType `json:"type"`
	Item             *item.Item   `json:"item,omitempty"`
	StagingToken     string       `json:"stagingToken,omitempty"`
	TransactionCount int          `json:"transactionCount,omitempty"`
	InstitutionName  string       `json:"institutionName,omitempty"`
}

// ConfirmResult reports what a confirmed reconnection did.
type ConfirmResult struct {
	AccountsLinked      int `json:"accountsLinked"`
	TransactionsDeleted int `json:"transactionsDeleted"`
}

// StagedAccount is a provider account captured at staging time.
type StagedAccount struct {
	PlaidAccountID   string   `json:"plaidAccountId"`
	Name             string   `json:"name"`
	OfficialName     *string  `json:"officialName,omitempty"`
	Mask             *string  `json:"mask,omitempty"`
	AccountType      string   `json:"type"`
	Subtype          string   `json:"subtype"`
	CurrentBalance   *float64 `json:"currentBalance,omitempty"`
	AvailableBalance *float64 `json:"availableBalance,omitempty"`
	ISOCurrencyCode  string   `json:"isoCurrencyCode"`
}

// Staging holds a pending reconnection. It carries a live access credential,
// so it is time-bounded: the store evicts it after ExpiresAt.
type Staging struct {
	Token            string
	ExistingItemID   int64
	PlaidItemID      string
	AccessToken      string // encrypted at rest by the store
	InstitutionID    *string
	InstitutionName  *string
	Accounts         []StagedAccount
	TransactionCount int
	ExpiresAt        time.Time
}

// Store is the staging half of the ledger store. ConfirmReconnection performs
// the whole swap in one storage transaction: consume the staging row (fails
// with ErrStagingExpired if missing, consumed, or expired), delete the old
// Item with its accounts and transactions, create the new Item and accounts.
type Store interface {
	CreateStaging(ctx context.Context, staging *Staging) error
	ConfirmReconnection(ctx context.Context, token string, now time.Time) (*ConfirmResult, error)
	DeleteExpiredStaging(ctx context.Context, now time.Time) (int, error)
}

// Provider is the slice of the provider API the negotiator needs.
type Provider interface {
	ItemPublicTokenExchange(ctx context.Context, publicToken string) (*plaid.ExchangeResponse, error)
	ItemGet(ctx context.Context, accessToken string) (*plaid.ItemGetResponse, error)
	AccountsGet(ctx context.Context, accessToken string) (*plaid.AccountsGetResponse, error)
}

// Negotiator disambiguates simple reauth from a reconnection that would
// orphan transaction history, staging the destructive path behind an explicit
// user confirmation.
type Negotiator struct {
	provider     Provider
	items        item.Repository
	accounts     account.Repository
	transactions transaction.Repository
	store        Store
	status       *item.StatusService
	stagingTTL   time.Duration
}

func NewNegotiator(
	provider Provider,
	items item.Repository,
	accounts account.Repository,
	transactions transaction.Repository,
	store Store,
	status *item.StatusService,
	stagingTTL time.Duration,
) *Negotiator {
	return &Negotiator{
		provider:     provider,
		items:        items,
		accounts:     accounts,
		transactions: transactions,
		store:        store,
		status:       status,
		stagingTTL:   stagingTTL,
	}
}

// PrepareExchange exchanges the one-time public token (exactly once; the
// exchange is not idempotent and is never retried here) and classifies the
// result as a new connection, a reauth, or a reconnection needing
// confirmation.
func (n *Negotiator) PrepareExchange(ctx context.Context, publicToken string, existingItemID *int64) (*ExchangeResult, error) {
	exchanged, err := n.provider.ItemPublicTokenExchange(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("public token exchange failed: %w", err)
	}

	meta, err := n.provider.ItemGet(ctx, exchanged.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item metadata: %w", err)
	}

	if existingItemID == nil {
		it, err := n.createItem(ctx, exchanged, meta)
		if err != nil {
			return nil, err
		}
		return &ExchangeResult{Type: ExchangeNew, Item: it}, nil
	}

	existing, err := n.items.GetByID(ctx, *existingItemID)
	if err != nil {
		return nil, err
	}

	if existing.PlaidItemID == exchanged.ItemID {
		// Same external identity: plain reauth, back to ACTIVE, no staging.
		if err := n.status.Apply(ctx, existing.PlaidItemID, item.TriggerLoginRepaired); err != nil {
			return nil, err
		}
		log.Printf("Item %d reauthenticated (provider item %s)", existing.ID, existing.PlaidItemID)
		return &ExchangeResult{Type: ExchangeReauth, Item: existing}, nil
	}

	// New external identity replacing the old one: all transaction history
	// under the old item would be orphaned. Stage the swap and report the
	// blast radius; nothing is mutated until the user confirms.
	count, err := n.transactions.CountByItemID(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count affected transactions: %w", err)
	}

	accountsResp, err := n.provider.AccountsGet(ctx, exchanged.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts for staging: %w", err)
	}

	staging := &Staging{
		Token:            uuid.NewString(),
		ExistingItemID:   existing.ID,
		PlaidItemID:      exchanged.ItemID,
		AccessToken:      exchanged.AccessToken,
		InstitutionID:    meta.Item.InstitutionID,
		InstitutionName:  meta.Item.InstitutionName,
		Accounts:         stagedAccounts(accountsResp.Accounts),
		TransactionCount: count,
		ExpiresAt:        time.Now().Add(n.stagingTTL),
	}
	if err := n.store.CreateStaging(ctx, staging); err != nil {
		return nil, fmt.Errorf("failed to stage reconnection: %w", err)
	}

	log.Printf("Staged reconnection for item %d: %d transactions would be invalidated", existing.ID, count)

	institution := ""
	if meta.Item.InstitutionName != nil {
		institution = *meta.Item.InstitutionName
	}
	return &ExchangeResult{
		Type:             ExchangeReconnection,
		StagingToken:     staging.Token,
		TransactionCount: count,
		InstitutionName:  institution,
	}, nil
}

// ConfirmReconnection consumes a staging record exactly once and performs the
// swap. A second confirmation with the same token fails with
// ErrStagingExpired and causes no further mutation.
func (n *Negotiator) ConfirmReconnection(ctx context.Context, stagingToken string) (*ConfirmResult, error) {
	result, err := n.store.ConfirmReconnection(ctx, stagingToken, time.Now())
	if err != nil {
		return nil, err
	}
	log.Printf("Reconnection confirmed: %d accounts linked, %d transactions deleted",
		result.AccountsLinked, result.TransactionsDeleted)
	return result, nil
}

func (n *Negotiator) createItem(ctx context.Context, exchanged *plaid.ExchangeResponse, meta *plaid.ItemGetResponse) (*item.Item, error) {
	it, err := n.items.Create(ctx, item.CreateItemParams{
		PlaidItemID:     exchanged.ItemID,
		AccessToken:     exchanged.AccessToken,
		InstitutionID:   meta.Item.InstitutionID,
		InstitutionName: meta.Item.InstitutionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	accountsResp, err := n.provider.AccountsGet(ctx, exchanged.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	for _, acc := range accountsResp.Accounts {
		_, err := n.accounts.Upsert(ctx, account.UpsertAccountParams{
			ItemID:           it.ID,
			PlaidAccountID:   acc.AccountID,
			Name:             acc.Name,
			OfficialName:     acc.OfficialName,
			Mask:             acc.Mask,
			AccountType:      acc.Type,
			Subtype:          acc.Subtype,
			CurrentBalance:   acc.Balances.Current,
			AvailableBalance: acc.Balances.Available,
			ISOCurrencyCode:  currency(acc.Balances.ISOCurrencyCode),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to link account %s: %w", acc.AccountID, err)
		}
	}

	log.Printf("Created item %d (provider item %s) with %d accounts", it.ID, it.PlaidItemID, len(accountsResp.Accounts))
	return it, nil
}

func stagedAccounts(accounts []plaid.Account) []StagedAccount {
	staged := make([]StagedAccount, len(accounts))
	for i, acc := range accounts {
		staged[i] = StagedAccount{
			PlaidAccountID:   acc.AccountID,
			Name:             acc.Name,
			OfficialName:     acc.OfficialName,
			Mask:             acc.Mask,
			AccountType:      acc.Type,
			Subtype:          acc.Subtype,
			CurrentBalance:   acc.Balances.Current,
			AvailableBalance: acc.Balances.Available,
			ISOCurrencyCode:  currency(acc.Balances.ISOCurrencyCode),
		}
	}
	return staged
}

func currency(code *string) string {
	if code == nil || *code == "" {
		return "USD"
	}
	return *code
}
