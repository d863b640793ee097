package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/account"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/transaction"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/infrastructure/plaid"
)

var (
	syncTracer      = otel.Tracer("finance/sync")
	syncMeter       = otel.Meter("finance/sync")
	syncDuration, _ = syncMeter.Float64Histogram("sync.run.duration",
		metric.WithDescription("Sync run duration in seconds"), metric.WithUnit("s"))
	syncTotal, _ = syncMeter.Int64Counter("sync.run.total",
		metric.WithDescription("Total sync runs by status"))
	syncDeltaSize, _ = syncMeter.Int64Counter("sync.delta.transactions",
		metric.WithDescription("Transactions applied by delta kind"))
)

var (
	// ErrLoginRequired means the provider rejected the access credential.
	// The item has already been transitioned to ITEM_LOGIN_REQUIRED and the
	// cursor was not advanced. Not retryable without user action.
	ErrLoginRequired = errors.New("item login required")

	// ErrItemNotSyncable means the item is in a status that cannot sync
	// until the user repairs the connection.
	ErrItemNotSyncable = errors.New("item is not in a syncable status")

	// ErrRateLimited means the provider throttled the run. The cursor was
	// not advanced; retryable after backoff.
	ErrRateLimited = errors.New("provider rate limit exceeded")
)

// Provider is the slice of the provider API the engine needs.
type Provider interface {
	TransactionsSync(ctx context.Context, accessToken, cursor string) (*plaid.SyncResponse, error)
	AccountsGet(ctx context.Context, accessToken string) (*plaid.AccountsGetResponse, error)
}

// ApplyDeltaParams is one sync run's accumulated delta plus the cursor it
// advances to. The store must apply all of it, including the cursor write, in
// a single storage transaction: a failed apply must leave the cursor exactly
// where it was so a retry re-fetches the same delta.
type ApplyDeltaParams struct {
	ItemID     int64
	NextCursor string
	Upserts    []transaction.UpsertParams
	RemovedIDs []string
}

// Store applies sync deltas to the ledger.
type Store interface {
	ApplyDelta(ctx context.Context, params ApplyDeltaParams) error
}

// Result summarizes one sync run.
type Result struct {
	Added      int    `json:"added"`
	Modified   int    `json:"modified"`
	Removed    int    `json:"removed"`
	Skipped    int    `json:"skipped"` // deltas referencing accounts we could not resolve
	NextCursor string `json:"nextCursor"`
}

// Engine pulls incremental transaction deltas from the provider and applies
// them to the ledger. Runs for the same item are serialized; runs for
// different items proceed in parallel.
type Engine struct {
	provider     Provider
	items        item.Repository
	accounts     account.Repository
	transactions transaction.Repository
	store        Store
	status       *item.StatusService
	classifier   transaction.Classifier // may be nil

	locks *keyedMutex
}

func NewEngine(
	provider Provider,
	items item.Repository,
	accounts account.Repository,
	transactions transaction.Repository,
	store Store,
	status *item.StatusService,
	classifier transaction.Classifier,
) *Engine {
	return &Engine{
		provider:     provider,
		items:        items,
		accounts:     accounts,
		transactions: transactions,
		store:        store,
		status:       status,
		classifier:   classifier,
		locks:        newKeyedMutex(),
	}
}

// SyncByPlaidItemID resolves the provider's item id and syncs. Used by the
// webhook path.
func (e *Engine) SyncByPlaidItemID(ctx context.Context, plaidItemID string) (*Result, error) {
	it, err := e.items.GetByPlaidItemID(ctx, plaidItemID)
	if err != nil {
		return nil, err
	}
	return e.SyncItem(ctx, it.ID)
}

// SyncItem runs one full sync for an item: paginate the provider's
// incremental sync until no more pages, apply the accumulated delta and the
// new cursor in one unit, then kick off categorization for new rows.
func (e *Engine) SyncItem(ctx context.Context, itemID int64) (*Result, error) {
	unlock := e.locks.Lock(itemID)
	defer unlock()

	ctx, span := syncTracer.Start(ctx, "sync.item")
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", itemID))
	start := time.Now()

	result, err := e.syncLocked(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
	} else {
		syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	}
	syncDuration.Record(ctx, time.Since(start).Seconds())
	return result, err
}

func (e *Engine) syncLocked(ctx context.Context, itemID int64) (*Result, error) {
	it, err := e.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status == item.StatusLoginRequired {
		return nil, ErrItemNotSyncable
	}

	cursor := ""
	if it.Cursor != nil {
		cursor = *it.Cursor
	}

	// Accumulate the complete delta before touching the store. The provider
	// hands out pages; applying page-by-page would leave a torn delta if a
	// later page fetch failed.
	var added, modified []plaid.Transaction
	var removed []string
	next := cursor
	for {
		resp, err := e.provider.TransactionsSync(ctx, it.AccessToken, next)
		if err != nil {
			if plaid.IsLoginRequired(err) {
				if stErr := e.status.MarkLoginRequired(ctx, it); stErr != nil {
					log.Printf("Failed to mark item %d login-required: %v", it.ID, stErr)
				}
				return nil, fmt.Errorf("%w: %v", ErrLoginRequired, err)
			}
			if plaid.IsRateLimited(err) {
				return nil, fmt.Errorf("%w for item %d: %v", ErrRateLimited, it.ID, err)
			}
			return nil, fmt.Errorf("provider sync failed for item %d: %w", it.ID, err)
		}

		added = append(added, resp.Added...)
		modified = append(modified, resp.Modified...)
		for _, r := range resp.Removed {
			removed = append(removed, r.TransactionID)
		}

		next = resp.NextCursor
		if !resp.HasMore {
			break
		}
	}

	// Refresh accounts so new provider accounts resolve and balances stay
	// current. A failure here is not fatal: the stale account set still maps
	// most deltas.
	accountIDs, err := e.refreshAccounts(ctx, it)
	if err != nil {
		log.Printf("Account refresh failed for item %d, using stored accounts: %v", it.ID, err)
		accountIDs, err = e.storedAccountIDs(ctx, it.ID)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{NextCursor: next}
	upserts := make([]transaction.UpsertParams, 0, len(added)+len(modified))
	var newIDs []string

	appendUpsert := func(tx plaid.Transaction, isAdded bool) error {
		accountID, ok := accountIDs[tx.AccountID]
		if !ok {
			log.Printf("Skipping transaction %s: no matching account %s under item %d",
				tx.TransactionID, tx.AccountID, it.ID)
			result.Skipped++
			return nil
		}

		date, err := tx.GetDate()
		if err != nil {
			return fmt.Errorf("transaction %s: %w", tx.TransactionID, err)
		}

		params := transaction.UpsertParams{
			PlaidTransactionID: tx.TransactionID,
			AccountID:          accountID,
			Amount:             tx.Amount,
			ISOCurrencyCode:    currencyOrDefault(tx.ISOCurrencyCode),
			Date:               date,
			Name:               tx.Name,
			MerchantName:       tx.MerchantName,
			Pending:            tx.Pending,
		}
		upserts = append(upserts, params)
		if isAdded {
			result.Added++
			newIDs = append(newIDs, tx.TransactionID)
		} else {
			result.Modified++
		}
		return nil
	}

	for _, tx := range added {
		if err := appendUpsert(tx, true); err != nil {
			return nil, err
		}
	}
	for _, tx := range modified {
		if err := appendUpsert(tx, false); err != nil {
			return nil, err
		}
	}
	result.Removed = len(removed)

	// Single atomic unit: upserts, removals, cursor advance. If this fails
	// the cursor stays put and the caller may retry the whole run. The apply
	// is detached from the caller's cancellation: once the delta is fully
	// fetched, a client disconnect must not abort it halfway.
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	err = e.store.ApplyDelta(applyCtx, ApplyDeltaParams{
		ItemID:     it.ID,
		NextCursor: next,
		Upserts:    upserts,
		RemovedIDs: removed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply sync delta for item %d: %w", it.ID, err)
	}

	syncDeltaSize.Add(ctx, int64(result.Added), metric.WithAttributes(attribute.String("kind", "added")))
	syncDeltaSize.Add(ctx, int64(result.Modified), metric.WithAttributes(attribute.String("kind", "modified")))
	syncDeltaSize.Add(ctx, int64(result.Removed), metric.WithAttributes(attribute.String("kind", "removed")))

	log.Printf("Sync completed for item %d: added=%d, modified=%d, removed=%d, skipped=%d",
		it.ID, result.Added, result.Modified, result.Removed, result.Skipped)

	if e.classifier != nil && len(newIDs) > 0 {
		go e.categorizeNew(newIDs)
	}

	return result, nil
}

// refreshAccounts upserts the provider's current account list and returns the
// provider-account-id -> local-account-id mapping.
func (e *Engine) refreshAccounts(ctx context.Context, it *item.Item) (map[string]string, error) {
	resp, err := e.provider.AccountsGet(ctx, it.AccessToken)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(resp.Accounts))
	for _, acc := range resp.Accounts {
		stored, err := e.accounts.Upsert(ctx, account.UpsertAccountParams{
			ItemID:           it.ID,
			PlaidAccountID:   acc.AccountID,
			Name:             acc.Name,
			OfficialName:     acc.OfficialName,
			Mask:             acc.Mask,
			AccountType:      acc.Type,
			Subtype:          acc.Subtype,
			CurrentBalance:   acc.Balances.Current,
			AvailableBalance: acc.Balances.Available,
			ISOCurrencyCode:  currencyOrDefault(acc.Balances.ISOCurrencyCode),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert account %s: %w", acc.AccountID, err)
		}
		ids[acc.AccountID] = stored.ID
	}
	return ids, nil
}

func (e *Engine) storedAccountIDs(ctx context.Context, itemID int64) (map[string]string, error) {
	accounts, err := e.accounts.ListByItemID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for item %d: %w", itemID, err)
	}
	ids := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		ids[acc.PlaidAccountID] = acc.ID
	}
	return ids, nil
}

// categorizeNew runs the classification hook for freshly added transactions.
// Fire-and-forget: failures are logged and never affect the completed sync.
func (e *Engine) categorizeNew(plaidTransactionIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, plaidID := range plaidTransactionIDs {
		tx, err := e.lookupByPlaidID(ctx, plaidID)
		if err != nil {
			log.Printf("Categorization: failed to load transaction %s: %v", plaidID, err)
			continue
		}
		if tx == nil || tx.Category != nil {
			continue
		}

		category, subcategory, ok := e.classifier.Classify(ctx, tx)
		if !ok {
			continue
		}
		if err := e.transactions.SetCategory(ctx, tx.ID, category, subcategory); err != nil {
			log.Printf("Categorization: failed to set category for %s: %v", tx.ID, err)
		}
	}
}

func (e *Engine) lookupByPlaidID(ctx context.Context, plaidID string) (*transaction.Transaction, error) {
	tx, err := e.transactions.GetByPlaidTransactionID(ctx, plaidID)
	if err == transaction.ErrNotFound {
		return nil, nil
	}
	return tx, err
}

func currencyOrDefault(code *string) string {
	if code == nil || *code == "" {
		return "USD"
	}
	return *code
}
