package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/reconnect"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
)

// ItemSyncJob implements the Job interface for syncing one item's
// transactions.
type ItemSyncJob struct {
	itemID int64
	engine *sync.Engine
}

// NewItemSyncJob creates a sync job for an item.
func NewItemSyncJob(itemID int64, engine *sync.Engine) *ItemSyncJob {
	return &ItemSyncJob{itemID: itemID, engine: engine}
}

// Execute runs the sync job.
func (j *ItemSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting transaction sync for item %d", j.itemID)

	result, err := j.engine.SyncItem(ctx, j.itemID)
	if err != nil {
		if errors.Is(err, sync.ErrLoginRequired) || errors.Is(err, sync.ErrItemNotSyncable) {
			// Not retryable until the user repairs the connection. The item
			// status already reflects it, so don't count this as a failure.
			log.Printf("Transaction sync skipped for item %d: %v", j.itemID, err)
			return nil
		}
		log.Printf("Transaction sync failed for item %d: %v", j.itemID, err)
		return fmt.Errorf("sync failed: %w", err)
	}

	log.Printf("Transaction sync for item %d completed: Added=%d, Modified=%d, Removed=%d, Skipped=%d",
		j.itemID, result.Added, result.Modified, result.Removed, result.Skipped)
	return nil
}

// Key returns the item ID associated with this job.
func (j *ItemSyncJob) Key() string {
	return strconv.FormatInt(j.itemID, 10)
}

// Description returns a human-readable description of the job.
func (j *ItemSyncJob) Description() string {
	return fmt.Sprintf("Transaction sync for item %d", j.itemID)
}

// StagingSweepJob evicts expired reconnection staging records. They hold live
// access credentials, so expired ones must not linger in the database.
type StagingSweepJob struct {
	store reconnect.Store
}

func NewStagingSweepJob(store reconnect.Store) *StagingSweepJob {
	return &StagingSweepJob{store: store}
}

// Execute runs the sweep.
func (j *StagingSweepJob) Execute(ctx context.Context) error {
	deleted, err := j.store.DeleteExpiredStaging(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("staging sweep failed: %w", err)
	}
	if deleted > 0 {
		log.Printf("Staging sweep evicted %d expired reconnection(s)", deleted)
	}
	return nil
}

// Key identifies the sweep in logs.
func (j *StagingSweepJob) Key() string {
	return "staging-sweep"
}

// Description returns a human-readable description of the job.
func (j *StagingSweepJob) Description() string {
	return "Expired reconnection staging sweep"
}
