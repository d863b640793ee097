package item

import (
	"context"
	"fmt"
	"log"
)

// Trigger is a connection-health signal coming from a provider webhook or a
// sync-time auth failure.
type Trigger string

const (
	TriggerLoginRequired     Trigger = "LOGIN_REQUIRED"
	TriggerPendingExpiration Trigger = "PENDING_EXPIRATION"
	TriggerLoginRepaired     Trigger = "LOGIN_REPAIRED"
)

// Notifier is told about status transitions so it can alert the user.
// Implementations must not block for long; failures are logged, not raised.
type Notifier interface {
	ItemStatusChanged(ctx context.Context, it *Item, from, to Status)
}

// StatusService is the Item status state machine. Every status is reachable
// from every other status; there is no terminal state.
type StatusService struct {
	items    Repository
	notifier Notifier // may be nil
}

func NewStatusService(items Repository, notifier Notifier) *StatusService {
	return &StatusService{items: items, notifier: notifier}
}

// targetStatus maps a trigger to the status it transitions to. The mapping is
// independent of the current status.
func targetStatus(trigger Trigger) (Status, error) {
	switch trigger {
	case TriggerLoginRequired:
		return StatusLoginRequired, nil
	case TriggerPendingExpiration:
		return StatusPendingExpiration, nil
	case TriggerLoginRepaired:
		return StatusActive, nil
	}
	return "", fmt.Errorf("unknown status trigger %q", trigger)
}

// Apply resolves an Item by its provider id and transitions it for the given
// trigger. An unknown provider item id is logged and ignored, not raised:
// webhook delivery can reference items this instance no longer tracks.
func (s *StatusService) Apply(ctx context.Context, plaidItemID string, trigger Trigger) error {
	target, err := targetStatus(trigger)
	if err != nil {
		return err
	}

	it, err := s.items.GetByPlaidItemID(ctx, plaidItemID)
	if err == ErrNotFound {
		log.Printf("Status trigger %s for unknown item %s, ignoring", trigger, plaidItemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve item %s: %w", plaidItemID, err)
	}

	return s.transition(ctx, it, target)
}

// MarkLoginRequired transitions an already-resolved Item to
// ITEM_LOGIN_REQUIRED. Used by the sync engine when the provider rejects the
// access credential mid-sync.
func (s *StatusService) MarkLoginRequired(ctx context.Context, it *Item) error {
	return s.transition(ctx, it, StatusLoginRequired)
}

func (s *StatusService) transition(ctx context.Context, it *Item, target Status) error {
	if it.Status == target {
		return nil
	}

	if err := s.items.UpdateStatus(ctx, it.ID, target); err != nil {
		return fmt.Errorf("failed to update item %d status to %s: %w", it.ID, target, err)
	}

	log.Printf("Item %d (%s) status: %s -> %s", it.ID, it.PlaidItemID, it.Status, target)

	if s.notifier != nil {
		s.notifier.ItemStatusChanged(ctx, it, it.Status, target)
	}
	it.Status = target
	return nil
}
