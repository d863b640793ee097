package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	syncengine "github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/sync"
)

var (
	webhookMeter    = otel.Meter("finance/webhook")
	webhookTotal, _ = webhookMeter.Int64Counter("webhook.received.total",
		metric.WithDescription("Webhooks received by type, code and outcome"))
)

// ErrInvalidSignature is the only condition under which an inbound webhook is
// not acknowledged; the boundary maps it to 401.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// Payload is the provider's webhook body.
type Payload struct {
	WebhookType         string        `json:"webhook_type"`
	WebhookCode         string        `json:"webhook_code"`
	ItemID              string        `json:"item_id"`
	Error               *PayloadError `json:"error,omitempty"`
	RemovedTransactions []string      `json:"removed_transactions,omitempty"`
	Environment         string        `json:"environment,omitempty"`
}

type PayloadError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Result is the outcome of handling one webhook. Acknowledged is true for
// every verified payload, including ones whose processing failed, so the
// provider never enters a retry storm against an already-failing downstream.
// ProcessingError carries the failure for operator visibility.
type Result struct {
	Acknowledged    bool
	ProcessingError string
}

// Verifier validates the raw body against the verification header.
type Verifier interface {
	Verify(ctx context.Context, body []byte, header string) error
}

// Syncer triggers a sync run for a provider item id.
type Syncer interface {
	SyncByPlaidItemID(ctx context.Context, plaidItemID string) (*syncengine.Result, error)
}

// StatusApplier routes connection-health signals to the item state machine.
type StatusApplier interface {
	Apply(ctx context.Context, plaidItemID string, trigger item.Trigger) error
}

// Dispatcher verifies inbound webhooks, classifies them by (type, code) and
// routes them to the sync engine or the item status state machine.
type Dispatcher struct {
	verifier Verifier // nil = verification disabled (local development only)
	syncer   Syncer
	status   StatusApplier

	warnInsecure sync.Once
}

func NewDispatcher(verifier Verifier, syncer Syncer, status StatusApplier) *Dispatcher {
	return &Dispatcher{verifier: verifier, syncer: syncer, status: status}
}

// Handle processes one inbound webhook. The returned error is non-nil only
// for signature verification failures; everything else is folded into the
// acknowledged Result.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, verificationHeader string) (Result, error) {
	if d.verifier != nil {
		if err := d.verifier.Verify(ctx, body, verificationHeader); err != nil {
			log.Printf("Webhook rejected: %v", err)
			webhookTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	} else {
		d.warnInsecure.Do(func() {
			log.Println("WARNING: webhook signature verification is DISABLED - do not run this in production")
		})
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("Webhook body did not parse: %v", err)
		return ack(ctx, "", "", fmt.Sprintf("malformed payload: %v", err)), nil
	}

	log.Printf("Webhook received: type=%s code=%s item=%s", payload.WebhookType, payload.WebhookCode, payload.ItemID)
	return d.route(ctx, payload), nil
}

func (d *Dispatcher) route(ctx context.Context, payload Payload) Result {
	switch payload.WebhookType {
	case "TRANSACTIONS":
		return d.routeTransactions(ctx, payload)
	case "ITEM":
		return d.routeItem(ctx, payload)
	default:
		// Forward compatibility: the provider adds webhook families over time.
		log.Printf("Ignoring webhook with unknown type %s (code %s)", payload.WebhookType, payload.WebhookCode)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
	}
}

func (d *Dispatcher) routeTransactions(ctx context.Context, payload Payload) Result {
	switch payload.WebhookCode {
	case "SYNC_UPDATES_AVAILABLE", "INITIAL_UPDATE", "HISTORICAL_UPDATE", "DEFAULT_UPDATE":
		result, err := d.syncer.SyncByPlaidItemID(ctx, payload.ItemID)
		if err != nil {
			if errors.Is(err, item.ErrNotFound) {
				log.Printf("ERROR: webhook referenced unknown item %s", payload.ItemID)
				return ack(ctx, payload.WebhookType, payload.WebhookCode, "unknown item")
			}
			log.Printf("Webhook-triggered sync failed for item %s: %v", payload.ItemID, err)
			return ack(ctx, payload.WebhookType, payload.WebhookCode, err.Error())
		}
		log.Printf("Webhook-triggered sync for item %s: added=%d, modified=%d, removed=%d",
			payload.ItemID, result.Added, result.Modified, result.Removed)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, "")

	case "TRANSACTIONS_REMOVED":
		// Observability only: removals arrive again in the next sync's
		// removed batch, so acting here would double-handle them.
		log.Printf("Provider removed %d transactions for item %s (will reconcile on next sync)",
			len(payload.RemovedTransactions), payload.ItemID)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, "")

	default:
		log.Printf("Ignoring unknown TRANSACTIONS code %s", payload.WebhookCode)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
	}
}

func (d *Dispatcher) routeItem(ctx context.Context, payload Payload) Result {
	var trigger item.Trigger
	switch payload.WebhookCode {
	case "ERROR":
		if payload.Error == nil {
			log.Printf("ITEM ERROR webhook for %s without error detail, ignoring", payload.ItemID)
			return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
		}
		// The provider spells a broken credential as either "ERROR" or
		// "ITEM_LOGIN_REQUIRED"; anything else (PRODUCTS_NOT_READY etc) is
		// not a connection-health signal.
		st, ok := item.ParseStatus(payload.Error.ErrorCode)
		if !ok || st != item.StatusLoginRequired {
			log.Printf("ITEM ERROR webhook for %s with code %s, ignoring", payload.ItemID, payload.Error.ErrorCode)
			return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
		}
		trigger = item.TriggerLoginRequired
	case "LOGIN_REPAIRED":
		trigger = item.TriggerLoginRepaired
	case "PENDING_EXPIRATION", "PENDING_DISCONNECT":
		trigger = item.TriggerPendingExpiration
	case "USER_PERMISSION_REVOKED", "USER_ACCOUNT_REVOKED":
		trigger = item.TriggerLoginRequired
	default:
		log.Printf("Ignoring unknown ITEM code %s", payload.WebhookCode)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
	}

	if err := d.status.Apply(ctx, payload.ItemID, trigger); err != nil {
		log.Printf("Status transition failed for item %s: %v", payload.ItemID, err)
		return ack(ctx, payload.WebhookType, payload.WebhookCode, err.Error())
	}
	return ack(ctx, payload.WebhookType, payload.WebhookCode, "")
}

func ack(ctx context.Context, webhookType, webhookCode, processingError string) Result {
	outcome := "processed"
	if processingError != "" {
		outcome = "failed"
	}
	webhookTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", webhookType),
		attribute.String("code", webhookCode),
		attribute.String("outcome", outcome),
	))
	return Result{Acknowledged: true, ProcessingError: processingError}
}
