package firebase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
)

// TokenSource lists the active device tokens to notify.
type TokenSource interface {
	ListActiveTokens(ctx context.Context) ([]string, error)
}

// Notifier pushes item status changes to the user's devices. It implements
// item.Notifier; send failures are logged and swallowed so a push outage
// never blocks a status transition.
type Notifier struct {
	client *Client
	tokens TokenSource
}

func NewNotifier(client *Client, tokens TokenSource) *Notifier {
	return &Notifier{client: client, tokens: tokens}
}

func (n *Notifier) ItemStatusChanged(ctx context.Context, it *item.Item, from, to item.Status) {
	title, body := statusMessage(it, to)
	if title == "" {
		return
	}

	// Detached from the caller's context: the transition has already been
	// committed and must not be rolled back by a slow push.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		tokens, err := n.tokens.ListActiveTokens(ctx)
		if err != nil {
			log.Printf("Failed to list device tokens for item %d notification: %v", it.ID, err)
			return
		}

		data := map[string]string{
			"type":   "item_status",
			"itemId": fmt.Sprintf("%d", it.ID),
			"status": string(to),
		}
		if err := n.client.SendMulticast(ctx, tokens, title, body, data); err != nil {
			log.Printf("Failed to push status change for item %d: %v", it.ID, err)
		}
	}()
}

func statusMessage(it *item.Item, to item.Status) (title, body string) {
	institution := "your bank"
	if it.InstitutionName != nil && *it.InstitutionName != "" {
		institution = *it.InstitutionName
	}

	switch to {
	case item.StatusLoginRequired:
		return "Bank connection needs attention",
			fmt.Sprintf("Reconnect %s to keep your transactions up to date.", institution)
	case item.StatusPendingExpiration:
		return "Bank connection expiring soon",
			fmt.Sprintf("Your consent for %s expires soon. Renew it to avoid interruption.", institution)
	case item.StatusActive:
		return "Bank connection restored",
			fmt.Sprintf("%s is connected again. Syncing will resume automatically.", institution)
	}
	return "", ""
}
