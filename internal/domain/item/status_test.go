package item

import (
	"context"
	"errors"
	"testing"
)

type mockRepo struct {
	getByPlaidItemIDFunc func(ctx context.Context, plaidItemID string) (*Item, error)
	updateStatusFunc     func(ctx context.Context, id int64, status Status) error
}

func (m *mockRepo) Create(ctx context.Context, params CreateItemParams) (*Item, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*Item, error) {
	return nil, ErrNotFound
}

func (m *mockRepo) GetByPlaidItemID(ctx context.Context, plaidItemID string) (*Item, error) {
	return m.getByPlaidItemIDFunc(ctx, plaidItemID)
}

func (m *mockRepo) List(ctx context.Context) ([]*Item, error) {
	return nil, nil
}

func (m *mockRepo) ListByStatus(ctx context.Context, status Status) ([]*Item, error) {
	return nil, nil
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if m.updateStatusFunc == nil {
		return nil
	}
	return m.updateStatusFunc(ctx, id, status)
}

type recordedChange struct {
	from, to Status
}

type mockNotifier struct {
	changes []recordedChange
}

func (m *mockNotifier) ItemStatusChanged(ctx context.Context, it *Item, from, to Status) {
	m.changes = append(m.changes, recordedChange{from: from, to: to})
}

func TestApply_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		current    Status
		trigger    Trigger
		want       Status
		wantUpdate bool
	}{
		{"login required from active", StatusActive, TriggerLoginRequired, StatusLoginRequired, true},
		{"pending expiration from active", StatusActive, TriggerPendingExpiration, StatusPendingExpiration, true},
		{"repair from login required", StatusLoginRequired, TriggerLoginRepaired, StatusActive, true},
		{"repair from pending expiration", StatusPendingExpiration, TriggerLoginRepaired, StatusActive, true},
		{"login required from pending expiration", StatusPendingExpiration, TriggerLoginRequired, StatusLoginRequired, true},
		{"no-op when already active", StatusActive, TriggerLoginRepaired, StatusActive, false},
		{"no-op when already login required", StatusLoginRequired, TriggerLoginRequired, StatusLoginRequired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{ID: 1, PlaidItemID: "plaid-item-1", Status: tt.current}

			var updates []Status
			repo := &mockRepo{
				getByPlaidItemIDFunc: func(ctx context.Context, plaidItemID string) (*Item, error) {
					return it, nil
				},
				updateStatusFunc: func(ctx context.Context, id int64, status Status) error {
					updates = append(updates, status)
					return nil
				},
			}

			svc := NewStatusService(repo, nil)
			if err := svc.Apply(context.Background(), "plaid-item-1", tt.trigger); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantUpdate {
				if len(updates) != 1 || updates[0] != tt.want {
					t.Errorf("expected update to %s, got %v", tt.want, updates)
				}
				if it.Status != tt.want {
					t.Errorf("expected in-memory status %s, got %s", tt.want, it.Status)
				}
			} else if len(updates) != 0 {
				t.Errorf("expected no repository write for a no-op transition, got %v", updates)
			}
		})
	}
}

func TestApply_UnknownItemIgnored(t *testing.T) {
	repo := &mockRepo{
		getByPlaidItemIDFunc: func(ctx context.Context, plaidItemID string) (*Item, error) {
			return nil, ErrNotFound
		},
	}

	svc := NewStatusService(repo, nil)
	if err := svc.Apply(context.Background(), "gone", TriggerLoginRequired); err != nil {
		t.Errorf("expected unknown item to be ignored, got %v", err)
	}
}

func TestApply_UnknownTrigger(t *testing.T) {
	svc := NewStatusService(&mockRepo{}, nil)
	if err := svc.Apply(context.Background(), "plaid-item-1", Trigger("NONSENSE")); err == nil {
		t.Error("expected error for unknown trigger")
	}
}

func TestApply_RepositoryFailure(t *testing.T) {
	repoErr := errors.New("connection reset")
	repo := &mockRepo{
		getByPlaidItemIDFunc: func(ctx context.Context, plaidItemID string) (*Item, error) {
			return &Item{ID: 1, Status: StatusActive}, nil
		},
		updateStatusFunc: func(ctx context.Context, id int64, status Status) error {
			return repoErr
		},
	}

	svc := NewStatusService(repo, nil)
	err := svc.Apply(context.Background(), "plaid-item-1", TriggerLoginRequired)
	if !errors.Is(err, repoErr) {
		t.Errorf("expected repository error to propagate, got %v", err)
	}
}

func TestTransition_NotifiesWithOldAndNewStatus(t *testing.T) {
	it := &Item{ID: 1, PlaidItemID: "plaid-item-1", Status: StatusActive}
	repo := &mockRepo{
		getByPlaidItemIDFunc: func(ctx context.Context, plaidItemID string) (*Item, error) {
			return it, nil
		},
	}
	notifier := &mockNotifier{}

	svc := NewStatusService(repo, notifier)
	if err := svc.Apply(context.Background(), "plaid-item-1", TriggerLoginRequired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.changes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.changes))
	}
	if notifier.changes[0].from != StatusActive || notifier.changes[0].to != StatusLoginRequired {
		t.Errorf("unexpected notification: %+v", notifier.changes[0])
	}

	// A no-op transition must not notify.
	if err := svc.Apply(context.Background(), "plaid-item-1", TriggerLoginRequired); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.changes) != 1 {
		t.Errorf("expected no notification for a no-op transition, got %d", len(notifier.changes))
	}
}

func TestMarkLoginRequired(t *testing.T) {
	it := &Item{ID: 3, Status: StatusActive}
	var updates []Status
	repo := &mockRepo{
		updateStatusFunc: func(ctx context.Context, id int64, status Status) error {
			if id != 3 {
				t.Errorf("expected update for item 3, got %d", id)
			}
			updates = append(updates, status)
			return nil
		},
	}

	svc := NewStatusService(repo, nil)
	if err := svc.MarkLoginRequired(context.Background(), it); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 1 || updates[0] != StatusLoginRequired {
		t.Errorf("expected transition to ITEM_LOGIN_REQUIRED, got %v", updates)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   Status
		wantOK bool
	}{
		{"ACTIVE", StatusActive, true},
		{"ITEM_LOGIN_REQUIRED", StatusLoginRequired, true},
		{"PENDING_EXPIRATION", StatusPendingExpiration, true},
		{"ERROR", StatusLoginRequired, true},
		{"active", "", false},
		{"", "", false},
		{"DELETED", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseStatus(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}
