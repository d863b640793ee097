package transaction

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockRepository struct {
	getByIDFunc     func(ctx context.Context, id string) (*Transaction, error)
	createSplitFunc func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error)
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*Transaction, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) GetByPlaidTransactionID(ctx context.Context, plaidTransactionID string) (*Transaction, error) {
	return nil, ErrNotFound
}

func (m *mockRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error) {
	return nil, nil
}

func (m *mockRepository) ListChildren(ctx context.Context, parentID string) ([]*Transaction, error) {
	return nil, nil
}

func (m *mockRepository) CountByItemID(ctx context.Context, itemID int64) (int, error) {
	return 0, nil
}

func (m *mockRepository) Update(ctx context.Context, id string, params UpdateParams) (*Transaction, error) {
	return nil, ErrNotFound
}

func (m *mockRepository) SetCategory(ctx context.Context, id string, category, subcategory string) error {
	return nil
}

func (m *mockRepository) CreateSplit(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
	return m.createSplitFunc(ctx, parentID, children)
}

func (m *mockRepository) SetTransactionTags(ctx context.Context, transactionID string, tagIDs []string) error {
	return nil
}

func (m *mockRepository) GetTransactionTags(ctx context.Context, transactionID string) ([]string, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func testParent() *Transaction {
	return &Transaction{
		ID:              "tx-1",
		AccountID:       "acc-1",
		Amount:          -100.00,
		ISOCurrencyCode: "USD",
		Date:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Name:            "Costco",
		MerchantName:    strPtr("Costco Wholesale"),
		Category:        strPtr("Shops"),
		Subcategory:     strPtr("Warehouse"),
	}
}

func TestSplit_Success(t *testing.T) {
	parent := testParent()
	var gotParentID string
	var gotChildren []SplitChildParams

	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			if id != "tx-1" {
				t.Errorf("expected lookup of tx-1, got %s", id)
			}
			return parent, nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			gotParentID = parentID
			gotChildren = children
			created := make([]*Transaction, len(children))
			for i, c := range children {
				created[i] = &Transaction{
					ID:                  c.ID,
					AccountID:           parent.AccountID,
					Amount:              c.Amount,
					Name:                c.Name,
					ParentTransactionID: &parentID,
				}
			}
			return created, nil
		},
	}

	svc := NewSplitService(repo)
	result, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-40.00", Description: strPtr("Groceries half")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotParentID != "tx-1" {
		t.Errorf("expected CreateSplit for tx-1, got %s", gotParentID)
	}
	if len(gotChildren) != 2 {
		t.Fatalf("expected 2 children, got %d", len(gotChildren))
	}
	if gotChildren[0].Name != "Costco (Split 1/2)" {
		t.Errorf("expected generated name, got %q", gotChildren[0].Name)
	}
	if gotChildren[1].Name != "Groceries half" {
		t.Errorf("expected description override, got %q", gotChildren[1].Name)
	}
	if gotChildren[0].Amount != -60.00 || gotChildren[1].Amount != -40.00 {
		t.Errorf("unexpected child amounts: %v, %v", gotChildren[0].Amount, gotChildren[1].Amount)
	}
	if gotChildren[0].Category == nil || *gotChildren[0].Category != "Shops" {
		t.Error("expected child to inherit parent category")
	}
	for i, c := range gotChildren {
		if c.MerchantName == nil || *c.MerchantName != "Costco Wholesale" {
			t.Errorf("expected child %d to inherit parent merchant, got %v", i, c.MerchantName)
		}
	}
	if !result.Original.IsSplit {
		t.Error("expected original to be marked split in result")
	}
	if len(result.Children) != 2 {
		t.Errorf("expected 2 children in result, got %d", len(result.Children))
	}
}

func TestSplit_CategoryOverride(t *testing.T) {
	parent := testParent()
	var gotChildren []SplitChildParams

	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return parent, nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			gotChildren = children
			return []*Transaction{{}, {}}, nil
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-50.00", Category: strPtr("Food and Drink"), Subcategory: strPtr("Groceries")},
		{Amount: "-50.00"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *gotChildren[0].Category != "Food and Drink" || *gotChildren[0].Subcategory != "Groceries" {
		t.Error("expected first child to use overridden category")
	}
	if *gotChildren[1].Category != "Shops" || *gotChildren[1].Subcategory != "Warehouse" {
		t.Error("expected second child to inherit parent category")
	}
}

func TestSplit_TooFewSplits(t *testing.T) {
	svc := NewSplitService(&mockRepository{})

	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{{Amount: "-100.00"}})
	if !errors.Is(err, ErrTooFewSplits) {
		t.Errorf("expected ErrTooFewSplits, got %v", err)
	}

	_, err = svc.Split(context.Background(), "tx-1", nil)
	if !errors.Is(err, ErrTooFewSplits) {
		t.Errorf("expected ErrTooFewSplits for empty input, got %v", err)
	}
}

func TestSplit_AmountMismatch(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return testParent(), nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			t.Fatal("CreateSplit should not be called on mismatch")
			return nil, nil
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-30.00"},
	})

	var mismatch *AmountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected AmountMismatchError, got %v", err)
	}
	if mismatch.Original.StringFixed(2) != "-100.00" {
		t.Errorf("expected original -100.00, got %s", mismatch.Original.StringFixed(2))
	}
	if mismatch.Total.StringFixed(2) != "-90.00" {
		t.Errorf("expected total -90.00, got %s", mismatch.Total.StringFixed(2))
	}
}

func TestSplit_WithinEpsilon(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return testParent(), nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			return []*Transaction{{}, {}, {}}, nil
		},
	}

	// Three equal thirds of -100 sum to -99.99, off by exactly the tolerance.
	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-33.33"},
		{Amount: "-33.33"},
		{Amount: "-33.33"},
	})
	if err != nil {
		t.Fatalf("expected rounding within tolerance to pass, got %v", err)
	}
}

func TestSplit_InvalidAmount(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return testParent(), nil
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "forty"},
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for unparseable amount, got %v", err)
	}
}

func TestSplit_AlreadySplit(t *testing.T) {
	parent := testParent()
	parent.IsSplit = true

	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return parent, nil
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-40.00"},
	})
	if !errors.Is(err, ErrAlreadySplit) {
		t.Errorf("expected ErrAlreadySplit, got %v", err)
	}
}

func TestSplit_SplitChildRejected(t *testing.T) {
	child := testParent()
	child.ParentTransactionID = strPtr("tx-parent")

	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return child, nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			t.Fatal("CreateSplit must not be called for a split child")
			return nil, nil
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-40.00"},
	})
	if !errors.Is(err, ErrSplitChild) {
		t.Errorf("expected ErrSplitChild, got %v", err)
	}
}

func TestSplit_ConcurrentSplitDetected(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return testParent(), nil
		},
		createSplitFunc: func(ctx context.Context, parentID string, children []SplitChildParams) ([]*Transaction, error) {
			// Another request split the parent between our read and write.
			return nil, ErrAlreadySplit
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "tx-1", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-40.00"},
	})
	if !errors.Is(err, ErrAlreadySplit) {
		t.Errorf("expected ErrAlreadySplit from storage race, got %v", err)
	}
}

func TestSplit_NotFound(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id string) (*Transaction, error) {
			return nil, ErrNotFound
		},
	}

	svc := NewSplitService(repo)
	_, err := svc.Split(context.Background(), "missing", []SplitInput{
		{Amount: "-60.00"},
		{Amount: "-40.00"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
