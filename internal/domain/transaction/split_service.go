package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// splitEpsilon is the tolerance for the split-sum check. Amounts arrive as
// decimal strings that may carry rounding, so exact equality is not required.
var splitEpsilon = decimal.NewFromFloat(0.01)

var (
	ErrTooFewSplits  = errors.New("a split requires at least 2 parts")
	ErrInvalidAmount = errors.New("split amount is not a valid decimal")
)

// AmountMismatchError reports a split whose parts do not sum to the original
// amount within tolerance. Both values are surfaced so the caller can render
// a precise message.
type AmountMismatchError struct {
	Original decimal.Decimal
	Total    decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("split amounts sum to %s, original transaction amount is %s",
		e.Total.StringFixed(2), e.Original.StringFixed(2))
}

// SplitInput is one requested part of a split. Amount is a decimal string
// (e.g. "-60.00"). Description overrides the generated child name; category,
// subcategory and notes override the values inherited from the parent.
type SplitInput struct {
	Amount      string  `json:"amount"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type SplitResult struct {
	Original *Transaction   `json:"original"`
	Children []*Transaction `json:"children"`
}

// SplitService divides one transaction into N synthetic children whose
// amounts sum to the original.
type SplitService struct {
	repo Repository
}

func NewSplitService(repo Repository) *SplitService {
	return &SplitService{repo: repo}
}

// Split validates the request and applies it atomically. The sum invariant is
// enforced here once, at split-creation time; later independent edits of the
// children are not re-validated against the parent.
func (s *SplitService) Split(ctx context.Context, transactionID string, splits []SplitInput) (*SplitResult, error) {
	if len(splits) < 2 {
		return nil, ErrTooFewSplits
	}

	original, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.ParentTransactionID != nil {
		// One level of nesting only: children are never split further.
		return nil, ErrSplitChild
	}
	if original.IsSplit {
		return nil, ErrAlreadySplit
	}

	amounts := make([]decimal.Decimal, len(splits))
	total := decimal.Zero
	for i, sp := range splits {
		amount, err := decimal.NewFromString(sp.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %q in split %d", ErrInvalidAmount, sp.Amount, i+1)
		}
		amounts[i] = amount
		total = total.Add(amount)
	}

	originalAmount := decimal.NewFromFloat(original.Amount)
	if total.Sub(originalAmount).Abs().GreaterThan(splitEpsilon) {
		return nil, &AmountMismatchError{Original: originalAmount, Total: total}
	}

	children := make([]SplitChildParams, len(splits))
	for i, sp := range splits {
		name := fmt.Sprintf("%s (Split %d/%d)", original.Name, i+1, len(splits))
		if sp.Description != nil && *sp.Description != "" {
			name = *sp.Description
		}

		category := original.Category
		if sp.Category != nil {
			category = sp.Category
		}
		subcategory := original.Subcategory
		if sp.Subcategory != nil {
			subcategory = sp.Subcategory
		}

		children[i] = SplitChildParams{
			ID:           uuid.NewString(),
			Amount:       amounts[i].InexactFloat64(),
			Name:         name,
			MerchantName: original.MerchantName,
			Category:     category,
			Subcategory:  subcategory,
			Notes:        sp.Notes,
		}
	}

	// CreateSplit re-checks the already-split guard inside its storage
	// transaction, closing the race between two concurrent splits.
	created, err := s.repo.CreateSplit(ctx, original.ID, children)
	if err != nil {
		return nil, err
	}

	original.IsSplit = true
	return &SplitResult{Original: original, Children: created}, nil
}
