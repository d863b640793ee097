package transaction

import (
	"context"
	"strings"
)

// Classifier suggests a category for a newly synced transaction. It is
// consumed as a black box: the sync engine invokes it asynchronously per new
// transaction and a failed or empty suggestion never fails the sync.
type Classifier interface {
	Classify(ctx context.Context, tx *Transaction) (category, subcategory string, ok bool)
}

// Suggestion maps a merchant/description keyword to a category pair.
type Suggestion struct {
	Category    string
	Subcategory string
}

// keywordRules maps lowercase substrings of the transaction name or merchant
// to a suggested category. First match wins, so more specific keywords come
// first.
var keywordRules = []struct {
	keyword string
	Suggestion
}{
	{"uber eats", Suggestion{"Food & Drink", "Delivery"}},
	{"doordash", Suggestion{"Food & Drink", "Delivery"}},
	{"starbucks", Suggestion{"Food & Drink", "Coffee"}},
	{"mcdonald", Suggestion{"Food & Drink", "Fast Food"}},
	{"restaurant", Suggestion{"Food & Drink", "Restaurants"}},
	{"whole foods", Suggestion{"Groceries", "Supermarket"}},
	{"trader joe", Suggestion{"Groceries", "Supermarket"}},
	{"safeway", Suggestion{"Groceries", "Supermarket"}},
	{"costco", Suggestion{"Groceries", "Wholesale"}},
	{"grocery", Suggestion{"Groceries", "Supermarket"}},
	{"uber", Suggestion{"Transportation", "Ride Share"}},
	{"lyft", Suggestion{"Transportation", "Ride Share"}},
	{"shell", Suggestion{"Transportation", "Gas"}},
	{"chevron", Suggestion{"Transportation", "Gas"}},
	{"parking", Suggestion{"Transportation", "Parking"}},
	{"netflix", Suggestion{"Entertainment", "Streaming"}},
	{"spotify", Suggestion{"Entertainment", "Streaming"}},
	{"hbo", Suggestion{"Entertainment", "Streaming"}},
	{"cinema", Suggestion{"Entertainment", "Movies"}},
	{"amazon", Suggestion{"Shopping", "Online"}},
	{"target", Suggestion{"Shopping", "Retail"}},
	{"walmart", Suggestion{"Shopping", "Retail"}},
	{"pharmacy", Suggestion{"Health", "Pharmacy"}},
	{"cvs", Suggestion{"Health", "Pharmacy"}},
	{"walgreens", Suggestion{"Health", "Pharmacy"}},
	{"gym", Suggestion{"Health", "Fitness"}},
	{"electric", Suggestion{"Bills & Utilities", "Electricity"}},
	{"comcast", Suggestion{"Bills & Utilities", "Internet"}},
	{"verizon", Suggestion{"Bills & Utilities", "Phone"}},
	{"t-mobile", Suggestion{"Bills & Utilities", "Phone"}},
	{"rent", Suggestion{"Housing", "Rent"}},
	{"mortgage", Suggestion{"Housing", "Mortgage"}},
	{"payroll", Suggestion{"Income", "Salary"}},
	{"direct dep", Suggestion{"Income", "Salary"}},
	{"interest", Suggestion{"Income", "Interest"}},
	{"transfer", Suggestion{"Transfers", "Internal"}},
}

// KeywordClassifier is the default Classifier: a keyword lookup over the
// transaction name and merchant name. It stands in for the AI-based
// categorization model, which is an external collaborator.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(_ context.Context, tx *Transaction) (string, string, bool) {
	haystack := strings.ToLower(tx.Name)
	if tx.MerchantName != nil {
		haystack += " " + strings.ToLower(*tx.MerchantName)
	}

	for _, rule := range keywordRules {
		if strings.Contains(haystack, rule.keyword) {
			return rule.Category, rule.Subcategory, true
		}
	}
	return "", "", false
}
