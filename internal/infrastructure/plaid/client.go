package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 60 * time.Second
	syncPageSize   = 500 // max transactions per /transactions/sync page

	exchangePath        = "/item/public_token/exchange"
	itemGetPath         = "/item/get"
	accountsGetPath     = "/accounts/get"
	transactionsPath    = "/transactions/sync"
	verificationKeyPath = "/webhook_verification_key/get"
)

var environments = map[string]string{
	"sandbox":    "https://sandbox.plaid.com",
	"production": "https://production.plaid.com",
}

// Client handles communication with the Plaid API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// NewClient creates a Plaid client for the given environment
// ("sandbox" or "production").
func NewClient(clientID, secret, environment string) (*Client, error) {
	baseURL, ok := environments[environment]
	if !ok {
		return nil, fmt.Errorf("unknown plaid environment %q", environment)
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
	}, nil
}

// APIError is a structured error response from the Plaid API.
type APIError struct {
	StatusCode   int    `json:"-"`
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid API error (status %d): %s - %s: %s",
		e.StatusCode, e.ErrorType, e.ErrorCode, e.ErrorMessage)
}

// IsLoginRequired reports whether err means the access credential is no
// longer usable and the user must re-authenticate. Not retryable.
func IsLoginRequired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorType == "ITEM_ERROR" &&
		(apiErr.ErrorCode == "ITEM_LOGIN_REQUIRED" || apiErr.ErrorCode == "ACCESS_NOT_GRANTED")
}

// IsRateLimited reports whether err is a provider rate limit. Retryable.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorType == "RATE_LIMIT_EXCEEDED"
}

// ExchangeResponse is the result of a one-time public token exchange.
type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// ItemGetResponse carries item metadata.
type ItemGetResponse struct {
	Item struct {
		ItemID          string  `json:"item_id"`
		InstitutionID   *string `json:"institution_id"`
		InstitutionName *string `json:"institution_name"`
		Webhook         string  `json:"webhook"`
	} `json:"item"`
	RequestID string `json:"request_id"`
}

// Account is an account as reported by /accounts/get.
type Account struct {
	AccountID    string  `json:"account_id"`
	Name         string  `json:"name"`
	OfficialName *string `json:"official_name"`
	Mask         *string `json:"mask"`
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	Balances     struct {
		Available       *float64 `json:"available"`
		Current         *float64 `json:"current"`
		ISOCurrencyCode *string  `json:"iso_currency_code"`
	} `json:"balances"`
}

// AccountsGetResponse is the /accounts/get envelope.
type AccountsGetResponse struct {
	Accounts  []Account `json:"accounts"`
	RequestID string    `json:"request_id"`
}

// Transaction is a transaction delta entry from /transactions/sync.
type Transaction struct {
	TransactionID   string  `json:"transaction_id"`
	AccountID       string  `json:"account_id"`
	Amount          float64 `json:"amount"`
	ISOCurrencyCode *string `json:"iso_currency_code"`
	DateString      string  `json:"date"` // "2006-01-02"
	Name            string  `json:"name"`
	MerchantName    *string `json:"merchant_name"`
	Pending         bool    `json:"pending"`
	PersonalFinanceCategory *struct {
		Primary  string `json:"primary"`
		Detailed string `json:"detailed"`
	} `json:"personal_finance_category"`
}

// GetDate parses the transaction date.
func (t *Transaction) GetDate() (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", t.DateString)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", t.DateString, err)
	}
	return parsed, nil
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// SyncResponse is one page of the incremental sync. HasMore means another
// page must be fetched with NextCursor before applying anything.
type SyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}

// WebhookVerificationKey is a JWK returned by /webhook_verification_key/get.
type WebhookVerificationKey struct {
	Alg       string `json:"alg"`
	Crv       string `json:"crv"`
	Kid       string `json:"kid"`
	Kty       string `json:"kty"`
	Use       string `json:"use"`
	X         string `json:"x"`
	Y         string `json:"y"`
	ExpiredAt *int64 `json:"expired_at"`
}

type verificationKeyResponse struct {
	Key       WebhookVerificationKey `json:"key"`
	RequestID string                 `json:"request_id"`
}

// ItemPublicTokenExchange exchanges a one-time public token for a permanent
// access token. The exchange is NOT idempotent: callers must never retry it
// blindly.
func (c *Client) ItemPublicTokenExchange(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	var resp ExchangeResponse
	err := c.post(ctx, exchangePath, map[string]any{"public_token": publicToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemGet fetches item metadata for an access token.
func (c *Client) ItemGet(ctx context.Context, accessToken string) (*ItemGetResponse, error) {
	var resp ItemGetResponse
	err := c.post(ctx, itemGetPath, map[string]any{"access_token": accessToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AccountsGet fetches all accounts (with current balances) for an access token.
func (c *Client) AccountsGet(ctx context.Context, accessToken string) (*AccountsGetResponse, error) {
	var resp AccountsGetResponse
	err := c.post(ctx, accountsGetPath, map[string]any{"access_token": accessToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransactionsSync fetches one page of the incremental transaction sync.
// An empty cursor means full historical sync.
func (c *Client) TransactionsSync(ctx context.Context, accessToken, cursor string) (*SyncResponse, error) {
	body := map[string]any{
		"access_token": accessToken,
		"count":        syncPageSize,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var resp SyncResponse
	if err := c.post(ctx, transactionsPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWebhookVerificationKey fetches the JWK for a webhook signature key id.
func (c *Client) GetWebhookVerificationKey(ctx context.Context, keyID string) (*WebhookVerificationKey, error) {
	var resp verificationKeyResponse
	if err := c.post(ctx, verificationKeyPath, map[string]any{"key_id": keyID}, &resp); err != nil {
		return nil, err
	}
	return &resp.Key, nil
}

// post sends a JSON request with client credentials and decodes the response,
// converting non-200 responses into *APIError where the body parses as one.
func (c *Client) post(ctx context.Context, path string, payload map[string]any, out any) error {
	payload["client_id"] = c.clientID
	payload["secret"] = c.secret

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.ErrorType == "" {
			return fmt.Errorf("plaid request failed with status %d: %s", resp.StatusCode, string(body))
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
