package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when the requested transaction does not exist.
var ErrNotFound = errors.New("ledger: transaction not found")

// ErrDuplicateImport is returned when a create is rejected because a
// transaction with the same import id already exists. Callers treat this as
// confirmation that the desired state already exists, not as a failure.
var ErrDuplicateImport = errors.New("ledger: duplicate import id")

// ClientConfig represents the configuration for the budgeting service client.
type ClientConfig struct {
	APIURL      string
	AccessToken string
	Timeout     time.Duration // Default: 30 seconds
}

// Client is a budgeting service API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new budgeting service client. Requests carry the access
// token as an OAuth2 bearer credential.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    config.APIURL,
	}
}

// ListTransactions lists a budget's transactions. If sinceWatermark is
// non-empty, only transactions changed since that watermark are returned
// (including deleted ones, with Deleted set). The returned watermark covers
// everything in the response.
func (c *Client) ListTransactions(ctx context.Context, budgetID, sinceWatermark string) ([]Transaction, string, error) {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/transactions", c.baseURL, budgetID)

	query := url.Values{}
	if sinceWatermark != "" {
		query.Set("last_knowledge_of_server", sinceWatermark)
	}
	if len(query) > 0 {
		endpoint = fmt.Sprintf("%s?%s", endpoint, query.Encode())
	}

	var result TransactionsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, "", err
	}

	return result.Transactions, result.ServerKnowledge, nil
}

// ListAccountTransactions lists one account's transactions on or after
// sinceDate (YYYY-MM-DD). Used for dedup candidate searches.
func (c *Client) ListAccountTransactions(ctx context.Context, budgetID, accountID, sinceDate string) ([]Transaction, error) {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/accounts/%s/transactions", c.baseURL, budgetID, accountID)

	if sinceDate != "" {
		query := url.Values{}
		query.Set("since_date", sinceDate)
		endpoint = fmt.Sprintf("%s?%s", endpoint, query.Encode())
	}

	var result TransactionsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	return result.Transactions, nil
}

// GetTransaction fetches one transaction by id.
func (c *Client) GetTransaction(ctx context.Context, budgetID, txID string) (*Transaction, error) {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/transactions/%s", c.baseURL, budgetID, txID)

	var result TransactionResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	return &result.Transaction, nil
}

// CreateTransaction creates a transaction. A rejection caused by a duplicate
// import id is reported as ErrDuplicateImport.
func (c *Client) CreateTransaction(ctx context.Context, budgetID string, tx NewTransaction) (*Transaction, error) {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/transactions", c.baseURL, budgetID)

	body := struct {
		Transaction NewTransaction `json:"transaction"`
	}{Transaction: tx}

	var result TransactionResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return nil, err
	}

	return &result.Transaction, nil
}

// UpdateTransaction updates mutable fields of a transaction.
func (c *Client) UpdateTransaction(ctx context.Context, budgetID, txID string, upd TransactionUpdate) (*Transaction, error) {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/transactions/%s", c.baseURL, budgetID, txID)

	body := struct {
		Transaction TransactionUpdate `json:"transaction"`
	}{Transaction: upd}

	var result TransactionResponse
	if err := c.do(ctx, http.MethodPut, endpoint, body, &result); err != nil {
		return nil, err
	}

	return &result.Transaction, nil
}

// DeleteTransaction deletes a transaction. An already-absent transaction is
// reported as success.
func (c *Client) DeleteTransaction(ctx context.Context, budgetID, txID string) error {
	endpoint := fmt.Sprintf("%s/v1/budgets/%s/transactions/%s", c.baseURL, budgetID, txID)

	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// do executes one API request and decodes the response into out (when out is
// non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateImport
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError parses an error response from the budgeting service.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ledger API error (status %d): failed to read error response", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("ledger API error (status %d): %s", resp.StatusCode, string(body))
	}

	if errResp.ErrorDescription != "" {
		return fmt.Errorf("ledger API error: %s - %s", errResp.Error, errResp.ErrorDescription)
	}

	return fmt.Errorf("ledger API error: %s", errResp.Error)
}
