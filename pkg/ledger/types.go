// Package ledger provides a client and types for the hosted budgeting
// service API.
package ledger

// Transaction represents a transaction in the budgeting service.
// Amounts are in milliunits (1000 milliunits = 1.00 in the budget currency);
// outflows are negative.
type Transaction struct {
	ID        string `json:"id"`
	BudgetID  string `json:"budget_id,omitempty"`
	AccountID string `json:"account_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Amount    int64  `json:"amount"`
	PayeeName string `json:"payee_name,omitempty"`
	Memo      string `json:"memo,omitempty"`
	ImportID  string `json:"import_id,omitempty"`
	Cleared   string `json:"cleared,omitempty"` // cleared, uncleared, reconciled
	Approved  bool   `json:"approved"`
	Deleted   bool   `json:"deleted"`
}

// NewTransaction is the payload for creating a transaction.
type NewTransaction struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Amount    int64  `json:"amount"`
	PayeeName string `json:"payee_name,omitempty"`
	Memo      string `json:"memo,omitempty"`
	ImportID  string `json:"import_id,omitempty"`
	Cleared   string `json:"cleared,omitempty"`
	Approved  bool   `json:"approved"`
}

// TransactionUpdate is the payload for updating mutable transaction fields.
type TransactionUpdate struct {
	AccountID string `json:"account_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Amount    *int64 `json:"amount,omitempty"`
	PayeeName string `json:"payee_name,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

// TransactionsResponse represents the response from the budget transactions
// endpoint. ServerKnowledge is an opaque delta cursor; pass it back as the
// since-watermark on the next call to receive only changed transactions.
type TransactionsResponse struct {
	Transactions    []Transaction `json:"transactions"`
	ServerKnowledge string        `json:"server_knowledge"`
}

// TransactionResponse represents a single-transaction response.
type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
}

// ErrorResponse represents an error response from the budgeting service.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
