package store

import (
	"database/sql"
	"time"
)

// Mapping source budgets.
const (
	SourcePersonal = "personal"
	SourceCompany  = "company"
)

// Mapping sync statuses.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
	StatusError   = "error"
)

// AccountLink declares that a personal account and a company account are two
// views of one economic event.
type AccountLink struct {
	ID                int64  `db:"id"`
	CompanyBudgetID   string `db:"company_budget_id"`
	CompanyName       string `db:"company_name"`
	PersonalAccountID string `db:"personal_account_id"`
	CompanyAccountID  string `db:"company_account_id"`
	Active            bool   `db:"active"`
}

// CompanyAccountLink is a symmetric link between accounts of two
// organizational budgets. Both sides use the same currency.
type CompanyAccountLink struct {
	ID         int64  `db:"id"`
	BudgetIDA  string `db:"budget_id_a"`
	AccountIDA string `db:"account_id_a"`
	BudgetIDB  string `db:"budget_id_b"`
	AccountIDB string `db:"account_id_b"`
	Active     bool   `db:"active"`
}

// TransactionMapping records that one transaction mirrors another. For
// company-to-company links the A-side budget of the link takes the personal
// role in this record.
type TransactionMapping struct {
	ID              int64     `db:"id"`
	CompanyBudgetID string    `db:"company_budget_id"`
	PersonalTxID    string    `db:"personal_tx_id"`
	CompanyTxID     string    `db:"company_tx_id"`
	PersonalAmount  int64     `db:"personal_amount"`
	CompanyAmount   int64     `db:"company_amount"`
	ExchangeRate    string    `db:"exchange_rate"`
	TransactionDate string    `db:"transaction_date"`
	SourceBudget    string    `db:"source_budget"`
	SyncStatus      string    `db:"sync_status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// LinkedTransaction records that two independently created ledger entries
// represent one real-world transfer.
type LinkedTransaction struct {
	ID            int64     `db:"id"`
	BudgetIDA     string    `db:"budget_id_a"`
	TxIDA         string    `db:"tx_id_a"`
	BudgetIDB     string    `db:"budget_id_b"`
	TxIDB         string    `db:"tx_id_b"`
	Amount        int64     `db:"amount"`
	Date          string    `db:"date"`
	LinkType      string    `db:"link_type"`
	IsAutoMatched bool      `db:"is_auto_matched"`
	CreatedAt     time.Time `db:"created_at"`
}

// SyncWatermark tracks how much of a budget's history has been consumed.
type SyncWatermark struct {
	BudgetID      string       `db:"budget_id" json:"budget_id"`
	LastWatermark string       `db:"last_watermark" json:"last_watermark"`
	LastRunAt     sql.NullTime `db:"last_run_at" json:"-"`
	LastStatus    string       `db:"last_status" json:"last_status"`
	LastError     string       `db:"last_error" json:"last_error,omitempty"`
	TotalSynced   int64        `db:"total_synced" json:"total_synced"`
}

// SyncLogEntry is one appended decision in the audit trail.
type SyncLogEntry struct {
	ID           int64     `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	BudgetID     string    `db:"budget_id" json:"budget_id"`
	Action       string    `db:"action" json:"action"`
	TxID         string    `db:"tx_id" json:"tx_id"`
	MirrorTxID   string    `db:"mirror_tx_id" json:"mirror_tx_id,omitempty"`
	Details      string    `db:"details" json:"details,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Stats represents aggregate sync statistics.
type Stats struct {
	ActiveMappings     int            `db:"-" json:"active_mappings"`
	LinkedTransactions int            `db:"-" json:"linked_transactions"`
	LogEntries         int            `db:"-" json:"log_entries"`
	LastRunAt          sql.NullString `db:"-" json:"-"`
}
