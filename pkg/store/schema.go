// Package store provides SQLite persistence for account links, transaction
// mappings, linked transactions, sync watermarks and the decision log.
package store

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Account links table
-- Declares that a personal account and a company account are two views of
-- one economic event. Read-only to the reconciliation engine.
CREATE TABLE IF NOT EXISTS account_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_budget_id TEXT NOT NULL,
    company_name TEXT NOT NULL,
    personal_account_id TEXT NOT NULL,
    company_account_id TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    UNIQUE(company_budget_id, personal_account_id, company_account_id)
);

-- Company account links table
-- Symmetric link between accounts of two organizational budgets.
-- Same currency on both sides, no conversion.
CREATE TABLE IF NOT EXISTS company_account_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    budget_id_a TEXT NOT NULL,
    account_id_a TEXT NOT NULL,
    budget_id_b TEXT NOT NULL,
    account_id_b TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    UNIQUE(budget_id_a, account_id_a, budget_id_b, account_id_b)
);

-- Transaction mappings table
-- Single source of truth that one transaction mirrors another.
-- At most one active mapping per transaction id on either side.
CREATE TABLE IF NOT EXISTS transaction_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_budget_id TEXT NOT NULL,
    personal_tx_id TEXT NOT NULL,
    company_tx_id TEXT NOT NULL,
    personal_amount INTEGER NOT NULL,  -- milliunits
    company_amount INTEGER NOT NULL,   -- milliunits, opposite sign
    exchange_rate TEXT NOT NULL,       -- decimal string
    transaction_date TEXT NOT NULL,    -- YYYY-MM-DD
    source_budget TEXT NOT NULL,       -- 'personal' or 'company'
    sync_status TEXT NOT NULL DEFAULT 'active',  -- 'active', 'deleted', 'error'
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_mappings_personal_tx
    ON transaction_mappings(personal_tx_id, sync_status);

CREATE INDEX IF NOT EXISTS idx_mappings_company_tx
    ON transaction_mappings(company_tx_id, sync_status);

-- Linked transactions table
-- Records that two independently created ledger entries represent one
-- real-world transfer, so no mirror should exist for either.
CREATE TABLE IF NOT EXISTS linked_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    budget_id_a TEXT NOT NULL,
    tx_id_a TEXT NOT NULL,
    budget_id_b TEXT NOT NULL,
    tx_id_b TEXT NOT NULL,
    amount INTEGER NOT NULL,           -- milliunits
    date TEXT NOT NULL,                -- YYYY-MM-DD
    link_type TEXT NOT NULL DEFAULT 'transfer',
    is_auto_matched INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(tx_id_a),
    UNIQUE(tx_id_b)
);

-- Sync watermarks table
-- One row per budget; last_watermark is the opaque delta cursor from the
-- ledger service and the sole basis for delta fetches.
CREATE TABLE IF NOT EXISTS sync_watermarks (
    budget_id TEXT PRIMARY KEY,
    last_watermark TEXT NOT NULL DEFAULT '',
    last_run_at TIMESTAMP,
    last_status TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT '',
    total_synced INTEGER NOT NULL DEFAULT 0
);

-- Sync log table
-- Append-only audit trail of engine decisions, grouped by run id.
CREATE TABLE IF NOT EXISTS sync_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    budget_id TEXT NOT NULL,
    action TEXT NOT NULL,              -- 'create', 'update', 'delete', 'skip', 'error'
    tx_id TEXT,
    mirror_tx_id TEXT,
    details TEXT,                      -- JSON
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_log_run
    ON sync_log(run_id);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(s *Store) error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	return nil
}
