package store

import (
	"database/sql"
	"fmt"
)

// AppendLogEntry appends one decision to the audit trail.
func (s *Store) AppendLogEntry(e *SyncLogEntry) error {
	query := `
		INSERT INTO sync_log (run_id, budget_id, action, tx_id, mirror_tx_id, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		e.RunID, e.BudgetID, e.Action, e.TxID, e.MirrorTxID, e.Details, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get log entry id: %w", err)
	}
	return nil
}

// LogEntriesByRun retrieves the decision log for one run, in append order.
func (s *Store) LogEntriesByRun(runID string) ([]SyncLogEntry, error) {
	query := `
		SELECT id, run_id, budget_id, action, tx_id, mirror_tx_id, details, error_message, created_at
		FROM sync_log
		WHERE run_id = ?
		ORDER BY id ASC
	`

	var entries []SyncLogEntry
	if err := s.db.Select(&entries, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get log entries: %w", err)
	}

	return entries, nil
}

// GetStats retrieves aggregate sync statistics.
func (s *Store) GetStats() (*Stats, error) {
	var stats Stats

	err := s.db.QueryRow(`SELECT COUNT(*) FROM transaction_mappings WHERE sync_status = 'active'`).Scan(&stats.ActiveMappings)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping count: %w", err)
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM linked_transactions`).Scan(&stats.LinkedTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to get linked transaction count: %w", err)
	}

	err = s.db.QueryRow(`SELECT COUNT(*) FROM sync_log`).Scan(&stats.LogEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to get log entry count: %w", err)
	}

	err = s.db.QueryRow(`SELECT MAX(last_run_at) FROM sync_watermarks`).Scan(&stats.LastRunAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}

	return &stats, nil
}
