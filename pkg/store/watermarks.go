package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetWatermark retrieves the sync watermark for a budget. Returns nil when
// the budget has never been synced.
func (s *Store) GetWatermark(budgetID string) (*SyncWatermark, error) {
	query := `
		SELECT budget_id, last_watermark, last_run_at, last_status, last_error, total_synced
		FROM sync_watermarks
		WHERE budget_id = ?
	`

	var w SyncWatermark
	err := s.db.Get(&w, query, budgetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}

	return &w, nil
}

// SetWatermark upserts the sync watermark for a budget.
func (s *Store) SetWatermark(w *SyncWatermark) error {
	query := `
		INSERT INTO sync_watermarks
			(budget_id, last_watermark, last_run_at, last_status, last_error, total_synced)
		VALUES (?, ?, CURRENT_TIMESTAMP, ?, ?, ?)
		ON CONFLICT(budget_id) DO UPDATE SET
			last_watermark = excluded.last_watermark,
			last_run_at = CURRENT_TIMESTAMP,
			last_status = excluded.last_status,
			last_error = excluded.last_error,
			total_synced = excluded.total_synced
	`

	_, err := s.db.Exec(query,
		w.BudgetID, w.LastWatermark, w.LastStatus, w.LastError, w.TotalSynced)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}

	return nil
}

// Watermarks retrieves all stored watermarks.
func (s *Store) Watermarks() ([]SyncWatermark, error) {
	query := `
		SELECT budget_id, last_watermark, last_run_at, last_status, last_error, total_synced
		FROM sync_watermarks
		ORDER BY budget_id
	`

	var watermarks []SyncWatermark
	if err := s.db.Select(&watermarks, query); err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}

	return watermarks, nil
}
