package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateMapping inserts a new transaction mapping and fills in its id.
func (s *Store) CreateMapping(m *TransactionMapping) error {
	if m.SyncStatus == "" {
		m.SyncStatus = StatusActive
	}

	query := `
		INSERT INTO transaction_mappings
			(company_budget_id, personal_tx_id, company_tx_id, personal_amount,
			 company_amount, exchange_rate, transaction_date, source_budget, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		m.CompanyBudgetID,
		m.PersonalTxID,
		m.CompanyTxID,
		m.PersonalAmount,
		m.CompanyAmount,
		m.ExchangeRate,
		m.TransactionDate,
		m.SourceBudget,
		m.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get mapping id: %w", err)
	}
	m.ID = id

	return nil
}

// UpdateMapping overwrites the mutable fields of an existing mapping row.
func (s *Store) UpdateMapping(m *TransactionMapping) error {
	query := `
		UPDATE transaction_mappings
		SET company_tx_id = ?, personal_tx_id = ?, personal_amount = ?,
		    company_amount = ?, exchange_rate = ?, transaction_date = ?,
		    sync_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		m.CompanyTxID,
		m.PersonalTxID,
		m.PersonalAmount,
		m.CompanyAmount,
		m.ExchangeRate,
		m.TransactionDate,
		m.SyncStatus,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mapping: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mapping %d not found", m.ID)
	}

	return nil
}

// GetMappingByPersonalTx retrieves the active mapping whose personal-side
// transaction id matches. Returns nil when no active mapping exists.
func (s *Store) GetMappingByPersonalTx(txID string) (*TransactionMapping, error) {
	return s.getMapping(`personal_tx_id = ?`, txID)
}

// GetMappingByCompanyTx retrieves the active mapping whose company-side
// transaction id matches. Returns nil when no active mapping exists.
func (s *Store) GetMappingByCompanyTx(txID string) (*TransactionMapping, error) {
	return s.getMapping(`company_tx_id = ?`, txID)
}

// GetMappingByTx retrieves the active mapping referencing the transaction id
// on either side.
func (s *Store) GetMappingByTx(txID string) (*TransactionMapping, error) {
	return s.getMapping(`(personal_tx_id = ? OR company_tx_id = ?)`, txID, txID)
}

func (s *Store) getMapping(cond string, args ...any) (*TransactionMapping, error) {
	query := `
		SELECT id, company_budget_id, personal_tx_id, company_tx_id,
		       personal_amount, company_amount, exchange_rate, transaction_date,
		       source_budget, sync_status, created_at, updated_at
		FROM transaction_mappings
		WHERE ` + cond + ` AND sync_status = 'active'
	`

	var m TransactionMapping
	err := s.db.Get(&m, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return &m, nil
}

// ActiveMappings retrieves all active mappings, newest first.
func (s *Store) ActiveMappings() ([]TransactionMapping, error) {
	query := `
		SELECT id, company_budget_id, personal_tx_id, company_tx_id,
		       personal_amount, company_amount, exchange_rate, transaction_date,
		       source_budget, sync_status, created_at, updated_at
		FROM transaction_mappings
		WHERE sync_status = 'active'
		ORDER BY id DESC
	`

	var mappings []TransactionMapping
	if err := s.db.Select(&mappings, query); err != nil {
		return nil, fmt.Errorf("failed to list active mappings: %w", err)
	}

	return mappings, nil
}
