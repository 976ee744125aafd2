package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// AccountLinks retrieves all active personal-to-company account links.
func (s *Store) AccountLinks() ([]AccountLink, error) {
	query := `
		SELECT id, company_budget_id, company_name, personal_account_id,
		       company_account_id, active
		FROM account_links
		WHERE active = 1
		ORDER BY company_budget_id, id
	`

	var links []AccountLink
	if err := s.db.Select(&links, query); err != nil {
		return nil, fmt.Errorf("failed to list account links: %w", err)
	}

	return links, nil
}

// CompanyAccountLinks retrieves all active company-to-company account links.
func (s *Store) CompanyAccountLinks() ([]CompanyAccountLink, error) {
	query := `
		SELECT id, budget_id_a, account_id_a, budget_id_b, account_id_b, active
		FROM company_account_links
		WHERE active = 1
		ORDER BY id
	`

	var links []CompanyAccountLink
	if err := s.db.Select(&links, query); err != nil {
		return nil, fmt.Errorf("failed to list company account links: %w", err)
	}

	return links, nil
}

// CreateAccountLink inserts a personal-to-company account link.
func (s *Store) CreateAccountLink(link *AccountLink) error {
	query := `
		INSERT INTO account_links
			(company_budget_id, company_name, personal_account_id, company_account_id, active)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		link.CompanyBudgetID, link.CompanyName,
		link.PersonalAccountID, link.CompanyAccountID, link.Active)
	if err != nil {
		return fmt.Errorf("failed to create account link: %w", err)
	}

	link.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account link id: %w", err)
	}
	return nil
}

// CreateCompanyAccountLink inserts a company-to-company account link.
func (s *Store) CreateCompanyAccountLink(link *CompanyAccountLink) error {
	query := `
		INSERT INTO company_account_links
			(budget_id_a, account_id_a, budget_id_b, account_id_b, active)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		link.BudgetIDA, link.AccountIDA, link.BudgetIDB, link.AccountIDB, link.Active)
	if err != nil {
		return fmt.Errorf("failed to create company account link: %w", err)
	}

	link.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get company account link id: %w", err)
	}
	return nil
}

// CreateLinkedTransaction records that two ledger entries represent one
// real-world transfer.
func (s *Store) CreateLinkedTransaction(lt *LinkedTransaction) error {
	if lt.LinkType == "" {
		lt.LinkType = "transfer"
	}

	query := `
		INSERT INTO linked_transactions
			(budget_id_a, tx_id_a, budget_id_b, tx_id_b, amount, date, link_type, is_auto_matched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		lt.BudgetIDA, lt.TxIDA, lt.BudgetIDB, lt.TxIDB,
		lt.Amount, lt.Date, lt.LinkType, lt.IsAutoMatched)
	if err != nil {
		return fmt.Errorf("failed to create linked transaction: %w", err)
	}

	lt.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get linked transaction id: %w", err)
	}
	return nil
}

// IsTransactionLinked reports whether a transaction id appears in any linked
// transaction record, on either side.
func (s *Store) IsTransactionLinked(txID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM linked_transactions
		WHERE tx_id_a = ? OR tx_id_b = ?
	`

	var count int
	if err := s.db.QueryRow(query, txID, txID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check linked transaction: %w", err)
	}

	return count > 0, nil
}

// GetLinkedTransactionByTx retrieves the linked transaction record containing
// the transaction id, or nil when none exists.
func (s *Store) GetLinkedTransactionByTx(txID string) (*LinkedTransaction, error) {
	query := `
		SELECT id, budget_id_a, tx_id_a, budget_id_b, tx_id_b, amount, date,
		       link_type, is_auto_matched, created_at
		FROM linked_transactions
		WHERE tx_id_a = ? OR tx_id_b = ?
	`

	var lt LinkedTransaction
	err := s.db.Get(&lt, query, txID, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked transaction: %w", err)
	}

	return &lt, nil
}
