package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// BankAccountRepository handles bank account database operations
type BankAccountRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBankAccountRepository creates a new bank account repository
func NewBankAccountRepository(db *sql.DB, logger *zap.Logger) *BankAccountRepository {
	return &BankAccountRepository{db: db, logger: logger}
}

// Upsert inserts the account unless the (profile, name, bank, number) tuple
// already exists. Safe to call repeatedly.
func (r *BankAccountRepository) Upsert(tx *sql.Tx, acct *models.BankAccount) error {
	query := `
		INSERT OR IGNORE INTO bank_accounts (profile_id, name, bank, number)
		VALUES (?, ?, ?, ?)
	`
	if _, err := pick(r.db, tx).Exec(query, acct.ProfileID, acct.Name, acct.Bank, acct.Number); err != nil {
		r.logger.Error("Failed to upsert bank account", zap.Error(err))
		return fmt.Errorf("failed to upsert bank account: %w", err)
	}
	return nil
}

// ListByProfile returns a profile's captured accounts
func (r *BankAccountRepository) ListByProfile(tx *sql.Tx, profileID int64) ([]*models.BankAccount, error) {
	query := `
		SELECT id, profile_id, name, bank, number, created_at
		FROM bank_accounts
		WHERE profile_id = ?
		ORDER BY id
	`
	rows, err := pick(r.db, tx).Query(query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.BankAccount
	for rows.Next() {
		var a models.BankAccount
		if err := rows.Scan(&a.ID, &a.ProfileID, &a.Name, &a.Bank, &a.Number, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}
