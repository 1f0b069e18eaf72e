// Package bank captures payout accounts from activity payloads of
// financially-tagged subtypes.
package bank

import (
	"database/sql"

	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/repository"
	"go.uber.org/zap"
)

// Accounts upserts bank accounts found in activity payloads. The upsert is
// idempotent on (profile, name, bank, number), so re-submissions and
// relaunches never duplicate.
type Accounts struct {
	repo   *repository.BankAccountRepository
	logger *zap.Logger
}

// NewAccounts creates the bank account capturer
func NewAccounts(repo *repository.BankAccountRepository, logger *zap.Logger) *Accounts {
	return &Accounts{repo: repo, logger: logger}
}

// CaptureFromPayload scans top-level payload values for bank-account-shaped
// sub-objects (name, bank, number all present and non-empty) and upserts
// each for the creator.
func (a *Accounts) CaptureFromPayload(tx *sql.Tx, profileID int64, payload map[string]interface{}) error {
	for _, v := range payload {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := obj["name"].(string)
		bank, _ := obj["bank"].(string)
		number, _ := obj["number"].(string)
		if name == "" || bank == "" || number == "" {
			continue
		}

		acct := &models.BankAccount{
			ProfileID: profileID,
			Name:      name,
			Bank:      bank,
			Number:    number,
		}
		if err := a.repo.Upsert(tx, acct); err != nil {
			return err
		}
		a.logger.Debug("Bank account captured",
			zap.Int64("profile_id", profileID),
			zap.String("bank", bank))
	}
	return nil
}
