package models

import "time"

// BankAccount is a payout account captured from activity payloads of
// financially-tagged subtypes. Upserts are idempotent on
// (profile, name, bank, number).
type BankAccount struct {
	ID        int64     `json:"id"`
	ProfileID int64     `json:"profile_id"`
	Name      string    `json:"name"`
	Bank      string    `json:"bank"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}
