// Package repository implements the persistence collaborator over SQLite.
// Every mutating method takes an optional *sql.Tx so multi-entity writes can
// share one transaction; a nil tx falls back to the pooled connection.
package repository

import "database/sql"

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func pick(db *sql.DB, tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return db
}
