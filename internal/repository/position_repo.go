package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, logger *zap.Logger) *PositionRepository {
	return &PositionRepository{db: db, logger: logger}
}

// Create inserts a position
func (r *PositionRepository) Create(tx *sql.Tx, pos *models.Position) error {
	query := `INSERT INTO positions (code, name) VALUES (?, ?)`
	result, err := pick(r.db, tx).Exec(query, pos.Code, pos.Name)
	if err != nil {
		r.logger.Error("Failed to create position", zap.Error(err))
		return fmt.Errorf("failed to create position: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	pos.ID = id
	return nil
}

// GetByID retrieves a position by id. Returns nil without error on miss.
func (r *PositionRepository) GetByID(tx *sql.Tx, id int64) (*models.Position, error) {
	query := `SELECT id, COALESCE(code, ''), name, archived, created_at FROM positions WHERE id = ?`
	var pos models.Position
	err := pick(r.db, tx).QueryRow(query, id).Scan(
		&pos.ID, &pos.Code, &pos.Name, &pos.Archived, &pos.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &pos, nil
}

// FindByCodeOrName resolves a position by business code, falling back to name
func (r *PositionRepository) FindByCodeOrName(tx *sql.Tx, key string) (*models.Position, error) {
	query := `
		SELECT id, COALESCE(code, ''), name, archived, created_at
		FROM positions
		WHERE archived = 0 AND (code = ? OR name = ?)
		ORDER BY CASE WHEN code = ? THEN 0 ELSE 1 END, id
		LIMIT 1
	`
	var pos models.Position
	err := pick(r.db, tx).QueryRow(query, key, key, key).Scan(
		&pos.ID, &pos.Code, &pos.Name, &pos.Archived, &pos.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find position: %w", err)
	}
	return &pos, nil
}

// List returns all non-archived positions
func (r *PositionRepository) List(tx *sql.Tx) ([]*models.Position, error) {
	query := `SELECT id, COALESCE(code, ''), name, archived, created_at FROM positions WHERE archived = 0 ORDER BY id`
	rows, err := pick(r.db, tx).Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.ID, &pos.Code, &pos.Name, &pos.Archived, &pos.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &pos)
	}
	return positions, rows.Err()
}

// Archive soft-deletes a position
func (r *PositionRepository) Archive(tx *sql.Tx, id int64) error {
	query := `UPDATE positions SET archived = 1 WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to archive position: %w", err)
	}
	return nil
}
