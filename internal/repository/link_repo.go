package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// LinkRepository handles the department-position linkage table
type LinkRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLinkRepository creates a new linkage repository
func NewLinkRepository(db *sql.DB, logger *zap.Logger) *LinkRepository {
	return &LinkRepository{db: db, logger: logger}
}

// Link creates a department-position pair. Adding an existing pair is a no-op.
func (r *LinkRepository) Link(tx *sql.Tx, departmentID, positionID int64) error {
	query := `
		INSERT OR IGNORE INTO department_positions (department_id, position_id)
		VALUES (?, ?)
	`
	if _, err := pick(r.db, tx).Exec(query, departmentID, positionID); err != nil {
		r.logger.Error("Failed to link department and position", zap.Error(err))
		return fmt.Errorf("failed to create linkage: %w", err)
	}
	return nil
}

// Unlink removes a department-position pair
func (r *LinkRepository) Unlink(tx *sql.Tx, departmentID, positionID int64) error {
	query := `DELETE FROM department_positions WHERE department_id = ? AND position_id = ?`
	if _, err := pick(r.db, tx).Exec(query, departmentID, positionID); err != nil {
		return fmt.Errorf("failed to remove linkage: %w", err)
	}
	return nil
}

// UnlinkDepartment removes every linkage of a department. Used when a
// department is archived.
func (r *LinkRepository) UnlinkDepartment(tx *sql.Tx, departmentID int64) error {
	query := `DELETE FROM department_positions WHERE department_id = ?`
	if _, err := pick(r.db, tx).Exec(query, departmentID); err != nil {
		return fmt.Errorf("failed to remove department linkages: %w", err)
	}
	return nil
}

// Exists reports whether the department-position pair is linked
func (r *LinkRepository) Exists(tx *sql.Tx, departmentID, positionID int64) (bool, error) {
	query := `SELECT 1 FROM department_positions WHERE department_id = ? AND position_id = ?`
	var one int
	err := pick(r.db, tx).QueryRow(query, departmentID, positionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check linkage: %w", err)
	}
	return true, nil
}

// ListByDepartment returns the linkages of a department
func (r *LinkRepository) ListByDepartment(tx *sql.Tx, departmentID int64) ([]*models.DepartmentPosition, error) {
	query := `
		SELECT id, department_id, position_id
		FROM department_positions
		WHERE department_id = ?
		ORDER BY id
	`
	rows, err := pick(r.db, tx).Query(query, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linkages: %w", err)
	}
	defer rows.Close()

	var links []*models.DepartmentPosition
	for rows.Next() {
		var link models.DepartmentPosition
		if err := rows.Scan(&link.ID, &link.DepartmentID, &link.PositionID); err != nil {
			return nil, fmt.Errorf("failed to scan linkage: %w", err)
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}
