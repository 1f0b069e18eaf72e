package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// ProfileRepository handles profile database operations
type ProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, logger: logger}
}

const profileColumns = `id, name, department_id, position_id, archived, blocked, created_at, updated_at`

// Create inserts a profile
func (r *ProfileRepository) Create(tx *sql.Tx, p *models.Profile) error {
	query := `
		INSERT INTO profiles (name, department_id, position_id)
		VALUES (?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query, p.Name, p.DepartmentID, p.PositionID)
	if err != nil {
		r.logger.Error("Failed to create profile", zap.Error(err))
		return fmt.Errorf("failed to create profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a profile by id. Returns nil without error on miss.
func (r *ProfileRepository) GetByID(tx *sql.Tx, id int64) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	return r.scanOne(pick(r.db, tx).QueryRow(query, id))
}

// GetByName retrieves a profile by its unique name
func (r *ProfileRepository) GetByName(tx *sql.Tx, name string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE name = ?`
	return r.scanOne(pick(r.db, tx).QueryRow(query, name))
}

// UpdateAssignment moves a profile to a new department/position pair
func (r *ProfileRepository) UpdateAssignment(tx *sql.Tx, id int64, departmentID, positionID *int64) error {
	query := `
		UPDATE profiles
		SET department_id = ?, position_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := pick(r.db, tx).Exec(query, departmentID, positionID, id); err != nil {
		return fmt.Errorf("failed to update profile assignment: %w", err)
	}
	return nil
}

// DetachPosition clears the position of every non-archived profile holding
// it. Run when the position is retired, so the slot's workflows see zero
// candidates until somebody is placed on it again.
func (r *ProfileRepository) DetachPosition(tx *sql.Tx, positionID int64) error {
	query := `
		UPDATE profiles
		SET position_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE position_id = ? AND archived = 0
	`
	if _, err := pick(r.db, tx).Exec(query, positionID); err != nil {
		return fmt.Errorf("failed to detach profiles from position: %w", err)
	}
	return nil
}

// Archive soft-deletes a profile (departure)
func (r *ProfileRepository) Archive(tx *sql.Tx, id int64) error {
	query := `UPDATE profiles SET archived = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to archive profile: %w", err)
	}
	return nil
}

// FindAssignable returns the non-archived, non-blocked profiles holding the
// given department/position pair, in stable id order. The pair itself must
// still be linked; staff of an unlinked pair are organizationally orphaned
// and excluded from routing. The department and position archived flags do
// not factor in: archival retires the current holders elsewhere, and anyone
// later placed on a still-linked pair is eligible again.
func (r *ProfileRepository) FindAssignable(tx *sql.Tx, departmentID, positionID int64) ([]*models.Profile, error) {
	query := `
		SELECT p.id, p.name, p.department_id, p.position_id, p.archived, p.blocked, p.created_at, p.updated_at
		FROM profiles p
		JOIN department_positions dp
			ON dp.department_id = p.department_id AND dp.position_id = p.position_id
		WHERE p.department_id = ? AND p.position_id = ?
			AND p.archived = 0 AND p.blocked = 0
		ORDER BY p.id
	`
	rows, err := pick(r.db, tx).Query(query, departmentID, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find assignable profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(
			&p.ID, &p.Name, &p.DepartmentID, &p.PositionID,
			&p.Archived, &p.Blocked, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (r *ProfileRepository) scanOne(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.ID, &p.Name, &p.DepartmentID, &p.PositionID,
		&p.Archived, &p.Blocked, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}
