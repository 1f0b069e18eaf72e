package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// StepRepository handles audit step database operations
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

const stepColumns = `id, activity_id, position, assignee_id, department_id, position_id,
	state, active, abnormal, note, activated_at, finished_at, created_at`

// Create inserts a step
func (r *StepRepository) Create(tx *sql.Tx, s *models.AuditStep) error {
	query := `
		INSERT INTO audit_steps (activity_id, position, assignee_id, department_id, position_id, state, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query,
		s.ActivityID, s.Position, s.AssigneeID, s.DepartmentID, s.PositionID, s.State, s.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create step", zap.Error(err))
		return fmt.Errorf("failed to create step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// GetByID retrieves a step by id. Returns nil without error on miss.
func (r *StepRepository) GetByID(tx *sql.Tx, id int64) (*models.AuditStep, error) {
	query := `SELECT ` + stepColumns + ` FROM audit_steps WHERE id = ?`
	var s models.AuditStep
	err := pick(r.db, tx).QueryRow(query, id).Scan(
		&s.ID, &s.ActivityID, &s.Position, &s.AssigneeID, &s.DepartmentID, &s.PositionID,
		&s.State, &s.Active, &s.Abnormal, &s.Note, &s.ActivatedAt, &s.FinishedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return &s, nil
}

// ListByActivity returns the steps of an activity ordered by position
func (r *StepRepository) ListByActivity(tx *sql.Tx, activityID int64) ([]*models.AuditStep, error) {
	query := `SELECT ` + stepColumns + ` FROM audit_steps WHERE activity_id = ? ORDER BY position`
	rows, err := pick(r.db, tx).Query(query, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

// GetActive returns the single active step of an activity, or nil
func (r *StepRepository) GetActive(tx *sql.Tx, activityID int64) (*models.AuditStep, error) {
	query := `SELECT ` + stepColumns + ` FROM audit_steps WHERE activity_id = ? AND active = 1`
	var s models.AuditStep
	err := pick(r.db, tx).QueryRow(query, activityID).Scan(
		&s.ID, &s.ActivityID, &s.Position, &s.AssigneeID, &s.DepartmentID, &s.PositionID,
		&s.State, &s.Active, &s.Abnormal, &s.Note, &s.ActivatedAt, &s.FinishedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active step: %w", err)
	}
	return &s, nil
}

// GetByPosition returns the step at a position of an activity, or nil
func (r *StepRepository) GetByPosition(tx *sql.Tx, activityID int64, position int) (*models.AuditStep, error) {
	query := `SELECT ` + stepColumns + ` FROM audit_steps WHERE activity_id = ? AND position = ?`
	var s models.AuditStep
	err := pick(r.db, tx).QueryRow(query, activityID, position).Scan(
		&s.ID, &s.ActivityID, &s.Position, &s.AssigneeID, &s.DepartmentID, &s.PositionID,
		&s.State, &s.Active, &s.Abnormal, &s.Note, &s.ActivatedAt, &s.FinishedAt, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step by position: %w", err)
	}
	return &s, nil
}

// Decide atomically moves a pending, active step to a decided state. Returns
// false when the step was already decided or not active, so a concurrent
// second decision fails deterministically.
func (r *StepRepository) Decide(tx *sql.Tx, id int64, state, note string, finishedAt time.Time) (bool, error) {
	query := `
		UPDATE audit_steps
		SET state = ?, note = ?, active = 0, finished_at = ?
		WHERE id = ? AND state = 'pending' AND active = 1
	`
	result, err := pick(r.db, tx).Exec(query, state, note, finishedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to decide step: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// Activate marks a step active and stamps activated_at
func (r *StepRepository) Activate(tx *sql.Tx, id int64, at time.Time) error {
	query := `UPDATE audit_steps SET active = 1, activated_at = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, at, id); err != nil {
		return fmt.Errorf("failed to activate step: %w", err)
	}
	return nil
}

// Deactivate clears the active flag without deciding the step
func (r *StepRepository) Deactivate(tx *sql.Tx, id int64) error {
	query := `UPDATE audit_steps SET active = 0 WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to deactivate step: %w", err)
	}
	return nil
}

// SetAbnormal updates a step's abnormal flag
func (r *StepRepository) SetAbnormal(tx *sql.Tx, id int64, abnormal bool) error {
	query := `UPDATE audit_steps SET abnormal = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, abnormal, id); err != nil {
		return fmt.Errorf("failed to set step abnormal flag: %w", err)
	}
	return nil
}

// Reassign changes a step's assignee
func (r *StepRepository) Reassign(tx *sql.Tx, id, assigneeID int64) error {
	query := `UPDATE audit_steps SET assignee_id = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, assigneeID, id); err != nil {
		return fmt.Errorf("failed to reassign step: %w", err)
	}
	return nil
}

// CountPending returns (pending, total) step counts for an activity
func (r *StepRepository) CountPending(tx *sql.Tx, activityID int64) (pending, total int, err error) {
	query := `
		SELECT COUNT(CASE WHEN state = 'pending' THEN 1 END), COUNT(*)
		FROM audit_steps
		WHERE activity_id = ?
	`
	if err = pick(r.db, tx).QueryRow(query, activityID).Scan(&pending, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to count steps: %w", err)
	}
	return pending, total, nil
}

// ListPendingByAssignee returns the active pending steps awaiting a profile,
// scoped to non-archived processing activities.
func (r *StepRepository) ListPendingByAssignee(tx *sql.Tx, assigneeID int64) ([]*models.AuditStep, error) {
	query := `
		SELECT s.id, s.activity_id, s.position, s.assignee_id, s.department_id, s.position_id,
			s.state, s.active, s.abnormal, s.note, s.activated_at, s.finished_at, s.created_at
		FROM audit_steps s
		JOIN audit_activities a ON a.id = s.activity_id
		WHERE s.assignee_id = ? AND s.state = 'pending' AND s.active = 1
			AND a.state = 'processing' AND a.archived = 0
		ORDER BY s.activated_at
	`
	rows, err := pick(r.db, tx).Query(query, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

func scanSteps(rows *sql.Rows) ([]*models.AuditStep, error) {
	var steps []*models.AuditStep
	for rows.Next() {
		var s models.AuditStep
		if err := rows.Scan(
			&s.ID, &s.ActivityID, &s.Position, &s.AssigneeID, &s.DepartmentID, &s.PositionID,
			&s.State, &s.Active, &s.Abnormal, &s.Note, &s.ActivatedAt, &s.FinishedAt, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}
