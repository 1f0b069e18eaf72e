package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// ActivityRepository handles audit activity database operations
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sql.DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

const activityColumns = `id, seq_num, config_id, category, subtype, creator_id, extra,
	state, task_state, archived, created_at, updated_at, finished_at`

// Create inserts an activity
func (r *ActivityRepository) Create(tx *sql.Tx, a *models.AuditActivity) error {
	query := `
		INSERT INTO audit_activities (seq_num, config_id, category, subtype, creator_id, extra, state, task_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query,
		a.SeqNum, a.ConfigID, a.Category, a.Subtype, a.CreatorID, a.Extra, a.State, a.TaskState,
	)
	if err != nil {
		r.logger.Error("Failed to create activity", zap.Error(err))
		return fmt.Errorf("failed to create activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// GetByID retrieves an activity by id. Returns nil without error on miss.
func (r *ActivityRepository) GetByID(tx *sql.Tx, id int64) (*models.AuditActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM audit_activities WHERE id = ?`
	var a models.AuditActivity
	err := pick(r.db, tx).QueryRow(query, id).Scan(
		&a.ID, &a.SeqNum, &a.ConfigID, &a.Category, &a.Subtype, &a.CreatorID, &a.Extra,
		&a.State, &a.TaskState, &a.Archived, &a.CreatedAt, &a.UpdatedAt, &a.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return &a, nil
}

// UpdateState sets the activity state, optionally stamping finished_at
func (r *ActivityRepository) UpdateState(tx *sql.Tx, id int64, state string, finishedAt *time.Time) error {
	query := `
		UPDATE audit_activities
		SET state = ?, finished_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := pick(r.db, tx).Exec(query, state, finishedAt, id); err != nil {
		return fmt.Errorf("failed to update activity state: %w", err)
	}
	return nil
}

// SetTaskState updates the post-approval task substate
func (r *ActivityRepository) SetTaskState(tx *sql.Tx, id int64, taskState string) error {
	query := `UPDATE audit_activities SET task_state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, taskState, id); err != nil {
		return fmt.Errorf("failed to update task state: %w", err)
	}
	return nil
}

// SetArchived marks an activity archived, removing it from active listings
// while preserving its state for history.
func (r *ActivityRepository) SetArchived(tx *sql.Tx, id int64) error {
	query := `UPDATE audit_activities SET archived = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to archive activity: %w", err)
	}
	return nil
}

// ListByState returns non-archived activities in the given state
func (r *ActivityRepository) ListByState(tx *sql.Tx, state string) ([]*models.AuditActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM audit_activities WHERE state = ? AND archived = 0 ORDER BY id`
	rows, err := pick(r.db, tx).Query(query, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

// ListByCreator returns a creator's non-archived activities, newest first
func (r *ActivityRepository) ListByCreator(tx *sql.Tx, creatorID int64, limit, offset int) ([]*models.AuditActivity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM audit_activities
		WHERE creator_id = ? AND archived = 0
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := pick(r.db, tx).Query(query, creatorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()
	return scanActivities(rows)
}

// NextSequence increments and returns the daily activity counter. Runs under
// the caller's transaction so concurrent creations serialize on the row.
func (r *ActivityRepository) NextSequence(tx *sql.Tx, day string) (int64, error) {
	query := `
		INSERT INTO activity_counters (day, counter) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET counter = counter + 1
		RETURNING counter
	`
	var counter int64
	if err := pick(r.db, tx).QueryRow(query, day).Scan(&counter); err != nil {
		return 0, fmt.Errorf("failed to advance activity counter: %w", err)
	}
	return counter, nil
}

func scanActivities(rows *sql.Rows) ([]*models.AuditActivity, error) {
	var activities []*models.AuditActivity
	for rows.Next() {
		var a models.AuditActivity
		if err := rows.Scan(
			&a.ID, &a.SeqNum, &a.ConfigID, &a.Category, &a.Subtype, &a.CreatorID, &a.Extra,
			&a.State, &a.TaskState, &a.Archived, &a.CreatedAt, &a.UpdatedAt, &a.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}
