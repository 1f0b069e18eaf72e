package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// NotificationRepository handles notification fact database operations
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// Create records a notification fact
func (r *NotificationRepository) Create(tx *sql.Tx, n *models.Notification) error {
	query := `
		INSERT INTO notifications (profile_id, activity_id, step_id, category, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query, n.ProfileID, n.ActivityID, n.StepID, n.Category, n.Payload)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListByProfile returns a profile's notifications, newest first
func (r *NotificationRepository) ListByProfile(tx *sql.Tx, profileID int64, limit, offset int) ([]*models.Notification, error) {
	query := `
		SELECT id, profile_id, activity_id, step_id, category, payload, is_read, created_at
		FROM notifications
		WHERE profile_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := pick(r.db, tx).Query(query, profileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.ProfileID, &n.ActivityID, &n.StepID,
			&n.Category, &n.Payload, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkRead marks a notification read
func (r *NotificationRepository) MarkRead(tx *sql.Tx, id int64) error {
	query := `UPDATE notifications SET is_read = 1 WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// PurgeByActivity deletes the unread pending facts of an activity. Called
// when the activity is cancelled.
func (r *NotificationRepository) PurgeByActivity(tx *sql.Tx, activityID int64) error {
	query := `DELETE FROM notifications WHERE activity_id = ? AND is_read = 0`
	if _, err := pick(r.db, tx).Exec(query, activityID); err != nil {
		return fmt.Errorf("failed to purge notifications: %w", err)
	}
	return nil
}

// HurriedToday reports whether a hurry-up fact already exists for the step
// on the given day (YYYY-MM-DD). Backs the hurry-up cooldown.
func (r *NotificationRepository) HurriedToday(tx *sql.Tx, activityID, stepID int64, day string) (bool, error) {
	query := `
		SELECT 1 FROM notifications
		WHERE activity_id = ? AND step_id = ? AND category = ?
			AND date(created_at) = ?
		LIMIT 1
	`
	var one int
	err := pick(r.db, tx).QueryRow(query, activityID, stepID, models.NotificationHurryup, day).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check hurry-up state: %w", err)
	}
	return true, nil
}
