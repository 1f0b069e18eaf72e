// Package notification records notification facts. Delivery (IM, email,
// push) belongs to an external collaborator that drains the recorded facts.
package notification

import (
	"database/sql"
	"encoding/json"

	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/repository"
	"go.uber.org/zap"
)

// Notifier records finish and hurry-up facts through the notification
// repository.
type Notifier struct {
	repo   *repository.NotificationRepository
	logger *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(repo *repository.NotificationRepository, logger *zap.Logger) *Notifier {
	return &Notifier{repo: repo, logger: logger}
}

// Finish records that an activity finished with the given terminal state,
// addressed to its creator.
func (n *Notifier) Finish(tx *sql.Tx, profileID, activityID int64, state string) error {
	payload, _ := json.Marshal(map[string]string{"state": state})
	fact := &models.Notification{
		ProfileID:  profileID,
		ActivityID: activityID,
		Category:   models.NotificationFinish,
		Payload:    string(payload),
	}
	if err := n.repo.Create(tx, fact); err != nil {
		return err
	}
	n.logger.Debug("Finish notification recorded",
		zap.Int64("profile_id", profileID),
		zap.Int64("activity_id", activityID),
		zap.String("state", state))
	return nil
}

// HurryUp records a reminder addressed to the active step's assignee.
func (n *Notifier) HurryUp(tx *sql.Tx, profileID, activityID, stepID int64) error {
	fact := &models.Notification{
		ProfileID:  profileID,
		ActivityID: activityID,
		StepID:     &stepID,
		Category:   models.NotificationHurryup,
		Payload:    "{}",
	}
	if err := n.repo.Create(tx, fact); err != nil {
		return err
	}
	n.logger.Debug("Hurry-up notification recorded",
		zap.Int64("profile_id", profileID),
		zap.Int64("step_id", stepID))
	return nil
}

// HurriedToday reports whether a hurry-up fact already exists for the step
// on the given day.
func (n *Notifier) HurriedToday(tx *sql.Tx, activityID, stepID int64, day string) (bool, error) {
	return n.repo.HurriedToday(tx, activityID, stepID, day)
}

// Purge removes the unread facts of a cancelled activity.
func (n *Notifier) Purge(tx *sql.Tx, activityID int64) error {
	return n.repo.PurgeByActivity(tx, activityID)
}
