package workflow

import (
	"database/sql"
	"time"

	"github.com/moxworks/auditflow/internal/models"
)

// Collaborator interfaces of the engine and reconciler. The repository
// package satisfies the store interfaces; a nil tx means auto-commit.

// TxRunner groups multi-entity writes into one transaction.
type TxRunner interface {
	WithTransaction(fn func(*sql.Tx) error) error
}

// ProfileStore reads people for assignee resolution.
type ProfileStore interface {
	GetByID(tx *sql.Tx, id int64) (*models.Profile, error)
	FindAssignable(tx *sql.Tx, departmentID, positionID int64) ([]*models.Profile, error)
}

// ConfigStore reads and administers routing templates.
type ConfigStore interface {
	Create(tx *sql.Tx, cfg *models.AuditConfig) error
	GetByID(tx *sql.Tx, id int64) (*models.AuditConfig, error)
	ListBySubtype(tx *sql.Tx, subtype string) ([]*models.AuditConfig, error)
	ListActive(tx *sql.Tx) ([]*models.AuditConfig, error)
	ListAbnormal(tx *sql.Tx) ([]*models.AuditConfig, error)
	FindFallback(tx *sql.Tx, subtype string) (*models.AuditConfig, error)
	SetAbnormal(tx *sql.Tx, id int64, abnormal bool) error
	SetStepAbnormal(tx *sql.Tx, stepID int64, abnormal bool) error
	Archive(tx *sql.Tx, id int64) error
}

// ActivityStore persists activities.
type ActivityStore interface {
	Create(tx *sql.Tx, a *models.AuditActivity) error
	GetByID(tx *sql.Tx, id int64) (*models.AuditActivity, error)
	UpdateState(tx *sql.Tx, id int64, state string, finishedAt *time.Time) error
	SetTaskState(tx *sql.Tx, id int64, taskState string) error
	SetArchived(tx *sql.Tx, id int64) error
	ListByState(tx *sql.Tx, state string) ([]*models.AuditActivity, error)
	ListByCreator(tx *sql.Tx, creatorID int64, limit, offset int) ([]*models.AuditActivity, error)
	NextSequence(tx *sql.Tx, day string) (int64, error)
}

// StepStore persists activity steps.
type StepStore interface {
	Create(tx *sql.Tx, s *models.AuditStep) error
	GetByID(tx *sql.Tx, id int64) (*models.AuditStep, error)
	ListByActivity(tx *sql.Tx, activityID int64) ([]*models.AuditStep, error)
	GetActive(tx *sql.Tx, activityID int64) (*models.AuditStep, error)
	GetByPosition(tx *sql.Tx, activityID int64, position int) (*models.AuditStep, error)
	Decide(tx *sql.Tx, id int64, state, note string, finishedAt time.Time) (bool, error)
	Activate(tx *sql.Tx, id int64, at time.Time) error
	Deactivate(tx *sql.Tx, id int64) error
	SetAbnormal(tx *sql.Tx, id int64, abnormal bool) error
	Reassign(tx *sql.Tx, id, assigneeID int64) error
	CountPending(tx *sql.Tx, activityID int64) (pending, total int, err error)
	ListPendingByAssignee(tx *sql.Tx, assigneeID int64) ([]*models.AuditStep, error)
}

// Notifier records notification intent; delivery is external.
type Notifier interface {
	Finish(tx *sql.Tx, profileID, activityID int64, state string) error
	HurryUp(tx *sql.Tx, profileID, activityID, stepID int64) error
	HurriedToday(tx *sql.Tx, activityID, stepID int64, day string) (bool, error)
	Purge(tx *sql.Tx, activityID int64) error
}

// AccountCapturer is the bank-account side-effect collaborator.
type AccountCapturer interface {
	CaptureFromPayload(tx *sql.Tx, profileID int64, payload map[string]interface{}) error
}

// DepartmentStore, PositionStore and LinkStore give the reconciler its view
// of the organization directory.
type DepartmentStore interface {
	GetByID(tx *sql.Tx, id int64) (*models.Department, error)
}

type PositionStore interface {
	GetByID(tx *sql.Tx, id int64) (*models.Position, error)
}

type LinkStore interface {
	Exists(tx *sql.Tx, departmentID, positionID int64) (bool, error)
}
