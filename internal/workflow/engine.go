package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/moxworks/auditflow/internal/domain/workflow"
	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// Engine drives the audit activity lifecycle: template resolution, step
// materialization, sequential approval and rejection, cancellation, relaunch
// and hurry-up reminders. Every multi-entity mutation runs in one
// transaction.
type Engine struct {
	db         TxRunner
	profiles   ProfileStore
	configs    ConfigStore
	activities ActivityStore
	steps      StepStore
	notifier   Notifier
	accounts   AccountCapturer

	// financialCategories are template categories whose payloads are
	// scanned for bank-account sub-objects on creation.
	financialCategories map[string]bool

	now    func() time.Time
	logger *zap.Logger
}

// NewEngine creates a workflow engine
func NewEngine(
	db TxRunner,
	profiles ProfileStore,
	configs ConfigStore,
	activities ActivityStore,
	steps StepStore,
	notifier Notifier,
	accounts AccountCapturer,
	financialCategories []string,
	logger *zap.Logger,
) *Engine {
	catSet := make(map[string]bool, len(financialCategories))
	for _, c := range financialCategories {
		catSet[c] = true
	}
	return &Engine{
		db:                  db,
		profiles:            profiles,
		configs:             configs,
		activities:          activities,
		steps:               steps,
		notifier:            notifier,
		accounts:            accounts,
		financialCategories: catSet,
		now:                 time.Now,
		logger:              logger,
	}
}

// CreateActivityInput is the creation request. ConfigID short-circuits
// template resolution when a concrete template is addressed directly.
type CreateActivityInput struct {
	CreatorID int64
	Subtype   string
	ConfigID  int64
	Payload   map[string]interface{}
	Submit    bool
}

// CreateActivity resolves the routing template, creates the activity and
// materializes its steps against the current directory. Template steps
// without an eligible candidate are skipped entirely, so materialized
// positions stay contiguous from zero.
func (e *Engine) CreateActivity(ctx context.Context, in CreateActivityInput) (*models.AuditActivity, error) {
	creator, err := e.profiles.GetByID(nil, in.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil || creator.Archived {
		return nil, fmt.Errorf("creator %d: %w", in.CreatorID, ErrNotFound)
	}

	cfg, err := e.resolveConfig(nil, in, creator)
	if err != nil {
		return nil, err
	}

	var activity *models.AuditActivity
	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		activity, err = e.createActivityTx(ctx, tx, creator, cfg, in.Payload, in.Submit)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Activity created",
		zap.Int64("activity_id", activity.ID),
		zap.String("seq_num", activity.SeqNum),
		zap.String("subtype", activity.Subtype),
		zap.String("state", activity.State))
	return activity, nil
}

func (e *Engine) resolveConfig(tx *sql.Tx, in CreateActivityInput, creator *models.Profile) (*models.AuditConfig, error) {
	if in.ConfigID != 0 {
		cfg, err := e.configs.GetByID(tx, in.ConfigID)
		if err != nil {
			return nil, err
		}
		if cfg == nil || cfg.Archived {
			return nil, fmt.Errorf("template %d: %w", in.ConfigID, ErrTemplateNotFound)
		}
		return cfg, nil
	}

	candidates, err := e.configs.ListBySubtype(tx, in.Subtype)
	if err != nil {
		return nil, err
	}
	cfg, err := SelectConfig(candidates, in.Payload, CreatorOf(creator))
	if err != nil {
		return nil, fmt.Errorf("subtype %q: %w", in.Subtype, err)
	}
	return cfg, nil
}

func (e *Engine) createActivityTx(
	ctx context.Context,
	tx *sql.Tx,
	creator *models.Profile,
	cfg *models.AuditConfig,
	payload map[string]interface{},
	submit bool,
) (*models.AuditActivity, error) {
	extra, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	day := e.now().Format("20060102")
	counter, err := e.activities.NextSequence(tx, day)
	if err != nil {
		return nil, err
	}

	activity := &models.AuditActivity{
		SeqNum:    fmt.Sprintf("%s-%03d", day, counter),
		ConfigID:  cfg.ID,
		Category:  cfg.Category,
		Subtype:   cfg.Subtype,
		CreatorID: creator.ID,
		Extra:     string(extra),
		State:     models.ActivityDraft,
		TaskState: models.TaskNone,
		CreatedAt: e.now(),
	}
	if err := e.activities.Create(tx, activity); err != nil {
		return nil, err
	}

	materialized, err := e.materializeSteps(tx, activity, cfg, creator)
	if err != nil {
		return nil, err
	}

	if submit {
		if err := e.fire(ctx, activity, tx, domain.TriggerSubmit, nil); err != nil {
			return nil, err
		}
		if len(materialized) > 0 {
			if err := e.steps.Activate(tx, materialized[0].ID, e.now()); err != nil {
				return nil, err
			}
		}
	}

	if e.financialCategories[cfg.Category] {
		if err := e.accounts.CaptureFromPayload(tx, creator.ID, payload); err != nil {
			return nil, err
		}
	}

	return activity, nil
}

// materializeSteps walks the template steps in order, resolves each target
// against the directory and appends a concrete step per eligible candidate
// found. The creator's own department substitutes for a nil step department;
// unconfigured placeholder steps and steps with zero candidates are elided.
func (e *Engine) materializeSteps(
	tx *sql.Tx,
	activity *models.AuditActivity,
	cfg *models.AuditConfig,
	creator *models.Profile,
) ([]*models.AuditStep, error) {
	var materialized []*models.AuditStep

	for i := range cfg.Steps {
		target := cfg.Steps[i].Target()

		var deptID, posID int64
		switch target.Kind {
		case models.TargetUnset:
			continue
		case models.TargetCreatorDepartment:
			if creator.DepartmentID == nil {
				continue
			}
			deptID, posID = *creator.DepartmentID, target.PositionID
		case models.TargetFixed:
			deptID, posID = target.DepartmentID, target.PositionID
		}

		candidates, err := e.profiles.FindAssignable(tx, deptID, posID)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			e.logger.Debug("Skipping template step with no candidates",
				zap.Int64("config_id", cfg.ID),
				zap.Int("template_position", cfg.Steps[i].Position),
				zap.Int64("department_id", deptID),
				zap.Int64("position_id", posID))
			continue
		}

		step := &models.AuditStep{
			ActivityID:   activity.ID,
			Position:     len(materialized),
			AssigneeID:   candidates[0].ID,
			DepartmentID: deptID,
			PositionID:   posID,
			State:        models.StepPending,
			Active:       false,
		}
		if err := e.steps.Create(tx, step); err != nil {
			return nil, err
		}
		materialized = append(materialized, step)
	}

	return materialized, nil
}

// SubmitDraft moves a draft activity into processing and activates its first
// step. A zero-step activity still transitions; callers deal with the
// trivially-approvable result.
func (e *Engine) SubmitDraft(ctx context.Context, activityID int64) error {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return err
	}
	if activity.State != models.ActivityDraft {
		return fmt.Errorf("submit on %s activity: %w", activity.State, ErrInvalidState)
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.fire(ctx, activity, tx, domain.TriggerSubmit, nil); err != nil {
			return err
		}
		first, err := e.steps.GetByPosition(tx, activityID, 0)
		if err != nil {
			return err
		}
		if first != nil {
			return e.steps.Activate(tx, first.ID, e.now())
		}
		return nil
	})
}

// Cancel withdraws a processing activity whose chain is untouched: every
// step must still be pending. The check is deliberately the blunt
// pending-equals-total count.
func (e *Engine) Cancel(ctx context.Context, activityID int64) error {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return err
	}
	if activity.State != models.ActivityProcessing {
		return fmt.Errorf("cancel on %s activity: %w", activity.State, ErrInvalidState)
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		pending, total, err := e.steps.CountPending(tx, activityID)
		if err != nil {
			return err
		}
		if pending != total {
			return fmt.Errorf("approval chain already touched: %w", ErrInvalidState)
		}

		active, err := e.steps.GetActive(tx, activityID)
		if err != nil {
			return err
		}
		if active != nil {
			if err := e.steps.Deactivate(tx, active.ID); err != nil {
				return err
			}
		}
		finished := e.now()
		if err := e.fire(ctx, activity, tx, domain.TriggerCancel, &finished); err != nil {
			return err
		}
		return e.notifier.Purge(tx, activityID)
	})
}

// ApproveStep records an approval on the active step by its assignee. The
// last step's approval finishes the activity; otherwise the next step
// activates. The decision is an atomic check-and-set, so a concurrent second
// decision fails with ErrInvalidStepState.
func (e *Engine) ApproveStep(ctx context.Context, stepID, actorID int64, note string) error {
	step, activity, err := e.getDecidableStep(stepID, actorID)
	if err != nil {
		return err
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		applied, err := e.steps.Decide(tx, stepID, models.StepApproved, note, e.now())
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("step %d already decided: %w", stepID, ErrInvalidStepState)
		}

		next, err := e.steps.GetByPosition(tx, activity.ID, step.Position+1)
		if err != nil {
			return err
		}
		if next != nil {
			return e.steps.Activate(tx, next.ID, e.now())
		}

		// Last step: the whole activity is approved.
		finished := e.now()
		if err := e.fire(ctx, activity, tx, domain.TriggerApprove, &finished); err != nil {
			return err
		}
		cfg, err := e.configs.GetByID(tx, activity.ConfigID)
		if err != nil {
			return err
		}
		if cfg != nil && cfg.NeedTask {
			if err := e.activities.SetTaskState(tx, activity.ID, models.TaskPending); err != nil {
				return err
			}
		}
		return e.notifier.Finish(tx, activity.CreatorID, activity.ID, models.ActivityApproved)
	})
}

// RejectStep records a rejection on the active step by its assignee.
// Rejection is terminal for the whole activity regardless of position.
func (e *Engine) RejectStep(ctx context.Context, stepID, actorID int64, note string) error {
	_, activity, err := e.getDecidableStep(stepID, actorID)
	if err != nil {
		return err
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		applied, err := e.steps.Decide(tx, stepID, models.StepRejected, note, e.now())
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("step %d already decided: %w", stepID, ErrInvalidStepState)
		}

		finished := e.now()
		if err := e.fire(ctx, activity, tx, domain.TriggerReject, &finished); err != nil {
			return err
		}
		return e.notifier.Finish(tx, activity.CreatorID, activity.ID, models.ActivityRejected)
	})
}

// Relaunch archives a finished activity and creates a fresh draft with the
// same payload, re-resolving the template against the current templates and
// directory. Only the creator may relaunch.
func (e *Engine) Relaunch(ctx context.Context, activityID, actorID int64) (*models.AuditActivity, error) {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return nil, err
	}
	if actorID != activity.CreatorID {
		return nil, fmt.Errorf("relaunch by non-creator: %w", ErrInvalidAssignee)
	}
	if !activity.Terminal() {
		return nil, fmt.Errorf("relaunch on %s activity: %w", activity.State, ErrInvalidState)
	}

	creator, err := e.profiles.GetByID(nil, activity.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %d: %w", activity.CreatorID, ErrNotFound)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(activity.Extra), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode activity payload: %w", err)
	}

	cfg, err := e.resolveConfig(nil, CreateActivityInput{Subtype: activity.Subtype, Payload: payload}, creator)
	if err != nil {
		return nil, err
	}

	var fresh *models.AuditActivity
	err = e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.activities.SetArchived(tx, activity.ID); err != nil {
			return err
		}
		fresh, err = e.createActivityTx(ctx, tx, creator, cfg, payload, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Activity relaunched",
		zap.Int64("old_activity_id", activity.ID),
		zap.Int64("new_activity_id", fresh.ID))
	return fresh, nil
}

// HurryUp records a reminder for the current active step's assignee. It is a
// no-op unless the actor is the creator and the activity is processing, and
// is idempotent within a day per active step.
func (e *Engine) HurryUp(ctx context.Context, activityID, actorID int64) error {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return err
	}
	if actorID != activity.CreatorID || activity.State != models.ActivityProcessing {
		return nil
	}

	active, err := e.steps.GetActive(nil, activityID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	// Cooldown check and reminder insert must be one atomic unit, or two
	// concurrent calls both pass the check and record twice.
	day := e.now().Format("2006-01-02")
	return e.db.WithTransaction(func(tx *sql.Tx) error {
		hurried, err := e.notifier.HurriedToday(tx, activityID, active.ID, day)
		if err != nil {
			return err
		}
		if hurried {
			return nil
		}
		return e.notifier.HurryUp(tx, active.AssigneeID, activityID, active.ID)
	})
}

// CompleteTask finishes the post-approval task of a task-tracked activity.
func (e *Engine) CompleteTask(ctx context.Context, activityID, actorID int64) error {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return err
	}
	if actorID != activity.CreatorID {
		return fmt.Errorf("task completion by non-creator: %w", ErrInvalidAssignee)
	}
	if activity.State != models.ActivityApproved || activity.TaskState != models.TaskPending {
		return fmt.Errorf("no pending task on %s activity: %w", activity.State, ErrInvalidState)
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		return e.activities.SetTaskState(tx, activityID, models.TaskDone)
	})
}

// GetActivity returns an activity with its materialized steps.
func (e *Engine) GetActivity(ctx context.Context, activityID int64) (*models.AuditActivity, []*models.AuditStep, error) {
	activity, err := e.getActivity(activityID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := e.steps.ListByActivity(nil, activityID)
	if err != nil {
		return nil, nil, err
	}
	return activity, steps, nil
}

// ListByCreator returns a creator's non-archived activities.
func (e *Engine) ListByCreator(ctx context.Context, creatorID int64, limit, offset int) ([]*models.AuditActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.activities.ListByCreator(nil, creatorID, limit, offset)
}

// ListPendingSteps returns an assignee's active pending steps.
func (e *Engine) ListPendingSteps(ctx context.Context, assigneeID int64) ([]*models.AuditStep, error) {
	return e.steps.ListPendingByAssignee(nil, assigneeID)
}

func (e *Engine) getActivity(id int64) (*models.AuditActivity, error) {
	activity, err := e.activities.GetByID(nil, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	return activity, nil
}

func (e *Engine) getDecidableStep(stepID, actorID int64) (*models.AuditStep, *models.AuditActivity, error) {
	step, err := e.steps.GetByID(nil, stepID)
	if err != nil {
		return nil, nil, err
	}
	if step == nil {
		return nil, nil, fmt.Errorf("step %d: %w", stepID, ErrNotFound)
	}
	if step.State != models.StepPending || !step.Active {
		return nil, nil, fmt.Errorf("step %d is %s (active=%t): %w", stepID, step.State, step.Active, ErrInvalidStepState)
	}
	if step.AssigneeID != actorID {
		return nil, nil, fmt.Errorf("step %d assigned to %d: %w", stepID, step.AssigneeID, ErrInvalidAssignee)
	}

	activity, err := e.getActivity(step.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	return step, activity, nil
}

// fire validates the transition through the lifecycle machine and persists
// the new state, stamping finished_at when provided.
func (e *Engine) fire(ctx context.Context, activity *models.AuditActivity, tx *sql.Tx, trigger domain.Trigger, finishedAt *time.Time) error {
	m := domain.NewActivityMachine(domain.State(activity.State))
	if err := m.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidState)
	}
	activity.State = m.State().String()
	activity.FinishedAt = finishedAt
	return e.activities.UpdateState(tx, activity.ID, activity.State, finishedAt)
}
