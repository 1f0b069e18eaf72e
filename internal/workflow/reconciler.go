package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/moxworks/auditflow/internal/domain/workflow"
	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// Reconciler re-synchronizes routing templates and in-flight activities
// after an organization directory mutation. Directory services call
// Reconcile synchronously inside the mutation's transaction, so a sweep and
// the change that triggered it are one atomic unit.
//
// The sweep is idempotent: a second run with no intervening mutation applies
// no further changes.
type Reconciler struct {
	configs     ConfigStore
	activities  ActivityStore
	steps       StepStore
	profiles    ProfileStore
	departments DepartmentStore
	positions   PositionStore
	links       LinkStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(
	configs ConfigStore,
	activities ActivityStore,
	steps StepStore,
	profiles ProfileStore,
	departments DepartmentStore,
	positions PositionStore,
	links LinkStore,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		configs:     configs,
		activities:  activities,
		steps:       steps,
		profiles:    profiles,
		departments: departments,
		positions:   positions,
		links:       links,
		logger:      logger,
		now:         time.Now,
	}
}

// Reconcile runs the template recovery and detection passes, then repairs
// in-flight activities: processing activities whose active step lost all
// eligible candidates are aborted, and aborted ones whose broken step can
// resolve again are restored to processing.
func (r *Reconciler) Reconcile(ctx context.Context, tx *sql.Tx) error {
	if err := r.recoverTemplates(tx); err != nil {
		return err
	}
	if err := r.detectBrokenTemplates(tx); err != nil {
		return err
	}
	if err := r.abortUnresolvable(ctx, tx); err != nil {
		return err
	}
	return r.restoreResolvable(ctx, tx)
}

// checkStep reports whether a template step is organizationally sound: its
// department and position both exist unarchived and are linked, or the step
// targets the creator's department, or is an unconfigured placeholder.
func (r *Reconciler) checkStep(tx *sql.Tx, step *models.ConfigStep) (bool, error) {
	target := step.Target()
	switch target.Kind {
	case models.TargetUnset:
		return true, nil
	case models.TargetCreatorDepartment:
		pos, err := r.positions.GetByID(tx, target.PositionID)
		if err != nil {
			return false, err
		}
		return pos != nil && !pos.Archived, nil
	default:
		dept, err := r.departments.GetByID(tx, target.DepartmentID)
		if err != nil {
			return false, err
		}
		if dept == nil || dept.Archived {
			return false, nil
		}
		pos, err := r.positions.GetByID(tx, target.PositionID)
		if err != nil {
			return false, err
		}
		if pos == nil || pos.Archived {
			return false, nil
		}
		return r.links.Exists(tx, target.DepartmentID, target.PositionID)
	}
}

// recoverTemplates clears the abnormal flag from steps that became sound
// again, and from templates once all their steps are sound.
func (r *Reconciler) recoverTemplates(tx *sql.Tx) error {
	abnormal, err := r.configs.ListAbnormal(tx)
	if err != nil {
		return err
	}

	for _, cfg := range abnormal {
		allSound := true
		for i := range cfg.Steps {
			step := &cfg.Steps[i]
			sound, err := r.checkStep(tx, step)
			if err != nil {
				return err
			}
			if !sound {
				allSound = false
				continue
			}
			if step.Abnormal {
				if err := r.configs.SetStepAbnormal(tx, step.ID, false); err != nil {
					return err
				}
			}
		}
		if allSound {
			if err := r.configs.SetAbnormal(tx, cfg.ID, false); err != nil {
				return err
			}
			r.logger.Info("Routing template recovered", zap.Int64("config_id", cfg.ID))
		}
	}
	return nil
}

// detectBrokenTemplates marks unsound steps and their templates abnormal.
func (r *Reconciler) detectBrokenTemplates(tx *sql.Tx) error {
	configs, err := r.configs.ListActive(tx)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		anyUnsound := false
		for i := range cfg.Steps {
			step := &cfg.Steps[i]
			sound, err := r.checkStep(tx, step)
			if err != nil {
				return err
			}
			if sound {
				continue
			}
			anyUnsound = true
			if !step.Abnormal {
				if err := r.configs.SetStepAbnormal(tx, step.ID, true); err != nil {
					return err
				}
			}
		}
		if anyUnsound && !cfg.Abnormal {
			if err := r.configs.SetAbnormal(tx, cfg.ID, true); err != nil {
				return err
			}
			r.logger.Warn("Routing template broken by directory change", zap.Int64("config_id", cfg.ID))
		}
	}
	return nil
}

// abortUnresolvable walks processing activities. An active step whose
// resolved pair yields no eligible candidate is marked abnormal and its
// activity aborted; a step whose assignee merely became ineligible is
// reassigned to the first remaining candidate.
func (r *Reconciler) abortUnresolvable(ctx context.Context, tx *sql.Tx) error {
	processing, err := r.activities.ListByState(tx, models.ActivityProcessing)
	if err != nil {
		return err
	}

	for _, activity := range processing {
		active, err := r.steps.GetActive(tx, activity.ID)
		if err != nil {
			return err
		}
		if active == nil {
			continue
		}

		candidates, err := r.profiles.FindAssignable(tx, active.DepartmentID, active.PositionID)
		if err != nil {
			return err
		}

		if len(candidates) == 0 {
			if err := r.steps.SetAbnormal(tx, active.ID, true); err != nil {
				return err
			}
			if err := r.steps.Deactivate(tx, active.ID); err != nil {
				return err
			}
			if err := r.fire(ctx, tx, activity, domain.TriggerAbort); err != nil {
				return err
			}
			r.logger.Warn("Activity aborted: no eligible assignee for active step",
				zap.Int64("activity_id", activity.ID),
				zap.Int64("step_id", active.ID))
			continue
		}

		if !containsProfile(candidates, active.AssigneeID) {
			if err := r.steps.Reassign(tx, active.ID, candidates[0].ID); err != nil {
				return err
			}
			r.logger.Info("Active step reassigned after directory change",
				zap.Int64("step_id", active.ID),
				zap.Int64("assignee_id", candidates[0].ID))
		}
	}
	return nil
}

// restoreResolvable walks aborted activities and, when the broken step's
// pair resolves again, reassigns it, clears the abnormal flag, re-activates
// the step and returns the activity to processing.
func (r *Reconciler) restoreResolvable(ctx context.Context, tx *sql.Tx) error {
	aborted, err := r.activities.ListByState(tx, models.ActivityAborted)
	if err != nil {
		return err
	}

	for _, activity := range aborted {
		broken, err := r.brokenStep(tx, activity.ID)
		if err != nil {
			return err
		}
		if broken == nil {
			continue
		}

		candidates, err := r.profiles.FindAssignable(tx, broken.DepartmentID, broken.PositionID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			continue
		}

		if err := r.steps.Reassign(tx, broken.ID, candidates[0].ID); err != nil {
			return err
		}
		if err := r.steps.SetAbnormal(tx, broken.ID, false); err != nil {
			return err
		}
		if err := r.steps.Activate(tx, broken.ID, r.now()); err != nil {
			return err
		}
		if err := r.fire(ctx, tx, activity, domain.TriggerRestore); err != nil {
			return err
		}
		r.logger.Info("Activity restored: assignee resolved again",
			zap.Int64("activity_id", activity.ID),
			zap.Int64("step_id", broken.ID),
			zap.Int64("assignee_id", candidates[0].ID))
	}
	return nil
}

// brokenStep finds the pending abnormal step an aborted activity is stuck
// on, lowest position first.
func (r *Reconciler) brokenStep(tx *sql.Tx, activityID int64) (*models.AuditStep, error) {
	steps, err := r.steps.ListByActivity(tx, activityID)
	if err != nil {
		return nil, err
	}
	for _, s := range steps {
		if s.Abnormal && s.State == models.StepPending {
			return s, nil
		}
	}
	return nil, nil
}

func (r *Reconciler) fire(ctx context.Context, tx *sql.Tx, activity *models.AuditActivity, trigger domain.Trigger) error {
	m := domain.NewActivityMachine(domain.State(activity.State))
	if err := m.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidState)
	}
	activity.State = m.State().String()
	return r.activities.UpdateState(tx, activity.ID, activity.State, activity.FinishedAt)
}

func containsProfile(profiles []*models.Profile, id int64) bool {
	for _, p := range profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}
