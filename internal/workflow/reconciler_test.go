package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moxworks/auditflow/internal/models"
)

type reconcilerFixture struct {
	rec         *Reconciler
	configs     *fakeConfigs
	activities  *fakeActivities
	steps       *fakeSteps
	profiles    *fakeProfiles
	departments *fakeDepartments
	positions   *fakePositions
	links       *fakeLinks
}

func newReconcilerFixture() *reconcilerFixture {
	f := &reconcilerFixture{
		configs:     newFakeConfigs(),
		activities:  newFakeActivities(),
		steps:       newFakeSteps(),
		profiles:    newFakeProfiles(),
		departments: newFakeDepartments(),
		positions:   newFakePositions(),
		links:       newFakeLinks(),
	}
	f.rec = NewReconciler(
		f.configs,
		f.activities,
		f.steps,
		f.profiles,
		f.departments,
		f.positions,
		f.links,
		zap.NewNop(),
	)
	f.rec.now = func() time.Time { return fixedNow }
	return f
}

// seedOrg installs dept 10 linked to pos 20 with approver 2 assignable there.
func (f *reconcilerFixture) seedOrg() {
	f.departments.byID[10] = &models.Department{ID: 10, Name: "ops"}
	f.positions.byID[20] = &models.Position{ID: 20, Name: "manager"}
	f.links.linked[pair{10, 20}] = true
	approver := f.profiles.add(&models.Profile{ID: 2, Name: "manager", DepartmentID: int64p(10), PositionID: int64p(20)})
	f.profiles.assign(10, 20, approver)
}

func (f *reconcilerFixture) seedConfig() *models.AuditConfig {
	return f.configs.add(&models.AuditConfig{
		Category: "exp",
		Subtype:  "travel",
		Steps: []models.ConfigStep{
			{Position: 0, DepartmentID: int64p(10), PositionID: int64p(20)},
		},
	})
}

// seedProcessing installs a processing activity whose single active step sits
// at (10,20) assigned to profile 2.
func (f *reconcilerFixture) seedProcessing(cfg *models.AuditConfig) (*models.AuditActivity, *models.AuditStep) {
	activity := f.activities.add(&models.AuditActivity{
		ConfigID:  cfg.ID,
		Subtype:   cfg.Subtype,
		CreatorID: 1,
		State:     models.ActivityProcessing,
	})
	step := f.steps.add(&models.AuditStep{
		ActivityID:   activity.ID,
		Position:     0,
		AssigneeID:   2,
		DepartmentID: 10,
		PositionID:   20,
		State:        models.StepPending,
		Active:       true,
	})
	return activity, step
}

func TestReconcile_HealthyOrgIsNoop(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.False(t, cfg.Abnormal)
	assert.Equal(t, models.ActivityProcessing, activity.State)
	assert.True(t, step.Active)
	assert.Equal(t, int64(2), step.AssigneeID)
}

func TestReconcile_MarksTemplateBrokenByArchivedDepartment(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	f.departments.byID[10].Archived = true

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.True(t, cfg.Abnormal)
	assert.True(t, cfg.Steps[0].Abnormal)
}

func TestReconcile_MarksTemplateBrokenByMissingLink(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	delete(f.links.linked, pair{10, 20})

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.True(t, cfg.Abnormal)
}

func TestReconcile_RecoversTemplate(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	cfg.Abnormal = true
	cfg.Steps[0].Abnormal = true

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.False(t, cfg.Abnormal)
	assert.False(t, cfg.Steps[0].Abnormal)
}

func TestReconcile_CreatorDepartmentStepOnlyNeedsPosition(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.configs.add(&models.AuditConfig{
		Category: "exp",
		Subtype:  "travel",
		Steps: []models.ConfigStep{
			{Position: 0, PositionID: int64p(20)},
		},
	})

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))
	assert.False(t, cfg.Abnormal)

	f.positions.byID[20].Archived = true
	require.NoError(t, f.rec.Reconcile(context.Background(), nil))
	assert.True(t, cfg.Abnormal)
}

func TestReconcile_AbortsActivityWithoutCandidates(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	// Nobody is assignable at the step's snapshot pair anymore.
	f.profiles.assign(10, 20)

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.Equal(t, models.ActivityAborted, activity.State)
	assert.True(t, step.Abnormal)
	assert.False(t, step.Active)
	assert.Equal(t, models.StepPending, step.State, "abort decides nothing")
}

func TestReconcile_ReassignsWhenAssigneeIneligible(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	// The assignee left; a replacement is assignable at the same pair.
	replacement := f.profiles.add(&models.Profile{ID: 9, Name: "replacement", DepartmentID: int64p(10), PositionID: int64p(20)})
	f.profiles.assign(10, 20, replacement)

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.Equal(t, models.ActivityProcessing, activity.State)
	assert.Equal(t, int64(9), step.AssigneeID)
	assert.True(t, step.Active)
	assert.False(t, step.Abnormal)
}

func TestReconcile_RestoresAbortedActivity(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	// Break and sweep: the activity aborts.
	f.profiles.assign(10, 20)
	require.NoError(t, f.rec.Reconcile(context.Background(), nil))
	require.Equal(t, models.ActivityAborted, activity.State)

	// The pair resolves again.
	approver := f.profiles.byID[2]
	f.profiles.assign(10, 20, approver)

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.Equal(t, models.ActivityProcessing, activity.State)
	assert.False(t, step.Abnormal)
	assert.True(t, step.Active)
	assert.Equal(t, int64(2), step.AssigneeID)
}

func TestReconcile_RestoreSkipsWhilePairStillUnresolvable(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	f.profiles.assign(10, 20)
	require.NoError(t, f.rec.Reconcile(context.Background(), nil))
	require.Equal(t, models.ActivityAborted, activity.State)

	// Still nobody there: the activity stays aborted.
	require.NoError(t, f.rec.Reconcile(context.Background(), nil))
	assert.Equal(t, models.ActivityAborted, activity.State)
	assert.True(t, step.Abnormal)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)
	f.departments.byID[10].Archived = true
	f.profiles.assign(10, 20)

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	stateAfterFirst := activity.State
	abnormalAfterFirst := step.Abnormal

	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.Equal(t, stateAfterFirst, activity.State)
	assert.Equal(t, abnormalAfterFirst, step.Abnormal)
	assert.True(t, cfg.Abnormal)
}

func TestReconcile_DecidedStepsAreLeftAlone(t *testing.T) {
	f := newReconcilerFixture()
	f.seedOrg()
	cfg := f.seedConfig()
	activity, step := f.seedProcessing(cfg)

	// The step was already approved before the org change; nothing is active.
	step.State = models.StepApproved
	step.Active = false
	activity.State = models.ActivityApproved

	f.profiles.assign(10, 20)
	require.NoError(t, f.rec.Reconcile(context.Background(), nil))

	assert.Equal(t, models.ActivityApproved, activity.State)
	assert.Equal(t, models.StepApproved, step.State)
	assert.False(t, step.Abnormal)
}
