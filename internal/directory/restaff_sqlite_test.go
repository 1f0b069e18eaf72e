package directory_test

// End-to-end restaffing flow against real sqlite repositories: archiving a
// position aborts the activity stranded on it, and placing a new person on
// the same pair restores it through the reconciler.

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moxworks/auditflow/internal/bank"
	"github.com/moxworks/auditflow/internal/directory"
	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/notification"
	"github.com/moxworks/auditflow/internal/repository"
	"github.com/moxworks/auditflow/internal/workflow"
	"github.com/moxworks/auditflow/pkg/database"
)

type stack struct {
	engine    *workflow.Engine
	directory *directory.Service
	activity  *repository.ActivityRepository
	steps     *repository.StepRepository
	configs   *repository.ConfigRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations())

	departments := repository.NewDepartmentRepository(db.DB, logger)
	positions := repository.NewPositionRepository(db.DB, logger)
	links := repository.NewLinkRepository(db.DB, logger)
	profiles := repository.NewProfileRepository(db.DB, logger)
	configs := repository.NewConfigRepository(db.DB, logger)
	activities := repository.NewActivityRepository(db.DB, logger)
	steps := repository.NewStepRepository(db.DB, logger)
	notifications := repository.NewNotificationRepository(db.DB, logger)
	accounts := repository.NewBankAccountRepository(db.DB, logger)

	notifier := notification.NewNotifier(notifications, logger)
	capturer := bank.NewAccounts(accounts, logger)

	engine := workflow.NewEngine(db, profiles, configs, activities, steps,
		notifier, capturer, nil, logger)
	reconciler := workflow.NewReconciler(configs, activities, steps,
		profiles, departments, positions, links, logger)
	dir := directory.NewService(db, departments, positions, links, profiles,
		reconciler, logger)

	return &stack{
		engine:    engine,
		directory: dir,
		activity:  activities,
		steps:     steps,
		configs:   configs,
	}
}

func TestArchivedPositionAbortsAndRestaffingRestores(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	fin, err := s.directory.CreateDepartment(ctx, "fin", "Finance", nil)
	require.NoError(t, err)
	accountant, err := s.directory.CreatePosition(ctx, "acct", "Accountant")
	require.NoError(t, err)
	require.NoError(t, s.directory.Link(ctx, fin.ID, accountant.ID))

	lucy, err := s.directory.CreateProfile(ctx, "lucy", &fin.ID, &accountant.ID)
	require.NoError(t, err)
	creator, err := s.directory.CreateProfile(ctx, "jack", nil, nil)
	require.NoError(t, err)

	cfg := &models.AuditConfig{
		Category: "exp",
		Subtype:  "cost",
		Fallback: true,
		Steps: []models.ConfigStep{
			{Position: 0, DepartmentID: &fin.ID, PositionID: &accountant.ID},
		},
	}
	require.NoError(t, s.configs.Create(nil, cfg))

	activity, err := s.engine.CreateActivity(ctx, workflow.CreateActivityInput{
		CreatorID: creator.ID,
		Subtype:   "cost",
		Payload:   map[string]interface{}{"amount": 42.0},
		Submit:    true,
	})
	require.NoError(t, err)
	require.Equal(t, models.ActivityProcessing, activity.State)

	active, err := s.steps.GetActive(nil, activity.ID)
	require.NoError(t, err)
	require.Equal(t, lucy.ID, active.AssigneeID)

	// Retiring the position leaves nobody on the pair and aborts the
	// activity mid-flight.
	require.NoError(t, s.directory.ArchivePosition(ctx, accountant.ID))

	got, err := s.activity.GetByID(nil, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityAborted, got.State)

	stranded, err := s.steps.GetByID(nil, active.ID)
	require.NoError(t, err)
	assert.True(t, stranded.Abnormal)
	assert.False(t, stranded.Active)
	assert.Equal(t, models.StepPending, stranded.State)

	// A new arrival on the same pair restores it.
	sam, err := s.directory.CreateProfile(ctx, "sam", &fin.ID, &accountant.ID)
	require.NoError(t, err)

	got, err = s.activity.GetByID(nil, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityProcessing, got.State)

	restored, err := s.steps.GetByID(nil, active.ID)
	require.NoError(t, err)
	assert.Equal(t, sam.ID, restored.AssigneeID)
	assert.False(t, restored.Abnormal)
	assert.True(t, restored.Active)
	assert.Equal(t, models.StepPending, restored.State)
}

func TestMovingProfileOntoStrandedPairRestores(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	fin, err := s.directory.CreateDepartment(ctx, "fin", "Finance", nil)
	require.NoError(t, err)
	accountant, err := s.directory.CreatePosition(ctx, "acct", "Accountant")
	require.NoError(t, err)
	require.NoError(t, s.directory.Link(ctx, fin.ID, accountant.ID))

	_, err = s.directory.CreateProfile(ctx, "lucy", &fin.ID, &accountant.ID)
	require.NoError(t, err)
	creator, err := s.directory.CreateProfile(ctx, "jack", nil, nil)
	require.NoError(t, err)
	drifter, err := s.directory.CreateProfile(ctx, "lee", nil, nil)
	require.NoError(t, err)

	cfg := &models.AuditConfig{
		Category: "exp",
		Subtype:  "cost",
		Fallback: true,
		Steps: []models.ConfigStep{
			{Position: 0, DepartmentID: &fin.ID, PositionID: &accountant.ID},
		},
	}
	require.NoError(t, s.configs.Create(nil, cfg))

	activity, err := s.engine.CreateActivity(ctx, workflow.CreateActivityInput{
		CreatorID: creator.ID,
		Subtype:   "cost",
		Submit:    true,
	})
	require.NoError(t, err)

	require.NoError(t, s.directory.ArchivePosition(ctx, accountant.ID))
	got, err := s.activity.GetByID(nil, activity.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActivityAborted, got.State)

	require.NoError(t, s.directory.MoveProfile(ctx, drifter.ID, &fin.ID, &accountant.ID))

	got, err = s.activity.GetByID(nil, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityProcessing, got.State)

	active, err := s.steps.GetActive(nil, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, drifter.ID, active.AssigneeID)
}
