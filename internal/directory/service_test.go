package directory

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/workflow"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTransaction(fn func(*sql.Tx) error) error { return fn(nil) }

type pair struct{ dept, pos int64 }

type fakeDepartments struct {
	byID   map[int64]*models.Department
	nextID int64
}

func (f *fakeDepartments) Create(_ *sql.Tx, dept *models.Department) error {
	f.nextID++
	dept.ID = f.nextID
	f.byID[dept.ID] = dept
	return nil
}

func (f *fakeDepartments) GetByID(_ *sql.Tx, id int64) (*models.Department, error) {
	return f.byID[id], nil
}

func (f *fakeDepartments) ListChildren(_ *sql.Tx, parentID int64) ([]*models.Department, error) {
	var out []*models.Department
	for _, d := range f.byID {
		if d.ParentID != nil && *d.ParentID == parentID && !d.Archived {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDepartments) List(_ *sql.Tx) ([]*models.Department, error) {
	var out []*models.Department
	for _, d := range f.byID {
		if !d.Archived {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDepartments) Archive(_ *sql.Tx, id int64) error {
	if d, ok := f.byID[id]; ok {
		d.Archived = true
	}
	return nil
}

type fakePositions struct {
	byID   map[int64]*models.Position
	nextID int64
}

func (f *fakePositions) Create(_ *sql.Tx, pos *models.Position) error {
	f.nextID++
	pos.ID = f.nextID
	f.byID[pos.ID] = pos
	return nil
}

func (f *fakePositions) GetByID(_ *sql.Tx, id int64) (*models.Position, error) {
	return f.byID[id], nil
}

func (f *fakePositions) List(_ *sql.Tx) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range f.byID {
		if !p.Archived {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePositions) Archive(_ *sql.Tx, id int64) error {
	if p, ok := f.byID[id]; ok {
		p.Archived = true
	}
	return nil
}

type fakeLinks struct {
	linked map[pair]bool
}

func (f *fakeLinks) Link(_ *sql.Tx, departmentID, positionID int64) error {
	f.linked[pair{departmentID, positionID}] = true
	return nil
}

func (f *fakeLinks) Unlink(_ *sql.Tx, departmentID, positionID int64) error {
	delete(f.linked, pair{departmentID, positionID})
	return nil
}

func (f *fakeLinks) UnlinkDepartment(_ *sql.Tx, departmentID int64) error {
	for k := range f.linked {
		if k.dept == departmentID {
			delete(f.linked, k)
		}
	}
	return nil
}

func (f *fakeLinks) Exists(_ *sql.Tx, departmentID, positionID int64) (bool, error) {
	return f.linked[pair{departmentID, positionID}], nil
}

type fakeProfiles struct {
	byID   map[int64]*models.Profile
	nextID int64
}

func (f *fakeProfiles) Create(_ *sql.Tx, p *models.Profile) error {
	f.nextID++
	p.ID = f.nextID
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProfiles) GetByID(_ *sql.Tx, id int64) (*models.Profile, error) {
	return f.byID[id], nil
}

func (f *fakeProfiles) UpdateAssignment(_ *sql.Tx, id int64, departmentID, positionID *int64) error {
	if p, ok := f.byID[id]; ok {
		p.DepartmentID = departmentID
		p.PositionID = positionID
	}
	return nil
}

func (f *fakeProfiles) DetachPosition(_ *sql.Tx, positionID int64) error {
	for _, p := range f.byID {
		if !p.Archived && p.PositionID != nil && *p.PositionID == positionID {
			p.PositionID = nil
		}
	}
	return nil
}

func (f *fakeProfiles) Archive(_ *sql.Tx, id int64) error {
	if p, ok := f.byID[id]; ok {
		p.Archived = true
	}
	return nil
}

type countingReconciler struct {
	calls int
}

func (c *countingReconciler) Reconcile(_ context.Context, _ *sql.Tx) error {
	c.calls++
	return nil
}

type fixture struct {
	svc         *Service
	departments *fakeDepartments
	positions   *fakePositions
	links       *fakeLinks
	profiles    *fakeProfiles
	reconciler  *countingReconciler
}

func newFixture() *fixture {
	f := &fixture{
		departments: &fakeDepartments{byID: make(map[int64]*models.Department)},
		positions:   &fakePositions{byID: make(map[int64]*models.Position)},
		links:       &fakeLinks{linked: make(map[pair]bool)},
		profiles:    &fakeProfiles{byID: make(map[int64]*models.Profile)},
		reconciler:  &countingReconciler{},
	}
	f.svc = NewService(fakeTxRunner{}, f.departments, f.positions, f.links, f.profiles, f.reconciler, zap.NewNop())
	return f
}

func TestCreateDepartment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	root, err := f.svc.CreateDepartment(ctx, "ops", "Operations", nil)
	require.NoError(t, err)
	assert.NotZero(t, root.ID)

	child, err := f.svc.CreateDepartment(ctx, "", "Logistics", &root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, *child.ParentID)

	// Pure creation never needs a reconcile sweep.
	assert.Zero(t, f.reconciler.calls)
}

func TestCreateDepartment_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateDepartment(ctx, "", "", nil)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	missing := int64(404)
	_, err = f.svc.CreateDepartment(ctx, "", "Orphan", &missing)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	root, err := f.svc.CreateDepartment(ctx, "", "Gone", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.ArchiveDepartment(ctx, root.ID))

	_, err = f.svc.CreateDepartment(ctx, "", "Child", &root.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound, "archived parent refuses children")
}

func TestArchiveDepartment_CascadesToSubtree(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	root, _ := f.svc.CreateDepartment(ctx, "", "Root", nil)
	child, _ := f.svc.CreateDepartment(ctx, "", "Child", &root.ID)
	grandchild, _ := f.svc.CreateDepartment(ctx, "", "Grandchild", &child.ID)
	sibling, _ := f.svc.CreateDepartment(ctx, "", "Sibling", nil)

	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")
	require.NoError(t, f.svc.Link(ctx, child.ID, pos.ID))

	require.NoError(t, f.svc.ArchiveDepartment(ctx, root.ID))

	assert.True(t, f.departments.byID[root.ID].Archived)
	assert.True(t, f.departments.byID[child.ID].Archived)
	assert.True(t, f.departments.byID[grandchild.ID].Archived)
	assert.False(t, f.departments.byID[sibling.ID].Archived)

	linked, _ := f.links.Exists(nil, child.ID, pos.ID)
	assert.False(t, linked, "archival removes the subtree's linkages")

	// One sweep for the Link, one for the archive.
	assert.Equal(t, 2, f.reconciler.calls)
}

func TestLink_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Ops", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")

	require.NoError(t, f.svc.Link(ctx, dept.ID, pos.ID))

	err := f.svc.Link(ctx, 404, pos.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	err = f.svc.Link(ctx, dept.ID, 404)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestUnlinkReconciles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Ops", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")
	require.NoError(t, f.svc.Link(ctx, dept.ID, pos.ID))
	require.NoError(t, f.svc.Unlink(ctx, dept.ID, pos.ID))

	linked, _ := f.links.Exists(nil, dept.ID, pos.ID)
	assert.False(t, linked)
	assert.Equal(t, 2, f.reconciler.calls)
}

func TestProfileLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Ops", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")
	require.NoError(t, f.svc.Link(ctx, dept.ID, pos.ID))

	p, err := f.svc.CreateProfile(ctx, "Alex", &dept.ID, &pos.ID)
	require.NoError(t, err)
	assert.Equal(t, dept.ID, *p.DepartmentID)

	// Arrival, move and departure each trigger a sweep (plus one for Link).
	require.NoError(t, f.svc.MoveProfile(ctx, p.ID, nil, nil))
	assert.Nil(t, f.profiles.byID[p.ID].DepartmentID)

	require.NoError(t, f.svc.ArchiveProfile(ctx, p.ID))
	assert.True(t, f.profiles.byID[p.ID].Archived)
	assert.Equal(t, 4, f.reconciler.calls)

	err = f.svc.ArchiveProfile(ctx, p.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound, "double archive")
}

func TestCreateProfile_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateProfile(ctx, "", nil, nil)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	missing := int64(404)
	_, err = f.svc.CreateProfile(ctx, "Alex", &missing, nil)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.CreateProfile(ctx, "Alex", nil, &missing)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestArchivePosition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Ops", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")
	require.NoError(t, f.svc.Link(ctx, dept.ID, pos.ID))
	holder, _ := f.svc.CreateProfile(ctx, "Alex", &dept.ID, &pos.ID)

	require.NoError(t, f.svc.ArchivePosition(ctx, pos.ID))
	assert.True(t, f.positions.byID[pos.ID].Archived)
	assert.Nil(t, f.profiles.byID[holder.ID].PositionID, "holders are detached")
	assert.False(t, f.profiles.byID[holder.ID].Archived)

	// The linkage survives so the slot can be staffed again later.
	linked, _ := f.links.Exists(nil, dept.ID, pos.ID)
	assert.True(t, linked)
	assert.Equal(t, 3, f.reconciler.calls)

	err := f.svc.ArchivePosition(ctx, pos.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestCreateProfile_ArchivedPositionCanBeRestaffed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Finance", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Accountant")
	require.NoError(t, f.svc.Link(ctx, dept.ID, pos.ID))
	require.NoError(t, f.svc.ArchivePosition(ctx, pos.ID))

	p, err := f.svc.CreateProfile(ctx, "Sam", &dept.ID, &pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, *p.PositionID)
}

func TestMoveProfile_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	dept, _ := f.svc.CreateDepartment(ctx, "", "Ops", nil)
	pos, _ := f.svc.CreatePosition(ctx, "", "Manager")
	p, _ := f.svc.CreateProfile(ctx, "Alex", nil, nil)

	missing := int64(404)
	err := f.svc.MoveProfile(ctx, p.ID, &missing, &pos.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	err = f.svc.MoveProfile(ctx, p.ID, &dept.ID, &missing)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	gone, _ := f.svc.CreateDepartment(ctx, "", "Gone", nil)
	require.NoError(t, f.svc.ArchiveDepartment(ctx, gone.ID))
	err = f.svc.MoveProfile(ctx, p.ID, &gone.ID, &pos.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound, "archived department refuses moves")

	// An archived position stays a valid move target: re-staffing it is how
	// stranded workflows come back.
	require.NoError(t, f.svc.ArchivePosition(ctx, pos.ID))
	require.NoError(t, f.svc.MoveProfile(ctx, p.ID, &dept.ID, &pos.ID))
	assert.Equal(t, pos.ID, *f.profiles.byID[p.ID].PositionID)
}
