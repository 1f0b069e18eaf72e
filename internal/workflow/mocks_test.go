package workflow

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/moxworks/auditflow/internal/models"
)

// In-memory fakes for the engine and reconciler collaborator interfaces.
// A nil tx stands in for the real transaction handle throughout. The runner
// serializes transaction bodies the way the real store does, so tests can
// exercise check-and-set sequences from multiple goroutines.

type fakeTxRunner struct{ mu sync.Mutex }

func (f *fakeTxRunner) WithTransaction(fn func(*sql.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

type pair struct{ dept, pos int64 }

type fakeProfiles struct {
	byID       map[int64]*models.Profile
	assignable map[pair][]*models.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byID:       make(map[int64]*models.Profile),
		assignable: make(map[pair][]*models.Profile),
	}
}

func (f *fakeProfiles) add(p *models.Profile) *models.Profile {
	f.byID[p.ID] = p
	return p
}

func (f *fakeProfiles) assign(deptID, posID int64, profiles ...*models.Profile) {
	f.assignable[pair{deptID, posID}] = profiles
}

func (f *fakeProfiles) GetByID(_ *sql.Tx, id int64) (*models.Profile, error) {
	return f.byID[id], nil
}

func (f *fakeProfiles) FindAssignable(_ *sql.Tx, departmentID, positionID int64) ([]*models.Profile, error) {
	return f.assignable[pair{departmentID, positionID}], nil
}

type fakeConfigs struct {
	byID       map[int64]*models.AuditConfig
	stepByID   map[int64]*models.ConfigStep
	nextID     int64
	nextStepID int64
}

func newFakeConfigs() *fakeConfigs {
	return &fakeConfigs{
		byID:     make(map[int64]*models.AuditConfig),
		stepByID: make(map[int64]*models.ConfigStep),
	}
}

func (f *fakeConfigs) add(cfg *models.AuditConfig) *models.AuditConfig {
	if cfg.ID == 0 {
		f.nextID++
		cfg.ID = f.nextID
	} else if cfg.ID > f.nextID {
		f.nextID = cfg.ID
	}
	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		if step.ID == 0 {
			f.nextStepID++
			step.ID = f.nextStepID
		}
		step.ConfigID = cfg.ID
		f.stepByID[step.ID] = step
	}
	f.byID[cfg.ID] = cfg
	return cfg
}

func (f *fakeConfigs) Create(_ *sql.Tx, cfg *models.AuditConfig) error {
	f.add(cfg)
	return nil
}

func (f *fakeConfigs) GetByID(_ *sql.Tx, id int64) (*models.AuditConfig, error) {
	return f.byID[id], nil
}

func (f *fakeConfigs) ListBySubtype(_ *sql.Tx, subtype string) ([]*models.AuditConfig, error) {
	var out []*models.AuditConfig
	for _, cfg := range f.byID {
		if cfg.Subtype == subtype {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeConfigs) ListActive(_ *sql.Tx) ([]*models.AuditConfig, error) {
	var out []*models.AuditConfig
	for _, cfg := range f.byID {
		if !cfg.Archived {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeConfigs) ListAbnormal(_ *sql.Tx) ([]*models.AuditConfig, error) {
	var out []*models.AuditConfig
	for _, cfg := range f.byID {
		if !cfg.Archived && cfg.Abnormal {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeConfigs) FindFallback(_ *sql.Tx, subtype string) (*models.AuditConfig, error) {
	for _, cfg := range f.byID {
		if cfg.Subtype == subtype && cfg.Fallback && !cfg.Archived {
			return cfg, nil
		}
	}
	return nil, nil
}

func (f *fakeConfigs) SetAbnormal(_ *sql.Tx, id int64, abnormal bool) error {
	if cfg, ok := f.byID[id]; ok {
		cfg.Abnormal = abnormal
	}
	return nil
}

func (f *fakeConfigs) SetStepAbnormal(_ *sql.Tx, stepID int64, abnormal bool) error {
	if step, ok := f.stepByID[stepID]; ok {
		step.Abnormal = abnormal
	}
	return nil
}

func (f *fakeConfigs) Archive(_ *sql.Tx, id int64) error {
	if cfg, ok := f.byID[id]; ok {
		cfg.Archived = true
	}
	return nil
}

type fakeActivities struct {
	byID   map[int64]*models.AuditActivity
	nextID int64
	seq    map[string]int64
}

func newFakeActivities() *fakeActivities {
	return &fakeActivities{
		byID: make(map[int64]*models.AuditActivity),
		seq:  make(map[string]int64),
	}
}

func (f *fakeActivities) add(a *models.AuditActivity) *models.AuditActivity {
	if a.ID == 0 {
		f.nextID++
		a.ID = f.nextID
	} else if a.ID > f.nextID {
		f.nextID = a.ID
	}
	f.byID[a.ID] = a
	return a
}

func (f *fakeActivities) Create(_ *sql.Tx, a *models.AuditActivity) error {
	f.add(a)
	return nil
}

func (f *fakeActivities) GetByID(_ *sql.Tx, id int64) (*models.AuditActivity, error) {
	return f.byID[id], nil
}

func (f *fakeActivities) UpdateState(_ *sql.Tx, id int64, state string, finishedAt *time.Time) error {
	if a, ok := f.byID[id]; ok {
		a.State = state
		a.FinishedAt = finishedAt
	}
	return nil
}

func (f *fakeActivities) SetTaskState(_ *sql.Tx, id int64, taskState string) error {
	if a, ok := f.byID[id]; ok {
		a.TaskState = taskState
	}
	return nil
}

func (f *fakeActivities) SetArchived(_ *sql.Tx, id int64) error {
	if a, ok := f.byID[id]; ok {
		a.Archived = true
	}
	return nil
}

func (f *fakeActivities) ListByState(_ *sql.Tx, state string) ([]*models.AuditActivity, error) {
	var out []*models.AuditActivity
	for _, a := range f.byID {
		if a.State == state && !a.Archived {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeActivities) ListByCreator(_ *sql.Tx, creatorID int64, limit, offset int) ([]*models.AuditActivity, error) {
	var out []*models.AuditActivity
	for _, a := range f.byID {
		if a.CreatorID == creatorID && !a.Archived {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeActivities) NextSequence(_ *sql.Tx, day string) (int64, error) {
	f.seq[day]++
	return f.seq[day], nil
}

type fakeSteps struct {
	byID   map[int64]*models.AuditStep
	nextID int64
}

func newFakeSteps() *fakeSteps {
	return &fakeSteps{byID: make(map[int64]*models.AuditStep)}
}

func (f *fakeSteps) add(s *models.AuditStep) *models.AuditStep {
	if s.ID == 0 {
		f.nextID++
		s.ID = f.nextID
	} else if s.ID > f.nextID {
		f.nextID = s.ID
	}
	f.byID[s.ID] = s
	return s
}

func (f *fakeSteps) Create(_ *sql.Tx, s *models.AuditStep) error {
	f.add(s)
	return nil
}

func (f *fakeSteps) GetByID(_ *sql.Tx, id int64) (*models.AuditStep, error) {
	return f.byID[id], nil
}

func (f *fakeSteps) ListByActivity(_ *sql.Tx, activityID int64) ([]*models.AuditStep, error) {
	var out []*models.AuditStep
	for _, s := range f.byID {
		if s.ActivityID == activityID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeSteps) GetActive(_ *sql.Tx, activityID int64) (*models.AuditStep, error) {
	for _, s := range f.byID {
		if s.ActivityID == activityID && s.Active && s.State == models.StepPending {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSteps) GetByPosition(_ *sql.Tx, activityID int64, position int) (*models.AuditStep, error) {
	for _, s := range f.byID {
		if s.ActivityID == activityID && s.Position == position {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSteps) Decide(_ *sql.Tx, id int64, state, note string, finishedAt time.Time) (bool, error) {
	s, ok := f.byID[id]
	if !ok || s.State != models.StepPending || !s.Active {
		return false, nil
	}
	s.State = state
	s.Note = note
	s.Active = false
	s.FinishedAt = &finishedAt
	return true, nil
}

func (f *fakeSteps) Activate(_ *sql.Tx, id int64, at time.Time) error {
	if s, ok := f.byID[id]; ok {
		s.Active = true
		s.ActivatedAt = &at
	}
	return nil
}

func (f *fakeSteps) Deactivate(_ *sql.Tx, id int64) error {
	if s, ok := f.byID[id]; ok {
		s.Active = false
	}
	return nil
}

func (f *fakeSteps) SetAbnormal(_ *sql.Tx, id int64, abnormal bool) error {
	if s, ok := f.byID[id]; ok {
		s.Abnormal = abnormal
	}
	return nil
}

func (f *fakeSteps) Reassign(_ *sql.Tx, id, assigneeID int64) error {
	if s, ok := f.byID[id]; ok {
		s.AssigneeID = assigneeID
	}
	return nil
}

func (f *fakeSteps) CountPending(_ *sql.Tx, activityID int64) (pending, total int, err error) {
	for _, s := range f.byID {
		if s.ActivityID != activityID {
			continue
		}
		total++
		if s.State == models.StepPending {
			pending++
		}
	}
	return pending, total, nil
}

func (f *fakeSteps) ListPendingByAssignee(_ *sql.Tx, assigneeID int64) ([]*models.AuditStep, error) {
	var out []*models.AuditStep
	for _, s := range f.byID {
		if s.AssigneeID == assigneeID && s.Active && s.State == models.StepPending {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type finishRecord struct {
	profileID  int64
	activityID int64
	state      string
}

type hurryRecord struct {
	profileID  int64
	activityID int64
	stepID     int64
}

type fakeNotifier struct {
	finishes []finishRecord
	hurries  []hurryRecord
	purged   []int64
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (f *fakeNotifier) Finish(_ *sql.Tx, profileID, activityID int64, state string) error {
	f.finishes = append(f.finishes, finishRecord{profileID, activityID, state})
	return nil
}

func (f *fakeNotifier) HurryUp(_ *sql.Tx, profileID, activityID, stepID int64) error {
	f.hurries = append(f.hurries, hurryRecord{profileID, activityID, stepID})
	return nil
}

// HurriedToday treats all recorded reminders as same-day, which matches the
// fixed clock the fixtures run under.
func (f *fakeNotifier) HurriedToday(_ *sql.Tx, activityID, stepID int64, _ string) (bool, error) {
	for _, h := range f.hurries {
		if h.activityID == activityID && h.stepID == stepID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifier) Purge(_ *sql.Tx, activityID int64) error {
	f.purged = append(f.purged, activityID)
	return nil
}

type fakeAccounts struct {
	captured []int64
}

func (f *fakeAccounts) CaptureFromPayload(_ *sql.Tx, profileID int64, _ map[string]interface{}) error {
	f.captured = append(f.captured, profileID)
	return nil
}

type fakeDepartments struct {
	byID map[int64]*models.Department
}

func newFakeDepartments() *fakeDepartments {
	return &fakeDepartments{byID: make(map[int64]*models.Department)}
}

func (f *fakeDepartments) GetByID(_ *sql.Tx, id int64) (*models.Department, error) {
	return f.byID[id], nil
}

type fakePositions struct {
	byID map[int64]*models.Position
}

func newFakePositions() *fakePositions {
	return &fakePositions{byID: make(map[int64]*models.Position)}
}

func (f *fakePositions) GetByID(_ *sql.Tx, id int64) (*models.Position, error) {
	return f.byID[id], nil
}

type fakeLinks struct {
	linked map[pair]bool
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{linked: make(map[pair]bool)}
}

func (f *fakeLinks) Exists(_ *sql.Tx, departmentID, positionID int64) (bool, error) {
	return f.linked[pair{departmentID, positionID}], nil
}
