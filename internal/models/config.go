package models

import "time"

// Comparator constants for routing conditions.
const (
	OpEq  = "eq"
	OpLt  = "lt"
	OpLte = "lte"
	OpGt  = "gt"
	OpGte = "gte"
)

// PropCreator is the pseudo-prop matched against the creator's
// department/position instead of the activity payload.
const PropCreator = "creator"

// AuditConfig is a routing template: an ordered chain of department/position
// steps, optionally guarded by conditions, scoped to a subtype. Multiple
// templates may share a subtype; priority and the fallback flag decide which
// one an activity resolves to.
type AuditConfig struct {
	ID         int64        `json:"id"`
	Category   string       `json:"category"`
	Subtype    string       `json:"subtype"`
	Priority   int          `json:"priority"`
	Fallback   bool         `json:"fallback"`
	NeedTask   bool         `json:"need_task"`
	Abnormal   bool         `json:"abnormal"`
	Archived   bool         `json:"archived"`
	Steps      []ConfigStep `json:"steps"`
	Conditions []Condition  `json:"conditions"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ConfigStep is one checkpoint in a routing template. A nil DepartmentID
// means "the creator's own department" at materialization time. A step
// without a position id is an unconfigured placeholder and never
// materializes, whether or not a department is set.
type ConfigStep struct {
	ID           int64  `json:"id"`
	ConfigID     int64  `json:"config_id"`
	Position     int    `json:"position"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	PositionID   *int64 `json:"position_id,omitempty"`
	Abnormal     bool   `json:"abnormal"`
}

// StepTargetKind distinguishes the three shapes a config step can take.
type StepTargetKind int

const (
	TargetFixed StepTargetKind = iota
	TargetCreatorDepartment
	TargetUnset
)

// StepTarget is the resolved shape of a config step's routing target.
type StepTarget struct {
	Kind         StepTargetKind
	DepartmentID int64
	PositionID   int64
}

// Target returns the tagged routing target of the step.
func (s *ConfigStep) Target() StepTarget {
	switch {
	case s.PositionID == nil:
		return StepTarget{Kind: TargetUnset}
	case s.DepartmentID == nil:
		return StepTarget{Kind: TargetCreatorDepartment, PositionID: *s.PositionID}
	default:
		return StepTarget{Kind: TargetFixed, DepartmentID: *s.DepartmentID, PositionID: *s.PositionID}
	}
}

// Condition is a single guard on a routing template. Value is the decoded
// comparison operand: a number, a string, an array (membership for eq), or
// an object for the creator pseudo-prop. All of a template's conditions must
// hold for the template to match.
type Condition struct {
	ID       int64       `json:"id"`
	ConfigID int64       `json:"config_id"`
	Prop     string      `json:"prop"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}
