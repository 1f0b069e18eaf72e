package models

import "time"

// Activity lifecycle states.
const (
	ActivityDraft      = "draft"
	ActivityProcessing = "processing"
	ActivityApproved   = "approved"
	ActivityRejected   = "rejected"
	ActivityCancelled  = "cancelled"
	ActivityAborted    = "aborted"
)

// Step states.
const (
	StepPending  = "pending"
	StepApproved = "approved"
	StepRejected = "rejected"
)

// Post-approval task substates. Only templates with NeedTask set use these.
const (
	TaskNone    = ""
	TaskPending = "pending"
	TaskDone    = "done"
)

// AuditActivity is one business request moving through an approval chain.
// An activity is never deleted; relaunching archives it and starts a fresh
// draft with the same payload.
type AuditActivity struct {
	ID         int64      `json:"id"`
	SeqNum     string     `json:"seq_num"`
	ConfigID   int64      `json:"config_id"`
	Category   string     `json:"category"`
	Subtype    string     `json:"subtype"`
	CreatorID  int64      `json:"creator_id"`
	Extra      string     `json:"extra"` // JSON blob, the submitted payload
	State      string     `json:"state"`
	TaskState  string     `json:"task_state,omitempty"`
	Archived   bool       `json:"archived"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the activity state permits no further approval
// progress (relaunch is still allowed).
func (a *AuditActivity) Terminal() bool {
	switch a.State {
	case ActivityApproved, ActivityRejected, ActivityCancelled, ActivityAborted:
		return true
	}
	return false
}

// AuditStep is one approval checkpoint of an activity. Position indexes are
// contiguous from zero over the materialized steps; template steps without an
// eligible candidate never materialize. The department/position pair is the
// resolution-time snapshot and survives later org changes.
type AuditStep struct {
	ID           int64      `json:"id"`
	ActivityID   int64      `json:"activity_id"`
	Position     int        `json:"position"`
	AssigneeID   int64      `json:"assignee_id"`
	DepartmentID int64      `json:"department_id"`
	PositionID   int64      `json:"position_id"`
	State        string     `json:"state"`
	Active       bool       `json:"active"`
	Abnormal     bool       `json:"abnormal"`
	Note         string     `json:"note,omitempty"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
