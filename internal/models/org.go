package models

import "time"

// Department is a node in the organization tree. Archival is soft and
// cascades to descendants.
type Department struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code,omitempty"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is a job title. A position only becomes assignable inside a
// department once a DepartmentPosition linkage exists for the pair.
type Position struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code,omitempty"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// DepartmentPosition links a position into a department (many-to-many).
type DepartmentPosition struct {
	ID           int64 `json:"id"`
	DepartmentID int64 `json:"department_id"`
	PositionID   int64 `json:"position_id"`
}

// Profile is a person. Each profile is bound to at most one department and
// one position; the pair is only meaningful for routing while a matching
// DepartmentPosition linkage exists.
type Profile struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DepartmentID *int64    `json:"department_id,omitempty"`
	PositionID   *int64    `json:"position_id,omitempty"`
	Archived     bool      `json:"archived"`
	Blocked      bool      `json:"blocked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
