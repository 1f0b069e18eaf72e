package models

import "time"

// Notification categories. The core records notification intent only;
// delivery belongs to an external collaborator.
const (
	NotificationFinish  = "finish"
	NotificationHurryup = "hurryup"
)

// Notification is a recorded notification fact.
type Notification struct {
	ID         int64     `json:"id"`
	ProfileID  int64     `json:"profile_id"`
	ActivityID int64     `json:"activity_id"`
	StepID     *int64    `json:"step_id,omitempty"`
	Category   string    `json:"category"`
	Payload    string    `json:"payload"` // JSON blob
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
