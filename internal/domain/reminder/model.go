package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/nptracker/nptracker/pkg/civil"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusDone    Status = "Done"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusDone
}

// Reminder maps to the reminder table. PatientID and TaskName are weak
// references; DueDate is always derived from StartDate and IntervalLabel.
type Reminder struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	TaskName      string     `db:"task_name" json:"task_name"`
	StartDate     civil.Date `db:"start_date" json:"start_date"`
	IntervalLabel string     `db:"interval_label" json:"interval_label"`
	DueDate       civil.Date `db:"due_date" json:"due_date"`
	Status        Status     `db:"status" json:"status"`
	Note          *string    `db:"note" json:"note,omitempty"`
	PreviousID    *uuid.UUID `db:"previous_id" json:"previous_id,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *Reminder) Done() bool {
	return r.Status == StatusDone
}

// ListFilter narrows reminder listings. Zero fields match everything.
type ListFilter struct {
	PatientID uuid.UUID
	Status    Status
}

// CompletionResult is returned when a reminder is marked done, together
// with the stage a follow-up would advance to.
type CompletionResult struct {
	Reminder   *Reminder `json:"reminder"`
	NextStage  *string   `json:"next_stage"`
	CanAdvance bool      `json:"can_advance"`
}

// FollowUpAction selects the interval of a follow-up reminder.
type FollowUpAction string

const (
	// ActionRepeat schedules the same interval again.
	ActionRepeat FollowUpAction = "repeat"
	// ActionAdvance schedules the next stage of the task type.
	ActionAdvance FollowUpAction = "advance"
)

// FollowUpRequest asks for a new reminder after an existing one. A nil
// StartDate starts the follow-up at the previous due date.
type FollowUpRequest struct {
	Action    FollowUpAction `json:"action"`
	StartDate *civil.Date    `json:"start_date,omitempty"`
	Note      *string        `json:"note,omitempty"`
}

type Urgency string

const (
	UrgencyOverdue  Urgency = "overdue"
	UrgencyDueSoon  Urgency = "due_soon"
	UrgencyUpcoming Urgency = "upcoming"
)

// DashboardItem is a pending reminder as shown on the dashboard.
type DashboardItem struct {
	*Reminder
	PatientName  string  `json:"patient_name"`
	Location     string  `json:"location"`
	DaysUntilDue int     `json:"days_until_due"`
	Urgency      Urgency `json:"urgency"`
	NextStage    *string `json:"next_stage"`
	CanAdvance   bool    `json:"can_advance"`
}

// FacilityGroup holds the pending reminders of one facility, soonest first.
type FacilityGroup struct {
	Facility string          `json:"facility"`
	Overdue  int             `json:"overdue"`
	DueSoon  int             `json:"due_soon"`
	Items    []DashboardItem `json:"items"`
}

type Dashboard struct {
	AsOf        civil.Date      `json:"as_of"`
	DueSoonDays int             `json:"due_soon_days"`
	Total       int             `json:"total"`
	Overdue     int             `json:"overdue"`
	DueSoon     int             `json:"due_soon"`
	Facilities  []FacilityGroup `json:"facilities"`
}

// DuePreview is the calculator result for a start date and interval label.
type DuePreview struct {
	StartDate civil.Date `json:"start_date"`
	Interval  string     `json:"interval"`
	DueDate   civil.Date `json:"due_date"`
	Parsed    bool       `json:"parsed"`
	Unit      string     `json:"unit,omitempty"`
	Magnitude int        `json:"magnitude,omitempty"`
}
