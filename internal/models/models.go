package models

import (
	"fmt"
	"time"
)

// Priority is the task priority level, constrained to a fixed enum.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the four allowed priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Frequency is the recurrence cadence of a recurring task.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

var weekdayTokens = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// RecurrenceRule describes how a completed recurring task regenerates its
// next occurrence. Days is only meaningful when Frequency is weekly.
type RecurrenceRule struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	Days      []string   `json:"days,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// Validate checks the rule's structural invariants.
func (r *RecurrenceRule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("interval must be positive, got %d", r.Interval)
	}
	for _, d := range r.Days {
		if _, ok := weekdayTokens[d]; !ok {
			return fmt.Errorf("unknown weekday token %q", d)
		}
	}
	return nil
}

// Weekdays resolves the rule's weekday tokens. The result is nil when the
// rule carries no day set.
func (r *RecurrenceRule) Weekdays() (map[time.Weekday]bool, error) {
	if len(r.Days) == 0 {
		return nil, nil
	}
	days := make(map[time.Weekday]bool, len(r.Days))
	for _, d := range r.Days {
		wd, ok := weekdayTokens[d]
		if !ok {
			return nil, fmt.Errorf("unknown weekday token %q", d)
		}
		days[wd] = true
	}
	return days, nil
}

// Task is a single todo item owned by exactly one user.
type Task struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    Priority        `json:"priority"`
	Completed   bool            `json:"completed"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	RemindAt    *time.Time      `json:"remind_at,omitempty"`
	Recurrence  *RecurrenceRule `json:"recurrence_rule,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	cp := *t
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	if t.RemindAt != nil {
		r := *t.RemindAt
		cp.RemindAt = &r
	}
	if t.Recurrence != nil {
		rule := *t.Recurrence
		rule.Days = append([]string(nil), t.Recurrence.Days...)
		if t.Recurrence.EndDate != nil {
			e := *t.Recurrence.EndDate
			rule.EndDate = &e
		}
		cp.Recurrence = &rule
	}
	return &cp
}

// Tag is a user-scoped label attachable to tasks.
type Tag struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an account identity. Created at signup by the auth subsystem.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
