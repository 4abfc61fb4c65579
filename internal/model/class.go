package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClassTemplate is a weekly recurring class: every occurrence is the
// projection of (weekday, start time) onto calendar dates. Templates are
// managed by the studio roster system and are read-only here.
type ClassTemplate struct {
	ID           int64     `json:"id"`
	GroupID      uuid.UUID `json:"group_id"` // links templates of one studio group
	GroupName    string    `json:"group_name"`
	InstructorID int64     `json:"instructor_id"`
	Weekday      int       `json:"weekday"`      // ISO: 1 = Monday, 7 = Sunday
	StartHour    int       `json:"start_hour"`   // 0-23
	StartMinute  int       `json:"start_minute"` // 0-59
	DurationMin  int       `json:"duration_min"`
	Capacity     int       `json:"capacity"`
	Level        int       `json:"level"` // required skill tier
	Price        int       `json:"price"` // grosze
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// StartTimeLabel returns "18:00"-style labels for menus and rosters.
func (t *ClassTemplate) StartTimeLabel() string {
	return fmt.Sprintf("%02d:%02d", t.StartHour, t.StartMinute)
}

// Enrollment ties a member to the weekly classes they normally attend.
type Enrollment struct {
	ID              int64     `json:"id"`
	ParticipantID   int64     `json:"participant_id"`
	ClassTemplateID int64     `json:"class_template_id"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`

	Template *ClassTemplate `json:"template,omitempty"`
}

// ISOWeekday maps time.Weekday (Sunday = 0) to ISO numbering (Monday = 1).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DateOnly truncates a timestamp to its calendar date in the same location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
