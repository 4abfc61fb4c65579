package model

import "time"

type SlotStatus string

const (
	SlotStatusOpen  SlotStatus = "open"
	SlotStatusTaken SlotStatus = "taken"
)

// Slot is a compensation opportunity in a class occurrence. A slot born from
// an absence carries SourceAbsenceID (one absence opens exactly one slot); an
// instructor-added slot carries nil. The open→taken transition is one-way and
// guarded twice: row locks with SKIP LOCKED at selection time and a
// status-conditional UPDATE at write time.
type Slot struct {
	ID              int64      `json:"id"`
	ClassTemplateID int64      `json:"class_template_id"`
	SessionDate     time.Time  `json:"session_date"` // date only
	Status          SlotStatus `json:"status"`
	TakenBy         *int64     `json:"taken_by"`
	TakenAt         *time.Time `json:"taken_at"`
	SourceAbsenceID *int64     `json:"source_absence_id"`
	CreatedAt       time.Time  `json:"created_at"`

	Template *ClassTemplate `json:"template,omitempty"`
}
