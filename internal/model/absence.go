package model

import "time"

// Absence records one reported no-show for one class occurrence. Rows are
// append-only: they double as the audit trail, so they are never deleted.
// Uniqueness over (participant, template, session date) is enforced in the
// schema; a second report of the same occurrence is the already_absent no-op.
type Absence struct {
	ID              int64     `json:"id"`
	ParticipantID   int64     `json:"participant_id"`
	ClassTemplateID int64     `json:"class_template_id"`
	SessionDate     time.Time `json:"session_date"` // date only
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`

	Template    *ClassTemplate `json:"template,omitempty"`
	Participant *Participant   `json:"participant,omitempty"`
}
