package model

import "time"

type Role string

const (
	RoleMember     Role = "member"
	RoleInstructor Role = "instructor"
	// RoleUnknown is never stored; it is what the directory reports when a
	// phone matches neither roster.
	RoleUnknown Role = "unknown"
)

// Participant is a row from the studio roster. The roster is owned by an
// external system; this service only reads it.
type Participant struct {
	ID          int64     `json:"id"`
	Phone       string    `json:"phone"` // digits only, provider form
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	Level       int       `json:"level"`     // skill tier, 1 = beginner
	PriceCap    int       `json:"price_cap"` // grosze, max class price the member's plan covers
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sender is the directory's answer for an inbound phone identifier.
type Sender struct {
	Role        Role
	Participant *Participant // nil when Role == RoleUnknown
}

func (s *Sender) IsActiveMember() bool {
	return s.Role == RoleMember && s.Participant != nil && s.Participant.IsActive
}

func (s *Sender) IsInstructor() bool {
	return s.Role == RoleInstructor && s.Participant != nil
}
