package model

import "time"

type MessageDirection string

const (
	DirectionIn  MessageDirection = "in"
	DirectionOut MessageDirection = "out"
)

type MessageStatus string

const (
	MessageStatusReceived MessageStatus = "received"
	MessageStatusSent     MessageStatus = "sent"
	MessageStatusFailed   MessageStatus = "failed"
)

// MessageLog is the inbox/outbox audit trail. The inbound insert keyed by the
// provider event id is the idempotency gate: a redelivered event conflicts and
// is dropped before any business logic runs.
type MessageLog struct {
	ID              int64            `json:"id"`
	ProviderEventID string           `json:"provider_event_id"`
	Direction       MessageDirection `json:"direction"`
	Peer            string           `json:"peer"` // sender or recipient phone
	Kind            string           `json:"kind"` // text, list, button, template, status
	Summary         string           `json:"summary"`
	Status          MessageStatus    `json:"status"`
	Error           string           `json:"error"`
	CreatedAt       time.Time        `json:"created_at"`
}
