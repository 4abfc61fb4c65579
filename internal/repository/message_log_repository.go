package repository

import (
	"context"
	"fmt"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
)

type MessageLogRepository struct {
	q base.Querier
}

func NewMessageLogRepository(q base.Querier) *MessageLogRepository {
	return &MessageLogRepository{q: q}
}

// InsertInbound records an inbound event and reports whether this is its first
// delivery. ON CONFLICT DO NOTHING on the provider event id makes this the
// idempotency gate: false means the provider redelivered and the caller must
// drop the event without processing or replying.
func (r *MessageLogRepository) InsertInbound(ctx context.Context, m *model.MessageLog) (bool, error) {
	query := `
		INSERT INTO message_log (provider_event_id, direction, peer, kind, summary, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_event_id) DO NOTHING
		RETURNING id
	`

	m.Direction = model.DirectionIn
	m.Status = model.MessageStatusReceived
	err := r.q.QueryRow(ctx, query, m.ProviderEventID, m.Direction, m.Peer, m.Kind, m.Summary, m.Status).Scan(&m.ID)
	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert inbound event: %w", err)
	}

	return true, nil
}

// InsertOutbound records one outbound attempt, success or failure.
func (r *MessageLogRepository) InsertOutbound(ctx context.Context, m *model.MessageLog) error {
	query := `
		INSERT INTO message_log (provider_event_id, direction, peer, kind, summary, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	m.Direction = model.DirectionOut
	_, err := r.q.Exec(ctx, query, m.ProviderEventID, m.Direction, m.Peer, m.Kind, m.Summary, m.Status, m.Error)
	if err != nil {
		return fmt.Errorf("insert outbound attempt: %w", err)
	}

	return nil
}
