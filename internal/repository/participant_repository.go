package repository

import (
	"context"
	"fmt"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type ParticipantRepository struct {
	q base.Querier
}

func NewParticipantRepository(q base.Querier) *ParticipantRepository {
	return &ParticipantRepository{q: q}
}

const participantColumns = `id, phone, role, display_name, level, price_cap, is_active, created_at`

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	err := row.Scan(
		&p.ID,
		&p.Phone,
		&p.Role,
		&p.DisplayName,
		&p.Level,
		&p.PriceCap,
		&p.IsActive,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByPhone looks a participant up by any of the given phone forms, filtered
// to one role. Historical roster rows store the number with or without the
// country prefix, so the directory always passes both.
func (r *ParticipantRepository) GetByPhone(ctx context.Context, role model.Role, phones ...string) (*model.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE role = $1 AND phone = ANY($2)
		LIMIT 1
	`

	p, err := scanParticipant(r.q.QueryRow(ctx, query, role, phones))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant by phone: %w", err)
	}

	return p, nil
}

// GetByID returns nil when no row exists.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE id = $1
	`

	p, err := scanParticipant(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant by id: %w", err)
	}

	return p, nil
}
