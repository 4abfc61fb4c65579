package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
)

type SlotRepository struct {
	q base.Querier
}

func NewSlotRepository(q base.Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

// CreateForAbsence opens the compensation slot for a freshly recorded absence.
// The partial unique index on source_absence_id makes this an upsert: a
// concurrent retry of the same absence never yields a second slot.
func (r *SlotRepository) CreateForAbsence(ctx context.Context, absenceID, templateID int64, date time.Time) (int64, error) {
	query := `
		INSERT INTO slots (class_template_id, session_date, status, source_absence_id)
		VALUES ($1, $2, 'open', $3)
		ON CONFLICT (source_absence_id) WHERE source_absence_id IS NOT NULL DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.q.QueryRow(ctx, query, templateID, model.DateOnly(date), absenceID).Scan(&id)
	if err != nil {
		if !base.IsNotFound(err) {
			return 0, fmt.Errorf("create slot for absence: %w", err)
		}
		// Conflict path: the slot already exists, fetch its id.
		err = r.q.QueryRow(ctx,
			`SELECT id FROM slots WHERE source_absence_id = $1`, absenceID,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("get existing slot for absence: %w", err)
		}
	}

	return id, nil
}

// CreateManual opens an instructor-added slot with no absence behind it.
func (r *SlotRepository) CreateManual(ctx context.Context, templateID int64, date time.Time) (*model.Slot, error) {
	query := `
		INSERT INTO slots (class_template_id, session_date, status, source_absence_id)
		VALUES ($1, $2, 'open', NULL)
		RETURNING id, class_template_id, session_date, status, taken_by, taken_at, source_absence_id, created_at
	`

	var s model.Slot
	err := r.q.QueryRow(ctx, query, templateID, model.DateOnly(date)).Scan(
		&s.ID,
		&s.ClassTemplateID,
		&s.SessionDate,
		&s.Status,
		&s.TakenBy,
		&s.TakenAt,
		&s.SourceAbsenceID,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create manual slot: %w", err)
	}

	return &s, nil
}

// LockOpenCandidates selects and row-locks open slots for the occurrence that
// the claiming member is eligible for. SKIP LOCKED steps over rows a
// concurrent claimant already holds instead of queueing behind them, so two
// claims racing for the last slot resolve to one winner without deadlocks.
func (r *SlotRepository) LockOpenCandidates(ctx context.Context, templateID int64, date time.Time, member *model.Participant) ([]int64, error) {
	query := `
		SELECT s.id
		FROM slots s
		JOIN class_templates t ON t.id = s.class_template_id
		WHERE s.class_template_id = $1
		  AND s.session_date = $2
		  AND s.status = 'open'
		  AND t.level >= $3
		  AND t.price <= $4
		  AND NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.participant_id = $5 AND e.class_template_id = s.class_template_id AND e.is_active
		  )
		ORDER BY s.id
		FOR UPDATE OF s SKIP LOCKED
	`

	rows, err := r.q.Query(ctx, query, templateID, model.DateOnly(date), member.Level, member.PriceCap, member.ID)
	if err != nil {
		return nil, fmt.Errorf("lock open slots: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan slot id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Claim transitions one slot open→taken. The status condition in the WHERE
// clause is the last line of defense: even with locking in place the update
// refuses a row that is no longer open.
func (r *SlotRepository) Claim(ctx context.Context, slotID, memberID int64, at time.Time) (bool, error) {
	query := `
		UPDATE slots
		SET status = 'taken', taken_by = $1, taken_at = $2
		WHERE id = $3 AND status = 'open'
	`

	tag, err := r.q.Exec(ctx, query, memberID, at, slotID)
	if err != nil {
		return false, fmt.Errorf("claim slot: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// OpenSlotsForMember lists open slots within [from, to) the member could
// claim, with templates populated, for the make-up menu. Same eligibility
// filters as LockOpenCandidates, without the locks.
func (r *SlotRepository) OpenSlotsForMember(ctx context.Context, member *model.Participant, from, to time.Time) ([]*model.Slot, error) {
	query := `
		SELECT DISTINCT ON (s.class_template_id, s.session_date)
		       s.id, s.class_template_id, s.session_date, s.status, s.taken_by, s.taken_at, s.source_absence_id, s.created_at,
		       t.id, t.group_id, t.group_name, t.instructor_id, t.weekday, t.start_hour, t.start_minute,
		       t.duration_min, t.capacity, t.level, t.price, t.is_active, t.created_at
		FROM slots s
		JOIN class_templates t ON t.id = s.class_template_id
		WHERE s.status = 'open'
		  AND s.session_date >= $1 AND s.session_date < $2
		  AND t.is_active
		  AND t.level >= $3
		  AND t.price <= $4
		  AND NOT EXISTS (
			SELECT 1 FROM enrollments e
			WHERE e.participant_id = $5 AND e.class_template_id = s.class_template_id AND e.is_active
		  )
		ORDER BY s.class_template_id, s.session_date, s.id
	`

	rows, err := r.q.Query(ctx, query, model.DateOnly(from), model.DateOnly(to), member.Level, member.PriceCap, member.ID)
	if err != nil {
		return nil, fmt.Errorf("get open slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		var s model.Slot
		var t model.ClassTemplate
		err := rows.Scan(
			&s.ID,
			&s.ClassTemplateID,
			&s.SessionDate,
			&s.Status,
			&s.TakenBy,
			&s.TakenAt,
			&s.SourceAbsenceID,
			&s.CreatedAt,
			&t.ID,
			&t.GroupID,
			&t.GroupName,
			&t.InstructorID,
			&t.Weekday,
			&t.StartHour,
			&t.StartMinute,
			&t.DurationMin,
			&t.Capacity,
			&t.Level,
			&t.Price,
			&t.IsActive,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan open slot: %w", err)
		}
		s.Template = &t
		slots = append(slots, &s)
	}

	return slots, rows.Err()
}

// TakenBy returns members who claimed make-up slots for the occurrence.
func (r *SlotRepository) TakenBy(ctx context.Context, templateID int64, date time.Time) ([]*model.Participant, error) {
	query := `
		SELECT p.id, p.phone, p.role, p.display_name, p.level, p.price_cap, p.is_active, p.created_at
		FROM slots s
		JOIN participants p ON p.id = s.taken_by
		WHERE s.class_template_id = $1 AND s.session_date = $2 AND s.status = 'taken'
		ORDER BY p.display_name
	`

	rows, err := r.q.Query(ctx, query, templateID, model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("get slot claimants: %w", err)
	}
	defer rows.Close()

	var members []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimant: %w", err)
		}
		members = append(members, p)
	}

	return members, rows.Err()
}

// CountByStatus returns open and taken slot counts for the instructor's
// classes from the given date onward.
func (r *SlotRepository) CountByStatus(ctx context.Context, instructorID int64, from time.Time) (open, taken int, err error) {
	query := `
		SELECT count(*) FILTER (WHERE s.status = 'open'),
		       count(*) FILTER (WHERE s.status = 'taken')
		FROM slots s
		JOIN class_templates t ON t.id = s.class_template_id
		WHERE t.instructor_id = $1 AND s.session_date >= $2
	`

	if err := r.q.QueryRow(ctx, query, instructorID, model.DateOnly(from)).Scan(&open, &taken); err != nil {
		return 0, 0, fmt.Errorf("count slots: %w", err)
	}

	return open, taken, nil
}
