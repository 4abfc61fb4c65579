package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type ClassRepository struct {
	q base.Querier
}

func NewClassRepository(q base.Querier) *ClassRepository {
	return &ClassRepository{q: q}
}

const templateColumns = `id, group_id, group_name, instructor_id, weekday, start_hour, start_minute,
		duration_min, capacity, level, price, is_active, created_at`

func scanTemplate(row pgx.Row) (*model.ClassTemplate, error) {
	var t model.ClassTemplate
	err := row.Scan(
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
		return nil, err
	}
	return &t, nil
}

// GetTemplateByID returns nil when no row exists.
func (r *ClassRepository) GetTemplateByID(ctx context.Context, id int64) (*model.ClassTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM class_templates
		WHERE id = $1
	`

	t, err := scanTemplate(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template by id: %w", err)
	}

	return t, nil
}

// ActiveEnrollments returns the member's active enrollments with their
// templates populated. Inactive templates are excluded: a paused class must
// not attract absences.
func (r *ClassRepository) ActiveEnrollments(ctx context.Context, memberID int64) ([]*model.Enrollment, error) {
	query := `
		SELECT e.id, e.participant_id, e.class_template_id, e.is_active, e.created_at,
		       t.id, t.group_id, t.group_name, t.instructor_id, t.weekday, t.start_hour, t.start_minute,
		       t.duration_min, t.capacity, t.level, t.price, t.is_active, t.created_at
		FROM enrollments e
		JOIN class_templates t ON t.id = e.class_template_id
		WHERE e.participant_id = $1 AND e.is_active AND t.is_active
		ORDER BY t.weekday, t.start_hour, t.start_minute
	`

	rows, err := r.q.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("get active enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		var t model.ClassTemplate
		err := rows.Scan(
			&e.ID,
			&e.ParticipantID,
			&e.ClassTemplateID,
			&e.IsActive,
			&e.CreatedAt,
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
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Template = &t
		enrollments = append(enrollments, &e)
	}

	return enrollments, rows.Err()
}

// TemplatesByInstructor returns the instructor's active templates, optionally
// narrowed to one ISO weekday (0 = all).
func (r *ClassRepository) TemplatesByInstructor(ctx context.Context, instructorID int64, weekday int) ([]*model.ClassTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM class_templates
		WHERE instructor_id = $1 AND is_active AND ($2 = 0 OR weekday = $2)
		ORDER BY weekday, start_hour, start_minute
	`

	rows, err := r.q.Query(ctx, query, instructorID, weekday)
	if err != nil {
		return nil, fmt.Errorf("get templates by instructor: %w", err)
	}
	defer rows.Close()

	var templates []*model.ClassTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// EnrolledMembers lists the active members expected in a class occurrence.
func (r *ClassRepository) EnrolledMembers(ctx context.Context, templateID int64) ([]*model.Participant, error) {
	query := `
		SELECT p.id, p.phone, p.role, p.display_name, p.level, p.price_cap, p.is_active, p.created_at
		FROM enrollments e
		JOIN participants p ON p.id = e.participant_id
		WHERE e.class_template_id = $1 AND e.is_active AND p.is_active
		ORDER BY p.display_name
	`

	rows, err := r.q.Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("get enrolled members: %w", err)
	}
	defer rows.Close()

	var members []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, p)
	}

	return members, rows.Err()
}

// AbsentOn returns ids of members with a recorded absence for the occurrence.
func (r *ClassRepository) AbsentOn(ctx context.Context, templateID int64, date time.Time) (map[int64]bool, error) {
	query := `
		SELECT participant_id FROM absences
		WHERE class_template_id = $1 AND session_date = $2
	`

	rows, err := r.q.Query(ctx, query, templateID, model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("get absent members: %w", err)
	}
	defer rows.Close()

	absent := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan absent member: %w", err)
		}
		absent[id] = true
	}

	return absent, rows.Err()
}
