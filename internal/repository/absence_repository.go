package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
)

type AbsenceRepository struct {
	q base.Querier
}

func NewAbsenceRepository(q base.Querier) *AbsenceRepository {
	return &AbsenceRepository{q: q}
}

// Get returns the absence for (member, template, date), or nil.
func (r *AbsenceRepository) Get(ctx context.Context, memberID, templateID int64, date time.Time) (*model.Absence, error) {
	query := `
		SELECT id, participant_id, class_template_id, session_date, reason, created_at
		FROM absences
		WHERE participant_id = $1 AND class_template_id = $2 AND session_date = $3
	`

	var a model.Absence
	err := r.q.QueryRow(ctx, query, memberID, templateID, model.DateOnly(date)).Scan(
		&a.ID,
		&a.ParticipantID,
		&a.ClassTemplateID,
		&a.SessionDate,
		&a.Reason,
		&a.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get absence: %w", err)
	}

	return &a, nil
}

// Create inserts the absence row. The schema's uniqueness constraint over
// (participant, template, date) is the final word on duplicates; callers check
// first via Get to return already_absent instead of a constraint error.
func (r *AbsenceRepository) Create(ctx context.Context, a *model.Absence) error {
	query := `
		INSERT INTO absences (participant_id, class_template_id, session_date, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(
		ctx, query,
		a.ParticipantID,
		a.ClassTemplateID,
		model.DateOnly(a.SessionDate),
		a.Reason,
	).Scan(&a.ID, &a.CreatedAt)

	if err != nil {
		return fmt.Errorf("create absence: %w", err)
	}

	return nil
}

// RecentByInstructor returns absences reported in the last `days` days for the
// instructor's classes, newest first.
func (r *AbsenceRepository) RecentByInstructor(ctx context.Context, instructorID int64, days int) ([]*model.Absence, error) {
	query := `
		SELECT a.id, a.participant_id, a.class_template_id, a.session_date, a.reason, a.created_at,
		       p.display_name, t.group_name, t.weekday, t.start_hour, t.start_minute
		FROM absences a
		JOIN participants p ON p.id = a.participant_id
		JOIN class_templates t ON t.id = a.class_template_id
		WHERE t.instructor_id = $1 AND a.created_at >= now() - make_interval(days => $2)
		ORDER BY a.created_at DESC
	`

	rows, err := r.q.Query(ctx, query, instructorID, days)
	if err != nil {
		return nil, fmt.Errorf("get recent absences: %w", err)
	}
	defer rows.Close()

	var absences []*model.Absence
	for rows.Next() {
		var a model.Absence
		var p model.Participant
		var t model.ClassTemplate
		err := rows.Scan(
			&a.ID,
			&a.ParticipantID,
			&a.ClassTemplateID,
			&a.SessionDate,
			&a.Reason,
			&a.CreatedAt,
			&p.DisplayName,
			&t.GroupName,
			&t.Weekday,
			&t.StartHour,
			&t.StartMinute,
		)
		if err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		a.Participant = &p
		a.Template = &t
		absences = append(absences, &a)
	}

	return absences, rows.Err()
}

// CountByInstructorSince counts absences for the instructor's classes reported
// on or after the given time.
func (r *AbsenceRepository) CountByInstructorSince(ctx context.Context, instructorID int64, since time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM absences a
		JOIN class_templates t ON t.id = a.class_template_id
		WHERE t.instructor_id = $1 AND a.created_at >= $2
	`

	var count int
	if err := r.q.QueryRow(ctx, query, instructorID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count absences: %w", err)
	}

	return count, nil
}
