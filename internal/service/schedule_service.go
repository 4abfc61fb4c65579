package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"go.uber.org/zap"
)

// TimeHint is an optional start-time given alongside a date to disambiguate
// between several classes on the same weekday. MinuteSet distinguishes "18"
// (hour only) from "18:00".
type TimeHint struct {
	Hour      int
	Minute    int
	MinuteSet bool
}

// Occurrence is one concrete projection of a class template onto a date.
type Occurrence struct {
	Date     time.Time
	Template *model.ClassTemplate
	SlotID   int64 // set only when the occurrence is backed by an open slot
}

// ResolveOccurrence maps a calendar date (and optional start time) to the one
// class template the member means. Ambiguity is never resolved by guessing:
// an absence recorded against the wrong class corrupts the slot and credit
// chain downstream, so when two enrollments survive the narrowing the caller
// has to ask.
func ResolveOccurrence(enrollments []*model.Enrollment, date time.Time, at *TimeHint) (*model.ClassTemplate, error) {
	weekday := model.ISOWeekday(date)

	var matches []*model.ClassTemplate
	for _, e := range enrollments {
		if e.Template != nil && e.Template.Weekday == weekday {
			matches = append(matches, e.Template)
		}
	}

	if len(matches) == 0 {
		return nil, model.NewFault(model.FaultNoEnrollment, date.Format("2006-01-02"))
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	if at != nil {
		var narrowed []*model.ClassTemplate
		for _, t := range matches {
			if t.StartHour != at.Hour {
				continue
			}
			if at.MinuteSet && t.StartMinute != at.Minute {
				continue
			}
			narrowed = append(narrowed, t)
		}
		if len(narrowed) == 1 {
			return narrowed[0], nil
		}
	}

	return nil, model.NewFault(model.FaultAmbiguousDay, date.Format("2006-01-02"))
}

// ScheduleService is the read-only projection of the weekly schedule: menus
// for members, rosters and stats for instructors.
type ScheduleService struct {
	classes  *repository.ClassRepository
	slots    *repository.SlotRepository
	absences *repository.AbsenceRepository
	credits  *repository.CreditRepository
	now      func() time.Time
	logger   *zap.Logger
}

func NewScheduleService(
	classes *repository.ClassRepository,
	slots *repository.SlotRepository,
	absences *repository.AbsenceRepository,
	credits *repository.CreditRepository,
	now func() time.Time,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		classes:  classes,
		slots:    slots,
		absences: absences,
		credits:  credits,
		now:      now,
		logger:   logger,
	}
}

// UpcomingClasses projects the member's enrollments onto the next `days`
// calendar days, today included. This backs the date menu offered whenever a
// free-text date cannot be resolved.
func (s *ScheduleService) UpcomingClasses(ctx context.Context, memberID int64, days int) ([]Occurrence, error) {
	enrollments, err := s.classes.ActiveEnrollments(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("upcoming classes: %w", err)
	}

	byWeekday := make(map[int][]*model.ClassTemplate)
	for _, e := range enrollments {
		if e.Template != nil {
			byWeekday[e.Template.Weekday] = append(byWeekday[e.Template.Weekday], e.Template)
		}
	}

	today := model.DateOnly(s.now())
	var occurrences []Occurrence
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		for _, t := range byWeekday[model.ISOWeekday(date)] {
			occurrences = append(occurrences, Occurrence{Date: date, Template: t})
		}
	}

	return occurrences, nil
}

// OpenMakeupSlots lists claimable occurrences for the member over the next
// `days` days, eligibility-filtered.
func (s *ScheduleService) OpenMakeupSlots(ctx context.Context, member *model.Participant, days int) ([]Occurrence, error) {
	today := model.DateOnly(s.now())

	slots, err := s.slots.OpenSlotsForMember(ctx, member, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("open makeup slots: %w", err)
	}

	occurrences := make([]Occurrence, 0, len(slots))
	for _, sl := range slots {
		occurrences = append(occurrences, Occurrence{Date: sl.SessionDate, Template: sl.Template, SlotID: sl.ID})
	}

	return occurrences, nil
}

// CreditBalance returns the member's current make-up balance.
func (s *ScheduleService) CreditBalance(ctx context.Context, memberID int64) (int, error) {
	return s.credits.Balance(ctx, memberID)
}

// RosterEntry is one class occurrence as the instructor sees it: who is
// expected, who reported absent, who claimed a make-up slot.
type RosterEntry struct {
	Template *model.ClassTemplate
	Date     time.Time
	Expected []*model.Participant
	Absent   []*model.Participant
	MakeUps  []*model.Participant
}

// RosterForDate builds the instructor's roster for one calendar date.
func (s *ScheduleService) RosterForDate(ctx context.Context, instructorID int64, date time.Time) ([]RosterEntry, error) {
	templates, err := s.classes.TemplatesByInstructor(ctx, instructorID, model.ISOWeekday(date))
	if err != nil {
		return nil, fmt.Errorf("roster for date: %w", err)
	}

	var entries []RosterEntry
	for _, t := range templates {
		enrolled, err := s.classes.EnrolledMembers(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("roster for date: %w", err)
		}
		absentIDs, err := s.classes.AbsentOn(ctx, t.ID, date)
		if err != nil {
			return nil, fmt.Errorf("roster for date: %w", err)
		}
		makeUps, err := s.slots.TakenBy(ctx, t.ID, date)
		if err != nil {
			return nil, fmt.Errorf("roster for date: %w", err)
		}

		entry := RosterEntry{Template: t, Date: model.DateOnly(date), MakeUps: makeUps}
		for _, p := range enrolled {
			if absentIDs[p.ID] {
				entry.Absent = append(entry.Absent, p)
			} else {
				entry.Expected = append(entry.Expected, p)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// RecentAbsences returns absences reported for the instructor's classes in
// the last `days` days.
func (s *ScheduleService) RecentAbsences(ctx context.Context, instructorID int64, days int) ([]*model.Absence, error) {
	return s.absences.RecentByInstructor(ctx, instructorID, days)
}

// InstructorUpcoming projects the instructor's own templates onto the next
// `days` days, for the add-slot menu.
func (s *ScheduleService) InstructorUpcoming(ctx context.Context, instructorID int64, days int) ([]Occurrence, error) {
	templates, err := s.classes.TemplatesByInstructor(ctx, instructorID, 0)
	if err != nil {
		return nil, fmt.Errorf("instructor upcoming: %w", err)
	}

	byWeekday := make(map[int][]*model.ClassTemplate)
	for _, t := range templates {
		byWeekday[t.Weekday] = append(byWeekday[t.Weekday], t)
	}

	today := model.DateOnly(s.now())
	var occurrences []Occurrence
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		for _, t := range byWeekday[model.ISOWeekday(date)] {
			occurrences = append(occurrences, Occurrence{Date: date, Template: t})
		}
	}

	return occurrences, nil
}

// Stats is the instructor panel's counters.
type Stats struct {
	AbsencesLast30 int
	OpenSlots      int
	TakenSlots     int
	CreditsOwed    int
}

func (s *ScheduleService) InstructorStats(ctx context.Context, instructorID int64) (*Stats, error) {
	now := s.now()

	absences, err := s.absences.CountByInstructorSince(ctx, instructorID, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("instructor stats: %w", err)
	}
	open, taken, err := s.slots.CountByStatus(ctx, instructorID, model.DateOnly(now))
	if err != nil {
		return nil, fmt.Errorf("instructor stats: %w", err)
	}
	owed, err := s.credits.TotalOutstanding(ctx)
	if err != nil {
		return nil, fmt.Errorf("instructor stats: %w", err)
	}

	return &Stats{
		AbsencesLast30: absences,
		OpenSlots:      open,
		TakenSlots:     taken,
		CreditsOwed:    owed,
	}, nil
}
