package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memLedger implements repository.Ledger over plain maps. One mutex plays the
// role of the database's locks: transactions are serialized, failed ones roll
// back to a snapshot.
type memLedger struct {
	mu           sync.Mutex
	participants map[int64]*model.Participant
	templates    map[int64]*model.ClassTemplate
	enrollments  map[int64][]*model.Enrollment
	absences     map[int64]*model.Absence
	slots        map[int64]*model.Slot
	credits      map[int64]int
	nextID       int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		participants: make(map[int64]*model.Participant),
		templates:    make(map[int64]*model.ClassTemplate),
		enrollments:  make(map[int64][]*model.Enrollment),
		absences:     make(map[int64]*model.Absence),
		slots:        make(map[int64]*model.Slot),
		credits:      make(map[int64]int),
	}
}

func (l *memLedger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *memLedger) snapshot() (map[int64]*model.Absence, map[int64]*model.Slot, map[int64]int, int64) {
	absences := make(map[int64]*model.Absence, len(l.absences))
	for k, v := range l.absences {
		c := *v
		absences[k] = &c
	}
	slots := make(map[int64]*model.Slot, len(l.slots))
	for k, v := range l.slots {
		c := *v
		slots[k] = &c
	}
	credits := make(map[int64]int, len(l.credits))
	for k, v := range l.credits {
		credits[k] = v
	}
	return absences, slots, credits, l.nextID
}

func (l *memLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	absences, slots, credits, nextID := l.snapshot()
	if err := fn(ctx, &memTx{l}); err != nil {
		l.absences, l.slots, l.credits, l.nextID = absences, slots, credits, nextID
		return err
	}
	return nil
}

type memTx struct {
	l *memLedger
}

func (t *memTx) TemplateByID(_ context.Context, id int64) (*model.ClassTemplate, error) {
	return t.l.templates[id], nil
}

func (t *memTx) ActiveEnrollments(_ context.Context, memberID int64) ([]*model.Enrollment, error) {
	return t.l.enrollments[memberID], nil
}

func (t *memTx) GetAbsence(_ context.Context, memberID, templateID int64, date time.Time) (*model.Absence, error) {
	for _, a := range t.l.absences {
		if a.ParticipantID == memberID && a.ClassTemplateID == templateID && a.SessionDate.Equal(date) {
			return a, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateAbsence(_ context.Context, a *model.Absence) error {
	for _, ex := range t.l.absences {
		if ex.ParticipantID == a.ParticipantID && ex.ClassTemplateID == a.ClassTemplateID && ex.SessionDate.Equal(a.SessionDate) {
			return &pgconn.PgError{Code: "23505", ConstraintName: "absences_participant_id_class_template_id_session_date_key"}
		}
	}
	a.ID = t.l.id()
	a.CreatedAt = time.Now()
	c := *a
	t.l.absences[a.ID] = &c
	return nil
}

func (t *memTx) CreateSlotForAbsence(_ context.Context, absenceID, templateID int64, date time.Time) (int64, error) {
	for _, s := range t.l.slots {
		if s.SourceAbsenceID != nil && *s.SourceAbsenceID == absenceID {
			return s.ID, nil
		}
	}
	id := t.l.id()
	src := absenceID
	t.l.slots[id] = &model.Slot{
		ID:              id,
		ClassTemplateID: templateID,
		SessionDate:     date,
		Status:          model.SlotStatusOpen,
		SourceAbsenceID: &src,
	}
	return id, nil
}

func (t *memTx) CreateManualSlot(_ context.Context, templateID int64, date time.Time) (*model.Slot, error) {
	id := t.l.id()
	slot := &model.Slot{
		ID:              id,
		ClassTemplateID: templateID,
		SessionDate:     date,
		Status:          model.SlotStatusOpen,
	}
	t.l.slots[id] = slot
	c := *slot
	return &c, nil
}

func (t *memTx) LockOpenCandidates(_ context.Context, templateID int64, date time.Time, member *model.Participant) ([]int64, error) {
	template := t.l.templates[templateID]
	if template == nil || template.Level < member.Level || template.Price > member.PriceCap {
		return nil, nil
	}
	for _, e := range t.l.enrollments[member.ID] {
		if e.ClassTemplateID == templateID && e.IsActive {
			return nil, nil
		}
	}

	var ids []int64
	for _, s := range t.l.slots {
		if s.ClassTemplateID == templateID && s.SessionDate.Equal(date) && s.Status == model.SlotStatusOpen {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (t *memTx) ClaimSlot(_ context.Context, slotID, memberID int64, at time.Time) (bool, error) {
	s := t.l.slots[slotID]
	if s == nil || s.Status != model.SlotStatusOpen {
		return false, nil
	}
	s.Status = model.SlotStatusTaken
	s.TakenBy = &memberID
	s.TakenAt = &at
	return true, nil
}

func (t *memTx) BalanceForUpdate(_ context.Context, memberID int64) (int, error) {
	return t.l.credits[memberID], nil
}

func (t *memTx) AddCredit(_ context.Context, memberID int64, delta int) error {
	t.l.credits[memberID] += delta
	return nil
}

// Fixture: today is Monday 2025-11-10. Member 1 attends only the Tuesday
// 18:00 class (template 100) run by instructor 10.
var (
	testNow     = time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	nextTuesday = time.Date(2025, 11, 11, 0, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return testNow }

func newFixture() (*memLedger, *ReconcileService) {
	l := newMemLedger()
	l.nextID = 1000

	l.participants[1] = &model.Participant{ID: 1, Role: model.RoleMember, DisplayName: "Ola", Level: 2, PriceCap: 5000, IsActive: true}
	l.participants[2] = &model.Participant{ID: 2, Role: model.RoleMember, DisplayName: "Kasia", Level: 2, PriceCap: 5000, IsActive: true}
	l.participants[3] = &model.Participant{ID: 3, Role: model.RoleMember, DisplayName: "Piotr", Level: 2, PriceCap: 5000, IsActive: true}
	l.participants[10] = &model.Participant{ID: 10, Role: model.RoleInstructor, DisplayName: "Trener", Phone: "48600000010"}

	l.templates[100] = &model.ClassTemplate{
		ID: 100, GroupName: "Cross A", InstructorID: 10,
		Weekday: 2, StartHour: 18, StartMinute: 0,
		Level: 2, Price: 4000, IsActive: true,
	}
	l.enrollments[1] = []*model.Enrollment{{
		ID: 1, ParticipantID: 1, ClassTemplateID: 100, IsActive: true, Template: l.templates[100],
	}}

	svc := NewReconcileService(l, nil, fixedNow, zap.NewNop())
	return l, svc
}

func member(l *memLedger, id int64) *model.Participant { return l.participants[id] }

func TestReportAbsenceIsIdempotent(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	res, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Template.ID)

	// Same report again: no new rows, no extra credit.
	_, err = svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultAlreadyAbs))

	assert.Len(t, l.absences, 1)
	assert.Len(t, l.slots, 1)
	assert.Equal(t, 1, l.credits[1])

	for _, s := range l.slots {
		require.NotNil(t, s.SourceAbsenceID)
		assert.Equal(t, res.AbsenceID, *s.SourceAbsenceID)
		assert.Equal(t, model.SlotStatusOpen, s.Status)
	}
}

// blindTx simulates a transaction whose existence check raced another report
// for the same occurrence: GetAbsence misses, so the insert has to hit the
// unique constraint.
type blindTx struct {
	repository.LedgerTx
}

func (t blindTx) GetAbsence(context.Context, int64, int64, time.Time) (*model.Absence, error) {
	return nil, nil
}

type racingLedger struct {
	*memLedger
}

func (l *racingLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	return l.memLedger.InTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return fn(ctx, blindTx{tx})
	})
}

func TestReportAbsenceRaceLoserGetsAlreadyAbsent(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)

	// The loser of the race sees the duplicate outcome, not a generic error,
	// and leaves no extra rows or credit behind.
	racing := NewReconcileService(&racingLedger{l}, nil, fixedNow, zap.NewNop())
	_, err = racing.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultAlreadyAbs))

	assert.Len(t, l.absences, 1)
	assert.Len(t, l.slots, 1)
	assert.Equal(t, 1, l.credits[1])
}

func TestReportAbsencePastDateHasNoSideEffects(t *testing.T) {
	l, svc := newFixture()

	yesterday := testNow.AddDate(0, 0, -1)
	_, err := svc.ReportAbsence(context.Background(), member(l, 1), yesterday, 0, nil, "")
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultPastDate))

	assert.Empty(t, l.absences)
	assert.Empty(t, l.slots)
	assert.Empty(t, l.credits)
}

func TestReportAbsenceAmbiguityIsNeverGuessed(t *testing.T) {
	l, svc := newFixture()

	// Second Tuesday class: same weekday, different hour.
	l.templates[101] = &model.ClassTemplate{
		ID: 101, GroupName: "Cross B", InstructorID: 10,
		Weekday: 2, StartHour: 20, StartMinute: 0,
		Level: 2, Price: 4000, IsActive: true,
	}
	l.enrollments[1] = append(l.enrollments[1], &model.Enrollment{
		ID: 2, ParticipantID: 1, ClassTemplateID: 101, IsActive: true, Template: l.templates[101],
	})

	_, err := svc.ReportAbsence(context.Background(), member(l, 1), nextTuesday, 0, nil, "")
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultAmbiguousDay))
	assert.Empty(t, l.absences)

	// A time hint narrows it down.
	res, err := svc.ReportAbsence(context.Background(), member(l, 1), nextTuesday, 0, &TimeHint{Hour: 20}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(101), res.Template.ID)
}

func TestReportAbsenceRejectsForgedHint(t *testing.T) {
	l, svc := newFixture()

	// Template 999 is not one of the member's enrollments: the hint must be
	// discarded, and the fallback resolver still finds the real class.
	res, err := svc.ReportAbsence(context.Background(), member(l, 1), nextTuesday, 999, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Template.ID)
}

func TestReserveMakeupSlotRoundTrip(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	// Member 1 frees their Tuesday spot; member 2 takes it; member 3 is late.
	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)

	l.credits[2] = 1
	l.credits[3] = 1

	res, err := svc.ReserveMakeupSlot(ctx, member(l, 2), nextTuesday, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Template.ID)
	assert.Equal(t, 0, l.credits[2])

	slot := l.slots[res.SlotID]
	require.NotNil(t, slot)
	assert.Equal(t, model.SlotStatusTaken, slot.Status)
	require.NotNil(t, slot.TakenBy)
	assert.Equal(t, int64(2), *slot.TakenBy)

	_, err = svc.ReserveMakeupSlot(ctx, member(l, 3), nextTuesday, 100)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultSlotGone))
	assert.Equal(t, 1, l.credits[3], "failed claim must not spend the credit")
}

func TestReserveMakeupSlotRequiresCredit(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)

	_, err = svc.ReserveMakeupSlot(ctx, member(l, 2), nextTuesday, 100)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultNoCredit))
}

func TestReserveMakeupSlotEligibility(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)

	// Enrolled members cannot claim a slot in their own class.
	l.credits[1] = 5
	_, err = svc.ReserveMakeupSlot(ctx, member(l, 1), nextTuesday, 100)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultSlotGone))

	// Member tier above the class level.
	l.participants[4] = &model.Participant{ID: 4, Role: model.RoleMember, Level: 3, PriceCap: 5000, IsActive: true}
	l.credits[4] = 1
	_, err = svc.ReserveMakeupSlot(ctx, member(l, 4), nextTuesday, 100)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultSlotGone))

	// Price above the member's plan.
	l.participants[5] = &model.Participant{ID: 5, Role: model.RoleMember, Level: 1, PriceCap: 1000, IsActive: true}
	l.credits[5] = 1
	_, err = svc.ReserveMakeupSlot(ctx, member(l, 5), nextTuesday, 100)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultSlotGone))

	// A member whose tier is at most the class level may claim it.
	l.participants[6] = &model.Participant{ID: 6, Role: model.RoleMember, Level: 1, PriceCap: 5000, IsActive: true}
	l.credits[6] = 1
	res, err := svc.ReserveMakeupSlot(ctx, member(l, 6), nextTuesday, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Template.ID)
}

func TestConcurrentClaimsOnOneSlot(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)

	const claimants = 8
	for i := int64(0); i < claimants; i++ {
		id := 20 + i
		l.participants[id] = &model.Participant{ID: id, Role: model.RoleMember, Level: 2, PriceCap: 5000, IsActive: true}
		l.credits[id] = 1
	}

	var wg sync.WaitGroup
	results := make(chan error, claimants)
	for i := int64(0); i < claimants; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.ReserveMakeupSlot(ctx, member(l, id), nextTuesday, 100)
			results <- err
		}(20 + i)
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.True(t, model.IsFault(err, model.FaultSlotGone))
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one claimant takes the slot")
	assert.Equal(t, claimants-1, losses)

	spent := 0
	for i := int64(0); i < claimants; i++ {
		spent += 1 - l.credits[20+i]
	}
	assert.Equal(t, 1, spent, "exactly one credit is spent")
}

func TestConcurrentClaimsBySameMemberNeverGoNegative(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	// Two open slots, one credit: at most one claim may stick.
	_, err := svc.ReportAbsence(ctx, member(l, 1), nextTuesday, 0, nil, "")
	require.NoError(t, err)
	_, err = svc.AddManualSlot(ctx, 10, 100, nextTuesday)
	require.NoError(t, err)

	l.credits[2] = 1

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReserveMakeupSlot(ctx, member(l, 2), nextTuesday, 100)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.True(t,
				model.IsFault(err, model.FaultNoCredit) || model.IsFault(err, model.FaultSlotGone))
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, l.credits[2])
	assert.GreaterOrEqual(t, l.credits[2], 0, "balance never goes below zero")
}

func TestAddManualSlot(t *testing.T) {
	l, svc := newFixture()
	ctx := context.Background()

	slot, err := svc.AddManualSlot(ctx, 10, 100, nextTuesday)
	require.NoError(t, err)
	assert.Nil(t, slot.SourceAbsenceID)
	assert.Equal(t, model.SlotStatusOpen, slot.Status)
	assert.Empty(t, l.credits, "manual slots never touch the credit ledger")

	// Not the instructor's class.
	_, err = svc.AddManualSlot(ctx, 99, 100, nextTuesday)
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultNotOwner))

	// Past date.
	_, err = svc.AddManualSlot(ctx, 10, 100, testNow.AddDate(0, 0, -1))
	require.Error(t, err)
	assert.True(t, model.IsFault(err, model.FaultPastDate))
}
