package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
	"go.uber.org/zap"
)

// ReconcileService is the transactional core: every operation is one database
// transaction over the absence, slot and credit ledgers, with rollback on any
// failure. Business rejections come back as *model.Fault; anything else is an
// unexpected storage error and surfaces wrapped.
type ReconcileService struct {
	ledger   repository.Ledger
	notifier *Notifier // may be nil in tests
	now      func() time.Time
	logger   *zap.Logger
}

func NewReconcileService(ledger repository.Ledger, notifier *Notifier, now func() time.Time, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		ledger:   ledger,
		notifier: notifier,
		now:      now,
		logger:   logger,
	}
}

type AbsenceResult struct {
	AbsenceID int64
	Template  *model.ClassTemplate
	Date      time.Time
}

type ClaimResult struct {
	SlotID   int64
	Template *model.ClassTemplate
	Date     time.Time
}

// ReportAbsence records one absence, opens its compensation slot and credits
// the member, all in one transaction. hint carries the class template id from
// a menu selection (0 = none); it is re-verified against the member's actual
// enrollments before use, so stale or forged menu ids degrade to free-text
// resolution instead of corrupting the ledgers.
func (s *ReconcileService) ReportAbsence(ctx context.Context, member *model.Participant, date time.Time, hint int64, at *TimeHint, reason string) (*AbsenceResult, error) {
	date = model.DateOnly(date)
	if date.Before(model.DateOnly(s.now())) {
		return nil, model.NewFault(model.FaultPastDate, date.Format("2006-01-02"))
	}

	var result *AbsenceResult
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		enrollments, err := tx.ActiveEnrollments(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("load enrollments: %w", err)
		}

		template := verifyHint(enrollments, hint, date)
		if template == nil {
			template, err = ResolveOccurrence(enrollments, date, at)
			if err != nil {
				return err
			}
		}

		existing, err := tx.GetAbsence(ctx, member.ID, template.ID, date)
		if err != nil {
			return fmt.Errorf("check existing absence: %w", err)
		}
		if existing != nil {
			return model.NewFault(model.FaultAlreadyAbs, date.Format("2006-01-02"))
		}

		absence := &model.Absence{
			ParticipantID:   member.ID,
			ClassTemplateID: template.ID,
			SessionDate:     date,
			Reason:          reason,
		}
		if err := tx.CreateAbsence(ctx, absence); err != nil {
			// Two deliveries racing past the existence check: the unique
			// constraint decides, and the loser is the same duplicate report.
			if base.IsUniqueViolation(err) {
				return model.NewFault(model.FaultAlreadyAbs, date.Format("2006-01-02"))
			}
			return fmt.Errorf("create absence: %w", err)
		}

		if _, err := tx.CreateSlotForAbsence(ctx, absence.ID, template.ID, date); err != nil {
			return fmt.Errorf("open slot: %w", err)
		}

		if err := tx.AddCredit(ctx, member.ID, 1); err != nil {
			return fmt.Errorf("credit member: %w", err)
		}

		result = &AbsenceResult{AbsenceID: absence.ID, Template: template, Date: date}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Absence recorded",
		zap.Int64("member_id", member.ID),
		zap.Int64("template_id", result.Template.ID),
		zap.Time("session_date", date),
	)

	// Best effort, outside the transaction: the instructor notification must
	// never undo a committed absence.
	if s.notifier != nil {
		s.notifier.Publish(AbsenceNotice{
			InstructorID: result.Template.InstructorID,
			MemberName:   member.DisplayName,
			GroupName:    result.Template.GroupName,
			TimeLabel:    result.Template.StartTimeLabel(),
			Date:         date,
		})
	}

	return result, nil
}

// verifyHint accepts a menu-supplied template id only if it matches one of the
// member's active enrollments on the date's weekday.
func verifyHint(enrollments []*model.Enrollment, hint int64, date time.Time) *model.ClassTemplate {
	if hint == 0 {
		return nil
	}
	weekday := model.ISOWeekday(date)
	for _, e := range enrollments {
		if e.ClassTemplateID == hint && e.Template != nil && e.Template.Weekday == weekday {
			return e.Template
		}
	}
	return nil
}

// ReserveMakeupSlot lets a member spend one credit on someone else's open
// slot. The credit row lock serializes claims by the same member; SKIP LOCKED
// on candidates plus the status-conditional claim guarantee a slot is taken
// exactly once under any interleaving.
func (s *ReconcileService) ReserveMakeupSlot(ctx context.Context, member *model.Participant, date time.Time, templateID int64) (*ClaimResult, error) {
	date = model.DateOnly(date)
	if date.Before(model.DateOnly(s.now())) {
		return nil, model.NewFault(model.FaultPastDate, date.Format("2006-01-02"))
	}

	var result *ClaimResult
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		balance, err := tx.BalanceForUpdate(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("read credit balance: %w", err)
		}
		if balance <= 0 {
			return model.NewFault(model.FaultNoCredit, "")
		}

		template, err := tx.TemplateByID(ctx, templateID)
		if err != nil {
			return fmt.Errorf("load template: %w", err)
		}
		if template == nil || !template.IsActive {
			return model.NewFault(model.FaultSlotGone, "unknown class")
		}

		candidates, err := tx.LockOpenCandidates(ctx, templateID, date, member)
		if err != nil {
			return fmt.Errorf("lock candidates: %w", err)
		}

		claimed := int64(0)
		for _, slotID := range candidates {
			ok, err := tx.ClaimSlot(ctx, slotID, member.ID, s.now())
			if err != nil {
				return fmt.Errorf("claim slot: %w", err)
			}
			if ok {
				claimed = slotID
				break
			}
		}
		if claimed == 0 {
			// Covers "never existed", "lost the race" and "not eligible"
			// alike; the member-facing outcome is the same.
			return model.NewFault(model.FaultSlotGone, "")
		}

		if err := tx.AddCredit(ctx, member.ID, -1); err != nil {
			return fmt.Errorf("debit member: %w", err)
		}

		result = &ClaimResult{SlotID: claimed, Template: template, Date: date}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Make-up slot claimed",
		zap.Int64("member_id", member.ID),
		zap.Int64("slot_id", result.SlotID),
		zap.Int64("template_id", templateID),
		zap.Time("session_date", date),
	)

	return result, nil
}

// AddManualSlot opens extra capacity in the instructor's own class. No credit
// or absence side effects.
func (s *ReconcileService) AddManualSlot(ctx context.Context, instructorID, templateID int64, date time.Time) (*model.Slot, error) {
	date = model.DateOnly(date)
	if date.Before(model.DateOnly(s.now())) {
		return nil, model.NewFault(model.FaultPastDate, date.Format("2006-01-02"))
	}

	var slot *model.Slot
	err := s.ledger.InTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		template, err := tx.TemplateByID(ctx, templateID)
		if err != nil {
			return fmt.Errorf("load template: %w", err)
		}
		if template == nil || template.InstructorID != instructorID {
			return model.NewFault(model.FaultNotOwner, "")
		}

		slot, err = tx.CreateManualSlot(ctx, templateID, date)
		if err != nil {
			return fmt.Errorf("create manual slot: %w", err)
		}
		slot.Template = template
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual slot added",
		zap.Int64("instructor_id", instructorID),
		zap.Int64("slot_id", slot.ID),
		zap.Time("session_date", date),
	)

	return slot, nil
}
