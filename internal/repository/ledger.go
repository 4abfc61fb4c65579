package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerTx is what the reconciliation engine sees inside one transaction: the
// three ledgers plus the reads needed to validate an operation. The engine
// never touches a repository outside this scope, so either every write of an
// operation lands or none does.
type LedgerTx interface {
	TemplateByID(ctx context.Context, id int64) (*model.ClassTemplate, error)
	ActiveEnrollments(ctx context.Context, memberID int64) ([]*model.Enrollment, error)

	GetAbsence(ctx context.Context, memberID, templateID int64, date time.Time) (*model.Absence, error)
	CreateAbsence(ctx context.Context, a *model.Absence) error

	CreateSlotForAbsence(ctx context.Context, absenceID, templateID int64, date time.Time) (int64, error)
	CreateManualSlot(ctx context.Context, templateID int64, date time.Time) (*model.Slot, error)
	LockOpenCandidates(ctx context.Context, templateID int64, date time.Time, member *model.Participant) ([]int64, error)
	ClaimSlot(ctx context.Context, slotID, memberID int64, at time.Time) (bool, error)

	BalanceForUpdate(ctx context.Context, memberID int64) (int, error)
	AddCredit(ctx context.Context, memberID int64, delta int) error
}

// Ledger runs a function inside a single database transaction. An error from
// fn rolls everything back; the in-memory test double in the service package
// implements the same contract over a mutex.
type Ledger interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

type SQLLedger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *SQLLedger {
	return &SQLLedger{pool: pool}
}

func (l *SQLLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newSQLLedgerTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// sqlLedgerTx binds the repositories to the transaction's Querier.
type sqlLedgerTx struct {
	classes  *ClassRepository
	absences *AbsenceRepository
	slots    *SlotRepository
	credits  *CreditRepository
}

func newSQLLedgerTx(q base.Querier) *sqlLedgerTx {
	return &sqlLedgerTx{
		classes:  NewClassRepository(q),
		absences: NewAbsenceRepository(q),
		slots:    NewSlotRepository(q),
		credits:  NewCreditRepository(q),
	}
}

func (t *sqlLedgerTx) TemplateByID(ctx context.Context, id int64) (*model.ClassTemplate, error) {
	return t.classes.GetTemplateByID(ctx, id)
}

func (t *sqlLedgerTx) ActiveEnrollments(ctx context.Context, memberID int64) ([]*model.Enrollment, error) {
	return t.classes.ActiveEnrollments(ctx, memberID)
}

func (t *sqlLedgerTx) GetAbsence(ctx context.Context, memberID, templateID int64, date time.Time) (*model.Absence, error) {
	return t.absences.Get(ctx, memberID, templateID, date)
}

func (t *sqlLedgerTx) CreateAbsence(ctx context.Context, a *model.Absence) error {
	return t.absences.Create(ctx, a)
}

func (t *sqlLedgerTx) CreateSlotForAbsence(ctx context.Context, absenceID, templateID int64, date time.Time) (int64, error) {
	return t.slots.CreateForAbsence(ctx, absenceID, templateID, date)
}

func (t *sqlLedgerTx) CreateManualSlot(ctx context.Context, templateID int64, date time.Time) (*model.Slot, error) {
	return t.slots.CreateManual(ctx, templateID, date)
}

func (t *sqlLedgerTx) LockOpenCandidates(ctx context.Context, templateID int64, date time.Time, member *model.Participant) ([]int64, error) {
	return t.slots.LockOpenCandidates(ctx, templateID, date, member)
}

func (t *sqlLedgerTx) ClaimSlot(ctx context.Context, slotID, memberID int64, at time.Time) (bool, error) {
	return t.slots.Claim(ctx, slotID, memberID, at)
}

func (t *sqlLedgerTx) BalanceForUpdate(ctx context.Context, memberID int64) (int, error) {
	return t.credits.BalanceForUpdate(ctx, memberID)
}

func (t *sqlLedgerTx) AddCredit(ctx context.Context, memberID int64, delta int) error {
	return t.credits.Add(ctx, memberID, delta)
}
