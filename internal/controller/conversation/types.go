package conversation

import (
	"context"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/service"
	"github.com/zajavka/zajavka-bot/internal/whatsapp"
	"go.uber.org/zap"
)

// Engine is the reconciliation core as the conversation sees it.
type Engine interface {
	ReportAbsence(ctx context.Context, member *model.Participant, date time.Time, hint int64, at *service.TimeHint, reason string) (*service.AbsenceResult, error)
	ReserveMakeupSlot(ctx context.Context, member *model.Participant, date time.Time, templateID int64) (*service.ClaimResult, error)
	AddManualSlot(ctx context.Context, instructorID, templateID int64, date time.Time) (*model.Slot, error)
}

// Schedule is the read-only side: menus, rosters and stats.
type Schedule interface {
	UpcomingClasses(ctx context.Context, memberID int64, days int) ([]service.Occurrence, error)
	OpenMakeupSlots(ctx context.Context, member *model.Participant, days int) ([]service.Occurrence, error)
	CreditBalance(ctx context.Context, memberID int64) (int, error)
	RosterForDate(ctx context.Context, instructorID int64, date time.Time) ([]service.RosterEntry, error)
	RecentAbsences(ctx context.Context, instructorID int64, days int) ([]*model.Absence, error)
	InstructorUpcoming(ctx context.Context, instructorID int64, days int) ([]service.Occurrence, error)
	InstructorStats(ctx context.Context, instructorID int64) (*service.Stats, error)
}

// Dispatch is the outbound messaging contract. Every attempt is audited by
// the implementation regardless of outcome.
type Dispatch interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendList(ctx context.Context, to, header, body string, sections []whatsapp.Section) (string, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) (string, error)
	SendTemplate(ctx context.Context, to, name, lang string, params []string) (string, error)
}

// Handler holds the dependencies shared by all conversation branches. Now is
// injected so tests can pin the calendar.
type Handler struct {
	Engine   Engine
	Schedule Schedule
	Dispatch Dispatch
	Logger   *zap.Logger
	Now      func() time.Time
}

// menuWindowDays bounds every date menu: far enough for two weekly
// occurrences of each class, short enough for one list message.
const menuWindowDays = 14
