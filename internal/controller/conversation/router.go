package conversation

import (
	"context"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/service"
	"github.com/zajavka/zajavka-bot/internal/whatsapp"
	"go.uber.org/zap"
)

// Handle routes one inbound event. Branch priority, first match wins:
// interactive replies, unknown senders, instructors, inactive members, member
// free text. Every outcome ends in at most one reply sequence.
func (h *Handler) Handle(ctx context.Context, in whatsapp.Inbound, sender *model.Sender) {
	h.Logger.Info("Routing inbound event",
		zap.String("event_id", in.EventID),
		zap.String("kind", string(in.Kind)),
		zap.String("role", string(sender.Role)),
	)

	// Unrecognized numbers get one answer no matter what they send; their
	// payloads are never parsed.
	if sender.Role == model.RoleUnknown {
		h.reply(ctx, in.From, msgUnknownSender)
		return
	}

	if in.Kind == whatsapp.KindList || in.Kind == whatsapp.KindButton {
		sel, ok := ParseSelection(in.ReplyID)
		if !ok {
			h.Logger.Warn("Malformed selection id", zap.String("reply_id", in.ReplyID))
			h.reply(ctx, in.From, msgBadSelection)
			return
		}
		h.handleSelection(ctx, in.From, sel, sender)
		return
	}

	switch {
	case sender.IsInstructor():
		h.sendInstructorPanel(ctx, in.From)
	case sender.Role == model.RoleMember && !sender.Participant.IsActive:
		h.reply(ctx, in.From, msgInactive)
	case in.Kind == whatsapp.KindText:
		h.handleMemberText(ctx, in, sender.Participant)
	default:
		h.sendMainMenu(ctx, in.From, greeting(sender.Participant.DisplayName))
	}
}

// handleSelection dispatches a parsed interactive reply. The id already
// carries the full context of the turn, so no session lookup happens here.
func (h *Handler) handleSelection(ctx context.Context, from string, sel *Selection, sender *model.Sender) {
	if sel.Kind == SelInstrAction || sel.Kind == SelInstrAddSlot {
		if !sender.IsInstructor() {
			h.reply(ctx, from, msgBadSelection)
			return
		}
		h.handleInstructorSelection(ctx, from, sel, sender.Participant)
		return
	}

	if !sender.IsActiveMember() {
		h.reply(ctx, from, msgInactive)
		return
	}
	member := sender.Participant

	switch sel.Kind {
	case SelMenuAbsence:
		h.sendAbsenceMenu(ctx, from, member.ID, "Które zajęcia chcesz zwolnić?")
	case SelMenuMakeup:
		h.sendMakeupMenu(ctx, from, member)
	case SelMenuCredits:
		balance, err := h.Schedule.CreditBalance(ctx, member.ID)
		if err != nil {
			h.Logger.Error("Credit balance lookup failed", zap.Error(err), zap.Int64("member_id", member.ID))
			h.reply(ctx, from, msgGenericError)
			return
		}
		h.reply(ctx, from, creditsReply(balance))
	case SelMenuEnd, SelAbsenceMoreNo:
		h.reply(ctx, from, msgGoodbye)
	case SelAbsenceMoreYes:
		h.sendAbsenceMenu(ctx, from, member.ID, "Które zajęcia chcesz zwolnić?")
	case SelAbsenceOtherDate:
		h.reply(ctx, from, msgOtherDateHint)
	case SelAbsence:
		h.reportAbsence(ctx, from, member, sel.Date, sel.TemplateID, nil)
	case SelMakeup:
		res, err := h.Engine.ReserveMakeupSlot(ctx, member, sel.Date, sel.TemplateID)
		if err != nil {
			h.replyFault(ctx, from, err, "reserve makeup slot")
			return
		}
		h.reply(ctx, from, claimConfirmation(res))
	default:
		h.reply(ctx, from, msgBadSelection)
	}
}

// reportAbsence runs the engine operation and the shared reply script for
// both entry paths (menu selection carries a hint, free text does not).
func (h *Handler) reportAbsence(ctx context.Context, from string, member *model.Participant, date time.Time, hint int64, at *service.TimeHint) {
	res, err := h.Engine.ReportAbsence(ctx, member, date, hint, at, "")
	if err != nil {
		kind := model.KindOf(err)
		if kind == model.FaultNoEnrollment || kind == model.FaultAmbiguousDay {
			// The date alone does not pin down a class; never guess.
			// Re-present the member's real upcoming classes instead.
			h.sendAbsenceMenu(ctx, from, member.ID, faultReply(kind))
			return
		}
		h.replyFault(ctx, from, err, "report absence")
		return
	}

	h.reply(ctx, from, absenceConfirmation(res))
	h.askAnotherAbsence(ctx, from)
}

func (h *Handler) askAnotherAbsence(ctx context.Context, from string) {
	_, err := h.Dispatch.SendButtons(ctx, from, "Chcesz zgłosić kolejną nieobecność?", []whatsapp.Button{
		{ID: "absence_more_yes", Title: "Tak"},
		{ID: "absence_more_no", Title: "Nie"},
	})
	if err != nil {
		h.Logger.Error("Send buttons failed", zap.Error(err), zap.String("to", from))
	}
}

func (h *Handler) handleMemberText(ctx context.Context, in whatsapp.Inbound, member *model.Participant) {
	intent := ParseIntent(in.Text, h.Now())

	switch intent.Kind {
	case IntentAbsence:
		h.reportAbsence(ctx, in.From, member, intent.Date, 0, intent.Time)
	case IntentMenu:
		switch intent.Choice {
		case ChoiceAbsence:
			h.sendAbsenceMenu(ctx, in.From, member.ID, "Które zajęcia chcesz zwolnić?")
		case ChoiceMakeup:
			h.sendMakeupMenu(ctx, in.From, member)
		case ChoiceCredits:
			balance, err := h.Schedule.CreditBalance(ctx, member.ID)
			if err != nil {
				h.Logger.Error("Credit balance lookup failed", zap.Error(err), zap.Int64("member_id", member.ID))
				h.reply(ctx, in.From, msgGenericError)
				return
			}
			h.reply(ctx, in.From, creditsReply(balance))
		case ChoiceEnd:
			h.reply(ctx, in.From, msgGoodbye)
		}
	default:
		h.sendMainMenu(ctx, in.From, greeting(member.DisplayName))
	}
}

func (h *Handler) handleInstructorSelection(ctx context.Context, from string, sel *Selection, instructor *model.Participant) {
	switch {
	case sel.Kind == SelInstrAddSlot:
		slot, err := h.Engine.AddManualSlot(ctx, instructor.ID, sel.TemplateID, sel.Date)
		if err != nil {
			h.replyFault(ctx, from, err, "add manual slot")
			return
		}
		h.reply(ctx, from, "Dodano wolne miejsce: "+occurrenceLabel(slot.SessionDate, slot.Template))

	case sel.Action == InstrToday || sel.Action == InstrTomorrow:
		date := model.DateOnly(h.Now())
		header := "Dzisiaj"
		if sel.Action == InstrTomorrow {
			date = date.AddDate(0, 0, 1)
			header = "Jutro"
		}
		entries, err := h.Schedule.RosterForDate(ctx, instructor.ID, date)
		if err != nil {
			h.Logger.Error("Roster lookup failed", zap.Error(err), zap.Int64("instructor_id", instructor.ID))
			h.reply(ctx, from, msgGenericError)
			return
		}
		h.reply(ctx, from, rosterReply(header, entries))

	case sel.Action == InstrAbsences:
		absences, err := h.Schedule.RecentAbsences(ctx, instructor.ID, 7)
		if err != nil {
			h.Logger.Error("Recent absences lookup failed", zap.Error(err), zap.Int64("instructor_id", instructor.ID))
			h.reply(ctx, from, msgGenericError)
			return
		}
		h.reply(ctx, from, absencesReply(absences))

	case sel.Action == InstrAddSlot:
		h.sendAddSlotMenu(ctx, from, instructor.ID)

	case sel.Action == InstrStats:
		stats, err := h.Schedule.InstructorStats(ctx, instructor.ID)
		if err != nil {
			h.Logger.Error("Stats lookup failed", zap.Error(err), zap.Int64("instructor_id", instructor.ID))
			h.reply(ctx, from, msgGenericError)
			return
		}
		h.reply(ctx, from, statsReply(stats))

	default:
		h.reply(ctx, from, msgBadSelection)
	}
}

func (h *Handler) sendMainMenu(ctx context.Context, to, body string) {
	_, err := h.Dispatch.SendList(ctx, to, menuHeader, body, []whatsapp.Section{{
		Title: menuHeader,
		Rows: []whatsapp.Row{
			{ID: "menu_absence", Title: "Zgłoś nieobecność"},
			{ID: "menu_makeup", Title: "Odrób zajęcia"},
			{ID: "menu_credits", Title: "Moje kredyty"},
			{ID: "menu_end", Title: "Koniec"},
		},
	}})
	if err != nil {
		h.Logger.Error("Send main menu failed", zap.Error(err), zap.String("to", to))
	}
}

// sendAbsenceMenu offers the member's real occurrences for the next two
// weeks. The class template id rides inside each row id, which is why this
// path needs no date resolution later.
func (h *Handler) sendAbsenceMenu(ctx context.Context, to string, memberID int64, body string) {
	occurrences, err := h.Schedule.UpcomingClasses(ctx, memberID, menuWindowDays)
	if err != nil {
		h.Logger.Error("Upcoming classes lookup failed", zap.Error(err), zap.Int64("member_id", memberID))
		h.reply(ctx, to, msgGenericError)
		return
	}
	if len(occurrences) == 0 {
		h.reply(ctx, to, "Nie widzę Twoich zajęć w najbliższych dwóch tygodniach. Skontaktuj się z recepcją.")
		return
	}

	rows := make([]whatsapp.Row, 0, len(occurrences)+1)
	for _, occ := range occurrences {
		rows = append(rows, whatsapp.Row{
			ID:          AbsenceID(occ.Date, occ.Template.ID),
			Title:       occurrenceLabel(occ.Date, occ.Template),
			Description: occ.Template.GroupName,
		})
	}
	rows = append(rows, whatsapp.Row{ID: "absence_other_date", Title: "Inna data"})

	_, err = h.Dispatch.SendList(ctx, to, "Nieobecność", body, []whatsapp.Section{{Title: "Twoje zajęcia", Rows: rows}})
	if err != nil {
		h.Logger.Error("Send absence menu failed", zap.Error(err), zap.String("to", to))
	}
}

func (h *Handler) sendMakeupMenu(ctx context.Context, to string, member *model.Participant) {
	occurrences, err := h.Schedule.OpenMakeupSlots(ctx, member, menuWindowDays)
	if err != nil {
		h.Logger.Error("Open slots lookup failed", zap.Error(err), zap.Int64("member_id", member.ID))
		h.reply(ctx, to, msgGenericError)
		return
	}
	if len(occurrences) == 0 {
		h.reply(ctx, to, "Brak wolnych miejsc do odrobienia w najbliższych dwóch tygodniach. Spróbuj później.")
		return
	}

	rows := make([]whatsapp.Row, 0, len(occurrences))
	for _, occ := range occurrences {
		rows = append(rows, whatsapp.Row{
			ID:          MakeupID(occ.Date, occ.Template.ID),
			Title:       occurrenceLabel(occ.Date, occ.Template),
			Description: occ.Template.GroupName,
		})
	}

	_, err = h.Dispatch.SendList(ctx, to, "Odrabianie", "Wolne miejsca:", []whatsapp.Section{{Title: "Terminy", Rows: rows}})
	if err != nil {
		h.Logger.Error("Send makeup menu failed", zap.Error(err), zap.String("to", to))
	}
}

func (h *Handler) sendAddSlotMenu(ctx context.Context, to string, instructorID int64) {
	occurrences, err := h.Schedule.InstructorUpcoming(ctx, instructorID, menuWindowDays)
	if err != nil {
		h.Logger.Error("Instructor upcoming lookup failed", zap.Error(err), zap.Int64("instructor_id", instructorID))
		h.reply(ctx, to, msgGenericError)
		return
	}
	if len(occurrences) == 0 {
		h.reply(ctx, to, "Nie widzę Twoich zajęć w najbliższych dwóch tygodniach.")
		return
	}

	rows := make([]whatsapp.Row, 0, len(occurrences))
	for _, occ := range occurrences {
		rows = append(rows, whatsapp.Row{
			ID:          AddSlotID(occ.Date, occ.Template.ID),
			Title:       occurrenceLabel(occ.Date, occ.Template),
			Description: occ.Template.GroupName,
		})
	}

	_, err = h.Dispatch.SendList(ctx, to, "Dodaj miejsce", "Do których zajęć dodać wolne miejsce?", []whatsapp.Section{{Title: "Twoje zajęcia", Rows: rows}})
	if err != nil {
		h.Logger.Error("Send add-slot menu failed", zap.Error(err), zap.String("to", to))
	}
}

func (h *Handler) sendInstructorPanel(ctx context.Context, to string) {
	_, err := h.Dispatch.SendList(ctx, to, "Panel instruktora", "Co chcesz zobaczyć?", []whatsapp.Section{{
		Title: "Akcje",
		Rows: []whatsapp.Row{
			{ID: InstrID(InstrToday), Title: "Dzisiejsza lista"},
			{ID: InstrID(InstrTomorrow), Title: "Jutrzejsza lista"},
			{ID: InstrID(InstrAbsences), Title: "Ostatnie nieobecności"},
			{ID: InstrID(InstrAddSlot), Title: "Dodaj wolne miejsce"},
			{ID: InstrID(InstrStats), Title: "Statystyki"},
		},
	}})
	if err != nil {
		h.Logger.Error("Send instructor panel failed", zap.Error(err), zap.String("to", to))
	}
}

func (h *Handler) reply(ctx context.Context, to, body string) {
	if _, err := h.Dispatch.SendText(ctx, to, body); err != nil {
		h.Logger.Error("Send text failed", zap.Error(err), zap.String("to", to))
	}
}

// replyFault sends the script for a business rejection, or the generic
// message for unexpected errors, which are also logged with full context.
func (h *Handler) replyFault(ctx context.Context, to string, err error, op string) {
	kind := model.KindOf(err)
	if kind == model.FaultException {
		h.Logger.Error("Operation failed", zap.Error(err), zap.String("op", op), zap.String("to", to))
	}
	h.reply(ctx, to, faultReply(kind))
}
