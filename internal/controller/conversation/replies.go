package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/service"
)

// User-facing scripts, Polish, kept in one place. Internal error detail never
// leaks into these.

const (
	msgUnknownSender = "Ten numer nie jest zapisany w naszym systemie. Skontaktuj się z recepcją studia."
	msgInactive      = "Twój karnet jest nieaktywny. Skontaktuj się z recepcją, aby go odnowić."
	msgGoodbye       = "Do zobaczenia na zajęciach! 💪"
	msgBadSelection  = "Nie rozumiem tego wyboru. Napisz \"menu\", aby zacząć od nowa."
	msgGenericError  = "Coś poszło nie tak. Spróbuj ponownie albo skontaktuj się ze studiem."
	msgOtherDateHint = "Napisz datę w formacie: Zwalniam dd/mm, np. \"Zwalniam 12/11\". Możesz dodać godzinę: \"Zwalniam 12/11 18:00\"."

	menuHeader = "Menu główne"
	menuBody   = "W czym mogę pomóc?\n1. Zgłoś nieobecność\n2. Odrób zajęcia\n3. Moje kredyty\n4. Koniec"
)

func greeting(name string) string {
	if name == "" {
		return "Cześć! " + menuBody
	}
	return fmt.Sprintf("Cześć %s! %s", name, menuBody)
}

var weekdayNames = [8]string{"", "poniedziałek", "wtorek", "środa", "czwartek", "piątek", "sobota", "niedziela"}

func occurrenceLabel(date time.Time, t *model.ClassTemplate) string {
	return fmt.Sprintf("%s %s %s", weekdayNames[model.ISOWeekday(date)], date.Format("02.01"), t.StartTimeLabel())
}

func absenceConfirmation(res *service.AbsenceResult) string {
	return fmt.Sprintf("Zapisane! Nieobecność %s, zajęcia %s o %s. Dostajesz 1 kredyt na odrabianie.",
		res.Date.Format("02.01.2006"), res.Template.GroupName, res.Template.StartTimeLabel())
}

func claimConfirmation(res *service.ClaimResult) string {
	return fmt.Sprintf("Zarezerwowane! Odrabiasz %s o %s, zajęcia %s. Wykorzystano 1 kredyt.",
		res.Date.Format("02.01.2006"), res.Template.StartTimeLabel(), res.Template.GroupName)
}

func creditsReply(balance int) string {
	switch balance {
	case 0:
		return "Nie masz teraz kredytów na odrabianie."
	case 1:
		return "Masz 1 kredyt na odrabianie."
	default:
		return fmt.Sprintf("Masz %d kredyty/kredytów na odrabianie.", balance)
	}
}

// faultReply maps an engine rejection to its script. Unclassified errors get
// the generic message.
func faultReply(kind model.FaultKind) string {
	switch kind {
	case model.FaultPastDate:
		return "Ta data już minęła. Podaj przyszły termin."
	case model.FaultNoEnrollment:
		return "Nie masz zajęć w tym dniu tygodnia. Wybierz termin z listy."
	case model.FaultAmbiguousDay:
		return "Masz więcej niż jedne zajęcia tego dnia. Dodaj godzinę (np. \"Zwalniam 12/11 18:00\") albo wybierz z listy."
	case model.FaultAlreadyAbs:
		return "Ta nieobecność jest już zgłoszona. Kredyt został naliczony wcześniej."
	case model.FaultNoCredit:
		return "Nie masz kredytów na odrabianie. Kredyt dostajesz po zgłoszeniu nieobecności."
	case model.FaultSlotGone:
		return "To miejsce jest już zajęte albo niedostępne. Wybierz inny termin."
	case model.FaultNotOwner:
		return "Te zajęcia nie należą do Ciebie."
	default:
		return msgGenericError
	}
}

func rosterReply(header string, entries []service.RosterEntry) string {
	if len(entries) == 0 {
		return header + ": brak zajęć."
	}

	var b strings.Builder
	b.WriteString(header + ":\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s (%s)\n", e.Template.GroupName, e.Template.StartTimeLabel(), e.Date.Format("02.01"))
		fmt.Fprintf(&b, "  Obecni (%d): %s\n", len(e.Expected), nameList(e.Expected))
		if len(e.Absent) > 0 {
			fmt.Fprintf(&b, "  Nieobecni (%d): %s\n", len(e.Absent), nameList(e.Absent))
		}
		if len(e.MakeUps) > 0 {
			fmt.Fprintf(&b, "  Odrabiający (%d): %s\n", len(e.MakeUps), nameList(e.MakeUps))
		}
	}
	return b.String()
}

func nameList(people []*model.Participant) string {
	if len(people) == 0 {
		return "—"
	}
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.DisplayName)
	}
	return strings.Join(names, ", ")
}

func absencesReply(absences []*model.Absence) string {
	if len(absences) == 0 {
		return "Brak zgłoszonych nieobecności w ostatnich dniach."
	}

	var b strings.Builder
	b.WriteString("Ostatnie nieobecności:\n")
	for _, a := range absences {
		fmt.Fprintf(&b, "- %s: %s, %s %s\n",
			a.Participant.DisplayName,
			a.SessionDate.Format("02.01"),
			a.Template.GroupName,
			a.Template.StartTimeLabel(),
		)
	}
	return b.String()
}

func statsReply(s *service.Stats) string {
	return fmt.Sprintf("Statystyki:\n- Nieobecności (30 dni): %d\n- Wolne miejsca: %d\n- Zajęte miejsca: %d\n- Kredyty do odrobienia: %d",
		s.AbsencesLast30, s.OpenSlots, s.TakenSlots, s.CreditsOwed)
}
