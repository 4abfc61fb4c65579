package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The conversation keeps no server-side session state: everything the next
// turn needs travels in the opaque id the user taps. These are the wire
// formats; they are parsed exactly once, here, into a tagged Selection, so
// the rest of the system never touches raw string tags.
//
//	absence_<YYYY-MM-DD>_<classTemplateId>
//	absence_other_date
//	absence_more_yes | absence_more_no
//	makeup_<YYYY-MM-DD>_<classTemplateId>
//	menu_absence | menu_makeup | menu_credits | menu_end
//	instr_<action>
//	instr_addslot_<YYYY-MM-DD>_<classTemplateId>

type SelectionKind string

const (
	SelAbsence          SelectionKind = "absence"
	SelAbsenceOtherDate SelectionKind = "absence_other_date"
	SelAbsenceMoreYes   SelectionKind = "absence_more_yes"
	SelAbsenceMoreNo    SelectionKind = "absence_more_no"
	SelMakeup           SelectionKind = "makeup"
	SelMenuAbsence      SelectionKind = "menu_absence"
	SelMenuMakeup       SelectionKind = "menu_makeup"
	SelMenuCredits      SelectionKind = "menu_credits"
	SelMenuEnd          SelectionKind = "menu_end"
	SelInstrAction      SelectionKind = "instr_action"
	SelInstrAddSlot     SelectionKind = "instr_addslot"
)

// Instructor panel actions carried by instr_<action>.
const (
	InstrToday    = "today"
	InstrTomorrow = "tomorrow"
	InstrAbsences = "absences"
	InstrAddSlot  = "addslot"
	InstrStats    = "stats"
)

type Selection struct {
	Kind       SelectionKind
	Date       time.Time // absence, makeup, instr_addslot
	TemplateID int64     // absence, makeup, instr_addslot
	Action     string    // instr_action
}

const dateLayout = "2006-01-02"

// ParseSelection decodes an interactive reply id. A malformed id returns
// ok=false and must end as a "could not understand" reply, never a crash.
func ParseSelection(id string) (*Selection, bool) {
	switch id {
	case "absence_other_date":
		return &Selection{Kind: SelAbsenceOtherDate}, true
	case "absence_more_yes":
		return &Selection{Kind: SelAbsenceMoreYes}, true
	case "absence_more_no":
		return &Selection{Kind: SelAbsenceMoreNo}, true
	case "menu_absence":
		return &Selection{Kind: SelMenuAbsence}, true
	case "menu_makeup":
		return &Selection{Kind: SelMenuMakeup}, true
	case "menu_credits":
		return &Selection{Kind: SelMenuCredits}, true
	case "menu_end":
		return &Selection{Kind: SelMenuEnd}, true
	}

	parts := strings.Split(id, "_")

	switch {
	case parts[0] == "absence" && len(parts) == 3:
		return parseDatedSelection(SelAbsence, parts[1], parts[2])
	case parts[0] == "makeup" && len(parts) == 3:
		return parseDatedSelection(SelMakeup, parts[1], parts[2])
	case parts[0] == "instr" && len(parts) == 4 && parts[1] == "addslot":
		return parseDatedSelection(SelInstrAddSlot, parts[2], parts[3])
	case parts[0] == "instr" && len(parts) == 2:
		switch parts[1] {
		case InstrToday, InstrTomorrow, InstrAbsences, InstrAddSlot, InstrStats:
			return &Selection{Kind: SelInstrAction, Action: parts[1]}, true
		}
	}

	return nil, false
}

func parseDatedSelection(kind SelectionKind, rawDate, rawID string) (*Selection, bool) {
	date, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		return nil, false
	}
	templateID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || templateID <= 0 {
		return nil, false
	}
	return &Selection{Kind: kind, Date: date, TemplateID: templateID}, true
}

// AbsenceID builds the absence-selection id for a menu row.
func AbsenceID(date time.Time, templateID int64) string {
	return fmt.Sprintf("absence_%s_%d", date.Format(dateLayout), templateID)
}

// MakeupID builds the make-up-selection id for a menu row.
func MakeupID(date time.Time, templateID int64) string {
	return fmt.Sprintf("makeup_%s_%d", date.Format(dateLayout), templateID)
}

// AddSlotID builds the instructor add-slot id for a menu row.
func AddSlotID(date time.Time, templateID int64) string {
	return fmt.Sprintf("instr_addslot_%s_%d", date.Format(dateLayout), templateID)
}

// InstrID builds an instructor panel action id.
func InstrID(action string) string {
	return "instr_" + action
}
