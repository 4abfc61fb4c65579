package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zajavka/zajavka-bot/internal/service"
)

// Free-text understanding is deliberately narrow: a cancel keyword followed by
// dd/mm and an optional time, or a main-menu choice. Anything else falls back
// to the menu. The heuristics live behind ParseIntent so they can evolve
// without touching the engine.

type IntentKind string

const (
	IntentAbsence IntentKind = "absence"
	IntentMenu    IntentKind = "menu"
	IntentUnknown IntentKind = "unknown"
)

type MenuChoice string

const (
	ChoiceAbsence MenuChoice = "absence"
	ChoiceMakeup  MenuChoice = "makeup"
	ChoiceCredits MenuChoice = "credits"
	ChoiceEnd     MenuChoice = "end"
)

type Intent struct {
	Kind   IntentKind
	Date   time.Time         // absence
	Time   *service.TimeHint // absence, optional
	Choice MenuChoice        // menu
}

// Keyword, day/month with . / - separators, optional year, optional time
// clause ("18", "18:00", "o 18"). Case-insensitive, whitespace-tolerant.
var absencePattern = regexp.MustCompile(
	`(?i)^\s*(?:zwalniam|odwo[łl]uj[ęe]|nieobecn\p{L}*)\s+(\d{1,2})[./-](\d{1,2})(?:[./-](\d{2,4}))?(?:\s+(?:o\s+)?(\d{1,2})(?:[:.](\d{2}))?)?\s*$`)

var menuChoices = map[string]MenuChoice{
	"1":            ChoiceAbsence,
	"2":            ChoiceMakeup,
	"3":            ChoiceCredits,
	"4":            ChoiceEnd,
	"nieobecność":  ChoiceAbsence,
	"nieobecnosc":  ChoiceAbsence,
	"zwolnienie":   ChoiceAbsence,
	"odrabianie":   ChoiceMakeup,
	"odrabiam":     ChoiceMakeup,
	"kredyty":      ChoiceCredits,
	"saldo":        ChoiceCredits,
	"koniec":       ChoiceEnd,
	"zakończ":      ChoiceEnd,
	"zakoncz":      ChoiceEnd,
}

// ParseIntent classifies one plain-text message. now anchors the year
// inference for bare dd/mm dates.
func ParseIntent(text string, now time.Time) Intent {
	if m := absencePattern.FindStringSubmatch(text); m != nil {
		if intent, ok := absenceIntent(m, now); ok {
			return intent
		}
		return Intent{Kind: IntentUnknown}
	}

	if choice, ok := menuChoices[strings.ToLower(strings.TrimSpace(text))]; ok {
		return Intent{Kind: IntentMenu, Choice: choice}
	}

	return Intent{Kind: IntentUnknown}
}

func absenceIntent(m []string, now time.Time) (Intent, bool) {
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])

	year := 0
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}

	date, ok := resolveDate(day, month, year, now)
	if !ok {
		return Intent{}, false
	}

	intent := Intent{Kind: IntentAbsence, Date: date}
	if m[4] != "" {
		hour, _ := strconv.Atoi(m[4])
		if hour > 23 {
			return Intent{}, false
		}
		hint := &service.TimeHint{Hour: hour}
		if m[5] != "" {
			minute, _ := strconv.Atoi(m[5])
			if minute > 59 {
				return Intent{}, false
			}
			hint.Minute = minute
			hint.MinuteSet = true
		}
		intent.Time = hint
	}

	return intent, true
}

// resolveDate validates day/month and infers the year when none was given:
// start from the current year, and if that lands more than 7 days in the
// past, assume next year. The 7-day grace window keeps a fresh slip-up like
// reporting yesterday as a past_date rejection instead of silently booking
// the same date next year; it stays a heuristic and is pinned by tests.
func resolveDate(day, month, year int, now time.Time) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	build := func(y int) (time.Time, bool) {
		d := time.Date(y, time.Month(month), day, 0, 0, 0, 0, now.Location())
		// time.Date normalizes overflow (31/02 → 03/03); reject that.
		if d.Day() != day || int(d.Month()) != month {
			return time.Time{}, false
		}
		return d, true
	}

	if year != 0 {
		return build(year)
	}

	date, ok := build(now.Year())
	if !ok {
		return time.Time{}, false
	}

	grace := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -7)
	if date.Before(grace) {
		return build(now.Year() + 1)
	}

	return date, true
}
