package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Anchor: Monday, 10 November 2025.
var intentNow = time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseIntentAbsence(t *testing.T) {
	cases := []struct {
		text string
		want time.Time
	}{
		{"zwalniam 12/11", date(2025, 11, 12)},
		{"Zwalniam 12.11", date(2025, 11, 12)},
		{"zwalniam 12-11", date(2025, 11, 12)},
		{"  odwołuję 25/12  ", date(2025, 12, 25)},
		{"odwoluje 25/12", date(2025, 12, 25)},
		{"nieobecna 14/11", date(2025, 11, 14)},
		{"nieobecny 14/11", date(2025, 11, 14)},
		{"zwalniam 12/11/2025", date(2025, 11, 12)},
		{"zwalniam 12/11/25", date(2025, 11, 12)},
		{"zwalniam 5/3/26", date(2026, 3, 5)},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := ParseIntent(tc.text, intentNow)
			require.Equal(t, IntentAbsence, got.Kind)
			assert.True(t, got.Date.Equal(tc.want), "got %v want %v", got.Date, tc.want)
			assert.Nil(t, got.Time)
		})
	}
}

func TestParseIntentTimeClause(t *testing.T) {
	got := ParseIntent("zwalniam 12/11 18", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	require.NotNil(t, got.Time)
	assert.Equal(t, 18, got.Time.Hour)
	assert.False(t, got.Time.MinuteSet)

	got = ParseIntent("zwalniam 12/11 o 18:30", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	require.NotNil(t, got.Time)
	assert.Equal(t, 18, got.Time.Hour)
	assert.Equal(t, 30, got.Time.Minute)
	assert.True(t, got.Time.MinuteSet)

	got = ParseIntent("zwalniam 12/11 18.45", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	require.NotNil(t, got.Time)
	assert.Equal(t, 45, got.Time.Minute)

	// Out-of-range time parts invalidate the whole message.
	assert.Equal(t, IntentUnknown, ParseIntent("zwalniam 12/11 25", intentNow).Kind)
	assert.Equal(t, IntentUnknown, ParseIntent("zwalniam 12/11 18:75", intentNow).Kind)
}

func TestParseIntentYearInference(t *testing.T) {
	// A bare dd/mm more than 7 days in the past rolls to next year.
	got := ParseIntent("zwalniam 5/1", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2026, 1, 5)), "got %v", got.Date)

	// Within the 7-day grace window it stays in the current year, so the
	// engine can reject it as a past date instead of booking next year.
	got = ParseIntent("zwalniam 5/11", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2025, 11, 5)), "got %v", got.Date)

	// Grace boundary: exactly 7 days back is still this year.
	got = ParseIntent("zwalniam 3/11", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2025, 11, 3)), "got %v", got.Date)

	// One day beyond it rolls over.
	got = ParseIntent("zwalniam 2/11", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2026, 11, 2)), "got %v", got.Date)

	// An explicit year is never second-guessed.
	got = ParseIntent("zwalniam 5/1/2025", intentNow)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2025, 1, 5)), "got %v", got.Date)

	// Late-December anchor: early-January dates belong to the coming year.
	dec := time.Date(2025, 12, 29, 12, 0, 0, 0, time.UTC)
	got = ParseIntent("zwalniam 2/1", dec)
	require.Equal(t, IntentAbsence, got.Kind)
	assert.True(t, got.Date.Equal(date(2026, 1, 2)), "got %v", got.Date)
}

func TestParseIntentRejectsImpossibleDates(t *testing.T) {
	for _, text := range []string{
		"zwalniam 31/2",
		"zwalniam 31/02/2025",
		"zwalniam 0/5",
		"zwalniam 12/13",
		"zwalniam 32/1",
	} {
		assert.Equal(t, IntentUnknown, ParseIntent(text, intentNow).Kind, text)
	}
}

func TestParseIntentMenuChoices(t *testing.T) {
	cases := map[string]MenuChoice{
		"1":            ChoiceAbsence,
		"2":            ChoiceMakeup,
		"3":            ChoiceCredits,
		"4":            ChoiceEnd,
		"Nieobecność":  ChoiceAbsence,
		"zwolnienie":   ChoiceAbsence,
		"ODRABIAM":     ChoiceMakeup,
		"saldo":        ChoiceCredits,
		" koniec ":     ChoiceEnd,
		"zakończ":      ChoiceEnd,
	}

	for text, want := range cases {
		got := ParseIntent(text, intentNow)
		require.Equal(t, IntentMenu, got.Kind, text)
		assert.Equal(t, want, got.Choice, text)
	}
}

func TestParseIntentUnknown(t *testing.T) {
	for _, text := range []string{
		"",
		"dzień dobry",
		"zwalniam",
		"zwalniam jutro",
		"5",
		"co z moimi kredytami?",
	} {
		assert.Equal(t, IntentUnknown, ParseIntent(text, intentNow).Kind, text)
	}
}
