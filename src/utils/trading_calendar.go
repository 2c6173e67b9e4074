package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar resolves the exchange session context for an instrument.
// Its timezone governs calendar-day bucket alignment for daily aggregation.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar loads the session calendar for a MIC code (ISO 10383, e.g.
// "xnys" for NYSE). Falls back to a plain America/New_York timezone when no
// calendar data is available for the code.
func GetCalendar(mic string) *TradingCalendar {
	if mic == "" {
		mic = "xnys"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using America/New_York timezone.", mic)
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// Location returns the governing timezone for session-day boundaries.
func (tc *TradingCalendar) Location() *time.Location {
	if tc.Timezone != nil {
		return tc.Timezone
	}
	return time.UTC
}

// -----------------------------------------------------------------------------

// IsTradingDay reports whether date falls on a session day.
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}
