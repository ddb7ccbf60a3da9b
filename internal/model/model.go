package model

import (
	"time"

	"schedcal/internal/calendar"
)

// Pattern is the repetition rule of a recurring schedule.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternNone    Pattern = "none"
)

func (p Pattern) IsValid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly, PatternNone:
		return true
	default:
		return false
	}
}

// Category mirrors the classification the schedule producer attaches. It is
// carried through untouched except by the stats package.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategoryEvent    Category = "event"
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryOther    Category = "other"
)

// Recurrence is present on a Definition only when it repeats. Its fields are
// therefore always meaningful, unlike the optional columns of Record.
type Recurrence struct {
	Pattern Pattern
	Start   calendar.Date
	// End is nil for an open-ended recurrence.
	End *calendar.Date
	// DaysOfWeek is only consulted for weekly patterns. Empty means "the
	// weekday of Start".
	DaysOfWeek []time.Weekday
}

// Reminder is present on a Definition only when reminders are enabled.
type Reminder struct {
	MinutesBefore int
}

// Definition is the validated, typed form of a stored schedule.
type Definition struct {
	ID        string
	Title     string
	Location  string
	Notes     string
	Category  Category
	Date      calendar.Date
	TimeStart calendar.TimeOfDay
	TimeEnd   calendar.TimeOfDay

	Recurrence *Recurrence
	Reminder   *Reminder

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Definition) IsRecurring() bool { return d.Recurrence != nil }

// DurationMinutes is the event length, wrapping through midnight.
func (d Definition) DurationMinutes() int {
	return calendar.DurationMinutes(d.TimeStart, d.TimeEnd)
}

// Occurrence is one concrete calendar instance of a Definition. ID is
// "{OriginID}-{Date}" for recurring origins and the origin id otherwise.
type Occurrence struct {
	Definition
	OriginID string
}

// StartAt is the instant the occurrence begins in loc.
func (o Occurrence) StartAt(loc *time.Location) time.Time {
	return o.Date.At(o.TimeStart, loc)
}

// EndAt is the instant the occurrence ends in loc. An end time earlier than
// the start falls on the following day.
func (o Occurrence) EndAt(loc *time.Location) time.Time {
	return o.StartAt(loc).Add(time.Duration(o.DurationMinutes()) * time.Minute)
}

// OccurrenceID builds the synthetic identity of a recurring instance.
func OccurrenceID(originID string, date calendar.Date) string {
	return originID + "-" + date.String()
}

// NewOccurrence materializes def on date.
func NewOccurrence(def Definition, date calendar.Date) Occurrence {
	occ := Occurrence{Definition: def, OriginID: def.ID}
	occ.Date = date
	if def.IsRecurring() {
		occ.ID = OccurrenceID(def.ID, date)
	}
	return occ
}
