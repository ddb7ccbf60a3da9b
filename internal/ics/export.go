package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"schedcal/internal/model"
)

const localTimestamp = "20060102T150405"

// ExportOptions controls Export.
type ExportOptions struct {
	// Location is the zone wall-clock times are written in. If nil,
	// time.Local is used.
	Location *time.Location
	// Name becomes X-WR-CALNAME when set.
	Name string
	// Now stamps DTSTAMP. Zero means time.Now().
	Now time.Time
}

// Export renders defs as a VCALENDAR with one VEVENT per definition. The
// recurrence is written as an RRULE and the reminder as a display VALARM.
func Export(defs []model.Definition, opts ExportOptions) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendarFor("schedcal")
	cal.SetMethod(ical.MethodPublish)
	if id := zoneID(loc); id != "" {
		cal.SetXWRTimezone(id)
	}
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, def := range defs {
		addEvent(cal, def, loc, now)
	}
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, def model.Definition, loc *time.Location, now time.Time) {
	ev := cal.AddEvent(def.ID)
	ev.SetDtStampTime(now)
	if !def.CreatedAt.IsZero() {
		ev.SetCreatedTime(def.CreatedAt)
	}
	if !def.UpdatedAt.IsZero() {
		ev.SetLastModifiedAt(def.UpdatedAt)
	}
	ev.SetSummary(def.Title)
	if def.Location != "" {
		ev.SetLocation(def.Location)
	}
	if def.Notes != "" {
		ev.SetDescription(def.Notes)
	}
	if def.Category != "" {
		ev.AddCategory(string(def.Category))
	}

	// Recurring series start at the recurrence start, not at the stored date.
	first := def.Date
	if def.IsRecurring() {
		first = def.Recurrence.Start
	}
	start := first.At(def.TimeStart, loc)
	end := start.Add(time.Duration(def.DurationMinutes()) * time.Minute)
	if zoneID(loc) != "" {
		tzid := ical.WithTZID(zoneID(loc))
		ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localTimestamp), tzid)
		ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localTimestamp), tzid)
	} else {
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}

	if def.IsRecurring() {
		ev.AddRrule(RRule(def.Recurrence, loc))
	}

	if def.Reminder != nil {
		alarm := ev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", def.Reminder.MinutesBefore))
		alarm.SetProperty(ical.ComponentPropertyDescription, def.Title)
	}
}

// RRule renders rec in RFC 5545 form, e.g. "FREQ=WEEKLY;UNTIL=...;BYDAY=MO,WE".
// UNTIL is the last instant of the end date in loc.
func RRule(rec *model.Recurrence, loc *time.Location) string {
	opt := rrule.ROption{}
	switch rec.Pattern {
	case model.PatternDaily:
		opt.Freq = rrule.DAILY
	case model.PatternWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rec.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(wd))
		}
	case model.PatternMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{rec.Start.Day}
	}
	if rec.End != nil {
		opt.Until = rec.End.EndOfDay(loc).Truncate(time.Second)
	}
	return opt.RRuleString()
}

// zoneID returns loc's IANA name when readers can resolve it as a TZID.
// Fixed zones and time.Local are written as UTC instead.
func zoneID(loc *time.Location) string {
	name := loc.String()
	if name == "" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}
