package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"schedcal/internal/calendar"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// ErrUnsupported marks VEVENTs whose recurrence cannot be represented by a
// daily/weekly/monthly schedule. They are skipped rather than imported with
// the wrong dates.
var ErrUnsupported = errors.New("ics: unsupported recurrence")

const utcTimestamp = "20060102T150405Z"

// maxCountExpansion bounds COUNT-limited rules when resolving their last date.
const maxCountExpansion = 5000

// Parse converts every VEVENT of an ICS payload into a schedule record
// expressed in loc. A VEVENT that cannot be converted is reported in the
// failure list and the rest are still returned. The error is non-nil only
// when the payload itself is not a calendar.
func Parse(src Source, body []byte, loc *time.Location) ([]model.Record, []model.Failure, error) {
	if len(body) == 0 {
		return nil, nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, nil, fmt.Errorf("ics: parse: %w", err)
	}

	var (
		records  []model.Record
		failures []model.Failure
	)
	for _, ve := range cal.Events() {
		// Overridden instances cannot be expressed; the base series still
		// carries the regular occurrence.
		if ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil {
			appLog.Warn("ics override instance skipped", "id", src.ID, "uid", ve.Id())
			continue
		}
		r, err := recordFromEvent(ve, loc)
		if err == nil {
			_, err = r.Definition()
		}
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "uid", ve.Id())
			failures = append(failures, model.Failure{ID: ve.Id(), Err: err})
			continue
		}
		records = append(records, r)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL),
		"event_count", len(records), "skipped", len(failures))
	return records, failures, nil
}

func recordFromEvent(ve *ical.VEvent, loc *time.Location) (model.Record, error) {
	uid := ve.Id()
	if uid == "" {
		return model.Record{}, errors.New("ics: missing UID")
	}

	r := model.Record{ID: uid}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		r.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		r.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		r.Notes = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		first, _, _ := strings.Cut(p.Value, ",")
		r.Category = model.Category(strings.ToLower(strings.TrimSpace(first)))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return model.Record{}, fmt.Errorf("ics: DTSTART: %w", err)
	}
	start = start.In(loc)
	end := start
	if e, err := ve.GetEndAt(); err == nil {
		end = e.In(loc)
	}

	r.Date = calendar.FormatLocalDate(start)
	r.TimeStart = clockOf(start)
	r.TimeEnd = clockOf(end)

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
			return model.Record{}, fmt.Errorf("%w: EXDATE", ErrUnsupported)
		}
		if err := applyRRule(&r, p.Value, start, loc); err != nil {
			return model.Record{}, err
		}
	}

	if minutes, ok := alarmMinutes(ve); ok {
		r.ReminderEnabled = minutes > 0
		r.ReminderMinutesBefore = minutes
	}

	if p := ve.GetProperty(ical.ComponentPropertyCreated); p != nil {
		if t, err := time.Parse(utcTimestamp, p.Value); err == nil {
			r.CreatedAt = t
		}
	}
	if r.CreatedAt.IsZero() {
		if t, err := ve.GetDtStampTime(); err == nil {
			r.CreatedAt = t.UTC()
		}
	}
	if t, err := ve.GetLastModifiedAt(); err == nil {
		r.UpdatedAt = t.UTC()
	}
	return r, nil
}

func clockOf(t time.Time) string {
	return calendar.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}.String()
}

// applyRRule maps the subset of RFC 5545 that a schedule can express:
// FREQ=DAILY, FREQ=WEEKLY with optional BYDAY, FREQ=MONTHLY on the start's
// day of month; UNTIL or COUNT bound it.
func applyRRule(r *model.Record, raw string, start time.Time, loc *time.Location) error {
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		return fmt.Errorf("ics: RRULE %q: %w", raw, err)
	}
	if opt.Interval > 1 {
		return fmt.Errorf("%w: INTERVAL=%d", ErrUnsupported, opt.Interval)
	}
	if len(opt.Bysetpos)+len(opt.Bymonth)+len(opt.Byyearday)+len(opt.Byweekno)+
		len(opt.Byhour)+len(opt.Byminute)+len(opt.Bysecond)+len(opt.Byeaster) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsupported, raw)
	}

	r.IsRecurring = true
	r.RecurrenceStartDate = r.Date

	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 {
			return fmt.Errorf("%w: %s", ErrUnsupported, raw)
		}
		r.RecurrencePattern = model.PatternDaily
	case rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 {
			return fmt.Errorf("%w: %s", ErrUnsupported, raw)
		}
		r.RecurrencePattern = model.PatternWeekly
		for i := range opt.Byweekday {
			r.RecurrenceDaysOfWeek = append(r.RecurrenceDaysOfWeek, int(fromRRuleWeekday(opt.Byweekday[i])))
		}
	case rrule.MONTHLY:
		if len(opt.Byweekday) > 0 {
			return fmt.Errorf("%w: %s", ErrUnsupported, raw)
		}
		if len(opt.Bymonthday) > 1 || (len(opt.Bymonthday) == 1 && opt.Bymonthday[0] != start.Day()) {
			return fmt.Errorf("%w: BYMONTHDAY differs from DTSTART", ErrUnsupported)
		}
		r.RecurrencePattern = model.PatternMonthly
	default:
		return fmt.Errorf("%w: FREQ=%s", ErrUnsupported, opt.Freq)
	}

	switch {
	case !opt.Until.IsZero():
		r.RecurrenceEndDate = calendar.FormatLocalDate(opt.Until.In(loc))
	case opt.Count > 0:
		if opt.Count > maxCountExpansion {
			return fmt.Errorf("%w: COUNT=%d", ErrUnsupported, opt.Count)
		}
		opt.Dtstart = start
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return fmt.Errorf("ics: RRULE %q: %w", raw, err)
		}
		all := rule.All()
		if len(all) == 0 {
			return fmt.Errorf("ics: RRULE %q yields no occurrences", raw)
		}
		r.RecurrenceEndDate = calendar.FormatLocalDate(all[len(all)-1].In(loc))
	}
	return nil
}

// alarmMinutes returns the offset of the first display alarm triggered
// before the event start.
func alarmMinutes(ve *ical.VEvent) (int, bool) {
	for _, a := range ve.Alarms() {
		p := a.GetProperty(ical.ComponentPropertyTrigger)
		if p == nil {
			continue
		}
		if rel, ok := p.ICalParameters[string(ical.ParameterRelated)]; ok && len(rel) > 0 && strings.EqualFold(rel[0], "END") {
			continue
		}
		d, err := parseDuration(p.Value)
		if err != nil || d > 0 {
			continue
		}
		return int(-d / time.Minute), true
	}
	return 0, false
}

// parseDuration reads the RFC 5545 dur-value forms used by alarm triggers,
// e.g. "-PT15M", "-P1D", "-PT1H30M", "PT0S".
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("ics: bad duration %q", v)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	num := ""
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
			continue
		case c == 'T':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("ics: bad duration %q", v)
		}
		num = ""
		switch {
		case c == 'W' && !inTime:
			d += time.Duration(n) * 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			d += time.Duration(n) * 24 * time.Hour
		case c == 'H' && inTime:
			d += time.Duration(n) * time.Hour
		case c == 'M' && inTime:
			d += time.Duration(n) * time.Minute
		case c == 'S' && inTime:
			d += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("ics: bad duration %q", v)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("ics: bad duration %q", v)
	}
	if neg {
		d = -d
	}
	return d, nil
}

var rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

func toRRuleWeekday(wd time.Weekday) rrule.Weekday {
	return rruleWeekdays[(int(wd)+6)%7]
}

func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}
