// Package calendar holds the date and time-of-day arithmetic shared by the
// recurrence expander and the reminder planner.
//
// Dates are kept as plain year/month/day triples so that formatting and
// comparison never pass through UTC. A Date only becomes an instant when it is
// combined with a TimeOfDay and an explicit *time.Location.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("calendar: malformed value")

// ParseError reports a date or time string that could not be parsed.
type ParseError struct {
	Kind  string // "date" or "time"
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar: invalid %s %q: %v", e.Kind, e.Value, e.Err)
	}
	return fmt.Sprintf("calendar: invalid %s %q", e.Kind, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Date is a local calendar date. The zero value means "unset".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Date{}, &ParseError{Kind: "date", Value: s, Err: errors.New("empty")}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return Date{}, &ParseError{Kind: "date", Value: s, Err: err}
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t using t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// StartOfDay is an alias for In, kept for readability at window call sites.
func (d Date) StartOfDay(loc *time.Location) time.Time { return d.In(loc) }

// EndOfDay returns 23:59:59.999 of d in loc.
func (d Date) EndOfDay(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, int(999*time.Millisecond), loc)
}

// At combines d with a wall-clock time in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, loc)
}

// AddDays normalizes through time.Date, so month and year boundaries roll.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d == o }

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalText / UnmarshalText let Date appear directly in JSON and YAML.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DayOfWeek returns 0..6 with 0 = Sunday.
func DayOfWeek(d Date) int { return int(d.Weekday()) }

// TimeOfDay is a local HH:MM wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" (and "HH:MM:SS", seconds ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	v := strings.TrimSpace(s)
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, &ParseError{Kind: "time", Value: s}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, &ParseError{Kind: "time", Value: s, Err: err}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, &ParseError{Kind: "time", Value: s, Err: err}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, &ParseError{Kind: "time", Value: s, Err: errors.New("out of range")}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// DurationMinutes returns the length of [start, end). Equal values mean the
// end is unset and yield 0; an end earlier than start wraps through midnight.
func DurationMinutes(start, end TimeOfDay) int {
	s, e := start.Minutes(), end.Minutes()
	switch {
	case s == e:
		return 0
	case e > s:
		return e - s
	default:
		return (24*60 - s) + e
	}
}

// DurationBetween parses both strings before calling DurationMinutes.
func DurationBetween(timeStart, timeEnd string) (int, error) {
	s, err := ParseTimeOfDay(timeStart)
	if err != nil {
		return 0, err
	}
	e, err := ParseTimeOfDay(timeEnd)
	if err != nil {
		return 0, err
	}
	return DurationMinutes(s, e), nil
}

// SameCalendarDay compares the local Y/M/D of each value in its own location.
func SameCalendarDay(a, b time.Time) bool {
	return DateOf(a) == DateOf(b)
}

// FormatLocalDate renders t's own local date as YYYY-MM-DD.
func FormatLocalDate(t time.Time) string {
	return DateOf(t).String()
}
