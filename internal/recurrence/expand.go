package recurrence

import (
	"sort"
	"time"

	"schedcal/internal/calendar"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

const (
	// defaultMaxWindowDays caps how many days a single call will walk.
	defaultMaxWindowDays = 3660
)

// Expander materializes schedule definitions into concrete occurrences for a
// window of days. It holds no state between calls.
type Expander struct {
	// Location decides which calendar day an instant belongs to. If nil,
	// time.Local is used.
	Location *time.Location

	// MaxWindowDays is a safety cap on the walked window. If zero,
	// defaultMaxWindowDays is used.
	MaxWindowDays int

	Logger appLog.Logger
}

// Result wraps the expanded occurrences and the schedules that were skipped.
type Result struct {
	Occurrences []model.Occurrence
	Failures    []model.Failure
	// Truncated is set when the window was clipped to MaxWindowDays.
	Truncated bool
}

// New returns an Expander for loc.
func New(loc *time.Location) *Expander {
	return &Expander{Location: loc}
}

func (e *Expander) location() *time.Location {
	if e == nil || e.Location == nil {
		return time.Local
	}
	return e.Location
}

func (e *Expander) logger() appLog.Logger {
	if e == nil {
		return appLog.Nop()
	}
	return appLog.OrNop(e.Logger)
}

// Window converts two instants into the inclusive day window they span in
// the expander's location.
func (e *Expander) Window(start, end time.Time) calendar.Window {
	loc := e.location()
	return calendar.Window{
		Start: calendar.DateOf(start.In(loc)),
		End:   calendar.DateOf(end.In(loc)),
	}
}

// Expand produces every occurrence of defs that falls on a day in
// [windowStart, windowEnd], both bounds taken as whole local days.
//
//   - One-off schedules are included as-is when their date is in the window.
//   - Recurring schedules are walked day by day, bounded by the recurrence
//     start and by its end date or, when open-ended, by the window end.
//   - Results are ordered by date, then start time, then id.
func (e *Expander) Expand(defs []model.Definition, windowStart, windowEnd time.Time) Result {
	return e.ExpandWindow(defs, e.Window(windowStart, windowEnd))
}

// ExpandWindow is Expand for an explicit day window.
func (e *Expander) ExpandWindow(defs []model.Definition, w calendar.Window) Result {
	var result Result
	if w.End.Before(w.Start) {
		return result
	}

	maxDays := defaultMaxWindowDays
	if e != nil && e.MaxWindowDays > 0 {
		maxDays = e.MaxWindowDays
	}
	if limit := w.Start.AddDays(maxDays - 1); w.End.After(limit) {
		e.logger().Warn("expand: window clipped", "start", w.Start, "end", w.End, "max_days", maxDays)
		w.End = limit
		result.Truncated = true
	}

	out := make([]model.Occurrence, 0)
	for _, def := range defs {
		if !def.IsRecurring() {
			if w.Contains(def.Date) {
				out = append(out, model.NewOccurrence(def, def.Date))
			}
			continue
		}
		out = append(out, expandRecurring(def, w)...)
	}

	SortOccurrences(out)
	result.Occurrences = out
	return result
}

// ExpandRecords converts records first; records that fail conversion are
// reported in Result.Failures and the rest are still expanded.
func (e *Expander) ExpandRecords(records []model.Record, windowStart, windowEnd time.Time) Result {
	defs, failures := model.Definitions(records)
	for _, f := range failures {
		e.logger().Error("expand: schedule skipped", f.Err, "id", f.ID)
	}
	result := e.Expand(defs, windowStart, windowEnd)
	result.Failures = append(result.Failures, failures...)
	return result
}

func expandRecurring(def model.Definition, w calendar.Window) []model.Occurrence {
	rec := def.Recurrence

	// Open-ended recurrences never run past the caller's window.
	effectiveEnd := w.End
	if rec.End != nil && rec.End.Before(effectiveEnd) {
		effectiveEnd = *rec.End
	}
	cursor := w.Start
	if cursor.Before(rec.Start) {
		cursor = rec.Start
	}

	var out []model.Occurrence
	for ; !cursor.After(effectiveEnd); cursor = cursor.AddDays(1) {
		if Matches(rec, cursor) {
			out = append(out, model.NewOccurrence(def, cursor))
		}
	}
	return out
}

// Matches reports whether day satisfies the pattern of rec. Bounds are not
// checked here.
//
// Monthly recurrences match the start's day-of-month only; months too short
// for that day are skipped rather than rolled over.
func Matches(rec *model.Recurrence, day calendar.Date) bool {
	switch rec.Pattern {
	case model.PatternDaily:
		return true
	case model.PatternWeekly:
		wd := day.Weekday()
		if len(rec.DaysOfWeek) == 0 {
			return wd == rec.Start.Weekday()
		}
		for _, d := range rec.DaysOfWeek {
			if d == wd {
				return true
			}
		}
		return false
	case model.PatternMonthly:
		return day.Day == rec.Start.Day
	default:
		return false
	}
}

// SortOccurrences orders by (date, timeStart, id).
func SortOccurrences(occ []model.Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		a, b := occ[i], occ[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.TimeStart != b.TimeStart {
			return a.TimeStart.Minutes() < b.TimeStart.Minutes()
		}
		return a.ID < b.ID
	})
}
