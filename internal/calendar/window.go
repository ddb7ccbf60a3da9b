package calendar

import "time"

// Window is an inclusive range of calendar days.
type Window struct {
	Start Date
	End   Date
}

// Bounds returns [00:00:00, 23:59:59.999] of the window in loc.
func (w Window) Bounds(loc *time.Location) (time.Time, time.Time) {
	return w.Start.StartOfDay(loc), w.End.EndOfDay(loc)
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Days returns the number of calendar days covered, 0 for an inverted window.
func (w Window) Days() int {
	if w.End.Before(w.Start) {
		return 0
	}
	n := 0
	for d := w.Start; !d.After(w.End); d = d.AddDays(1) {
		n++
	}
	return n
}

// TodayWindow covers only the local day of now.
func TodayWindow(now time.Time) Window {
	d := DateOf(now)
	return Window{Start: d, End: d}
}

// WeekWindow covers Sunday through Saturday of the week containing now.
func WeekWindow(now time.Time) Window {
	d := DateOf(now)
	start := d.AddDays(-DayOfWeek(d))
	return Window{Start: start, End: start.AddDays(6)}
}

// DaysWindow covers today plus the following n days.
func DaysWindow(now time.Time, n int) Window {
	if n < 0 {
		n = 0
	}
	d := DateOf(now)
	return Window{Start: d, End: d.AddDays(n)}
}
