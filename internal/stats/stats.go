// Package stats computes the dashboard numbers: schedule counts and the
// productive-time trend.
package stats

import (
	"math"
	"time"

	"schedcal/internal/calendar"
	"schedcal/internal/model"
)

// MovingAverageDays is the width of the trend's moving average.
const MovingAverageDays = 7

// DefaultProductive lists the categories counted as productive time.
var DefaultProductive = []model.Category{model.CategoryAcademic, model.CategoryWork}

type Counts struct {
	Total     int `json:"total"`
	Today     int `json:"today"`
	Week      int `json:"week"`
	Recurring int `json:"recurring"`
	Reminders int `json:"reminders"`
}

// Summary counts stored records. Today and Week look at the stored date
// only; the week runs Sunday through Saturday around now in loc. Records
// with an unparseable date still count towards the totals.
func Summary(records []model.Record, now time.Time, loc *time.Location) Counts {
	if loc == nil {
		loc = time.Local
	}
	week := calendar.WeekWindow(now.In(loc))
	today := calendar.DateOf(now.In(loc))

	var c Counts
	for _, r := range records {
		c.Total++
		if r.IsRecurring {
			c.Recurring++
		}
		if r.ReminderEnabled {
			c.Reminders++
		}
		d, err := calendar.ParseDate(r.Date)
		if err != nil {
			continue
		}
		if d == today {
			c.Today++
		}
		if week.Contains(d) {
			c.Week++
		}
	}
	return c
}

type Point struct {
	Date              string  `json:"date"`
	ProductiveMinutes int     `json:"productiveMinutes"`
	TotalMinutes      int     `json:"totalMinutes"`
	RatioPercent      float64 `json:"ratioPercent"`
	MovingAvg7        float64 `json:"movingAvg7"`
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

type Trend struct {
	Points []Point `json:"points"`
	Period Period  `json:"period"`
}

// TrendWindow is the day range ProductivityTrend covers: the days-1 days
// before now and now itself.
func TrendWindow(now time.Time, days int) calendar.Window {
	if days < 1 {
		days = 1
	}
	end := calendar.DateOf(now)
	return calendar.Window{Start: end.AddDays(-(days - 1)), End: end}
}

// ProductivityTrend builds one point per day of TrendWindow from expanded
// occurrences. Zero-length occurrences are ignored. The moving average of
// a day covers up to MovingAverageDays points ending at it and only the
// days that have any scheduled time, unless none do.
func ProductivityTrend(occ []model.Occurrence, now time.Time, days int, productive []model.Category) Trend {
	w := TrendWindow(now, days)
	if productive == nil {
		productive = DefaultProductive
	}
	isProductive := make(map[model.Category]bool, len(productive))
	for _, c := range productive {
		isProductive[c] = true
	}

	type tally struct{ productive, total int }
	byDay := make(map[calendar.Date]tally)
	for _, o := range occ {
		if !w.Contains(o.Date) {
			continue
		}
		minutes := o.DurationMinutes()
		if minutes == 0 {
			continue
		}
		t := byDay[o.Date]
		t.total += minutes
		if isProductive[o.Category] {
			t.productive += minutes
		}
		byDay[o.Date] = t
	}

	points := make([]Point, 0, w.Days())
	for d := w.Start; !d.After(w.End); d = d.AddDays(1) {
		t := byDay[d]
		p := Point{Date: d.String(), ProductiveMinutes: t.productive, TotalMinutes: t.total}
		if t.total > 0 {
			p.RatioPercent = round1(float64(t.productive) / float64(t.total) * 100)
		}
		points = append(points, p)
	}

	for i := range points {
		lo := i - MovingAverageDays + 1
		if lo < 0 {
			lo = 0
		}
		window := points[lo : i+1]
		sum, n := 0.0, 0
		for _, p := range window {
			if p.TotalMinutes > 0 {
				sum += p.RatioPercent
				n++
			}
		}
		if n == 0 {
			// Nothing scheduled: every ratio in the window is zero.
			n = len(window)
		}
		points[i].MovingAvg7 = round1(sum / float64(n))
	}

	return Trend{
		Points: points,
		Period: Period{Start: w.Start.String(), End: w.End.String(), Days: len(points)},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
