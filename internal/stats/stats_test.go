package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcal/internal/calendar"
	"schedcal/internal/model"
)

// Wednesday.
var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func TestSummary(t *testing.T) {
	records := []model.Record{
		{ID: "a", Date: "2024-01-10"},
		{ID: "b", Date: "2024-01-07", ReminderEnabled: true},
		{ID: "c", Date: "2024-01-13", IsRecurring: true},
		{ID: "d", Date: "2024-01-14"},
		{ID: "e", Date: "garbage", IsRecurring: true, ReminderEnabled: true},
	}

	c := Summary(records, now, time.UTC)
	assert.Equal(t, Counts{Total: 5, Today: 1, Week: 3, Recurring: 2, Reminders: 2}, c)
}

func TestSummaryUsesLocation(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	// 2024-01-10 20:00 UTC is already the 11th in WIB.
	late := time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)
	c := Summary([]model.Record{{ID: "a", Date: "2024-01-11"}}, late, wib)
	assert.Equal(t, 1, c.Today)
}

func occurrence(date, start, end string, cat model.Category) model.Occurrence {
	r := model.Record{ID: date + start, Title: "x", Date: date, TimeStart: start, TimeEnd: end, Category: cat}
	def, err := r.Definition()
	if err != nil {
		panic(err)
	}
	return model.NewOccurrence(def, def.Date)
}

func TestProductivityTrend(t *testing.T) {
	occ := []model.Occurrence{
		occurrence("2024-01-08", "08:00", "10:00", model.CategoryAcademic),
		occurrence("2024-01-08", "10:00", "12:00", model.CategoryPersonal),
		occurrence("2024-01-10", "09:00", "10:00", model.CategoryWork),
		occurrence("2024-01-10", "13:00", "13:00", model.CategoryPersonal),
		// Outside the window.
		occurrence("2024-01-01", "08:00", "09:00", model.CategoryWork),
	}

	trend := ProductivityTrend(occ, now, 3, nil)
	assert.Equal(t, Period{Start: "2024-01-08", End: "2024-01-10", Days: 3}, trend.Period)
	require.Len(t, trend.Points, 3)

	assert.Equal(t, Point{Date: "2024-01-08", ProductiveMinutes: 120, TotalMinutes: 240, RatioPercent: 50, MovingAvg7: 50}, trend.Points[0])
	// Empty days do not drag the average down.
	assert.Equal(t, Point{Date: "2024-01-09", MovingAvg7: 50}, trend.Points[1])
	assert.Equal(t, Point{Date: "2024-01-10", ProductiveMinutes: 60, TotalMinutes: 60, RatioPercent: 100, MovingAvg7: 75}, trend.Points[2])
}

func TestProductivityTrendRounding(t *testing.T) {
	occ := []model.Occurrence{
		occurrence("2024-01-10", "08:00", "09:00", model.CategoryAcademic),
		occurrence("2024-01-10", "09:00", "11:00", model.CategoryEvent),
	}
	trend := ProductivityTrend(occ, now, 1, nil)
	require.Len(t, trend.Points, 1)
	assert.Equal(t, 33.3, trend.Points[0].RatioPercent)
	assert.Equal(t, 33.3, trend.Points[0].MovingAvg7)
}

func TestProductivityTrendEmpty(t *testing.T) {
	trend := ProductivityTrend(nil, now, 30, []model.Category{model.CategoryPersonal})
	require.Len(t, trend.Points, 30)
	for _, p := range trend.Points {
		assert.Zero(t, p.MovingAvg7)
	}
	assert.Equal(t, "2023-12-12", trend.Points[0].Date)
}

func TestProductivityTrendMovingWindow(t *testing.T) {
	var occ []model.Occurrence
	start := calendar.MustDate("2024-01-01")
	for i := 0; i < 10; i++ {
		cat := model.CategoryPersonal
		if i < 3 {
			cat = model.CategoryWork
		}
		occ = append(occ, occurrence(start.AddDays(i).String(), "08:00", "09:00", cat))
	}

	trend := ProductivityTrend(occ, now, 10, nil)
	require.Len(t, trend.Points, 10)
	// Jan 7 averages Jan 1..7: three of seven days productive.
	assert.Equal(t, 42.9, trend.Points[6].MovingAvg7)
	// Jan 10 averages Jan 4..10: none productive.
	assert.Zero(t, trend.Points[9].MovingAvg7)
}
