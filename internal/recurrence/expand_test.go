package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"schedcal/internal/calendar"
	"schedcal/internal/model"
)

func mustDef(t *testing.T, r model.Record) model.Definition {
	t.Helper()
	def, err := r.Definition()
	require.NoError(t, err)
	return def
}

func day(s string) time.Time {
	return calendar.MustDate(s).In(time.UTC)
}

func dates(occ []model.Occurrence) []string {
	out := make([]string, 0, len(occ))
	for _, o := range occ {
		out = append(out, o.Date.String())
	}
	return out
}

func recurring(id string, pattern model.Pattern, start, end string, days ...int) model.Record {
	return model.Record{
		ID:                   id,
		Title:                "title " + id,
		TimeStart:            "08:00",
		TimeEnd:              "09:00",
		IsRecurring:          true,
		RecurrencePattern:    pattern,
		RecurrenceStartDate:  start,
		RecurrenceEndDate:    end,
		RecurrenceDaysOfWeek: days,
	}
}

func TestExpandWeeklyMondaysAndWednesdays(t *testing.T) {
	def := mustDef(t, recurring("w", model.PatternWeekly, "2024-01-01", "2024-01-31", 1, 3))

	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-01-01"), day("2024-01-31"))

	assert.Equal(t, []string{
		"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15",
		"2024-01-17", "2024-01-22", "2024-01-24", "2024-01-29", "2024-01-31",
	}, dates(res.Occurrences))
	for _, o := range res.Occurrences {
		wd := o.Date.Weekday()
		assert.True(t, wd == time.Monday || wd == time.Wednesday)
	}
}

func TestExpandEndToEndWeekly(t *testing.T) {
	def := mustDef(t, recurring("s1", model.PatternWeekly, "2024-01-01", "2024-01-22", 1))

	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-01-01"), day("2024-01-31"))

	require.Empty(t, res.Failures)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}, dates(res.Occurrences))
	assert.Equal(t, "s1-2024-01-15", res.Occurrences[2].ID)
	assert.Equal(t, "s1", res.Occurrences[2].OriginID)
}

func TestExpandMonthlyShortMonthHasNoOccurrence(t *testing.T) {
	def := mustDef(t, recurring("m", model.PatternMonthly, "2024-01-31", ""))

	exp := New(time.UTC)
	feb := exp.Expand([]model.Definition{def}, day("2024-02-01"), day("2024-02-29"))
	assert.Empty(t, feb.Occurrences)

	q1 := exp.Expand([]model.Definition{def}, day("2024-01-01"), day("2024-05-31"))
	assert.Equal(t, []string{"2024-01-31", "2024-03-31", "2024-05-31"}, dates(q1.Occurrences))
}

func TestExpandWeeklyEmptyDaysUsesStartWeekday(t *testing.T) {
	// 2024-01-04 is a Thursday.
	def := mustDef(t, recurring("th", model.PatternWeekly, "2024-01-04", "2024-01-25"))

	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-01-01"), day("2024-01-31"))
	assert.Equal(t, []string{"2024-01-04", "2024-01-11", "2024-01-18", "2024-01-25"}, dates(res.Occurrences))
}

func TestExpandOpenEndedIsCappedByWindow(t *testing.T) {
	def := mustDef(t, recurring("d", model.PatternDaily, "2024-01-01", ""))

	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-03-01"), day("2024-03-03"))
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, dates(res.Occurrences))
}

func TestExpandIgnoresPersistedDateOfRecurring(t *testing.T) {
	r := recurring("d", model.PatternDaily, "2024-01-10", "2024-01-11")
	r.Date = "2024-01-01"
	def := mustDef(t, r)

	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-01-01"), day("2024-01-31"))
	assert.Equal(t, []string{"2024-01-10", "2024-01-11"}, dates(res.Occurrences))
}

func TestExpandOneOffInsideAndOutsideWindow(t *testing.T) {
	in := mustDef(t, model.Record{ID: "a", Title: "A", Date: "2024-01-05", TimeStart: "10:00", TimeEnd: "11:00"})
	out := mustDef(t, model.Record{ID: "b", Title: "B", Date: "2024-02-05", TimeStart: "10:00", TimeEnd: "11:00"})

	res := New(time.UTC).Expand([]model.Definition{in, out}, day("2024-01-01"), day("2024-01-31"))
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "a", res.Occurrences[0].ID)
}

func TestExpandSortsByDateThenStartTime(t *testing.T) {
	late := recurring("late", model.PatternDaily, "2024-01-01", "2024-01-02")
	late.TimeStart, late.TimeEnd = "18:00", "19:00"
	early := recurring("early", model.PatternDaily, "2024-01-01", "2024-01-02")
	early.TimeStart, early.TimeEnd = "07:00", "07:30"

	res := New(time.UTC).Expand(
		[]model.Definition{mustDef(t, late), mustDef(t, early)},
		day("2024-01-01"), day("2024-01-02"),
	)
	ids := make([]string, 0, len(res.Occurrences))
	for _, o := range res.Occurrences {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"early-2024-01-01", "late-2024-01-01", "early-2024-01-02", "late-2024-01-02"}, ids)
}

func TestExpandIsIdempotentAndContained(t *testing.T) {
	defs := []model.Definition{
		mustDef(t, recurring("w", model.PatternWeekly, "2023-12-01", "", 0, 6)),
		mustDef(t, recurring("m", model.PatternMonthly, "2023-11-15", "2024-06-01")),
		mustDef(t, recurring("d", model.PatternDaily, "2024-01-20", "2024-02-03")),
	}
	exp := New(time.UTC)
	start, end := day("2024-01-10"), day("2024-02-20")

	first := exp.Expand(defs, start, end)
	second := exp.Expand(defs, start, end)
	assert.Equal(t, first, second)

	w := exp.Window(start, end)
	for _, o := range first.Occurrences {
		assert.True(t, w.Contains(o.Date), o.ID)
	}
}

func TestExpandNormalizesWindowToLocalDays(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	def := mustDef(t, recurring("d", model.PatternDaily, "2024-01-01", "2024-01-31"))

	// 2024-01-09T20:00Z is already 2024-01-10 in UTC+7.
	start := time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)
	res := New(wib).Expand([]model.Definition{def}, start, start)
	assert.Equal(t, []string{"2024-01-10"}, dates(res.Occurrences))
}

func TestExpandRecordsIsolatesBadRecords(t *testing.T) {
	good := recurring("ok", model.PatternDaily, "2024-01-01", "2024-01-02")
	bad := recurring("bad", model.PatternDaily, "not-a-date", "2024-01-02")

	res := New(time.UTC).ExpandRecords([]model.Record{bad, good}, day("2024-01-01"), day("2024-01-31"))
	assert.Len(t, res.Occurrences, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad", res.Failures[0].ID)
	assert.ErrorIs(t, res.Failures[0].Err, model.ErrData)
}

func TestExpandInvertedWindowIsEmpty(t *testing.T) {
	def := mustDef(t, recurring("d", model.PatternDaily, "2024-01-01", ""))
	res := New(time.UTC).Expand([]model.Definition{def}, day("2024-01-10"), day("2024-01-01"))
	assert.Empty(t, res.Occurrences)
}

func TestExpandClipsOversizedWindow(t *testing.T) {
	def := mustDef(t, recurring("d", model.PatternDaily, "2024-01-01", ""))
	exp := &Expander{Location: time.UTC, MaxWindowDays: 10}

	res := exp.Expand([]model.Definition{def}, day("2024-01-01"), day("2024-12-31"))
	assert.True(t, res.Truncated)
	assert.Len(t, res.Occurrences, 10)
}

// The day walk must agree with RFC 5545 expansion for the patterns both
// understand, including skipped short months.
func TestExpandAgreesWithRRule(t *testing.T) {
	cases := []struct {
		name   string
		record model.Record
		opt    rrule.ROption
	}{
		{
			name:   "daily",
			record: recurring("d", model.PatternDaily, "2024-01-05", "2024-03-10"),
			opt:    rrule.ROption{Freq: rrule.DAILY, Dtstart: day("2024-01-05"), Until: day("2024-03-10")},
		},
		{
			name:   "weekly by day",
			record: recurring("w", model.PatternWeekly, "2024-01-02", "2024-04-30", 0, 2, 5),
			opt: rrule.ROption{
				Freq: rrule.WEEKLY, Dtstart: day("2024-01-02"), Until: day("2024-04-30"),
				Byweekday: []rrule.Weekday{rrule.SU, rrule.TU, rrule.FR},
			},
		},
		{
			name:   "monthly on the 30th",
			record: recurring("m", model.PatternMonthly, "2023-10-30", "2024-12-31"),
			opt:    rrule.ROption{Freq: rrule.MONTHLY, Dtstart: day("2023-10-30"), Until: day("2024-12-31")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := rrule.NewRRule(tc.opt)
			require.NoError(t, err)

			winStart, winEnd := day("2024-01-01"), day("2024-10-31")
			want := make([]string, 0)
			for _, ts := range r.Between(winStart, winEnd.Add(24*time.Hour-time.Nanosecond), true) {
				want = append(want, calendar.FormatLocalDate(ts))
			}

			res := New(time.UTC).Expand([]model.Definition{mustDef(t, tc.record)}, winStart, winEnd)
			assert.Equal(t, want, dates(res.Occurrences))
		})
	}
}
