package ics

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcal/internal/model"
)

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return loc
}

func vcalendar(events ...string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, strings.Split(strings.TrimSpace(ev), "\n")...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func mustDefinition(t *testing.T, r model.Record) model.Definition {
	t.Helper()
	def, err := r.Definition()
	require.NoError(t, err)
	return def
}

var testSource = Source{ID: "test", URL: "https://calendar.example.com/private/abc.ics?token=secret"}

func TestExportParseRoundTrip(t *testing.T) {
	loc := jakarta(t)
	created := time.Date(2023, 12, 20, 3, 4, 5, 0, time.UTC)
	defs := []model.Definition{
		mustDefinition(t, model.Record{
			ID:                    "weekly-1",
			Title:                 "Algorithms, lecture; hall B",
			Location:              "Hall B",
			Category:              model.CategoryAcademic,
			TimeStart:             "08:00",
			TimeEnd:               "09:40",
			IsRecurring:           true,
			RecurrencePattern:     model.PatternWeekly,
			RecurrenceStartDate:   "2024-01-01",
			RecurrenceEndDate:     "2024-03-29",
			RecurrenceDaysOfWeek:  []int{1, 3},
			ReminderEnabled:       true,
			ReminderMinutesBefore: 15,
			CreatedAt:             created,
		}),
		mustDefinition(t, model.Record{
			ID:                  "daily-1",
			Title:               "Gym",
			TimeStart:           "06:00",
			TimeEnd:             "07:00",
			IsRecurring:         true,
			RecurrencePattern:   model.PatternDaily,
			RecurrenceStartDate: "2024-01-05",
		}),
		mustDefinition(t, model.Record{
			ID:                  "monthly-1",
			Title:               "Rent",
			TimeStart:           "10:00",
			TimeEnd:             "10:30",
			IsRecurring:         true,
			RecurrencePattern:   model.PatternMonthly,
			RecurrenceStartDate: "2024-01-31",
			RecurrenceEndDate:   "2024-12-31",
		}),
		mustDefinition(t, model.Record{
			ID:                    "once-1",
			Title:                 "Dentist",
			Notes:                 "bring card",
			Date:                  "2024-02-14",
			TimeStart:             "23:30",
			TimeEnd:               "00:15",
			ReminderEnabled:       true,
			ReminderMinutesBefore: 60,
		}),
	}

	body := Export(defs, ExportOptions{Location: loc, Name: "Schedules", Now: created})
	records, failures, err := Parse(testSource, []byte(body), loc)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, records, len(defs))

	byID := make(map[string]model.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	w := byID["weekly-1"]
	assert.Equal(t, "Algorithms, lecture; hall B", w.Title)
	assert.Equal(t, "Hall B", w.Location)
	assert.Equal(t, model.CategoryAcademic, w.Category)
	assert.Equal(t, "2024-01-01", w.Date)
	assert.Equal(t, "08:00", w.TimeStart)
	assert.Equal(t, "09:40", w.TimeEnd)
	assert.True(t, w.IsRecurring)
	assert.Equal(t, model.PatternWeekly, w.RecurrencePattern)
	assert.Equal(t, "2024-01-01", w.RecurrenceStartDate)
	assert.Equal(t, "2024-03-29", w.RecurrenceEndDate)
	assert.Equal(t, []int{1, 3}, w.RecurrenceDaysOfWeek)
	assert.True(t, w.ReminderEnabled)
	assert.Equal(t, 15, w.ReminderMinutesBefore)
	assert.True(t, created.Equal(w.CreatedAt))

	d := byID["daily-1"]
	assert.Equal(t, model.PatternDaily, d.RecurrencePattern)
	assert.Equal(t, "2024-01-05", d.RecurrenceStartDate)
	assert.Empty(t, d.RecurrenceEndDate)
	assert.False(t, d.ReminderEnabled)

	m := byID["monthly-1"]
	assert.Equal(t, model.PatternMonthly, m.RecurrencePattern)
	assert.Equal(t, "2024-01-31", m.RecurrenceStartDate)
	assert.Equal(t, "2024-12-31", m.RecurrenceEndDate)

	o := byID["once-1"]
	assert.False(t, o.IsRecurring)
	assert.Equal(t, "2024-02-14", o.Date)
	assert.Equal(t, "23:30", o.TimeStart)
	assert.Equal(t, "00:15", o.TimeEnd)
	assert.Equal(t, "bring card", o.Notes)
	assert.Equal(t, 60, o.ReminderMinutesBefore)
}

func TestExportWritesLocalTimesAndRules(t *testing.T) {
	loc := jakarta(t)
	def := mustDefinition(t, model.Record{
		ID:                    "w",
		Title:                 "Lecture",
		TimeStart:             "08:00",
		TimeEnd:               "09:00",
		IsRecurring:           true,
		RecurrencePattern:     model.PatternWeekly,
		RecurrenceStartDate:   "2024-01-01",
		RecurrenceEndDate:     "2024-03-29",
		RecurrenceDaysOfWeek:  []int{1, 3},
		ReminderEnabled:       true,
		ReminderMinutesBefore: 15,
	})

	body := Export([]model.Definition{def}, ExportOptions{Location: loc, Now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.Contains(t, body, "METHOD:PUBLISH")
	assert.Contains(t, body, "UID:w")
	assert.Contains(t, body, "DTSTART;TZID=Asia/Jakarta:20240101T080000")
	assert.Contains(t, body, "DTEND;TZID=Asia/Jakarta:20240101T090000")
	// 23:59:59 WIB on the end date.
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY;UNTIL=20240329T165959Z;BYDAY=MO,WE")
	assert.Contains(t, body, "ACTION:DISPLAY")
	assert.Contains(t, body, "TRIGGER:-PT15M")
}

func TestExportFixedZoneFallsBackToUTC(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	def := mustDefinition(t, model.Record{ID: "a", Title: "A", Date: "2024-01-10", TimeStart: "09:00", TimeEnd: "10:00"})

	body := Export([]model.Definition{def}, ExportOptions{Location: wib})
	assert.Contains(t, body, "DTSTART:20240110T020000Z")
	assert.NotContains(t, body, "TZID=WIB")
}

func TestRRule(t *testing.T) {
	loc := time.UTC
	start := mustDefinition(t, model.Record{
		ID: "m", Title: "M", TimeStart: "10:00", TimeEnd: "11:00",
		IsRecurring: true, RecurrencePattern: model.PatternMonthly, RecurrenceStartDate: "2024-01-31",
	})
	assert.Equal(t, "FREQ=MONTHLY;BYMONTHDAY=31", RRule(start.Recurrence, loc))

	daily := mustDefinition(t, model.Record{
		ID: "d", Title: "D", TimeStart: "10:00", TimeEnd: "11:00",
		IsRecurring: true, RecurrencePattern: model.PatternDaily,
		RecurrenceStartDate: "2024-01-01", RecurrenceEndDate: "2024-01-07",
	})
	assert.Equal(t, "FREQ=DAILY;UNTIL=20240107T235959Z", RRule(daily.Recurrence, loc))
}

func TestParseCountResolvesEndDate(t *testing.T) {
	loc := jakarta(t)
	body := vcalendar(`
UID:gym
DTSTAMP:20240101T000000Z
SUMMARY:Gym
DTSTART:20240105T013000Z
DTEND:20240105T023000Z
RRULE:FREQ=DAILY;COUNT=5`)

	records, failures, err := Parse(testSource, body, loc)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "2024-01-05", r.RecurrenceStartDate)
	assert.Equal(t, "2024-01-09", r.RecurrenceEndDate)
	assert.Equal(t, "08:30", r.TimeStart)
	assert.Equal(t, "09:30", r.TimeEnd)
}

func TestParseIsolatesUnsupportedEvents(t *testing.T) {
	body := vcalendar(
		`
UID:yearly
DTSTAMP:20240101T000000Z
SUMMARY:Birthday
DTSTART:20240105T090000Z
DTEND:20240105T100000Z
RRULE:FREQ=YEARLY`,
		`
UID:biweekly
DTSTAMP:20240101T000000Z
SUMMARY:Sync
DTSTART:20240105T090000Z
DTEND:20240105T100000Z
RRULE:FREQ=WEEKLY;INTERVAL=2`,
		`
UID:exdate
DTSTAMP:20240101T000000Z
SUMMARY:Class
DTSTART:20240105T090000Z
DTEND:20240105T100000Z
RRULE:FREQ=WEEKLY
EXDATE:20240112T090000Z`,
		`
UID:bymonthday
DTSTAMP:20240101T000000Z
SUMMARY:Invoice
DTSTART:20240131T090000Z
DTEND:20240131T100000Z
RRULE:FREQ=MONTHLY;BYMONTHDAY=15`,
		`
UID:untitled
DTSTAMP:20240101T000000Z
DTSTART:20240105T090000Z
DTEND:20240105T100000Z`,
		`
UID:ok
DTSTAMP:20240101T000000Z
SUMMARY:Fine
DTSTART:20240105T090000Z
DTEND:20240105T100000Z`,
		`
UID:ok
RECURRENCE-ID:20240112T090000Z
DTSTAMP:20240101T000000Z
SUMMARY:Fine (moved)
DTSTART:20240113T090000Z
DTEND:20240113T100000Z`,
	)

	records, failures, err := Parse(testSource, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].ID)
	assert.Equal(t, "Fine", records[0].Title)

	reasons := make(map[string]error, len(failures))
	for _, f := range failures {
		reasons[f.ID] = f.Err
	}
	require.Len(t, reasons, 5)
	assert.ErrorIs(t, reasons["yearly"], ErrUnsupported)
	assert.ErrorIs(t, reasons["biweekly"], ErrUnsupported)
	assert.ErrorIs(t, reasons["exdate"], ErrUnsupported)
	assert.ErrorIs(t, reasons["bymonthday"], ErrUnsupported)
	assert.ErrorIs(t, reasons["untitled"], model.ErrData)
}

func TestParseRejectsNonCalendar(t *testing.T) {
	_, _, err := Parse(testSource, nil, time.UTC)
	assert.Error(t, err)

	_, _, err = Parse(testSource, []byte("hello\r\n"), time.UTC)
	assert.Error(t, err)
}

func TestParseAlarms(t *testing.T) {
	event := func(uid, alarm string) string {
		return `
UID:` + uid + `
DTSTAMP:20240101T000000Z
SUMMARY:Event
DTSTART:20240105T090000Z
DTEND:20240105T100000Z
BEGIN:VALARM
ACTION:DISPLAY
` + alarm + `
END:VALARM`
	}
	body := vcalendar(
		event("hour", "TRIGGER:-PT1H"),
		event("day", "TRIGGER:-P1D"),
		event("end", "TRIGGER;RELATED=END:-PT5M"),
		event("after", "TRIGGER:PT5M"),
		event("zero", "TRIGGER:PT0S"),
	)

	records, failures, err := Parse(testSource, body, time.UTC)
	require.NoError(t, err)
	require.Empty(t, failures)

	got := make(map[string]model.Record, len(records))
	for _, r := range records {
		got[r.ID] = r
	}
	assert.True(t, got["hour"].ReminderEnabled)
	assert.Equal(t, 60, got["hour"].ReminderMinutesBefore)
	assert.Equal(t, 1440, got["day"].ReminderMinutesBefore)
	assert.False(t, got["end"].ReminderEnabled)
	assert.False(t, got["after"].ReminderEnabled)
	assert.False(t, got["zero"].ReminderEnabled)
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"-PT15M", -15 * time.Minute},
		{"PT0S", 0},
		{"+PT5M", 5 * time.Minute},
		{"-P1DT2H", -26 * time.Hour},
		{"P1W", 7 * 24 * time.Hour},
		{"-pt1h30m", -90 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"15M", "P5H", "PT5X", "PTM", "PT5"} {
		_, err := parseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL(testSource.URL))
	assert.Equal(t, "/srv/cal.ics", redactURL("/srv/cal.ics"))
	assert.Equal(t, "", redactURL(""))
}
