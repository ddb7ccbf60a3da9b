package model

import (
	"sort"
	"strings"
	"time"

	"schedcal/internal/calendar"
)

// Record is the flat shape schedules are stored and exchanged in. Every
// recurrence and reminder field is optional here; Definition() is where the
// combinations are checked.
type Record struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Location string   `json:"location,omitempty" yaml:"location,omitempty"`
	Notes    string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Category Category `json:"category,omitempty" yaml:"category,omitempty"`

	Date      string `json:"date" yaml:"date"`
	TimeStart string `json:"timeStart" yaml:"timeStart"`
	TimeEnd   string `json:"timeEnd" yaml:"timeEnd"`

	IsRecurring          bool    `json:"isRecurring" yaml:"isRecurring"`
	RecurrencePattern    Pattern `json:"recurrencePattern,omitempty" yaml:"recurrencePattern,omitempty"`
	RecurrenceStartDate  string  `json:"recurrenceStartDate,omitempty" yaml:"recurrenceStartDate,omitempty"`
	RecurrenceEndDate    string  `json:"recurrenceEndDate,omitempty" yaml:"recurrenceEndDate,omitempty"`
	RecurrenceDaysOfWeek []int   `json:"recurrenceDaysOfWeek,omitempty" yaml:"recurrenceDaysOfWeek,omitempty"`

	ReminderEnabled       bool `json:"reminderEnabled" yaml:"reminderEnabled"`
	ReminderMinutesBefore int  `json:"reminderMinutesBefore,omitempty" yaml:"reminderMinutesBefore,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Definition validates r and converts it into its typed form.
//
// Malformed date or time strings surface as *FieldError wrapping a
// *calendar.ParseError; logically inconsistent records as *DataError.
func (r Record) Definition() (Definition, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return Definition{}, &DataError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(r.Title) == "" {
		return Definition{}, &DataError{ID: id, Field: "title", Reason: "is required"}
	}

	def := Definition{
		ID:        id,
		Title:     r.Title,
		Location:  strings.TrimSpace(r.Location),
		Notes:     r.Notes,
		Category:  r.Category,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	var err error
	if def.TimeStart, err = calendar.ParseTimeOfDay(r.TimeStart); err != nil {
		return Definition{}, &FieldError{ID: id, Field: "timeStart", Err: err}
	}
	if def.TimeEnd, err = calendar.ParseTimeOfDay(r.TimeEnd); err != nil {
		return Definition{}, &FieldError{ID: id, Field: "timeEnd", Err: err}
	}

	// isRecurring with no pattern expands weekly; pattern "none" switches
	// recurrence off entirely.
	pattern := r.RecurrencePattern
	if r.IsRecurring && pattern == "" {
		pattern = PatternWeekly
	}
	recurring := r.IsRecurring && pattern != PatternNone
	if strings.TrimSpace(r.Date) != "" || !recurring {
		if def.Date, err = calendar.ParseDate(r.Date); err != nil {
			return Definition{}, &FieldError{ID: id, Field: "date", Err: err}
		}
	}

	if recurring {
		rec, err := r.recurrence(id, pattern)
		if err != nil {
			return Definition{}, err
		}
		def.Recurrence = rec
		if def.Date.IsZero() {
			def.Date = rec.Start
		}
	}

	if r.ReminderEnabled {
		if r.ReminderMinutesBefore < 0 {
			return Definition{}, &DataError{ID: id, Field: "reminderMinutesBefore", Reason: "must not be negative"}
		}
		// A missing offset disables the reminder rather than failing.
		if r.ReminderMinutesBefore > 0 {
			def.Reminder = &Reminder{MinutesBefore: r.ReminderMinutesBefore}
		}
	}

	return def, nil
}

func (r Record) recurrence(id string, pattern Pattern) (*Recurrence, error) {
	if !pattern.IsValid() {
		return nil, &DataError{ID: id, Field: "recurrencePattern", Reason: "unknown pattern " + string(pattern)}
	}

	startRaw := r.RecurrenceStartDate
	if strings.TrimSpace(startRaw) == "" {
		startRaw = r.Date
	}
	if strings.TrimSpace(startRaw) == "" {
		return nil, &DataError{ID: id, Field: "recurrenceStartDate", Reason: "is required for recurring schedules"}
	}
	start, err := calendar.ParseDate(startRaw)
	if err != nil {
		return nil, &FieldError{ID: id, Field: "recurrenceStartDate", Err: err}
	}

	rec := &Recurrence{Pattern: pattern, Start: start}

	if strings.TrimSpace(r.RecurrenceEndDate) != "" {
		end, err := calendar.ParseDate(r.RecurrenceEndDate)
		if err != nil {
			return nil, &FieldError{ID: id, Field: "recurrenceEndDate", Err: err}
		}
		if end.Before(start) {
			return nil, &DataError{ID: id, Field: "recurrenceEndDate", Reason: "is before recurrenceStartDate"}
		}
		rec.End = &end
	}

	if rec.Pattern == PatternWeekly && len(r.RecurrenceDaysOfWeek) > 0 {
		seen := make(map[int]bool, len(r.RecurrenceDaysOfWeek))
		days := make([]int, 0, len(r.RecurrenceDaysOfWeek))
		for _, d := range r.RecurrenceDaysOfWeek {
			if d < 0 || d > 6 {
				return nil, &DataError{ID: id, Field: "recurrenceDaysOfWeek", Reason: "day must be within 0..6"}
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			days = append(days, d)
		}
		sort.Ints(days)
		for _, d := range days {
			rec.DaysOfWeek = append(rec.DaysOfWeek, time.Weekday(d))
		}
	}

	return rec, nil
}

// Record converts d back to its flat form.
func (d Definition) Record() Record {
	r := Record{
		ID:        d.ID,
		Title:     d.Title,
		Location:  d.Location,
		Notes:     d.Notes,
		Category:  d.Category,
		Date:      d.Date.String(),
		TimeStart: d.TimeStart.String(),
		TimeEnd:   d.TimeEnd.String(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if rec := d.Recurrence; rec != nil {
		r.IsRecurring = true
		r.RecurrencePattern = rec.Pattern
		r.RecurrenceStartDate = rec.Start.String()
		if rec.End != nil {
			r.RecurrenceEndDate = rec.End.String()
		}
		for _, wd := range rec.DaysOfWeek {
			r.RecurrenceDaysOfWeek = append(r.RecurrenceDaysOfWeek, int(wd))
		}
	}
	if d.Reminder != nil {
		r.ReminderEnabled = true
		r.ReminderMinutesBefore = d.Reminder.MinutesBefore
	}
	return r
}

// Definitions converts a batch, collecting one Failure per bad record.
func Definitions(records []Record) ([]Definition, []Failure) {
	defs := make([]Definition, 0, len(records))
	var failures []Failure
	for _, r := range records {
		def, err := r.Definition()
		if err != nil {
			failures = append(failures, Failure{ID: r.ID, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	return defs, failures
}
