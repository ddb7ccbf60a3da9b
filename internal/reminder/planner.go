// Package reminder turns schedule definitions into reminder fire times and
// keeps the live set of armed reminder timers.
package reminder

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"schedcal/internal/calendar"
	"schedcal/internal/model"
	"schedcal/internal/recurrence"
)

const (
	// DefaultHorizonMonths bounds open-ended recurring schedules when the
	// caller passes no horizon.
	DefaultHorizonMonths = 3

	// MaxHorizon caps every planning call, whatever horizon was requested.
	MaxHorizon = 366 * 24 * time.Hour
)

var ErrPlanning = errors.New("reminder: planning failed")

// PlanningError wraps the reason a single definition could not be planned.
type PlanningError struct {
	ID  string
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("reminder: plan %s: %v", e.ID, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

func (e *PlanningError) Is(target error) bool { return target == ErrPlanning }

// Key identifies one reminder: the origin schedule and the occurrence day.
func Key(scheduleID string, date calendar.Date) string {
	return scheduleID + ":" + date.String()
}

// DedupeTag is handed to the notification sink so a delivery layer can drop
// repeated alerts for the same occurrence.
func DedupeTag(key string) string {
	return "schedule-reminder-" + key
}

// FireTime is one planned reminder.
type FireTime struct {
	Key            string
	ScheduleID     string
	OccurrenceDate calendar.Date
	OccursAt       time.Time
	FireAt         time.Time
	MinutesBefore  int
	Occurrence     model.Occurrence
}

// Planner computes reminder fire times. The zero value plans in time.Local
// with the default three month horizon.
type Planner struct {
	Location *time.Location
	Expander *recurrence.Expander

	// HorizonMonths replaces DefaultHorizonMonths when positive.
	HorizonMonths int
}

// NewPlanner returns a Planner whose expander shares loc.
func NewPlanner(loc *time.Location) *Planner {
	return &Planner{Location: loc, Expander: recurrence.New(loc)}
}

func (p *Planner) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p *Planner) expander() *recurrence.Expander {
	if p != nil && p.Expander != nil {
		return p.Expander
	}
	return recurrence.New(p.location())
}

// Horizon resolves the last instant planning may reach for def. An explicit
// horizonEnd wins; otherwise a bounded recurrence plans up to its end date and
// an open-ended one up to HorizonMonths past now. Every result is clipped to
// now+MaxHorizon.
func (p *Planner) Horizon(def model.Definition, now, horizonEnd time.Time) time.Time {
	loc := p.location()
	end := horizonEnd
	if end.IsZero() {
		if rec := def.Recurrence; rec != nil && rec.End != nil {
			end = rec.End.EndOfDay(loc)
		} else {
			months := DefaultHorizonMonths
			if p != nil && p.HorizonMonths > 0 {
				months = p.HorizonMonths
			}
			end = now.In(loc).AddDate(0, months, 0)
		}
	}
	if limit := now.Add(MaxHorizon); end.After(limit) {
		end = limit
	}
	return end
}

// PlanFireTimes returns the reminders def needs after now, earliest first.
// Fire times at or before now are never returned. A definition without a
// reminder yields nothing and no error.
func (p *Planner) PlanFireTimes(def model.Definition, now, horizonEnd time.Time) ([]FireTime, error) {
	if def.Reminder == nil {
		return nil, nil
	}
	if def.Reminder.MinutesBefore < 0 {
		return nil, &PlanningError{ID: def.ID, Err: &model.DataError{
			ID: def.ID, Field: "reminderMinutesBefore", Reason: "must not be negative",
		}}
	}

	loc := p.location()
	var occurrences []model.Occurrence
	if def.IsRecurring() {
		if def.Recurrence.Start.IsZero() {
			return nil, &PlanningError{ID: def.ID, Err: &model.DataError{
				ID: def.ID, Field: "recurrenceStartDate", Reason: "is required for recurring schedules",
			}}
		}
		end := p.Horizon(def, now, horizonEnd)
		if end.Before(now) {
			return nil, nil
		}
		res := p.expander().Expand([]model.Definition{def}, now, end)
		occurrences = res.Occurrences
	} else {
		if def.Date.IsZero() {
			return nil, &PlanningError{ID: def.ID, Err: &model.DataError{
				ID: def.ID, Field: "date", Reason: "is required",
			}}
		}
		occurrences = []model.Occurrence{model.NewOccurrence(def, def.Date)}
	}

	offset := time.Duration(def.Reminder.MinutesBefore) * time.Minute
	out := make([]FireTime, 0, len(occurrences))
	for _, occ := range occurrences {
		occursAt := occ.StartAt(loc)
		fireAt := occursAt.Add(-offset)
		if !fireAt.After(now) {
			continue
		}
		out = append(out, FireTime{
			Key:            Key(def.ID, occ.Date),
			ScheduleID:     def.ID,
			OccurrenceDate: occ.Date,
			OccursAt:       occursAt,
			FireAt:         fireAt,
			MinutesBefore:  def.Reminder.MinutesBefore,
			Occurrence:     occ,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

// PlanRecord converts r before planning it. Conversion errors come back as
// a *PlanningError wrapping the model error.
func (p *Planner) PlanRecord(r model.Record, now, horizonEnd time.Time) ([]FireTime, error) {
	def, err := r.Definition()
	if err != nil {
		return nil, &PlanningError{ID: r.ID, Err: err}
	}
	return p.PlanFireTimes(def, now, horizonEnd)
}
