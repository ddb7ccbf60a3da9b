package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"schedcal/internal/clock"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
)

// Options configures a Scheduler. Only Sink is required.
type Options struct {
	Clock    clock.Clock
	Sink     Sink
	Planner  *Planner
	Renderer Renderer
	Logger   appLog.Logger
	Metrics  *metrics.Metrics

	// Horizon, when positive, limits every definition to fire times within
	// Horizon of now. Zero leaves the planner's own horizon rules in charge.
	Horizon time.Duration
	// SinkTimeout replaces the package SinkTimeout when positive.
	SinkTimeout time.Duration
}

// Handle describes one armed reminder.
type Handle struct {
	Key            string    `json:"key"`
	ScheduleID     string    `json:"scheduleId"`
	OccurrenceDate string    `json:"occurrenceDate"`
	OccursAt       time.Time `json:"occursAt"`
	FireAt         time.Time `json:"fireAt"`
}

// BatchResult reports a multi-definition scheduling call.
type BatchResult struct {
	Armed    int             `json:"armed"`
	Failures []model.Failure `json:"failures,omitempty"`
}

type entry struct {
	fire  FireTime
	timer clock.Timer
}

// Scheduler owns the live set of armed reminder timers.
//
// A key moves from armed to either fired or cancelled, never both. Arming,
// cancelling and firing all take mu; a timer callback acts only if its own
// entry is still registered, so a cancel that wins the race suppresses the
// notification entirely.
type Scheduler struct {
	clock       clock.Clock
	sink        Sink
	planner     *Planner
	renderer    Renderer
	logger      appLog.Logger
	metrics     *metrics.Metrics
	horizon     time.Duration
	sinkTimeout time.Duration

	mu       sync.Mutex
	entries  map[string]*entry
	byOrigin map[string]map[string]struct{}
}

func NewScheduler(opts Options) *Scheduler {
	s := &Scheduler{
		clock:       opts.Clock,
		sink:        opts.Sink,
		planner:     opts.Planner,
		renderer:    opts.Renderer,
		logger:      appLog.OrNop(opts.Logger),
		metrics:     opts.Metrics,
		horizon:     opts.Horizon,
		sinkTimeout: opts.SinkTimeout,
		entries:     make(map[string]*entry),
		byOrigin:    make(map[string]map[string]struct{}),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.planner == nil {
		s.planner = &Planner{}
	}
	if s.renderer == nil {
		s.renderer = TextRenderer{}
	}
	if s.sinkTimeout <= 0 {
		s.sinkTimeout = SinkTimeout
	}
	return s
}

// ScheduleForDefinition replaces every armed reminder of def.ID with a fresh
// plan and returns how many timers were armed. Prior timers are cancelled
// even when planning then fails.
func (s *Scheduler) ScheduleForDefinition(def model.Definition) (int, error) {
	now := s.clock.Now()
	var horizonEnd time.Time
	if s.horizon > 0 {
		horizonEnd = now.Add(s.horizon)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(def.ID)

	plan, err := s.planner.PlanFireTimes(def, now, horizonEnd)
	if err != nil {
		s.metrics.PlanningFailed(1)
		return 0, err
	}

	// plan is ascending by FireAt, so timers are armed in fire order.
	for _, ft := range plan {
		e := &entry{fire: ft}
		e.timer = s.clock.AfterFunc(ft.FireAt.Sub(now), func() { s.fire(e) })
		s.entries[ft.Key] = e
		keys := s.byOrigin[ft.ScheduleID]
		if keys == nil {
			keys = make(map[string]struct{})
			s.byOrigin[ft.ScheduleID] = keys
		}
		keys[ft.Key] = struct{}{}
	}
	s.metrics.Armed(len(plan))

	if len(plan) > 0 {
		s.logger.Debug("reminders armed", "id", def.ID, "count", len(plan), "next", plan[0].FireAt)
	}
	return len(plan), nil
}

// ScheduleForAll re-arms every definition. A definition that fails to plan
// is reported and skipped; the others are still armed. Callers invoke this
// again whenever the schedule set changes.
func (s *Scheduler) ScheduleForAll(defs []model.Definition) BatchResult {
	var res BatchResult
	for _, def := range defs {
		n, err := s.ScheduleForDefinition(def)
		if err != nil {
			s.logger.Error("reminder planning failed", err, "id", def.ID)
			res.Failures = append(res.Failures, model.Failure{ID: def.ID, Err: err})
			continue
		}
		res.Armed += n
	}
	return res
}

// ScheduleRecords converts records and schedules the valid ones. Records
// that fail conversion have their previously armed reminders cancelled so
// stale text never fires.
func (s *Scheduler) ScheduleRecords(records []model.Record) BatchResult {
	defs, failures := model.Definitions(records)
	for i, f := range failures {
		s.Cancel(f.ID)
		failures[i].Err = &PlanningError{ID: f.ID, Err: f.Err}
		s.logger.Error("schedule skipped", f.Err, "id", f.ID)
	}
	s.metrics.PlanningFailed(len(failures))

	res := s.ScheduleForAll(defs)
	res.Failures = append(failures, res.Failures...)
	return res
}

// Cancel clears every armed reminder of scheduleID. It is a no-op when none
// are armed. After it returns no new notification starts for those keys.
func (s *Scheduler) Cancel(scheduleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(scheduleID)
}

func (s *Scheduler) cancelLocked(scheduleID string) int {
	keys := s.byOrigin[scheduleID]
	if len(keys) == 0 {
		return 0
	}
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			e.timer.Stop()
			delete(s.entries, key)
		}
	}
	delete(s.byOrigin, scheduleID)
	s.metrics.Cancelled(len(keys))
	s.logger.Debug("reminders cancelled", "id", scheduleID, "count", len(keys))
	return len(keys)
}

// CancelAll clears every armed reminder, e.g. on shutdown.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
	s.byOrigin = make(map[string]map[string]struct{})
	s.metrics.Cancelled(n)
	if n > 0 {
		s.logger.Info("all reminders cancelled", "count", n)
	}
	return n
}

func (s *Scheduler) fire(e *entry) {
	key := e.fire.Key

	s.mu.Lock()
	if current, ok := s.entries[key]; !ok || current != e {
		// Cancelled or replaced after the timer was already running.
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	if keys := s.byOrigin[e.fire.ScheduleID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.byOrigin, e.fire.ScheduleID)
		}
	}
	s.mu.Unlock()

	n := s.renderer.Render(e.fire)
	err := s.deliver(n)
	s.metrics.Fired(err)
	if err != nil {
		s.logger.Error("reminder delivery failed", err, "key", key, "tag", n.Tag)
		return
	}
	s.logger.Info("reminder fired", "key", key, "occurs_at", e.fire.OccursAt)
}

// deliver hands n to the sink. A panicking sink is reported as a delivery
// error so the timer goroutine survives.
func (s *Scheduler) deliver(n Notification) (err error) {
	if s.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reminder: sink panic: %v", r)
		}
	}()
	return s.sink.Show(ctx, n)
}

// Pending returns a snapshot of armed reminders, earliest first.
func (s *Scheduler) Pending() []Handle {
	s.mu.Lock()
	out := make([]Handle, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, handleOf(e.fire))
	}
	s.mu.Unlock()
	sortHandles(out)
	return out
}

// PendingFor is Pending restricted to one schedule.
func (s *Scheduler) PendingFor(scheduleID string) []Handle {
	s.mu.Lock()
	keys := s.byOrigin[scheduleID]
	out := make([]Handle, 0, len(keys))
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			out = append(out, handleOf(e.fire))
		}
	}
	s.mu.Unlock()
	sortHandles(out)
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func handleOf(ft FireTime) Handle {
	return Handle{
		Key:            ft.Key,
		ScheduleID:     ft.ScheduleID,
		OccurrenceDate: ft.OccurrenceDate.String(),
		OccursAt:       ft.OccursAt,
		FireAt:         ft.FireAt,
	}
}

func sortHandles(hs []Handle) {
	sort.Slice(hs, func(i, j int) bool {
		if !hs[i].FireAt.Equal(hs[j].FireAt) {
			return hs[i].FireAt.Before(hs[j].FireAt)
		}
		return hs[i].Key < hs[j].Key
	})
}
