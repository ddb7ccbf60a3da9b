// Package refresh keeps armed reminders in step with the schedule store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
	"schedcal/internal/reminder"
)

// Source is where definitions are re-read from on every tick.
type Source interface {
	Reload() error
	List() ([]model.Record, error)
}

// Scheduler is the part of *reminder.Scheduler the refresher drives.
type Scheduler interface {
	ScheduleRecords(records []model.Record) reminder.BatchResult
	Cancel(scheduleID string) int
	CancelAll() int
}

type Options struct {
	// Spec is a standard 5-field cron expression.
	Spec      string
	Location  *time.Location
	Source    Source
	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Logger    appLog.Logger

	// Import, when set, runs before every reload. Its error is logged and
	// the reload still happens.
	Import func(ctx context.Context) error
	// OnSync runs after every successful sync.
	OnSync func(reminder.BatchResult)
}

// Refresher re-arms reminders on a cron schedule. Each sync rolls the
// planning horizon forward and cancels reminders of definitions that have
// disappeared from the source.
type Refresher struct {
	opts   Options
	logger appLog.Logger
	cron   *cron.Cron

	syncMu sync.Mutex
	known  map[string]struct{}

	stopOnce sync.Once
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(opts Options) (*Refresher, error) {
	if opts.Source == nil || opts.Scheduler == nil {
		return nil, errors.New("refresh: source and scheduler are required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	r := &Refresher{
		opts:   opts,
		logger: appLog.OrNop(opts.Logger),
		known:  make(map[string]struct{}),
	}
	clog := cronLogger{r.logger}
	r.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithParser(parser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := r.cron.AddFunc(opts.Spec, func() {
		if _, err := r.Sync(context.Background()); err != nil {
			r.logger.Error("refresh: sync failed", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("refresh: schedule %q: %w", opts.Spec, err)
	}
	return r, nil
}

// Sync reloads the source once and re-arms everything it holds.
func (r *Refresher) Sync(ctx context.Context) (reminder.BatchResult, error) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	started := time.Now()
	if r.opts.Import != nil {
		if err := r.opts.Import(ctx); err != nil {
			r.logger.Error("refresh: import failed", err)
		}
	}

	if err := r.opts.Source.Reload(); err != nil {
		r.opts.Metrics.ObserveRefresh(time.Since(started), err)
		return reminder.BatchResult{}, fmt.Errorf("refresh: reload: %w", err)
	}
	records, err := r.opts.Source.List()
	if err != nil {
		r.opts.Metrics.ObserveRefresh(time.Since(started), err)
		return reminder.BatchResult{}, fmt.Errorf("refresh: list: %w", err)
	}

	current := make(map[string]struct{}, len(records))
	for _, rec := range records {
		current[rec.ID] = struct{}{}
	}
	removed := 0
	for id := range r.known {
		if _, ok := current[id]; !ok {
			removed += r.opts.Scheduler.Cancel(id)
		}
	}
	r.known = current

	res := r.opts.Scheduler.ScheduleRecords(records)
	r.opts.Metrics.ObserveRefresh(time.Since(started), nil)
	r.logger.Info("refresh: synced", "definitions", len(records), "armed", res.Armed,
		"failures", len(res.Failures), "cancelled_removed", removed)
	if r.opts.OnSync != nil {
		r.opts.OnSync(res)
	}
	return res, nil
}

// Start runs one sync immediately and then follows the cron schedule until
// ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	if _, err := r.Sync(ctx); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("refresh: started", "spec", r.opts.Spec, "timezone", r.opts.Location.String())

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Run is Start followed by waiting for ctx, for use under an errgroup.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

// Stop halts the cron loop, waits for a running sync and disarms every
// reminder. Safe to call multiple times.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		<-r.cron.Stop().Done()
		n := r.opts.Scheduler.CancelAll()
		r.logger.Info("refresh: stopped", "cancelled", n)
	})
}

// Next returns the next scheduled sync, or the zero time before Start.
func (r *Refresher) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes robfig/cron's logging into the application logger.
type cronLogger struct{ l appLog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, err, kv...)
}
