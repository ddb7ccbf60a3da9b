// Package notify provides reminder.Sink implementations: a log sink, fan-out,
// and duplicate suppression keyed by the notification tag.
package notify

import (
	"context"
	"errors"

	appLog "schedcal/internal/log"
	"schedcal/internal/reminder"
)

// LogSink writes every notification to the application log. It is the
// default delivery channel of `schedcal serve`.
type LogSink struct {
	Logger appLog.Logger
}

func (s LogSink) Show(_ context.Context, n reminder.Notification) error {
	l := s.Logger
	if l == nil {
		l = appLog.Default("notify")
	}
	l.Info(n.Title, "body", n.Body, "tag", n.Tag)
	return nil
}

// Multi delivers to every sink in order. All sinks are attempted; the
// returned error joins every failure.
type Multi []reminder.Sink

func (m Multi) Show(ctx context.Context, n reminder.Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a plain function.
type Func func(ctx context.Context, n reminder.Notification) error

func (f Func) Show(ctx context.Context, n reminder.Notification) error { return f(ctx, n) }
