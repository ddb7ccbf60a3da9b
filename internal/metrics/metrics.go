// Package metrics exports reminder and expansion counters to Prometheus.
// Every method is safe on a nil *Metrics so components can take one
// optionally.
package metrics

import (
	"errors"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
)

const namespace = "schedcal"

type Metrics struct {
	armed            promclient.Gauge
	fired            promclient.Counter
	cancelled        promclient.Counter
	deliveryFailures promclient.Counter
	planningFailures promclient.Counter
	expandFailures   promclient.Counter
	refreshDuration  *promclient.HistogramVec
}

// New registers the collectors on reg, reusing collectors that are already
// registered under the same names. A nil reg means the default registerer.
func New(reg promclient.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}
	m := &Metrics{
		armed: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_armed",
			Help:      "Reminder timers currently armed.",
		}),
		fired: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminders whose timer fired.",
		}),
		cancelled: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_cancelled_total",
			Help:      "Armed reminders cancelled before firing.",
		}),
		deliveryFailures: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Fired reminders the notification sink rejected.",
		}),
		planningFailures: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_planning_failures_total",
			Help:      "Schedules skipped because their reminders could not be planned.",
		}),
		expandFailures: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "expansion_failures_total",
			Help:      "Schedules skipped during occurrence expansion.",
		}),
		refreshDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time spent reloading schedules and re-arming reminders.",
			Buckets:   promclient.DefBuckets,
		}, []string{"result"}),
	}

	var err error
	if m.armed, err = register(reg, m.armed); err != nil {
		return nil, err
	}
	if m.fired, err = register(reg, m.fired); err != nil {
		return nil, err
	}
	if m.cancelled, err = register(reg, m.cancelled); err != nil {
		return nil, err
	}
	if m.deliveryFailures, err = register(reg, m.deliveryFailures); err != nil {
		return nil, err
	}
	if m.planningFailures, err = register(reg, m.planningFailures); err != nil {
		return nil, err
	}
	if m.expandFailures, err = register(reg, m.expandFailures); err != nil {
		return nil, err
	}
	if m.refreshDuration, err = register(reg, m.refreshDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New that panics on a registration conflict.
func MustNew(reg promclient.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C promclient.Collector](reg promclient.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("metrics: register: %w", err)
	}
	return c, nil
}

func (m *Metrics) Armed(n int) {
	if m == nil {
		return
	}
	m.armed.Add(float64(n))
}

func (m *Metrics) Fired(deliveryErr error) {
	if m == nil {
		return
	}
	m.armed.Dec()
	m.fired.Inc()
	if deliveryErr != nil {
		m.deliveryFailures.Inc()
	}
}

func (m *Metrics) Cancelled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.armed.Sub(float64(n))
	m.cancelled.Add(float64(n))
}

func (m *Metrics) PlanningFailed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.planningFailures.Add(float64(n))
}

func (m *Metrics) ExpandFailed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.expandFailures.Add(float64(n))
}

func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshDuration.WithLabelValues(result).Observe(d.Seconds())
}
