package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schedcal/internal/config"
	"schedcal/internal/ics"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/notify"
	"schedcal/internal/refresh"
	"schedcal/internal/reminder"
	"schedcal/internal/store"
	"schedcal/internal/web"
)

const memoryDedupeSize = 4096

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and fire reminders until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	loc := cfg.Location()

	appLog.Info("schedcal starting",
		"version", version,
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"refresh", cfg.RefreshCron,
		"horizon_months", cfg.HorizonMonths,
		"store", st.Path(),
		"source_count", len(cfg.Sources),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNew(reg)

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	planner := reminder.NewPlanner(loc)
	planner.HorizonMonths = cfg.HorizonMonths
	sched := reminder.NewScheduler(reminder.Options{
		Sink:     sink,
		Planner:  planner,
		Renderer: reminder.TextRenderer{Title: cfg.Reminder.Title},
		Logger:   appLog.Default("reminder"),
		Metrics:  m,
	})

	srv := web.NewServer(web.Options{
		Config:    cfg,
		Store:     st,
		Reminders: sched,
		Metrics:   m,
		Gatherer:  reg,
	})

	var importFn func(context.Context) error
	if sources := icsSources(cfg); len(sources) > 0 {
		importer := &ics.Importer{
			Fetcher:  ics.NewFetcher(filepath.Join(filepath.Dir(st.Path()), "ics-cache")),
			Store:    st,
			Location: loc,
		}
		importFn = func(ctx context.Context) error {
			_, err := importer.Import(ctx, sources)
			return err
		}
	}

	refresher, err := refresh.New(refresh.Options{
		Spec:      cfg.RefreshCron,
		Location:  loc,
		Source:    st,
		Scheduler: sched,
		Metrics:   m,
		Logger:    appLog.Default("refresh"),
		Import:    importFn,
		OnSync:    func(reminder.BatchResult) { srv.Invalidate() },
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return refresher.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()
	appLog.Info("schedcal exiting")
	return err
}

// buildSink delivers to the log, deduplicated through redis when configured
// and an in-process LRU otherwise.
func buildSink(cfg *config.Config) (reminder.Sink, func(), error) {
	var (
		claimer notify.Claimer
		closeFn = func() {}
	)
	if cfg.Dedupe.RedisURL != "" {
		rc, err := notify.NewRedisClaimer(cfg.Dedupe.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		claimer = rc
		closeFn = func() { _ = rc.Close() }
	} else {
		claimer = notify.NewMemoryClaimer(memoryDedupeSize, cfg.Dedupe.TTL)
	}
	sink := &notify.Dedupe{
		Next:    notify.LogSink{Logger: appLog.Default("notify")},
		Claimer: claimer,
		TTL:     cfg.Dedupe.TTL,
		Logger:  appLog.Default("dedupe"),
	}
	return sink, closeFn, nil
}

func icsSources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		id := s.ID
		if id == "" {
			id = s.Name
		}
		if id == "" {
			id = s.URL
		}
		out = append(out, ics.Source{ID: id, URL: s.URL})
	}
	return out
}
