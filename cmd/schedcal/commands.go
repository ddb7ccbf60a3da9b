package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"schedcal/internal/calendar"
	"schedcal/internal/fileutil"
	"schedcal/internal/ics"
	"schedcal/internal/model"
	"schedcal/internal/recurrence"
	"schedcal/internal/reminder"
	"schedcal/internal/stats"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExpandCmd(root *rootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "List occurrences of every stored schedule in a day window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			loc := cfg.Location()
			win, err := parseWindow(from, to, time.Now().In(loc), cfg.ListingDays)
			if err != nil {
				return err
			}
			records, err := st.List()
			if err != nil {
				return err
			}
			defs, failures := model.Definitions(records)
			res := recurrence.New(loc).ExpandWindow(defs, win)

			out := cmd.OutOrStdout()
			for _, o := range res.Occurrences {
				fmt.Fprintf(out, "%s %s-%s  %-30s %s\n", o.Date, o.TimeStart, o.TimeEnd, o.Title, o.ID)
			}
			for _, f := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", f.ID, f.Err)
			}
			if res.Truncated {
				fmt.Fprintln(cmd.ErrOrStderr(), "window was clipped")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD), default from + listing_days")
	return cmd
}

// parseWindow resolves --from/--to against today.
func parseWindow(from, to string, now time.Time, defaultDays int) (calendar.Window, error) {
	start := calendar.DateOf(now)
	if from != "" {
		d, err := calendar.ParseDate(from)
		if err != nil {
			return calendar.Window{}, err
		}
		start = d
	}
	end := start.AddDays(defaultDays)
	if to != "" {
		d, err := calendar.ParseDate(to)
		if err != nil {
			return calendar.Window{}, err
		}
		end = d
	}
	if end.Before(start) {
		return calendar.Window{}, errors.New("--to is before --from")
	}
	return calendar.Window{Start: start, End: end}, nil
}

type plannedFire struct {
	Key           string    `json:"key"`
	FireAt        time.Time `json:"fireAt"`
	OccursAt      time.Time `json:"occursAt"`
	MinutesBefore int       `json:"minutesBefore"`
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	var (
		id          string
		horizonDays int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the reminder fire times of one schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			rec, err := st.Get(id)
			if err != nil {
				return err
			}
			planner := reminder.NewPlanner(cfg.Location())
			planner.HorizonMonths = cfg.HorizonMonths

			now := time.Now()
			var horizon time.Time
			if horizonDays > 0 {
				horizon = now.AddDate(0, 0, horizonDays)
			}
			plan, err := planner.PlanRecord(rec, now, horizon)
			if err != nil {
				return err
			}
			out := make([]plannedFire, 0, len(plan))
			for _, ft := range plan {
				out = append(out, plannedFire{Key: ft.Key, FireAt: ft.FireAt, OccursAt: ft.OccursAt, MinutesBefore: ft.MinutesBefore})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Schedule id")
	cmd.Flags().IntVar(&horizonDays, "horizon-days", 0, "Plan only this many days ahead")
	return cmd
}

type addFlags struct {
	title, location, notes, category string
	date, start, end                 string
	repeat, days, from, until        string
	remind                           int
}

func newAddCmd(root *rootOptions) *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("remind") {
				f.remind = cfg.Reminder.DefaultMinutesBefore
			}
			rec, err := f.record()
			if err != nil {
				return err
			}
			created, err := st.Create(rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "Title")
	fl.StringVar(&f.location, "location", "", "Location")
	fl.StringVar(&f.notes, "notes", "", "Notes")
	fl.StringVar(&f.category, "category", "", "Category (academic, event, personal, work, other)")
	fl.StringVar(&f.date, "date", "", "Date (YYYY-MM-DD)")
	fl.StringVar(&f.start, "start", "", "Start time (HH:MM)")
	fl.StringVar(&f.end, "end", "", "End time (HH:MM), default start")
	fl.StringVar(&f.repeat, "repeat", "", "daily, weekly or monthly")
	fl.StringVar(&f.days, "days", "", "Weekdays for weekly repeats, 0=Sunday, e.g. 1,3")
	fl.StringVar(&f.from, "from", "", "First day of the repeat, default --date")
	fl.StringVar(&f.until, "until", "", "Last day of the repeat (inclusive)")
	fl.IntVar(&f.remind, "remind", 0, "Minutes before start to remind, 0 disables")
	return cmd
}

func (f addFlags) record() (model.Record, error) {
	r := model.Record{
		Title:     f.title,
		Location:  f.location,
		Notes:     f.notes,
		Category:  model.Category(strings.ToLower(f.category)),
		Date:      f.date,
		TimeStart: f.start,
		TimeEnd:   f.end,
	}
	if r.TimeEnd == "" {
		r.TimeEnd = r.TimeStart
	}
	if f.repeat != "" {
		r.IsRecurring = true
		r.RecurrencePattern = model.Pattern(strings.ToLower(f.repeat))
		r.RecurrenceStartDate = f.from
		r.RecurrenceEndDate = f.until
		for _, part := range strings.Split(f.days, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			d, err := strconv.Atoi(part)
			if err != nil {
				return model.Record{}, fmt.Errorf("--days: %q is not a weekday number", part)
			}
			r.RecurrenceDaysOfWeek = append(r.RecurrenceDaysOfWeek, d)
		}
	}
	if f.remind > 0 {
		r.ReminderEnabled = true
		r.ReminderMinutesBefore = f.remind
	}
	return r, nil
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every schedule as an iCalendar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			records, err := st.List()
			if err != nil {
				return err
			}
			defs, failures := model.Definitions(records)
			for _, fl := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", fl.ID, fl.Err)
			}
			body := ics.Export(defs, ics.ExportOptions{Location: cfg.Location(), Name: "schedcal"})
			if out == "" || out == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			return fileutil.WriteAtomic(out, []byte(body), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, default stdout")
	return cmd
}

func newImportCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [path|url]...",
		Short: "Import VEVENTs from ICS files or feeds into the store",
		Long:  "Without arguments the sources listed in the config file are imported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			sources := icsSources(cfg)
			if len(args) > 0 {
				sources = sources[:0]
				for _, a := range args {
					sources = append(sources, ics.Source{ID: a, URL: a})
				}
			}
			if len(sources) == 0 {
				return errors.New("nothing to import: pass a path or configure sources")
			}
			im := &ics.Importer{Store: st, Location: cfg.Location()}
			res, err := im.Import(cmd.Context(), sources)
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", f.ID, f.Err)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d schedules\n", res.Imported)
			if res.Imported == 0 && len(res.Errors) > 0 {
				return errors.Join(res.Errors...)
			}
			return nil
		},
	}
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print schedule counts and the productivity trend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, err := root.loadWithStore()
			if err != nil {
				return err
			}
			loc := cfg.Location()
			records, err := st.List()
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			defs, _ := model.Definitions(records)
			occ := recurrence.New(loc).ExpandWindow(defs, stats.TrendWindow(now, days)).Occurrences
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"counts": stats.Summary(records, now, loc),
				"trend":  stats.ProductivityTrend(occ, now, days, nil),
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Trend length in days")
	return cmd
}
