package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schedcal/internal/calendar"
	"schedcal/internal/config"
	"schedcal/internal/ics"
	appLog "schedcal/internal/log"
	"schedcal/internal/metrics"
	"schedcal/internal/model"
	"schedcal/internal/recurrence"
	"schedcal/internal/reminder"
	"schedcal/internal/stats"
)

const (
	defaultCacheTTL  = 30 * time.Second
	cacheSize        = 64
	defaultTrendDays = 30
	maxTrendDays     = 366
)

// Store is the read side of the schedule store.
type Store interface {
	List() ([]model.Record, error)
}

// Reminders exposes the scheduler's armed timers.
type Reminders interface {
	Pending() []reminder.Handle
}

type Options struct {
	Config    *config.Config
	Store     Store
	Reminders Reminders
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics. If nil the route is not registered.
	Gatherer prometheus.Gatherer
	// CacheTTL bounds how long an expansion response is reused. Zero means
	// defaultCacheTTL; negative disables the cache.
	CacheTTL time.Duration
	Now      func() time.Time
}

// Server provides the HTTP API over schedules, occurrences and reminders.
type Server struct {
	cfg       *config.Config
	store     Store
	reminders Reminders
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	loc       *time.Location
	expander  *recurrence.Expander
	now       func() time.Time
	mux       *http.ServeMux

	// Expanded windows keyed by "start..end". Purged on Invalidate.
	cache *expirable.LRU[string, occurrencesResponse]
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	loc := cfg.Location()
	s := &Server{
		cfg:       cfg,
		store:     opts.Store,
		reminders: opts.Reminders,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		loc:       loc,
		expander:  &recurrence.Expander{Location: loc, Logger: appLog.Default("expand")},
		now:       opts.Now,
		mux:       http.NewServeMux(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	if ttl > 0 {
		s.cache = expirable.NewLRU[string, occurrencesResponse](cacheSize, nil, ttl)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Invalidate drops cached expansions; call it after the store changes.
func (s *Server) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// Run serves on cfg.Listen until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/today", s.handleToday)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/reminders", s.handleReminders)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// occurrenceDTO is the JSON view of one occurrence.
type occurrenceDTO struct {
	ID                    string         `json:"id"`
	OriginID              string         `json:"originId"`
	Title                 string         `json:"title"`
	Location              string         `json:"location,omitempty"`
	Notes                 string         `json:"notes,omitempty"`
	Category              model.Category `json:"category,omitempty"`
	Date                  string         `json:"date"`
	TimeStart             string         `json:"timeStart"`
	TimeEnd               string         `json:"timeEnd"`
	Start                 time.Time      `json:"start"`
	End                   time.Time      `json:"end"`
	IsRecurring           bool           `json:"isRecurring"`
	ReminderMinutesBefore int            `json:"reminderMinutesBefore,omitempty"`
}

type rangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// occurrencesResponse is the JSON shape of every occurrence listing.
type occurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
	Failures    []model.Failure `json:"failures,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
	Range       rangeDTO        `json:"range"`
	Timezone    string          `json:"timezone"`
}

func (s *Server) toDTO(o model.Occurrence) occurrenceDTO {
	d := occurrenceDTO{
		ID:          o.ID,
		OriginID:    o.OriginID,
		Title:       o.Title,
		Location:    o.Location,
		Notes:       o.Notes,
		Category:    o.Category,
		Date:        o.Date.String(),
		TimeStart:   o.TimeStart.String(),
		TimeEnd:     o.TimeEnd.String(),
		Start:       o.StartAt(s.loc),
		End:         o.EndAt(s.loc),
		IsRecurring: o.IsRecurring(),
	}
	if o.Reminder != nil {
		d.ReminderMinutesBefore = o.Reminder.MinutesBefore
	}
	return d
}

func (s *Server) handleSchedules(w http.ResponseWriter, _ *http.Request) {
	records, err := s.store.List()
	if err != nil {
		appLog.Error("api schedules: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleOccurrences expands stored schedules over a day window.
//
// GET /api/occurrences?from=2024-01-01&to=2024-01-31
//   - from: first day, default today
//   - to:   last day, default from + listing_days
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := calendar.DateOf(s.now().In(s.loc))

	from := today
	if v := q.Get("from"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = d
	}
	to := from.AddDays(s.cfg.ListingDays)
	if v := q.Get("to"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = d
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}
	s.serveWindow(w, calendar.Window{Start: from, End: to})
}

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request) {
	s.serveWindow(w, calendar.TodayWindow(s.now().In(s.loc)))
}

func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	s.serveWindow(w, calendar.WeekWindow(s.now().In(s.loc)))
}

func (s *Server) serveWindow(w http.ResponseWriter, win calendar.Window) {
	resp, err := s.expand(win)
	if err != nil {
		appLog.Error("api occurrences: expand failed", err, "start", win.Start, "end", win.End)
		writeError(w, http.StatusInternalServerError, "failed to load schedules")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) expand(win calendar.Window) (occurrencesResponse, error) {
	key := win.Start.String() + ".." + win.End.String()
	if s.cache != nil {
		if resp, ok := s.cache.Get(key); ok {
			return resp, nil
		}
	}

	records, err := s.store.List()
	if err != nil {
		return occurrencesResponse{}, err
	}
	defs, failures := model.Definitions(records)
	res := s.expander.ExpandWindow(defs, win)
	s.metrics.ExpandFailed(len(failures))

	resp := occurrencesResponse{
		Occurrences: make([]occurrenceDTO, 0, len(res.Occurrences)),
		Failures:    failures,
		Truncated:   res.Truncated,
		Range:       rangeDTO{Start: win.Start.String(), End: win.End.String()},
		Timezone:    s.loc.String(),
	}
	for _, o := range res.Occurrences {
		resp.Occurrences = append(resp.Occurrences, s.toDTO(o))
	}

	if s.cache != nil {
		s.cache.Add(key, resp)
	}
	return resp, nil
}

func (s *Server) handleReminders(w http.ResponseWriter, _ *http.Request) {
	pending := []reminder.Handle{}
	if s.reminders != nil {
		pending = append(pending, s.reminders.Pending()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": pending})
}

type statsResponse struct {
	Counts stats.Counts `json:"counts"`
	Trend  stats.Trend  `json:"trend"`
}

// handleStats returns dashboard counts and the productivity trend.
//
// GET /api/stats?days=30
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), defaultTrendDays)
	if days <= 0 {
		days = defaultTrendDays
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}

	records, err := s.store.List()
	if err != nil {
		appLog.Error("api stats: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	now := s.now().In(s.loc)
	defs, failures := model.Definitions(records)
	s.metrics.ExpandFailed(len(failures))
	occ := s.expander.ExpandWindow(defs, stats.TrendWindow(now, days)).Occurrences

	writeJSON(w, http.StatusOK, statsResponse{
		Counts: stats.Summary(records, now, s.loc),
		Trend:  stats.ProductivityTrend(occ, now, days, nil),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	records, err := s.store.List()
	if err != nil {
		appLog.Error("api export: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	defs, failures := model.Definitions(records)
	for _, f := range failures {
		appLog.Warn("api export: schedule skipped", "id", f.ID, "err", f.Err)
	}

	body := ics.Export(defs, ics.ExportOptions{Location: s.loc, Name: "schedcal", Now: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
