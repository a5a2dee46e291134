package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/badge"
	"github.com/sells-group/lead-intake/internal/config"
	"github.com/sells-group/lead-intake/internal/events"
	"github.com/sells-group/lead-intake/internal/harvest"
	"github.com/sells-group/lead-intake/internal/metrics"
	"github.com/sells-group/lead-intake/internal/report"
	"github.com/sells-group/lead-intake/internal/runner"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type jobStatus string

const (
	jobRunning jobStatus = "running"
	jobDone    jobStatus = "done"
	jobFailed  jobStatus = "failed"
)

// job is an accepted request and, once finished, its result. Jobs live in
// memory for the life of the process.
type job struct {
	ID         uuid.UUID
	Status     jobStatus
	CreatedAt  time.Time
	FinishedAt time.Time
	Leads      int
	Result     *runner.Result
	Err        string
}

// jobView is the JSON shape of a job.
type jobView struct {
	ID                  uuid.UUID  `json:"job_id"`
	Status              jobStatus  `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	Leads               int        `json:"leads"`
	Processed           int        `json:"processed"`
	Failed              int        `json:"failed"`
	Skipped             int        `json:"skipped"`
	MonthlyPremiumTotal string     `json:"monthly_premium_total"`
	Error               string     `json:"error,omitempty"`
}

type jobRequest struct {
	Leads     []harvest.RawLead `json:"leads"`
	SourceURL string            `json:"source_url,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Rules     badge.Rules       `json:"rules,omitempty"`
	Today     string            `json:"today,omitempty"`
}

// jobDefaults are the server-wide settings a request can override.
type jobDefaults struct {
	Config      *config.Config
	Rules       badge.Rules
	Heartbeat   time.Duration
	TitlePrefix string
}

type jobServer struct {
	ctx      context.Context
	bus      *events.Bus
	defaults jobDefaults

	mu   sync.RWMutex
	jobs map[uuid.UUID]*job
}

func newJobServer(ctx context.Context, bus *events.Bus, d jobDefaults) *jobServer {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	return &jobServer{
		ctx:      ctx,
		bus:      bus,
		defaults: d,
		jobs:     make(map[uuid.UUID]*job),
	}
}

// Routes builds the HTTP API.
func (s *jobServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/report", s.handleReport)
	})
	return r
}

func (s *jobServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Leads) == 0 && req.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "leads or source_url is required")
		return
	}

	rules := s.defaults.Rules
	if req.Rules != nil {
		if err := req.Rules.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rules = req.Rules
	}
	today, err := parseToday(req.Today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "today must be YYYY-MM-DD")
		return
	}

	j := &job{
		ID:        uuid.New(),
		Status:    jobRunning,
		CreatedAt: time.Now().UTC(),
		Leads:     len(req.Leads),
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	rc := runnerConfig(s.defaults.Config, rules, req.Limit, today)
	go s.execute(j.ID, rc, req)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": j.ID.String(),
		"status": string(jobRunning),
	})
}

func (s *jobServer) execute(id uuid.UUID, rc runner.Config, req jobRequest) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	log := zap.L().With(zap.String("job_id", id.String()))

	run := runner.New(rc, s.bus)
	var (
		res *runner.Result
		err error
	)
	if req.SourceURL != "" {
		res, err = run.RunSource(s.ctx, id, harvest.HTTPSource{URL: req.SourceURL})
	} else {
		res, err = run.Run(s.ctx, id, req.Leads)
	}

	s.mu.Lock()
	j := s.jobs[id]
	j.FinishedAt = time.Now().UTC()
	if err != nil {
		j.Status = jobFailed
		j.Err = err.Error()
		log.Error("job failed", zap.Error(err))
	} else {
		j.Status = jobDone
		j.Result = res
		j.Leads = len(res.Summaries) + len(res.Errors) + res.Skipped
	}
	s.mu.Unlock()

	// Closing after the status update lets event streams report the final state.
	s.bus.Close(id)
}

func (s *jobServer) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return uuid.Nil, false
	}
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return uuid.Nil, false
	}
	return id, true
}

func (s *jobServer) view(id uuid.UUID) jobView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j := s.jobs[id]

	v := jobView{
		ID:                  j.ID,
		Status:              j.Status,
		CreatedAt:           j.CreatedAt,
		Leads:               j.Leads,
		MonthlyPremiumTotal: "0.00",
		Error:               j.Err,
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		v.FinishedAt = &t
	}
	if j.Result != nil {
		v.Processed = len(j.Result.Summaries)
		v.Failed = len(j.Result.Errors)
		v.Skipped = j.Result.Skipped
		_, total := report.Totals(j.Result.Summaries)
		v.MonthlyPremiumTotal = total.StringFixed(2)
	}
	return v
}

func (s *jobServer) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	views := make([]jobView, 0, len(ids))
	for _, id := range ids {
		views = append(views, s.view(id))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *jobServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(id))
}

// handleEvents streams job events as Server-Sent Events and finishes with
// an "end" event carrying the final job view.
func (s *jobServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := s.bus.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.defaults.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				writeSSE(w, "end", s.view(id))
				flusher.Flush()
				return
			}
			writeSSE(w, string(e.Type), e)
			flusher.Flush()
		}
	}
}

func (s *jobServer) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.RLock()
	j := s.jobs[id]
	status, res := j.Status, j.Result
	s.mu.RUnlock()

	if status != jobDone {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", status))
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, res.Summaries); err != nil {
		zap.L().Error("render report", zap.String("job_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not render report")
		return
	}

	prefix := s.defaults.TitlePrefix
	if prefix == "" {
		prefix = "Leads"
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, prefix, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
