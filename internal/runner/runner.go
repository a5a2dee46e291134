// Package runner summarizes a batch of leads with bounded concurrency and
// reports progress on the event bus.
package runner

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-intake/internal/events"
	"github.com/sells-group/lead-intake/internal/harvest"
	"github.com/sells-group/lead-intake/internal/lead"
	"github.com/sells-group/lead-intake/internal/metrics"
	"github.com/sells-group/lead-intake/internal/resilience"
)

// DefaultMaxLeads caps a job when Config.MaxLeads is unset.
const DefaultMaxLeads = 200

// Config controls a Runner.
type Config struct {
	Concurrency int
	// RatePerSec throttles how fast leads are started. 0 means unlimited.
	RatePerSec float64
	// MaxLeads caps how many leads of the input are processed. A negative
	// value disables the cap.
	MaxLeads int
	// Retry governs fetching leads from a Source.
	Retry resilience.Policy
	Lead  lead.Options
}

// LeadError records a lead that was skipped.
type LeadError struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Result is the outcome of one job. Summaries keep input order with
// failed leads left out.
type Result struct {
	JobID     uuid.UUID      `json:"job_id"`
	Summaries []lead.Summary `json:"summaries"`
	Errors    []LeadError    `json:"errors,omitempty"`
	Skipped   int            `json:"skipped"`
	Duration  time.Duration  `json:"duration"`
}

// Progress is the payload of the done event.
type Progress struct {
	Processed           int             `json:"processed"`
	Failed              int             `json:"failed"`
	Skipped             int             `json:"skipped"`
	MonthlyPremiumTotal decimal.Decimal `json:"monthly_premium_total"`
}

// Runner processes jobs. It is safe for concurrent use.
type Runner struct {
	cfg     Config
	bus     *events.Bus
	limiter *rate.Limiter
	resolve func(harvest.RawLead) (lead.Input, error)
}

// New creates a Runner. bus may be nil.
func New(cfg Config, bus *events.Bus) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxLeads == 0 {
		cfg.MaxLeads = DefaultMaxLeads
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Runner{
		cfg:     cfg,
		bus:     bus,
		limiter: rate.NewLimiter(limit, 1),
		resolve: harvest.ToInput,
	}
}

// RunSource pulls leads from src, retrying transient failures, and runs
// them as one job.
func (r *Runner) RunSource(ctx context.Context, jobID uuid.UUID, src harvest.Source) (*Result, error) {
	retry := r.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry(describe(src))
	}
	leads, err := resilience.Do(ctx, retry, src.Leads)
	if err != nil {
		return nil, eris.Wrap(err, "runner: load leads")
	}
	return r.Run(ctx, jobID, leads)
}

// Run summarizes leads. A lead that cannot be resolved is reported as an
// error event and skipped; only context cancellation aborts the job.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, leads []harvest.RawLead) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("job_id", jobID.String()))

	skipped := 0
	if r.cfg.MaxLeads > 0 && len(leads) > r.cfg.MaxLeads {
		skipped = len(leads) - r.cfg.MaxLeads
		leads = leads[:r.cfg.MaxLeads]
	}
	r.publish(jobID, events.TypeStart, -1, map[string]int{"leads": len(leads), "skipped": skipped})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	slots := make([]*lead.Summary, len(leads))
	failures := make([]*LeadError, len(leads))
	var processed, failed atomic.Int64

	for i, raw := range leads {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "runner: throttle")
			}

			t0 := time.Now()
			in, err := r.resolve(raw)
			if err != nil {
				failed.Add(1)
				metrics.LeadErrorsTotal.Inc()
				failures[i] = &LeadError{Index: i, Name: raw.Name, Error: err.Error()}
				log.Warn("lead skipped", zap.Int("index", i), zap.Error(err))
				r.publish(jobID, events.TypeError, i, failures[i])
				return nil
			}

			s := lead.Summarize(in, r.cfg.Lead)
			metrics.LeadDurationSeconds.Observe(time.Since(t0).Seconds())
			metrics.LeadsTotal.WithLabelValues(string(s.Badge)).Inc()
			for _, c := range s.Phones.All() {
				metrics.PhonesTotal.WithLabelValues(strconv.FormatBool(c.Valid)).Inc()
			}

			slots[i] = &s
			processed.Add(1)
			r.publish(jobID, events.TypeLead, i, s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "runner: job cancelled")
	}

	res := &Result{JobID: jobID, Skipped: skipped}
	total := decimal.Zero
	for i := range leads {
		if slots[i] != nil {
			res.Summaries = append(res.Summaries, *slots[i])
			total = total.Add(slots[i].MonthlyPremiumTotal)
		}
		if failures[i] != nil {
			res.Errors = append(res.Errors, *failures[i])
		}
	}
	res.Duration = time.Since(start)

	r.publish(jobID, events.TypeDone, -1, Progress{
		Processed:           int(processed.Load()),
		Failed:              int(failed.Load()),
		Skipped:             skipped,
		MonthlyPremiumTotal: total,
	})
	log.Info("job complete",
		zap.Int64("processed", processed.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int("skipped", skipped),
		zap.String("monthly_premium_total", total.StringFixed(2)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (r *Runner) publish(jobID uuid.UUID, t events.Type, index int, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{JobID: jobID, Type: t, Index: index, Data: data})
}

func describe(src harvest.Source) string {
	if s, ok := src.(interface{ String() string }); ok {
		return s.String()
	}
	return "source"
}
