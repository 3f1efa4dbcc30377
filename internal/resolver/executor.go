package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"refcache/internal/cache"
	"refcache/internal/entity"
	"refcache/internal/shared/errors"
)

const (
	DefaultMaxWaves    = 3
	DefaultConcurrency = 8
)

// Outcome is the result of one fetch job.
type Outcome struct {
	Wave      int             `json:"wave"`
	Category  entity.Category `json:"category"`
	Label     string          `json:"label"`
	Requested int             `json:"requested"`
	Resolved  int             `json:"resolved"`
	Duration  time.Duration   `json:"duration"`
	Err       error           `json:"-"`
	Error     string          `json:"error,omitempty"`
	// Retryable is false when the failure will repeat on every pass.
	Retryable bool `json:"retryable,omitempty"`
}

func (o Outcome) Failed() bool { return o.Err != nil }

// Report describes one settled pass. A pass never fails as a whole; partial
// failures are listed per job, per category write and per post-processor.
type Report struct {
	StartedAt         time.Time                  `json:"started_at"`
	Duration          time.Duration              `json:"duration"`
	Requested         map[entity.Category]int    `json:"requested"`
	Waves             int                        `json:"waves"`
	Outcomes          []Outcome                  `json:"outcomes"`
	Persisted         map[entity.Category]int    `json:"persisted"`
	PersistErrors     map[entity.Category]string `json:"persist_errors,omitempty"`
	PostProcessErrors map[string]string          `json:"post_process_errors,omitempty"`
	// Deferred counts follow-up IDs left for the next pass once the wave
	// limit was reached.
	Deferred int `json:"deferred"`
}

func (r Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

type Option func(*Executor)

func WithStages(stages ...Stage) Option {
	return func(e *Executor) { e.stages = stages }
}

func WithFollowUps(followUps ...FollowUp) Option {
	return func(e *Executor) { e.followUps = followUps }
}

func WithPostProcessor(p PostProcessor) Option {
	return func(e *Executor) { e.postProcessors = append(e.postProcessors, p) }
}

func WithMaxWaves(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxWaves = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// Executor fetches one MissingIDs set: concurrent jobs per wave, dependent
// follow-up waves, one write per category, then post-processing.
type Executor struct {
	store          *cache.Store
	stages         []Stage
	followUps      []FollowUp
	postProcessors []PostProcessor
	maxWaves       int
	concurrency    int
	metrics        *Metrics
	logger         *slog.Logger
}

func NewExecutor(store *cache.Store, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:       store,
		stages:      DefaultStages(fetcher),
		followUps:   DefaultFollowUps(),
		maxWaves:    DefaultMaxWaves,
		concurrency: DefaultConcurrency,
		logger:      logger.With("component", "resolution_executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute resolves missing and returns once everything it started has
// settled. It never returns an error.
func (e *Executor) Execute(ctx context.Context, missing *MissingIDs) Report {
	logger := e.logger.With("operation", "execute")
	report := Report{
		StartedAt: time.Now(),
		Persisted: make(map[entity.Category]int),
	}

	if missing == nil || missing.IsEmpty() {
		logger.Debug("Nothing to resolve")
		return report
	}
	report.Requested = missing.Counts()

	fetched := NewFetched()
	attempted := make(map[entity.Category]IDSet)
	current := missing

	for wave := 1; !current.IsEmpty(); wave++ {
		if wave > e.maxWaves {
			report.Deferred = current.Len()
			logger.Warn("Wave limit reached, deferring follow-up IDs",
				"max_waves", e.maxWaves,
				"deferred", report.Deferred)
			break
		}

		markAttempted(attempted, current)
		outcomes, waveFetched := e.runWave(ctx, wave, current)
		report.Outcomes = append(report.Outcomes, outcomes...)
		report.Waves = wave
		fetched.Merge(waveFetched)

		acc := NewAccumulator(func(category entity.Category, id int64) bool {
			return e.store.Has(category, id) || attempted[category].Has(id)
		})
		for _, f := range e.followUps {
			f.Find(waveFetched, acc)
		}
		current = acc.Missing()

		if !current.IsEmpty() {
			logger.Debug("Follow-up wave required", "wave", wave+1, "counts", current.Counts())
		}
	}

	e.persist(ctx, fetched, &report)
	e.postProcess(ctx, fetched, &report)

	report.Duration = time.Since(report.StartedAt)
	logger.Info("Resolution pass settled",
		"waves", report.Waves,
		"jobs", len(report.Outcomes),
		"failed_jobs", len(report.Failures()),
		"fetched", fetched.Len(),
		"duration", report.Duration)
	return report
}

// Dependencies applies the follow-ups to the cached records, so references
// a previous pass failed to resolve or deferred are requested again.
func (e *Executor) Dependencies(known KnownFunc) *MissingIDs {
	cached := &Fetched{
		Structures:    e.store.Structures.Values(),
		Locations:     e.store.Locations.Values(),
		ContractItems: e.store.ContractItems.Values(),
	}
	acc := NewAccumulator(known)
	for _, f := range e.followUps {
		f.Find(cached, acc)
	}
	return acc.Missing()
}

func markAttempted(attempted map[entity.Category]IDSet, m *MissingIDs) {
	add := func(category entity.Category, id int64) {
		set, ok := attempted[category]
		if !ok {
			set = make(IDSet)
			attempted[category] = set
		}
		set.Add(id)
	}
	for id := range m.Types {
		add(entity.CategoryType, id)
	}
	for id := range m.Locations {
		add(entity.CategoryLocation, id)
	}
	for id := range m.Names {
		add(entity.CategoryName, id)
	}
	for id := range m.Structures {
		add(entity.CategoryStructure, id)
	}
	for id := range m.Auxiliary {
		add(entity.CategoryAuxiliary, id)
	}
	for id := range m.Contracts {
		add(entity.CategoryContractItems, id)
	}
}

func (e *Executor) runWave(ctx context.Context, wave int, missing *MissingIDs) ([]Outcome, *Fetched) {
	var jobs []Job
	for _, stage := range e.stages {
		jobs = append(jobs, stage.Jobs(missing)...)
	}

	outcomes := make([]Outcome, len(jobs))
	results := make([]*Fetched, len(jobs))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			records, err := runJob(ctx, job)

			o := Outcome{
				Wave:      wave,
				Category:  job.Category,
				Label:     job.Label,
				Requested: job.Requested,
				Duration:  time.Since(start),
				Err:       err,
			}
			if err != nil {
				o.Error = err.Error()
				o.Retryable = errors.Retryable(err)
				e.logger.Error("Fetch job failed",
					"wave", wave,
					"category", job.Category,
					"job", job.Label,
					"requested", job.Requested,
					"retryable", o.Retryable,
					"error", err)
			} else {
				o.Resolved = records.Len()
				results[i] = records
			}
			outcomes[i] = o
			e.metrics.recordJob(job.Category, err)
			return nil
		})
	}
	_ = g.Wait()

	merged := NewFetched()
	for _, r := range results {
		merged.Merge(r)
	}
	return outcomes, merged
}

func runJob(ctx context.Context, job Job) (out *Fetched, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s job panic: %v", job.Label, r)
		}
	}()
	out, err = job.Fetch(ctx)
	if err == nil && out == nil {
		out = NewFetched()
	}
	return out, err
}

func (e *Executor) persist(ctx context.Context, fetched *Fetched, report *Report) {
	record := func(category entity.Category, n int, err error) {
		if err != nil {
			if report.PersistErrors == nil {
				report.PersistErrors = make(map[entity.Category]string)
			}
			report.PersistErrors[category] = err.Error()
			e.logger.Error("Failed to persist fetched records",
				"operation", "persist",
				"category", category,
				"records", n,
				"error", err)
		}
		if n > 0 {
			report.Persisted[category] = n
			e.metrics.recordPersisted(category, n)
		}
	}

	record(entity.CategoryType, len(fetched.Types), e.store.Types.PutBatch(ctx, fetched.Types))
	record(entity.CategoryName, len(fetched.Names), e.store.Names.PutBatch(ctx, fetched.Names))
	record(entity.CategoryLocation, len(fetched.Locations), e.store.Locations.PutBatch(ctx, fetched.Locations))
	record(entity.CategoryStructure, len(fetched.Structures), e.store.Structures.PutBatch(ctx, fetched.Structures))
	record(entity.CategoryAuxiliary, len(fetched.AuxiliaryPrices), e.store.AuxiliaryPrices.PutBatch(ctx, fetched.AuxiliaryPrices))
	record(entity.CategoryContractItems, len(fetched.ContractItems), e.store.ContractItems.PutBatch(ctx, fetched.ContractItems))
}

func (e *Executor) postProcess(ctx context.Context, fetched *Fetched, report *Report) {
	if fetched.Len() == 0 {
		return
	}
	for _, p := range e.postProcessors {
		err := runPostProcessor(ctx, p, fetched)
		e.metrics.recordPostProcess(p.Name, err)
		if err == nil {
			continue
		}
		if report.PostProcessErrors == nil {
			report.PostProcessErrors = make(map[string]string)
		}
		report.PostProcessErrors[p.Name] = err.Error()
		e.logger.Error("Post-processor failed",
			"operation", "post_process",
			"post_processor", p.Name,
			"error", err)
	}
}

func runPostProcessor(ctx context.Context, p PostProcessor, fetched *Fetched) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-processor %s panic: %v", p.Name, r)
		}
	}()
	return p.Run(ctx, fetched)
}
