package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
	"github.com/couchcryptid/burn-suitability-etl/internal/observability"
)

// SnapshotStore persists scored region snapshots.
type SnapshotStore interface {
	SaveRegion(ctx context.Context, snap domain.RegionSnapshot) error
	SaveCombined(ctx context.Context, snaps []domain.RegionSnapshot) error
}

// Publisher forwards persisted snapshots to downstream consumers.
type Publisher interface {
	PublishSnapshots(ctx context.Context, runID string, processedAt time.Time, snaps []domain.RegionSnapshot) error
}

// RunRecorder stores finished run reports.
type RunRecorder interface {
	RecordRun(ctx context.Context, report RunReport) error
}

// Sources locates the three input datasets.
type Sources struct {
	Fire       domain.SourceSpec
	Weather    domain.SourceSpec
	Vegetation domain.SourceSpec
}

func (s Sources) specs() []domain.SourceSpec {
	return []domain.SourceSpec{s.Fire, s.Weather, s.Vegetation}
}

// historySize bounds the in-memory run history.
const historySize = 50

// Pipeline runs the select-load-aggregate-score-persist-publish sequence.
// RunOnce calls are serialized; Run adds start-up, triggered and periodic runs.
type Pipeline struct {
	registry *domain.Registry
	sources  Sources
	lister   domain.SourceLister
	store    SnapshotStore
	logger   *slog.Logger
	metrics  *observability.Metrics

	publisher  Publisher
	recorder   RunRecorder
	clock      clockwork.Clock
	interval   time.Duration
	runOnStart bool

	mu      sync.Mutex // held for the duration of a run
	trigger chan struct{}
	ready   atomic.Bool

	historyMu sync.Mutex
	history   []RunReport // newest last
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher adds the publish stage.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithRecorder stores every finished report.
func WithRecorder(r RunRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithInterval enables periodic runs in Run. Zero disables them.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithRunOnStart controls whether Run starts with an immediate run.
func WithRunOnStart(v bool) Option {
	return func(p *Pipeline) { p.runOnStart = v }
}

// New creates a Pipeline over the given registry, sources and store.
func New(reg *domain.Registry, sources Sources, lister domain.SourceLister, store SnapshotStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:   reg,
		sources:    sources,
		lister:     lister,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		runOnStart: true,
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once at least one run has succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a successful run yet")
	}
	return nil
}

// Trigger requests a run from the scheduler. At most one request is queued;
// it returns false when a request is already pending.
func (p *Pipeline) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Recent returns up to limit finished reports, newest first.
func (p *Pipeline) Recent(_ context.Context, limit int) ([]RunReport, error) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	n := len(p.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]RunReport, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, p.history[i])
	}
	return out, nil
}

// Run is the scheduler loop. It returns nil when the context is cancelled.
// Failed runs are logged and counted; the next trigger or tick retries.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("scheduler started", "interval", p.interval.String(), "run_on_start", p.runOnStart)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := p.clock.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	if p.runOnStart {
		p.scheduledRun(ctx, "start")
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-p.trigger:
			p.scheduledRun(ctx, "trigger")
		case <-tick:
			p.scheduledRun(ctx, "interval")
		}
	}
}

func (p *Pipeline) scheduledRun(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	p.logger.Debug("run scheduled", "reason", reason)
	// Outcome is logged, counted and recorded by RunOnce.
	_, _ = p.RunOnce(ctx)
}

// run carries the intermediate state of a single RunOnce call.
type run struct {
	id          string
	logger      *slog.Logger
	entries     []domain.SourceEntry
	dataset     domain.Dataset
	summaries   []domain.RegionSummary
	snapshots   []domain.RegionSnapshot
	processedAt time.Time
}

type stage struct {
	name string
	fn   func(ctx context.Context, r *run, report *RunReport) error
}

func (p *Pipeline) stages() []stage {
	stages := []stage{
		{StageSelect, p.selectSources},
		{StageLoad, p.loadSources},
		{StageAggregate, p.aggregate},
		{StageScore, p.score},
		{StagePersist, p.persist},
	}
	if p.publisher != nil {
		stages = append(stages, stage{StagePublish, p.publish})
	}
	return stages
}

// RunOnce executes every stage in order. The first failing stage aborts the
// run; later stages are reported as skipped. Concurrent callers wait for the
// run in progress to finish before starting their own.
func (p *Pipeline) RunOnce(ctx context.Context) (RunReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &run{id: newRunID()}
	r.logger = p.logger.With("run_id", r.id)
	report := RunReport{RunID: r.id, StartedAt: p.clock.Now().UTC()}

	r.logger.Info("run started")

	var runErr error
	for _, st := range p.stages() {
		if runErr != nil {
			report.Stages = append(report.Stages, StageReport{Name: st.name, Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("%s: %w", st.name, err)
			report.Stages = append(report.Stages, StageReport{Name: st.name, Status: StatusFailed, Error: err.Error()})
			continue
		}

		start := p.clock.Now()
		err := st.fn(ctx, r, &report)
		elapsed := p.clock.Since(start)
		p.metrics.StageDuration.WithLabelValues(st.name).Observe(elapsed.Seconds())

		sr := StageReport{Name: st.name, Status: StatusSucceeded, Duration: elapsed}
		if err != nil {
			runErr = fmt.Errorf("%s: %w", st.name, err)
			sr.Status = StatusFailed
			sr.Error = err.Error()
			r.logger.Error("stage failed", "stage", st.name, "error", err)
		} else {
			r.logger.Debug("stage completed", "stage", st.name, "duration", elapsed.String())
		}
		report.Stages = append(report.Stages, sr)
	}

	report.FinishedAt = p.clock.Now().UTC()
	duration := report.FinishedAt.Sub(report.StartedAt)
	p.metrics.RunDuration.Observe(duration.Seconds())

	if runErr != nil {
		report.Status = StatusFailed
		report.Error = runErr.Error()
		p.metrics.RunsTotal.WithLabelValues(StatusFailed).Inc()
		r.logger.Error("run failed", "error", runErr, "duration", duration.String())
	} else {
		report.Status = StatusSucceeded
		p.metrics.RunsTotal.WithLabelValues(StatusSucceeded).Inc()
		p.metrics.LastSuccess.Set(float64(report.FinishedAt.Unix()))
		p.ready.Store(true)
		r.logger.Info("run succeeded", "regions", len(report.Regions), "warnings", len(report.Warnings), "duration", duration.String())
	}

	p.remember(report)
	if p.recorder != nil {
		// The ledger write must not be lost to an already-cancelled run context.
		if err := p.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			r.logger.Warn("record run failed", "error", err)
		}
	}

	return report, runErr
}

func (p *Pipeline) remember(report RunReport) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	p.history = append(p.history, report)
	if len(p.history) > historySize {
		p.history = p.history[len(p.history)-historySize:]
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// selectSources resolves the newest snapshot for every source before
// anything is read, so a missing source fails the run without side effects.
func (p *Pipeline) selectSources(ctx context.Context, r *run, _ *RunReport) error {
	r.entries = r.entries[:0]
	for _, spec := range p.sources.specs() {
		entries, err := p.lister.List(ctx, spec)
		if err != nil {
			return err
		}
		entry, err := domain.SelectLatest(spec, entries)
		if err != nil {
			return err
		}
		r.logger.Debug("source selected", "source", spec.Source, "file", entry.Path, "candidates", len(entries))
		r.entries = append(r.entries, entry)
	}
	return nil
}

func (p *Pipeline) loadSources(ctx context.Context, r *run, report *RunReport) error {
	for i, spec := range p.sources.specs() {
		entry := r.entries[i]
		n, err := p.loadSource(ctx, spec.Source, entry, &r.dataset)
		if err != nil {
			var sve *domain.SchemaValidationError
			if errors.As(err, &sve) {
				p.metrics.SchemaErrors.WithLabelValues(string(spec.Source)).Inc()
			}
			return err
		}
		p.metrics.RecordsLoaded.WithLabelValues(string(spec.Source)).Add(float64(n))
		report.Inputs = append(report.Inputs, InputReport{Source: spec.Source, File: entry.Name, Records: n})
		r.logger.Info("source loaded", "source", spec.Source, "file", entry.Name, "records", n)
	}
	return nil
}

func (p *Pipeline) loadSource(ctx context.Context, source domain.Source, entry domain.SourceEntry, ds *domain.Dataset) (int, error) {
	rc, err := p.lister.Open(ctx, entry)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return decodeSource(source, entry.Name, rc, ds)
}

func decodeSource(source domain.Source, name string, r io.Reader, ds *domain.Dataset) (int, error) {
	switch source {
	case domain.SourceFire:
		fires, err := domain.LoadFirePoints(name, r)
		ds.Fires = fires
		return len(fires), err
	case domain.SourceWeather:
		weather, err := domain.LoadWeatherRecords(name, r)
		ds.Weather = weather
		return len(weather), err
	case domain.SourceVegetation:
		veg, err := domain.LoadVegetationSamples(name, r)
		ds.Vegetation = veg
		return len(veg), err
	default:
		return 0, fmt.Errorf("unknown source %q", source)
	}
}

func (p *Pipeline) aggregate(_ context.Context, r *run, report *RunReport) error {
	summaries, warnings, assignment := domain.AggregateAll(p.registry, r.dataset)
	for _, w := range warnings {
		p.metrics.EmptyAggregates.WithLabelValues(string(w.Source)).Inc()
		report.Warnings = append(report.Warnings, w.Error())
		r.logger.Warn("empty aggregate", "region_id", w.RegionID, "source", w.Source)
	}
	p.metrics.UnassignedFires.Set(float64(assignment.Unassigned))
	if assignment.Unassigned > 0 {
		r.logger.Info("fire points outside every region", "count", assignment.Unassigned)
	}
	r.summaries = summaries
	return nil
}

func (p *Pipeline) score(_ context.Context, r *run, report *RunReport) error {
	regions := p.registry.Regions()
	snaps := make([]domain.RegionSnapshot, len(regions))
	for i, region := range regions {
		summary := r.summaries[i]
		if !summary.Finite() {
			return fmt.Errorf("region %s: summary is not finite", region.ID)
		}
		snaps[i] = domain.NewRegionSnapshot(domain.RegionResult{
			Region:  region,
			Summary: summary,
			Score:   domain.Score(summary),
		})
	}
	r.snapshots = snaps
	return nil
}

// persist writes per-region files first and the combined file last. A
// failure part-way leaves earlier files replaced; there is no rollback.
func (p *Pipeline) persist(ctx context.Context, r *run, report *RunReport) error {
	for _, snap := range r.snapshots {
		if err := p.store.SaveRegion(ctx, snap); err != nil {
			return err
		}
	}
	if err := p.store.SaveCombined(ctx, r.snapshots); err != nil {
		return err
	}

	r.processedAt = p.clock.Now().UTC()
	for _, snap := range r.snapshots {
		p.metrics.Suitability.WithLabelValues(snap.ID).Set(snap.SuitabilityScore)
	}
	report.Regions = r.snapshots
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run, _ *RunReport) error {
	if err := p.publisher.PublishSnapshots(ctx, r.id, r.processedAt, r.snapshots); err != nil {
		return fmt.Errorf("publish snapshots: %w", err)
	}
	p.metrics.SnapshotsPublished.Add(float64(len(r.snapshots)))
	return nil
}
