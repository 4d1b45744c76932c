package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
	"github.com/couchcryptid/burn-suitability-etl/internal/observability"
	"github.com/couchcryptid/burn-suitability-etl/internal/pipeline"
)

// --- mocks ---

type memFile struct {
	name    string
	modTime time.Time
	body    string
}

// memLister serves snapshot files from memory, keyed by directory.
type memLister struct {
	mu      sync.Mutex
	dirs    map[string][]memFile
	listErr error
}

func (m *memLister) put(dir string, f memFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs == nil {
		m.dirs = make(map[string][]memFile)
	}
	m.dirs[dir] = append(m.dirs[dir], f)
}

func (m *memLister) List(_ context.Context, spec domain.SourceSpec) ([]domain.SourceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.SourceEntry
	for _, f := range m.dirs[spec.Dir] {
		if ok, _ := path.Match(spec.Pattern, f.name); ok {
			out = append(out, domain.SourceEntry{Name: f.name, Path: path.Join(spec.Dir, f.name), ModTime: f.modTime})
		}
	}
	return out, nil
}

func (m *memLister) Open(_ context.Context, entry domain.SourceEntry) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.dirs[path.Dir(entry.Path)] {
		if f.name == entry.Name {
			return io.NopCloser(strings.NewReader(f.body)), nil
		}
	}
	return nil, errors.New("not found: " + entry.Path)
}

type memStore struct {
	mu       sync.Mutex
	regions  map[string]domain.RegionSnapshot
	combined []domain.RegionSnapshot
	saves    int
	err      error
}

func (m *memStore) SaveRegion(_ context.Context, snap domain.RegionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.regions == nil {
		m.regions = make(map[string]domain.RegionSnapshot)
	}
	m.regions[snap.ID] = snap
	return nil
}

func (m *memStore) SaveCombined(_ context.Context, snaps []domain.RegionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.combined = append([]domain.RegionSnapshot(nil), snaps...)
	m.saves++
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type mockPublisher struct {
	runID       string
	processedAt time.Time
	published   []domain.RegionSnapshot
	err         error
}

func (m *mockPublisher) PublishSnapshots(_ context.Context, runID string, processedAt time.Time, snaps []domain.RegionSnapshot) error {
	m.runID, m.processedAt = runID, processedAt
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, snaps...)
	return nil
}

// chanRecorder signals every finished run.
type chanRecorder struct {
	reports chan pipeline.RunReport
}

func newChanRecorder() *chanRecorder {
	return &chanRecorder{reports: make(chan pipeline.RunReport, 16)}
}

func (r *chanRecorder) RecordRun(_ context.Context, report pipeline.RunReport) error {
	r.reports <- report
	return nil
}

func (r *chanRecorder) next(t *testing.T) pipeline.RunReport {
	t.Helper()
	select {
	case rep := <-r.reports:
		return rep
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run")
		return pipeline.RunReport{}
	}
}

// --- fixtures ---

const (
	fireCSV = "latitude,longitude,acquisition_date,acquisition_time,frp,confidence\n" +
		"37.75,-122.4,2024-04-26,1510,2,n\n" +
		"37.72,-122.45,2024-04-26,1512,4,h\n" +
		"34.05,-118.24,2024-04-26,0930,10,n\n" +
		"10.0,10.0,2024-04-26,0930,99,l\n"
	weatherCSV    = "date,temperature,humidity,windSpeed,windDirection\n2024-04-26,75,40,8,SW\n"
	vegetationCSV = "ndvi\n0.5\n"
)

var (
	testTime = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)
	sources  = pipeline.Sources{
		Fire:       domain.SourceSpec{Source: domain.SourceFire, Dir: "data/fire", Pattern: "california_fires_*.csv"},
		Weather:    domain.SourceSpec{Source: domain.SourceWeather, Dir: "data/weather", Pattern: "*.csv"},
		Vegetation: domain.SourceSpec{Source: domain.SourceVegetation, Dir: "data/vegetation", Pattern: "*_ndvi.csv"},
	}
)

func newLister() *memLister {
	l := &memLister{}
	l.put("data/fire", memFile{name: "california_fires_20240426.csv", modTime: testTime, body: fireCSV})
	l.put("data/weather", memFile{name: "weather.csv", modTime: testTime, body: weatherCSV})
	l.put("data/vegetation", memFile{name: "2024-04-26_ndvi.csv", modTime: testTime, body: vegetationCSV})
	return l
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(lister domain.SourceLister, store pipeline.SnapshotStore, metrics *observability.Metrics, opts ...pipeline.Option) *pipeline.Pipeline {
	reg := domain.MustRegistry(domain.DefaultRegions())
	opts = append([]pipeline.Option{pipeline.WithClock(clockwork.NewFakeClockAt(testTime))}, opts...)
	return pipeline.New(reg, sources, lister, store, newTestLogger(), metrics, opts...)
}

func stageStatuses(r pipeline.RunReport) map[string]string {
	out := make(map[string]string, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Name] = s.Status
	}
	return out
}

// --- RunOnce ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	store := &memStore{}
	metrics := newTestMetrics()
	p := newPipeline(newLister(), store, metrics)

	require.Error(t, p.CheckReadiness(context.Background()))

	report, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, testTime, report.StartedAt)
	assert.Equal(t, map[string]string{
		pipeline.StageSelect:    pipeline.StatusSucceeded,
		pipeline.StageLoad:      pipeline.StatusSucceeded,
		pipeline.StageAggregate: pipeline.StatusSucceeded,
		pipeline.StageScore:     pipeline.StatusSucceeded,
		pipeline.StagePersist:   pipeline.StatusSucceeded,
	}, stageStatuses(report))
	assert.Equal(t, []pipeline.InputReport{
		{Source: domain.SourceFire, File: "california_fires_20240426.csv", Records: 4},
		{Source: domain.SourceWeather, File: "weather.csv", Records: 1},
		{Source: domain.SourceVegetation, File: "2024-04-26_ndvi.csv", Records: 1},
	}, report.Inputs)

	sfSummary := domain.RegionSummary{
		RecentFireCount: 2, MeanFRP: 3, MeanTemperature: 75, MeanHumidity: 40,
		MeanWindSpeed: 8, WindDirection: "SW", MeanNDVI: 0.5,
	}
	sf := domain.DefaultRegions()[0]
	want := domain.NewRegionSnapshot(domain.RegionResult{Region: sf, Summary: sfSummary, Score: domain.Score(sfSummary)})

	require.Len(t, store.combined, 2)
	if diff := cmp.Diff(want, store.combined[0]); diff != "" {
		t.Errorf("sf snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "la", store.combined[1].ID)
	assert.Equal(t, 1, store.combined[1].RecentFires)
	assert.Equal(t, store.combined[0], store.regions["sf"])
	assert.Equal(t, store.combined, report.Regions)

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(pipeline.StatusSucceeded)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RecordsLoaded.WithLabelValues("fire")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UnassignedFires))
	assert.InDelta(t, want.SuitabilityScore, testutil.ToFloat64(metrics.Suitability.WithLabelValues("sf")), 1e-9)
}

func TestPipeline_RunOnce_SelectsNewestSnapshot(t *testing.T) {
	lister := newLister()
	lister.put("data/fire", memFile{
		name:    "california_fires_20240427.csv",
		modTime: testTime.Add(time.Hour),
		body:    "latitude,longitude,acquisition_date,acquisition_time,frp\n34.05,-118.24,2024-04-27,0100,1\n",
	})
	store := &memStore{}
	p := newPipeline(lister, store, newTestMetrics())

	report, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "california_fires_20240427.csv", report.Inputs[0].File)
	assert.Equal(t, 0, store.combined[0].RecentFires)
	assert.Equal(t, 1, store.combined[1].RecentFires)
}

func TestPipeline_RunOnce_MissingSource(t *testing.T) {
	lister := newLister()
	lister.dirs["data/vegetation"] = nil
	store := &memStore{}
	p := newPipeline(lister, store, newTestMetrics())

	report, err := p.RunOnce(context.Background())
	require.Error(t, err)

	var nsf *domain.NoSourceFileError
	require.True(t, errors.As(err, &nsf))
	assert.Equal(t, domain.SourceVegetation, nsf.Source)

	assert.Equal(t, pipeline.StatusFailed, report.Status)
	assert.Equal(t, pipeline.StatusFailed, stageStatuses(report)[pipeline.StageSelect])
	assert.Equal(t, pipeline.StatusSkipped, stageStatuses(report)[pipeline.StagePersist])
	assert.Contains(t, report.Error, "select")
	assert.Zero(t, store.saveCount())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_SchemaErrorLeavesPriorSnapshots(t *testing.T) {
	store := &memStore{}
	metrics := newTestMetrics()
	lister := newLister()
	p := newPipeline(lister, store, metrics)

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	prior := store.combined

	lister.put("data/weather", memFile{name: "weather2.csv", modTime: testTime.Add(time.Hour), body: "date,temperature\n2024-04-27,70\n"})

	report, err := p.RunOnce(context.Background())
	require.Error(t, err)

	var sve *domain.SchemaValidationError
	require.True(t, errors.As(err, &sve))
	assert.Equal(t, "weather2.csv", sve.File)
	assert.Equal(t, "humidity", sve.Column)

	assert.Equal(t, pipeline.StatusFailed, stageStatuses(report)[pipeline.StageLoad])
	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, prior, store.combined)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SchemaErrors.WithLabelValues("weather")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(pipeline.StatusFailed)))

	// Readiness reflects the earlier success.
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RunOnce_EmptySourcesUseDefaults(t *testing.T) {
	lister := &memLister{}
	lister.put("data/fire", memFile{name: "california_fires_1.csv", modTime: testTime, body: "latitude,longitude,acquisition_date,acquisition_time,frp\n"})
	lister.put("data/weather", memFile{name: "w.csv", modTime: testTime, body: "date,temperature,humidity,windSpeed\n"})
	lister.put("data/vegetation", memFile{name: "v_ndvi.csv", modTime: testTime, body: "ndvi\n"})
	store := &memStore{}
	metrics := newTestMetrics()
	p := newPipeline(lister, store, metrics)

	report, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Warnings, 6)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EmptyAggregates.WithLabelValues("fire")))
	for _, snap := range store.combined {
		assert.Equal(t, 0, snap.RecentFires)
		assert.Equal(t, domain.DefaultTemperature, snap.WeatherTemperature)
		assert.Equal(t, "1 fires/week", snap.HistoricalAvg)
	}
}

func TestPipeline_RunOnce_PersistFailure(t *testing.T) {
	store := &memStore{err: &domain.PersistenceError{Path: "out/sf_processed.csv", Err: errors.New("disk full")}}
	p := newPipeline(newLister(), store, newTestMetrics())

	report, err := p.RunOnce(context.Background())
	require.Error(t, err)

	var pe *domain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pipeline.StatusFailed, stageStatuses(report)[pipeline.StagePersist])
	assert.Empty(t, report.Regions)
}

func TestPipeline_RunOnce_Publishes(t *testing.T) {
	pub := &mockPublisher{}
	metrics := newTestMetrics()
	p := newPipeline(newLister(), &memStore{}, metrics, pipeline.WithPublisher(pub))

	report, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusSucceeded, stageStatuses(report)[pipeline.StagePublish])
	assert.Equal(t, report.RunID, pub.runID)
	assert.Equal(t, testTime, pub.processedAt)
	assert.Len(t, pub.published, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SnapshotsPublished))
}

func TestPipeline_RunOnce_PublishFailureFailsRunAfterPersist(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker unavailable")}
	store := &memStore{}
	p := newPipeline(newLister(), store, newTestMetrics(), pipeline.WithPublisher(pub))

	report, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, pipeline.StatusSucceeded, stageStatuses(report)[pipeline.StagePersist])
	assert.Equal(t, pipeline.StatusFailed, stageStatuses(report)[pipeline.StagePublish])
	assert.Equal(t, 1, store.saveCount())
}

func TestPipeline_RunOnce_CancelledContext(t *testing.T) {
	store := &memStore{}
	p := newPipeline(newLister(), store, newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipeline.StatusFailed, report.Status)
	assert.Zero(t, store.saveCount())
}

func TestPipeline_RunOnce_RecordsReport(t *testing.T) {
	rec := newChanRecorder()
	p := newPipeline(newLister(), &memStore{}, newTestMetrics(), pipeline.WithRecorder(rec))

	report, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	got := rec.next(t)
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, pipeline.StatusSucceeded, got.Status)
}

// blockingStore tracks how many SaveCombined calls overlap.
type blockingStore struct {
	memStore
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *blockingStore) SaveCombined(ctx context.Context, snaps []domain.RegionSnapshot) error {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		cur := b.maxSeen.Load()
		if n <= cur || b.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return b.memStore.SaveCombined(ctx, snaps)
}

func TestPipeline_RunOnce_Serialized(t *testing.T) {
	store := &blockingStore{}
	p := newPipeline(newLister(), store, newTestMetrics())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.RunOnce(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.maxSeen.Load())
	assert.Equal(t, 4, store.saveCount())
}

func TestPipeline_Recent(t *testing.T) {
	p := newPipeline(newLister(), &memStore{}, newTestMetrics())

	var ids []string
	for range 3 {
		r, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		ids = append(ids, r.RunID)
	}

	recent, err := p.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].RunID)
	assert.Equal(t, ids[1], recent[1].RunID)

	all, err := p.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// --- scheduler ---

func TestPipeline_Run_StartAndTrigger(t *testing.T) {
	rec := newChanRecorder()
	metrics := newTestMetrics()
	p := newPipeline(newLister(), &memStore{}, metrics, pipeline.WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	first := rec.next(t)
	assert.True(t, first.Succeeded())

	assert.True(t, p.Trigger())
	second := rec.next(t)
	assert.NotEqual(t, first.RunID, second.RunID)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_Interval(t *testing.T) {
	rec := newChanRecorder()
	clock := clockwork.NewFakeClockAt(testTime)
	reg := domain.MustRegistry(domain.DefaultRegions())
	p := pipeline.New(reg, sources, newLister(), &memStore{}, newTestLogger(), newTestMetrics(),
		pipeline.WithClock(clock),
		pipeline.WithRecorder(rec),
		pipeline.WithInterval(time.Minute),
		pipeline.WithRunOnStart(false),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	select {
	case <-rec.reports:
		t.Fatal("run started without a tick")
	default:
	}

	clock.Advance(time.Minute)
	report := rec.next(t)
	assert.Equal(t, testTime.Add(time.Minute), report.StartedAt)
}

func TestPipeline_TriggerCoalesces(t *testing.T) {
	p := newPipeline(newLister(), &memStore{}, newTestMetrics())

	assert.True(t, p.Trigger())
	assert.False(t, p.Trigger())
	assert.False(t, p.Trigger())
}
