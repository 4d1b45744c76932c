package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/burn-suitability-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
	"github.com/couchcryptid/burn-suitability-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockRefresher struct {
	queued bool
	calls  int
}

func (m *mockRefresher) Trigger() bool {
	m.calls++
	return m.queued
}

type mockSnapshots struct {
	snaps []domain.RegionSnapshot
	err   error
}

func (m *mockSnapshots) LoadCombined(_ context.Context) ([]domain.RegionSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.snaps == nil {
		return nil, fmt.Errorf("all_regions.csv: %w", domain.ErrSnapshotNotFound)
	}
	return m.snaps, nil
}

func (m *mockSnapshots) LoadRegion(_ context.Context, id string) (domain.RegionSnapshot, error) {
	if m.err != nil {
		return domain.RegionSnapshot{}, m.err
	}
	for _, s := range m.snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.RegionSnapshot{}, fmt.Errorf("region %q: %w", id, domain.ErrSnapshotNotFound)
}

type mockHistory struct {
	runs  []pipeline.RunReport
	limit int
}

func (m *mockHistory) Recent(_ context.Context, limit int) ([]pipeline.RunReport, error) {
	m.limit = limit
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type fixture struct {
	srv       *httpadapter.Server
	ready     *mockReadiness
	refresher *mockRefresher
	snapshots *mockSnapshots
	history   *mockHistory
}

func newFixture() *fixture {
	f := &fixture{
		ready:     &mockReadiness{},
		refresher: &mockRefresher{queued: true},
		snapshots: &mockSnapshots{snaps: []domain.RegionSnapshot{
			{ID: "sf", Name: "San Francisco", Score: 38, RiskLevel: "Low", RiskColor: "green"},
			{ID: "la", Name: "Los Angeles", Score: 72, RiskLevel: "High", RiskColor: "red"},
		}},
		history: &mockHistory{runs: []pipeline.RunReport{
			{RunID: "run-2", Status: pipeline.StatusSucceeded},
			{RunID: "run-1", Status: pipeline.StatusFailed, Error: "load: weather: missing column"},
		}},
	}
	f.srv = httpadapter.NewServer(":0", httpadapter.Deps{
		Ready:     f.ready,
		Refresher: f.refresher,
		Snapshots: f.snapshots,
		History:   f.history,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsPipeline(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz").Code)

	f.ready.err = errors.New("no successful run yet")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRefreshQueuesRun(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/refresh")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, 1, f.refresher.calls)

	f.refresher.queued = false
	rec = f.do(http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already queued", body["status"])
}

func TestRefreshRejectsGet(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegionsListsSnapshots(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/regions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []domain.RegionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "sf", got[0].ID)
	assert.Equal(t, "High", got[1].RiskLevel)
}

func TestRegionsNotFoundBeforeFirstRun(t *testing.T) {
	f := newFixture()
	f.snapshots.snaps = nil
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/regions").Code)
}

func TestRegionByID(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/regions/la")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.RegionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Los Angeles", got.Name)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/regions/sac").Code)
}

func TestRegionsStoreFailureIs500(t *testing.T) {
	f := newFixture()
	f.snapshots.err = errors.New("disk on fire")

	rec := f.do(http.MethodGet, "/regions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestRunsHistory(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, f.history.limit)

	var got []pipeline.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)

	rec = f.do(http.MethodGet, "/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)

	f.do(http.MethodGet, "/runs?limit=5000")
	assert.Equal(t, 200, f.history.limit)
}

func TestRunsEmptyHistoryIsArray(t *testing.T) {
	f := newFixture()
	f.history.runs = nil

	rec := f.do(http.MethodGet, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRunsRejectsBadLimit(t *testing.T) {
	f := newFixture()
	for _, q := range []string{"abc", "0", "-3"} {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/runs?limit="+q).Code, q)
	}
}
