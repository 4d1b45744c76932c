package pipeline

import (
	"time"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// Stage names in execution order.
const (
	StageSelect    = "select"
	StageLoad      = "load"
	StageAggregate = "aggregate"
	StageScore     = "score"
	StagePersist   = "persist"
	StagePublish   = "publish"
)

// Status values for runs and stages.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// RunReport describes one pipeline run.
type RunReport struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Status     string                  `json:"status"`
	Error      string                  `json:"error,omitempty"`
	Stages     []StageReport           `json:"stages"`
	Inputs     []InputReport           `json:"inputs,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	Regions    []domain.RegionSnapshot `json:"regions,omitempty"`
}

// StageReport is the outcome of a single stage.
type StageReport struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// InputReport records which snapshot a source resolved to and how many records it held.
type InputReport struct {
	Source  domain.Source `json:"source"`
	File    string        `json:"file"`
	Records int           `json:"records"`
}

// Succeeded reports whether the run completed every stage.
func (r RunReport) Succeeded() bool { return r.Status == StatusSucceeded }

// Stage returns the named stage report.
func (r RunReport) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}
