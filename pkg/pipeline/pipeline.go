// Package pipeline schedules prompt templates as a dependency graph and
// executes them against a model client: Stage A transcript analyses run
// concurrently, Stage B analyses consume their aggregated output, and a
// final synthesis stage closes the run.
package pipeline

import (
	"time"

	"github.com/zen-systems/scribegate/pkg/validate"
)

// Status is the lifecycle state of one scheduled stage.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusRetryExhausted Status = "retry_exhausted"
	StatusSkipped        Status = "skipped"
)

// Terminal reports whether the status is final for a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRetryExhausted, StatusSkipped:
		return true
	}
	return false
}

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	// RunSucceeded means every stage succeeded.
	RunSucceeded RunStatus = "succeeded"
	// RunPartiallyFailed means at least one stage did not succeed;
	// per-stage detail is retained for callers.
	RunPartiallyFailed RunStatus = "partially_failed"
)

// Dependency is one typed edge of the stage DAG: the producing stage's
// output feeds the consuming stage's input variable named As.
type Dependency struct {
	Stage string `yaml:"stage"`
	As    string `yaml:"as"`
}

// Stage is one scheduled unit: a prompt template plus the upstream stages
// whose outputs feed its inputs.
type Stage struct {
	ID       string       `yaml:"id"`
	Template string       `yaml:"template"`
	Needs    []Dependency `yaml:"needs,omitempty"`
}

// Pipeline is a static stage DAG declared by a manifest.
type Pipeline struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Stages      []*Stage `yaml:"stages"`
}

// Stage returns the stage with the given id, if declared.
func (p *Pipeline) Stage(id string) (*Stage, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// StageResult captures the terminal outcome of one stage.
type StageResult struct {
	StageID string
	Status  Status
	// Result is the best parse seen, retained even when invalid so
	// callers can inspect what the model last produced.
	Result   *validate.ParsedResult
	Attempts int
	Err      error
	Duration time.Duration
}

// Run is one pipeline execution instance. The stage map holds exactly one
// entry per declared stage, each written once with a terminal status.
type Run struct {
	ID     string
	Status RunStatus
	Stages map[string]*StageResult
}

// Result returns the terminal result for a stage id.
func (r *Run) Result(stageID string) (*StageResult, bool) {
	res, ok := r.Stages[stageID]
	return res, ok
}
