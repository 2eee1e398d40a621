package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"

	"github.com/zen-systems/scribegate/pkg/adapter"
	"github.com/zen-systems/scribegate/pkg/config"
	"github.com/zen-systems/scribegate/pkg/template"
)

// OrchestratorConfig wires an orchestrator's collaborators and policy.
type OrchestratorConfig struct {
	Catalog *template.Catalog
	Client  adapter.Client
	Call    adapter.Options
	Runner  config.RunnerConfig
	Logger  *slog.Logger
}

// Orchestrator schedules a pipeline's stages over a bounded worker pool.
// Stages with satisfied prerequisites run concurrently; a stage whose
// prerequisite did not succeed is marked Skipped without issuing a model
// call. The scheduler goroutine is the single writer of the run's stage
// map; workers report through a channel.
type Orchestrator struct {
	catalog *template.Catalog
	client  adapter.Client
	call    adapter.Options
	policy  config.RunnerConfig
	log     *slog.Logger
}

// NewOrchestrator creates an orchestrator. The catalog is the immutable
// registry every executor reads; it is passed in explicitly, never
// ambient.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		catalog: cfg.Catalog,
		client:  cfg.Client,
		call:    cfg.Call,
		policy:  cfg.Runner.WithDefaults(),
		log:     log,
	}, nil
}

// RunOptions carries the inputs of one pipeline run.
type RunOptions struct {
	// Transcript fills the `transcript` input of the first-pass stages.
	Transcript string
	// Bindings supplies additional initial variables by name.
	Bindings map[string]string
}

// Execute runs every stage of the pipeline to a terminal status and
// returns the run. A single stage failure never aborts the run:
// independent branches continue, dependents are marked Skipped, and the
// overall status is PartiallyFailed. Cancelling the context marks all
// non-terminal stages Skipped while preserving results that already
// succeeded.
func (o *Orchestrator) Execute(ctx context.Context, p *Pipeline, opts RunOptions) (*Run, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if err := p.Validate(o.catalog); err != nil {
		return nil, err
	}

	run := &Run{
		ID:     uuid.NewString(),
		Stages: make(map[string]*StageResult, len(p.Stages)),
	}
	base := map[string]string{"transcript": opts.Transcript}
	for k, v := range opts.Bindings {
		base[k] = v
	}

	exec := &Executor{
		Catalog: o.catalog,
		Client:  o.client,
		Call:    o.call,
		Policy:  o.policy,
		Logger:  o.log,
	}

	pool := pond.NewPool(o.policy.MaxConcurrent)
	defer pool.StopAndWait()

	status := make(map[string]Status, len(p.Stages))
	for _, stage := range p.Stages {
		status[stage.ID] = StatusPending
	}

	done := make(chan *StageResult)
	inFlight := 0
	terminal := 0
	cancelled := false
	log := o.log.With("run", run.ID)
	log.Info("run started", "pipeline", p.Name, "stages", len(p.Stages))

	record := func(res *StageResult) {
		status[res.StageID] = res.Status
		run.Stages[res.StageID] = res
		terminal++
	}
	skip := func(stage *Stage, reason error) {
		log.Info("stage skipped", "stage", stage.ID, "reason", reason)
		record(&StageResult{StageID: stage.ID, Status: StatusSkipped, Err: reason})
	}

	for terminal < len(p.Stages) || inFlight > 0 {
		if ctx.Err() != nil && !cancelled {
			cancelled = true
			for _, stage := range p.Stages {
				if status[stage.ID] == StatusPending {
					skip(stage, fmt.Errorf("run cancelled: %w", ctx.Err()))
				}
			}
		}

		if !cancelled {
			o.dispatch(ctx, p, exec, base, run, status, pool, done, &inFlight, skip)
		}

		if inFlight == 0 {
			if terminal >= len(p.Stages) {
				break
			}
			// Unreachable for a validated (acyclic) pipeline; resolve
			// rather than wedge.
			for _, stage := range p.Stages {
				if status[stage.ID] == StatusPending {
					skip(stage, fmt.Errorf("stage was never dispatchable"))
				}
			}
			continue
		}

		if cancelled {
			res := <-done
			inFlight--
			if res.Status != StatusSucceeded {
				res.Status = StatusSkipped
			}
			record(res)
			continue
		}

		select {
		case res := <-done:
			inFlight--
			record(res)
			log.Info("stage finished", "stage", res.StageID, "status", res.Status, "attempts", res.Attempts)
		case <-ctx.Done():
		}
	}

	run.Status = RunSucceeded
	for _, res := range run.Stages {
		if res.Status != StatusSucceeded {
			run.Status = RunPartiallyFailed
			break
		}
	}
	log.Info("run finished", "status", run.Status)
	return run, nil
}

// dispatch marks every stage with a non-succeeded terminal prerequisite as
// Skipped and submits every stage whose prerequisites all succeeded. It
// loops to a fixpoint so skip propagation cascades through the graph in
// one pass.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	p *Pipeline,
	exec *Executor,
	base map[string]string,
	run *Run,
	status map[string]Status,
	pool pond.Pool,
	done chan<- *StageResult,
	inFlight *int,
	skip func(*Stage, error),
) {
	for changed := true; changed; {
		changed = false
		for _, stage := range p.Stages {
			if status[stage.ID] != StatusPending {
				continue
			}

			ready := true
			var blockedBy string
			for _, dep := range stage.Needs {
				depStatus := status[dep.Stage]
				if !depStatus.Terminal() {
					ready = false
					break
				}
				if depStatus != StatusSucceeded {
					blockedBy = dep.Stage
					break
				}
			}
			if blockedBy != "" {
				skip(stage, fmt.Errorf("prerequisite %s did not succeed", blockedBy))
				changed = true
				continue
			}
			if !ready {
				continue
			}

			bindings, err := stageBindings(stage, base, run.Stages)
			if err != nil {
				skip(stage, err)
				changed = true
				continue
			}

			status[stage.ID] = StatusRunning
			*inFlight++
			stage := stage
			pool.Submit(func() {
				done <- exec.Run(ctx, stage, bindings)
			})
		}
	}
}
