package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/dag"
	"github.com/alexbckr/sdk/internal/jobstate"
	"github.com/alexbckr/sdk/internal/scheduler"
	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/alexbckr/sdk/internal/sync"
)

// Run executes one full collection-and-synchronization cycle: builds the
// dependency graph from the app's step catalog, initiates a synchronization
// job against APIBaseURL, runs the scheduler with a live upload sink wired
// to that job, finalizes or aborts the job depending on outcome, and
// persists a run summary. Once the job has been initiated it returns the
// summary whether or not the run failed, so callers can inspect partial
// results; if the graph cannot be built or the job cannot be initiated it
// returns a nil summary.
func (a *App) Run(ctx context.Context) (*ExecuteIntegrationResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer(ctx)
	defer func() {
		if err := a.closeHealthCheckServer(ctx); err != nil {
			a.logger.Error("error closing health check server", "error", err)
		}
	}()

	graph, err := dag.Build(a.steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	client := sync.NewClient(a.cfg.APIBaseURL, nil, sync.DefaultRetryConfig())

	events := sync.NewEventQueue(a.eventPublisher(), 64)

	job, err := client.Initiate(ctx, a.cfg.IntegrationInstanceID)
	if err != nil {
		return nil, fmt.Errorf("initiating synchronization job: %w", err)
	}
	a.logger = a.logger.With("jobId", job.ID, "integrationJobId", job.IntegrationJobID)
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Info("synchronization job initiated")
	events.Enqueue(ctx, sync.Event{Name: "synchronization.initiated", Data: map[string]any{"jobId": job.ID}})

	sink := sync.NewSink(client, job)
	engine := jobstate.NewEngine(a.cfg.OutputRootDir, a.hook, sink)

	startStates := a.startStates()

	results, runErr := scheduler.Run(ctx, graph, scheduler.Options{
		Concurrency: a.cfg.concurrency(),
		StartStates: startStates,
		NewJobState: func(stepID string) stepmodel.JobState { return engine.NewJobState(stepID) },
		Logger:      a.logger,
	})

	if waitErr := sink.WaitIdle(ctx); waitErr != nil && runErr == nil {
		runErr = waitErr
	}

	summary := buildSummary(a.steps, results)

	if runErr != nil {
		a.logger.Error("run failed, aborting synchronization job", "error", runErr)
		events.Enqueue(ctx, sync.Event{Name: "synchronization.upload_failed", Data: map[string]any{"jobId": job.ID, "error": runErr.Error()}})
		if _, abortErr := client.Abort(ctx, job.ID, runErr.Error()); abortErr != nil {
			a.logger.Error("abort failed", "error", abortErr)
			runErr = fmt.Errorf("aborting after run failure (original: %v): %w", runErr, abortErr)
		}
		if waitErr := events.WaitIdle(ctx); waitErr != nil {
			a.logger.Error("event queue failed to drain", "error", waitErr)
		}
		_ = a.persistSummary(summary)
		return summary, runErr
	}

	if _, err := client.Finalize(ctx, job.ID, summary.Metadata.PartialDatasets); err != nil {
		a.logger.Error("finalize failed", "error", err)
		if waitErr := events.WaitIdle(ctx); waitErr != nil {
			a.logger.Error("event queue failed to drain", "error", waitErr)
		}
		_ = a.persistSummary(summary)
		return summary, fmt.Errorf("finalizing synchronization job: %w", err)
	}
	events.Enqueue(ctx, sync.Event{Name: "synchronization.finalized", Data: map[string]any{"jobId": job.ID}})
	if waitErr := events.WaitIdle(ctx); waitErr != nil {
		a.logger.Error("event queue failed to drain", "error", waitErr)
	}

	if err := a.persistSummary(summary); err != nil {
		a.logger.Error("failed to persist run summary", "error", err)
	}

	a.logger.Info("run finished")
	a.logger.Debug("App.Run method finished.")
	return summary, nil
}

// eventPublisher builds the configured EventPublisher, falling back to a
// no-op if no event publishing endpoint is configured or the connection
// attempt fails — the event stream is a side channel for operator
// visibility, not load-bearing for the run's correctness.
func (a *App) eventPublisher() sync.EventPublisher {
	if a.cfg.EventPublisherURL == "" {
		return sync.NoopEventPublisher{}
	}
	publisher, err := sync.NewSocketIOPublisher(a.cfg.EventPublisherURL, "/", a.cfg.InsecureSkipVerify, 10*time.Second)
	if err != nil {
		a.logger.Warn("failed to connect event publisher, continuing without it", "error", err)
		return sync.NoopEventPublisher{}
	}
	return publisher
}

// startStates derives each step's StepStartState from DisabledSteps and
// CacheRootDir: a disabled step's id is listed in DisabledSteps; when
// CacheRootDir is set, every step's StepCachePath is CacheRootDir/<stepID>,
// so the scheduler tries the cache loader there first and runs the handler
// only if nothing was loaded.
func (a *App) startStates() map[string]stepmodel.StepStartState {
	states := make(map[string]stepmodel.StepStartState, len(a.steps))
	disabled := make(map[string]bool)
	for _, id := range strings.Split(a.cfg.DisabledSteps, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			disabled[id] = true
		}
	}

	for _, step := range a.steps {
		state := stepmodel.StepStartState{Disabled: disabled[step.ID]}
		if a.cfg.CacheRootDir != "" {
			state.StepCachePath = filepath.Join(a.cfg.CacheRootDir, step.ID)
		}
		states[step.ID] = state
	}
	return states
}
