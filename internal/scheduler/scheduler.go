package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexbckr/sdk/internal/cache"
	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/dag"
	"github.com/alexbckr/sdk/internal/stepmodel"
)

// CacheLoader loads pre-materialized graph objects for a step, in place of
// running its handler. The default is cache.Load; tests substitute a stub.
type CacheLoader func(ctx context.Context, baseDir string, sink cache.Sink) (cache.Result, error)

// Options configures a Run.
type Options struct {
	// Concurrency bounds how many steps may be in flight at once. Zero
	// defaults to 1 (sequential).
	Concurrency int

	// StartStates controls whether a step runs, and optionally redirects it
	// to the CacheLoader, keyed by step id. A zero-value entry (the default
	// for an id absent from the map) runs the step normally.
	StartStates map[string]stepmodel.StepStartState

	// NewJobState creates the per-step façade backing one step's handler.
	// It is called once per dispatched step; the returned value is flushed
	// and discarded before the step's result becomes terminal.
	NewJobState func(stepID string) stepmodel.JobState

	// CacheLoad overrides the cache loader. Defaults to cache.Load.
	CacheLoad CacheLoader

	// Logger overrides the logger read from ctx via ctxlog.
	Logger *slog.Logger
}

// Run executes graph to completion and returns the step results in the
// graph's topological order, regardless of execution order.
//
// Implementation note: the working graph is a mutable clone with nodes
// removed as they dispatch. A node is removed from the working graph at
// dispatch time, not completion time, so a step can become graph-leaf-ready
// in the working clone before its dependency has actually finished;
// readiness additionally requires every dependency's
// StepResult to be Terminal(), which is the gate that actually governs when
// a step starts.
//
// Disabled steps (and steps with a disabled transitive dependency) are
// seeded with a terminal DISABLED status by seedResults. Because of that,
// the dispatch loop's own "any leaf whose result is already terminal gets
// removed without executing" pass is sufficient to skip them and cascade
// the skip to their dependents — no separate isEnabled() runtime check is
// needed once seeding has done this work.
func Run(ctx context.Context, graph *dag.Graph, opts Options) ([]*stepmodel.StepResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	cacheLoad := opts.CacheLoad
	if cacheLoad == nil {
		cacheLoad = cache.Load
	}
	logger := opts.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}

	working := graph.Clone()
	results := seedResults(graph, opts.StartStates)
	depsOf := dependencyIndex(graph)

	type completion struct {
		id     string
		result *stepmodel.StepResult
		fatal  error
	}
	completions := make(chan completion)

	inFlight := 0
	paused := false
	var fatalErr error

	depsTerminal := func(id string) bool {
		for _, depID := range depsOf[id] {
			if !results[depID].Status.Terminal() {
				return false
			}
		}
		return true
	}

	dispatchMore := func() {
		// Remove leaves whose result is already terminal (disabled barriers)
		// without executing them; repeat until no more such leaves remain,
		// so disabled status cascades through the whole barrier chain.
		for progressed := true; progressed; {
			progressed = false
			for _, leaf := range working.Leaves() {
				if results[leaf.ID].Status.Terminal() {
					working.Remove(leaf.ID)
					progressed = true
				}
			}
		}

		if paused {
			return
		}

		for _, leaf := range working.Leaves() {
			if inFlight >= concurrency {
				break
			}
			if !depsTerminal(leaf.ID) {
				continue
			}
			step := leaf.Step
			startState := opts.StartStates[step.ID]
			depSnapshot := make(map[string]stepmodel.Status, len(depsOf[step.ID]))
			for _, depID := range depsOf[step.ID] {
				depSnapshot[depID] = results[depID].Status
			}

			working.Remove(step.ID)
			inFlight++

			stepLogger := logger.With("step", step.ID)
			stepCtx := ctxlog.WithLogger(ctx, stepLogger)

			go func() {
				res, fatal := executeStep(stepCtx, step, depSnapshot, startState, opts.NewJobState, cacheLoad, stepLogger)
				completions <- completion{id: step.ID, result: res, fatal: fatal}
			}()
		}
	}

	dispatchMore()

	for len(working.Nodes) > 0 || inFlight > 0 {
		if inFlight == 0 {
			// No in-flight work and nothing left to dispatch: a well-formed
			// DAG never reaches this with nodes remaining, but guard against
			// a stuck run rather than hanging forever.
			if fatalErr == nil {
				fatalErr = ErrStuck
			}
			break
		}
		c := <-completions
		inFlight--
		results[c.id] = c.result
		if c.fatal != nil {
			paused = true
			if fatalErr == nil {
				fatalErr = c.fatal
			}
			continue
		}
		dispatchMore()
	}

	ordered := make([]*stepmodel.StepResult, 0, len(results))
	for _, id := range graph.TopologicalOrder() {
		ordered = append(ordered, results[id])
	}

	if fatalErr != nil {
		return ordered, fatalErr
	}
	return ordered, nil
}

// seedResults initializes every step's result in topological order, either
// DISABLED (if the step is disabled or has a disabled transitive
// dependency) or PENDING_EVALUATION.
func seedResults(graph *dag.Graph, startStates map[string]stepmodel.StepStartState) map[string]*stepmodel.StepResult {
	results := make(map[string]*stepmodel.StepResult, len(graph.Nodes))
	disabled := make(map[string]bool, len(graph.Nodes))

	for _, id := range graph.TopologicalOrder() {
		node := graph.Nodes[id]
		isDisabled := startStates[id].Disabled
		if !isDisabled {
			for depID := range node.Deps {
				if disabled[depID] {
					isDisabled = true
					break
				}
			}
		}
		disabled[id] = isDisabled

		status := stepmodel.StatusPendingEvaluation
		if isDisabled {
			status = stepmodel.StatusDisabled
		}
		results[id] = stepmodel.NewStepResult(node.Step, status)
	}
	return results
}

// dependencyIndex snapshots each node's dependency ids from the original,
// unmutated graph so readiness checks survive the working clone's node
// removal.
func dependencyIndex(graph *dag.Graph) map[string][]string {
	index := make(map[string][]string, len(graph.Nodes))
	for id, n := range graph.Nodes {
		ids := make([]string, 0, len(n.Deps))
		for depID := range n.Deps {
			ids = append(ids, depID)
		}
		index[id] = ids
	}
	return index
}

// executeStep runs one scheduled step to a terminal result. A non-nil
// second return value is a fatal error: the caller pauses the scheduler and
// aborts the entire run with it rather than recording a normal result.
func executeStep(
	ctx context.Context,
	step *stepmodel.Step,
	depStatuses map[string]stepmodel.Status,
	startState stepmodel.StepStartState,
	newJobState func(string) stepmodel.JobState,
	cacheLoad CacheLoader,
	logger *slog.Logger,
) (*stepmodel.StepResult, error) {
	js := newJobState(step.ID)
	result := stepmodel.NewStepResult(step, stepmodel.StatusPendingEvaluation)

	var status stepmodel.Status

	if startState.CacheEnabled() {
		cacheRes, err := cacheLoad(ctx, startState.StepCachePath, js)
		switch {
		case err != nil:
			logger.Error("cache load failed", "error", err)
			status = stepmodel.StatusFailure
		case cacheRes.Loaded():
			status = stepmodel.StatusCached
		default:
			logger.Warn("step cache path configured but no cached objects were found; running handler instead",
				"path", startState.StepCachePath)
		}
	}

	if status == "" {
		if err := step.ExecutionHandler(ctx, js); err != nil {
			if stepmodel.IsFatal(err) {
				result.Status = stepmodel.StatusFailure
				result.EncounteredTypes = js.EncounteredTypes()
				return result, err
			}
			logger.Error("step handler failed", "error", err)
			status = stepmodel.StatusFailure
		} else {
			status = stepmodel.StatusSuccess
			for _, depStatus := range depStatuses {
				if depStatus == stepmodel.StatusFailure || depStatus == stepmodel.StatusPartialSuccessDueToDependencyFailure {
					status = stepmodel.StatusPartialSuccessDueToDependencyFailure
					break
				}
			}
		}
	}

	if err := js.Flush(ctx); err != nil {
		logger.Error("flush failed", "error", err)
		status = stepmodel.StatusFailure
	} else if err := js.WaitUntilUploadsComplete(ctx); err != nil {
		logger.Error("waiting for uploads to complete failed", "error", err)
		status = stepmodel.StatusFailure
	}

	result.Status = status
	result.EncounteredTypes = js.EncounteredTypes()

	if status == stepmodel.StatusSuccess || status == stepmodel.StatusPartialSuccessDueToDependencyFailure {
		warnUndeclaredTypes(logger, step, result.EncounteredTypes)
	}

	return result, nil
}

func warnUndeclaredTypes(logger *slog.Logger, step *stepmodel.Step, encountered []string) {
	declared := make(map[string]struct{}, len(step.DeclaredTypes()))
	for _, t := range step.DeclaredTypes() {
		declared[t] = struct{}{}
	}
	var undeclared []string
	for _, t := range encountered {
		if _, ok := declared[t]; !ok {
			undeclared = append(undeclared, t)
		}
	}
	if len(undeclared) > 0 {
		logger.Warn("step produced undeclared types", "step", step.ID, "types", undeclared)
	}
}

// ErrStuck is returned (wrapped) if a run cannot make forward progress
// despite having non-terminal nodes remaining. A valid, fatal-free DAG
// never triggers this; it exists as a defensive backstop.
var ErrStuck = fmt.Errorf("scheduler: run stalled with no in-flight steps and nodes remaining")
