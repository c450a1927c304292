package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/dag"
	"github.com/alexbckr/sdk/internal/jobstate"
	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func newEngine() *jobstate.Engine {
	return jobstate.NewEngine("", nil, nil)
}

func runOptions(engine *jobstate.Engine, opts Options) Options {
	opts.NewJobState = func(stepID string) stepmodel.JobState { return engine.NewJobState(stepID) }
	return opts
}

func recordingHandler(order *[]string, mu *sync.Mutex, id string, err error) stepmodel.ExecutionHandler {
	return func(ctx context.Context, state stepmodel.JobState) error {
		mu.Lock()
		*order = append(*order, id)
		mu.Unlock()
		return err
	}
}

func TestRun_LinearChain(t *testing.T) {
	var order []string
	var mu sync.Mutex

	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: recordingHandler(&order, &mu, "A", nil)},
		{ID: "B", Name: "B", DependsOn: []string{"A"}, ExecutionHandler: recordingHandler(&order, &mu, "B", nil)},
		{ID: "C", Name: "C", DependsOn: []string{"B"}, ExecutionHandler: recordingHandler(&order, &mu, "C", nil)},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{}))
	require.NoError(t, err)

	statuses := make(map[string]stepmodel.Status)
	for _, r := range results {
		statuses[r.ID] = r.Status
	}
	require.Equal(t, stepmodel.StatusSuccess, statuses["A"])
	require.Equal(t, stepmodel.StatusSuccess, statuses["B"])
	require.Equal(t, stepmodel.StatusSuccess, statuses["C"])
	require.Equal(t, []string{"A", "B", "C"}, order)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"A", "B", "C"}, ids, "results must be ordered by topological order")
}

func TestRun_DiamondWithFailure(t *testing.T) {
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error { return nil }},
		{ID: "B", Name: "B", DependsOn: []string{"A"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			return errors.New("boom")
		}},
		{ID: "C", Name: "C", DependsOn: []string{"A"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error { return nil }},
		{ID: "D", Name: "D", DependsOn: []string{"B", "C"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error { return nil }},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{}))
	require.NoError(t, err)

	statuses := make(map[string]stepmodel.Status)
	for _, r := range results {
		statuses[r.ID] = r.Status
	}
	require.Equal(t, stepmodel.StatusSuccess, statuses["A"])
	require.Equal(t, stepmodel.StatusFailure, statuses["B"])
	require.Equal(t, stepmodel.StatusSuccess, statuses["C"])
	require.Equal(t, stepmodel.StatusPartialSuccessDueToDependencyFailure, statuses["D"])
}

func TestRun_DisabledBarrier(t *testing.T) {
	cHandlerCalled := false
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error { return nil }},
		{ID: "B", Name: "B", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error { return nil }},
		{ID: "C", Name: "C", DependsOn: []string{"B"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			cHandlerCalled = true
			return nil
		}},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{
		StartStates: map[string]stepmodel.StepStartState{
			"B": {Disabled: true},
		},
	}))
	require.NoError(t, err)

	statuses := make(map[string]stepmodel.Status)
	for _, r := range results {
		statuses[r.ID] = r.Status
	}
	require.Equal(t, stepmodel.StatusSuccess, statuses["A"])
	require.Equal(t, stepmodel.StatusDisabled, statuses["B"])
	require.Equal(t, stepmodel.StatusDisabled, statuses["C"])
	require.False(t, cHandlerCalled, "C's handler must never run when its dependency is disabled")
}

func TestRun_CachedStep(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "entities", "e1.json"), []map[string]any{
		{"_key": "e1", "_type": "acme_widget"},
		{"_key": "e2", "_type": "acme_widget"},
		{"_key": "e3", "_type": "acme_widget"},
	})
	writeJSON(t, filepath.Join(dir, "relationships", "r1.json"), []map[string]any{
		{"_key": "r1", "_type": "acme_widget_has_widget", "_fromEntityKey": "e1", "_toEntityKey": "e2"},
		{"_key": "r2", "_type": "acme_widget_has_widget", "_fromEntityKey": "e2", "_toEntityKey": "e3"},
	})

	handlerCalled := false
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			handlerCalled = true
			return nil
		}},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{
		StartStates: map[string]stepmodel.StepStartState{
			"A": {StepCachePath: dir},
		},
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, stepmodel.StatusCached, results[0].Status)
	require.False(t, handlerCalled, "cached step must never invoke its execution handler")

	reader := engine.NewJobState("reader")
	var entityKeys, relKeys []string
	require.NoError(t, reader.IterateEntities(context.Background(), "", func(e *stepmodel.Entity) error {
		entityKeys = append(entityKeys, e.Key)
		return nil
	}))
	require.NoError(t, reader.IterateRelationships(context.Background(), "", func(r *stepmodel.Relationship) error {
		relKeys = append(relKeys, r.Key)
		return nil
	}))
	require.ElementsMatch(t, []string{"e1", "e2", "e3"}, entityKeys)
	require.ElementsMatch(t, []string{"r1", "r2"}, relKeys)
}

func TestRun_CacheLoaderNoFilesFallsThroughToHandler(t *testing.T) {
	dir := t.TempDir()
	handlerCalled := false
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			handlerCalled = true
			return nil
		}},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{
		StartStates: map[string]stepmodel.StepStartState{
			"A": {StepCachePath: dir},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, stepmodel.StatusSuccess, results[0].Status)
	require.True(t, handlerCalled, "with no cached files, execution must fall through to the handler")
}

func TestRun_FatalErrorAbortsRun(t *testing.T) {
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			return stepmodel.Fatal(errors.New("remote service gone"))
		}},
		{ID: "B", Name: "B", DependsOn: []string{"A"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			t.Fatal("B must never run after a fatal ancestor error")
			return nil
		}},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	_, err = Run(testContext(), graph, runOptions(engine, Options{}))
	require.Error(t, err)
	require.True(t, stepmodel.IsFatal(err))
}

func TestRun_DuplicateKeyErrorFailsInsertingStep(t *testing.T) {
	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			return s.AddEntity(ctx, &stepmodel.Entity{Key: "dup", Type: "acme_widget"})
		}},
		{ID: "B", Name: "B", DependsOn: []string{"A"}, ExecutionHandler: func(ctx context.Context, s stepmodel.JobState) error {
			return s.AddEntity(ctx, &stepmodel.Entity{Key: "dup", Type: "acme_widget"})
		}},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	results, err := Run(testContext(), graph, runOptions(engine, Options{}))
	require.NoError(t, err)

	statuses := make(map[string]stepmodel.Status)
	for _, r := range results {
		statuses[r.ID] = r.Status
	}
	require.Equal(t, stepmodel.StatusSuccess, statuses["A"])
	require.Equal(t, stepmodel.StatusFailure, statuses["B"])
}

func TestRun_ConcurrencyCapIsHonored(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	release := make(chan struct{})

	handler := func(ctx context.Context, s stepmodel.JobState) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	steps := []*stepmodel.Step{
		{ID: "A", Name: "A", ExecutionHandler: handler},
		{ID: "B", Name: "B", ExecutionHandler: handler},
		{ID: "C", Name: "C", ExecutionHandler: handler},
	}
	graph, err := dag.Build(steps)
	require.NoError(t, err)

	engine := newEngine()
	done := make(chan struct{})
	var results []*stepmodel.StepResult
	go func() {
		results, err = Run(testContext(), graph, runOptions(engine, Options{Concurrency: 2}))
		close(done)
	}()

	close(release)
	<-done
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.LessOrEqual(t, maxInFlight, 2)
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
