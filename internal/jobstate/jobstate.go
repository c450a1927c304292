package jobstate

import (
	"context"
	"fmt"

	"github.com/alexbckr/sdk/internal/stepmodel"
)

// UploadSink is the optional synchronization-pipeline hook a JobState
// enqueues graph objects into as a step writes them. The concrete
// implementation lives in internal/sync; declaring the interface here (at
// the point of use) keeps jobstate free of a dependency on sync.
type UploadSink interface {
	EnqueueEntities(ctx context.Context, stepID string, entities []*stepmodel.Entity) error
	EnqueueRelationships(ctx context.Context, stepID string, relationships []*stepmodel.Relationship) error
	WaitIdle(ctx context.Context) error
}

// Engine holds every run-scoped singleton: the graph object store, the
// duplicate-key and type trackers, the shared data store, the
// beforeAddEntity hook, and the optional upload sink. Its lifetime
// coincides with one collection run; a JobState is a thin, short-lived
// façade over it created fresh for each step.
type Engine struct {
	Store           *GraphObjectStore
	DuplicateKeys   *DuplicateKeyTracker
	Types           *TypeTracker
	Data            *DataStore
	BeforeAddEntity stepmodel.BeforeAddEntityHook
	Sink            UploadSink
}

// NewEngine constructs a run-scoped Engine. rootDir, if non-empty,
// is where the graph object store persists flushed batches. hook may be
// nil, in which case the identity hook is used. sink may be nil if no
// upload pipeline is configured for this run.
func NewEngine(rootDir string, hook stepmodel.BeforeAddEntityHook, sink UploadSink) *Engine {
	if hook == nil {
		hook = stepmodel.IdentityBeforeAddEntity
	}
	return &Engine{
		Store:           NewGraphObjectStore(rootDir),
		DuplicateKeys:   NewDuplicateKeyTracker(),
		Types:           NewTypeTracker(),
		Data:            NewDataStore(),
		BeforeAddEntity: hook,
		Sink:            sink,
	}
}

// NewJobState creates the per-step façade for stepID. It is flushed once at
// step end (via Flush) and then discarded by the caller.
func (e *Engine) NewJobState(stepID string) *JobState {
	return &JobState{
		engine: e,
		stepID: stepID,
		writer: e.Store.NewStepWriter(stepID),
	}
}

// JobState is the per-step façade through which a step's ExecutionHandler
// reads and writes shared run state. It implements stepmodel.JobState.
type JobState struct {
	engine *Engine
	stepID string
	writer *StepWriter
}

var _ stepmodel.JobState = (*JobState)(nil)

// AddEntity applies the beforeAddEntity hook, registers the entity's _key
// with the duplicate key tracker, records its _type, persists it via the
// graph object store, and enqueues it into the upload sink if present.
func (j *JobState) AddEntity(ctx context.Context, e *stepmodel.Entity) error {
	e, err := j.engine.BeforeAddEntity(ctx, e)
	if err != nil {
		return fmt.Errorf("beforeAddEntity hook rejected entity %q: %w", e.Key, err)
	}
	if err := j.engine.DuplicateKeys.Admit(e.Key, j.stepID); err != nil {
		return err
	}
	j.engine.Types.Record(j.stepID, e.Type)
	j.writer.WriteEntity(e)
	if j.engine.Sink != nil {
		if err := j.engine.Sink.EnqueueEntities(ctx, j.stepID, []*stepmodel.Entity{e}); err != nil {
			return err
		}
	}
	return nil
}

// AddEntities adds each entity in order, stopping at (and returning) the
// first error.
func (j *JobState) AddEntities(ctx context.Context, es []*stepmodel.Entity) error {
	for _, e := range es {
		if err := j.AddEntity(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// AddRelationship has the same contract as AddEntity, minus the
// beforeAddEntity hook.
func (j *JobState) AddRelationship(ctx context.Context, r *stepmodel.Relationship) error {
	if err := j.engine.DuplicateKeys.Admit(r.Key, j.stepID); err != nil {
		return err
	}
	j.engine.Types.Record(j.stepID, r.Type)
	j.writer.WriteRelationship(r)
	if j.engine.Sink != nil {
		if err := j.engine.Sink.EnqueueRelationships(ctx, j.stepID, []*stepmodel.Relationship{r}); err != nil {
			return err
		}
	}
	return nil
}

// AddRelationships adds each relationship in order, stopping at (and
// returning) the first error.
func (j *JobState) AddRelationships(ctx context.Context, rs []*stepmodel.Relationship) error {
	for _, r := range rs {
		if err := j.AddRelationship(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// FindEntity looks up an entity by _key across the entire run's graph
// object store.
func (j *JobState) FindEntity(ctx context.Context, key string) (*stepmodel.Entity, bool, error) {
	e, ok := j.engine.Store.FindEntity(key)
	return e, ok, nil
}

// IterateEntities streams every stored entity matching entityType (or all
// entities, if entityType is empty) to fn, stopping early if fn errors.
func (j *JobState) IterateEntities(ctx context.Context, entityType string, fn func(*stepmodel.Entity) error) error {
	return j.engine.Store.IterateEntities(entityType, fn)
}

// IterateRelationships is IterateEntities' relationship counterpart.
func (j *JobState) IterateRelationships(ctx context.Context, relationshipType string, fn func(*stepmodel.Relationship) error) error {
	return j.engine.Store.IterateRelationships(relationshipType, fn)
}

// SetData stores value under (scope, key) in the shared, process-wide data store.
func (j *JobState) SetData(scope, key string, value any) {
	j.engine.Data.Set(scope, key, value)
}

// GetData retrieves the value stored under (scope, key), if any.
func (j *JobState) GetData(scope, key string) (any, bool) {
	return j.engine.Data.Get(scope, key)
}

// Flush forces the graph object store to materialize this step's pending
// writes.
func (j *JobState) Flush(ctx context.Context) error {
	return j.writer.Flush()
}

// WaitUntilUploadsComplete blocks until the upload sink drains, if one is
// configured.
func (j *JobState) WaitUntilUploadsComplete(ctx context.Context) error {
	if j.engine.Sink == nil {
		return nil
	}
	return j.engine.Sink.WaitIdle(ctx)
}

// EncounteredTypes returns the set of _type values this step has recorded
// against the shared Type Tracker so far.
func (j *JobState) EncounteredTypes() []string {
	return j.engine.Types.EncounteredTypes(j.stepID)
}
