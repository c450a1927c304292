package sync

import (
	"context"
	"fmt"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/stepmodel"
)

// GraphObjectSource supplies every graph object the run has collected,
// feeding uploadCollectedData. internal/jobstate's GraphObjectStore
// implements it by returning its in-memory index of flushed objects.
type GraphObjectSource interface {
	Entities(ctx context.Context) ([]*stepmodel.Entity, error)
	Relationships(ctx context.Context) ([]*stepmodel.Relationship, error)
}

// Pipeline coordinates one synchronization job's full lifecycle: initiate,
// upload, and exactly one of finalize or abort, with an event queue
// awaited for idle before returning regardless of outcome.
type Pipeline struct {
	Client *Client
	Events *EventQueue
}

// NewPipeline wires a Client and EventQueue together. events may be nil, in
// which case event publishing is a no-op.
func NewPipeline(client *Client, events *EventQueue) *Pipeline {
	if events == nil {
		events = NewEventQueue(NoopEventPublisher{}, 1)
	}
	return &Pipeline{Client: client, Events: events}
}

// SynchronizeCollectedData runs one job end to end: initiate, upload every
// persisted graph object from source, then finalize. An upload failure
// triggers abort; an abort failure is logged and re-raised in preference
// to the original error. Initiate and finalize failures are returned
// without calling abort. The event queue is always awaited for
// idle before returning, success or failure.
func (p *Pipeline) SynchronizeCollectedData(ctx context.Context, integrationInstanceID string, source GraphObjectSource, partial PartialDatasets) (*SynchronizationJob, error) {
	defer func() {
		if err := p.Events.WaitIdle(ctx); err != nil {
			ctxlog.FromContext(ctx).Error("event queue failed to drain", "error", err)
		}
	}()

	job, err := p.Client.Initiate(ctx, integrationInstanceID)
	if err != nil {
		return nil, fmt.Errorf("initiating synchronization job: %w", err)
	}

	logger := ctxlog.FromContext(ctx).With("jobId", job.ID, "integrationJobId", job.IntegrationJobID)
	ctx = ctxlog.WithLogger(ctx, logger)
	p.Events.Enqueue(ctx, Event{Name: "synchronization.initiated", Data: map[string]any{"jobId": job.ID}})

	if err := p.uploadCollectedData(ctx, job, source); err != nil {
		logger.Error("upload failed, aborting synchronization job", "error", err)
		p.Events.Enqueue(ctx, Event{Name: "synchronization.upload_failed", Data: map[string]any{"jobId": job.ID, "error": err.Error()}})

		if _, abortErr := p.Client.Abort(ctx, job.ID, err.Error()); abortErr != nil {
			logger.Error("abort failed", "error", abortErr)
			return nil, fmt.Errorf("aborting after upload failure (original: %v): %w", err, abortErr)
		}
		return nil, err
	}

	finalized, err := p.Client.Finalize(ctx, job.ID, partial)
	if err != nil {
		return nil, fmt.Errorf("finalizing synchronization job: %w", err)
	}
	p.Events.Enqueue(ctx, Event{Name: "synchronization.finalized", Data: map[string]any{"jobId": job.ID}})
	return finalized, nil
}

// uploadCollectedData reads every entity and relationship from source and
// passes both to a single UploadGraphObjectData call, which skips an empty
// array.
func (p *Pipeline) uploadCollectedData(ctx context.Context, job *SynchronizationJob, source GraphObjectSource) error {
	entities, err := source.Entities(ctx)
	if err != nil {
		return fmt.Errorf("reading collected entities: %w", err)
	}
	relationships, err := source.Relationships(ctx)
	if err != nil {
		return fmt.Errorf("reading collected relationships: %w", err)
	}
	return p.Client.UploadGraphObjectData(ctx, job.ID, entities, relationships)
}
