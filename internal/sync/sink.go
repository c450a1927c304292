package sync

import (
	"context"
	"sync"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/stepmodel"
)

// Sink is the live upload sink a jobstate.Engine enqueues graph objects
// into as a step writes them, implementing jobstate.UploadSink. Objects are
// buffered until a batch reaches UploadBatchSize or WaitIdle is called,
// then dispatched through Client.UploadGraphObjectData.
type Sink struct {
	client *Client
	job    *SynchronizationJob

	mu            sync.Mutex
	entities      []*stepmodel.Entity
	relationships []*stepmodel.Relationship

	inFlight sync.WaitGroup
	errMu    sync.Mutex
	firstErr error
}

// NewSink creates a live upload sink against an already-initiated job.
func NewSink(client *Client, job *SynchronizationJob) *Sink {
	return &Sink{client: client, job: job}
}

// EnqueueEntities buffers entities for upload, flushing a full batch
// immediately if the buffer has reached UploadBatchSize.
func (s *Sink) EnqueueEntities(ctx context.Context, stepID string, entities []*stepmodel.Entity) error {
	s.mu.Lock()
	s.entities = append(s.entities, entities...)
	var flush []*stepmodel.Entity
	if len(s.entities) >= UploadBatchSize {
		flush, s.entities = s.entities[:UploadBatchSize], append([]*stepmodel.Entity(nil), s.entities[UploadBatchSize:]...)
	}
	s.mu.Unlock()

	if len(flush) == 0 {
		return nil
	}
	return s.dispatch(ctx, flush, nil)
}

// EnqueueRelationships is EnqueueEntities' relationship counterpart.
func (s *Sink) EnqueueRelationships(ctx context.Context, stepID string, relationships []*stepmodel.Relationship) error {
	s.mu.Lock()
	s.relationships = append(s.relationships, relationships...)
	var flush []*stepmodel.Relationship
	if len(s.relationships) >= UploadBatchSize {
		flush, s.relationships = s.relationships[:UploadBatchSize], append([]*stepmodel.Relationship(nil), s.relationships[UploadBatchSize:]...)
	}
	s.mu.Unlock()

	if len(flush) == 0 {
		return nil
	}
	return s.dispatch(ctx, nil, flush)
}

// WaitIdle flushes any partial batch still buffered and blocks until every
// dispatched upload (including ones dispatched concurrently by Enqueue
// calls still in flight) has completed.
func (s *Sink) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	entities, relationships := s.entities, s.relationships
	s.entities, s.relationships = nil, nil
	s.mu.Unlock()

	if len(entities) > 0 || len(relationships) > 0 {
		if err := s.dispatch(ctx, entities, relationships); err != nil {
			s.recordErr(err)
		}
	}

	s.inFlight.Wait()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

func (s *Sink) dispatch(ctx context.Context, entities []*stepmodel.Entity, relationships []*stepmodel.Relationship) error {
	logger := ctxlog.FromContext(ctx)
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		if err := s.client.UploadGraphObjectData(ctx, s.job.ID, entities, relationships); err != nil {
			logger.Error("live upload batch failed", "error", err)
			s.recordErr(err)
		}
	}()
	return nil
}

func (s *Sink) recordErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}
