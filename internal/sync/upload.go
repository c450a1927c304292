package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/alexbckr/sdk/internal/stepmodel"
)

// UploadGraphObjectData chunks entities and relationships into batches of at
// most UploadBatchSize and dispatches up to UploadConcurrency batches in
// parallel via uploadDataChunk, for each non-empty array in turn.
func (c *Client) UploadGraphObjectData(ctx context.Context, jobID string, entities []*stepmodel.Entity, relationships []*stepmodel.Relationship) error {
	if len(entities) > 0 {
		if err := uploadChunks(ctx, chunkEntities(entities, UploadBatchSize), func(ctx context.Context, batch []*stepmodel.Entity) error {
			return c.uploadEntityChunk(ctx, jobID, batch)
		}); err != nil {
			return err
		}
	}
	if len(relationships) > 0 {
		if err := uploadChunks(ctx, chunkRelationships(relationships, UploadBatchSize), func(ctx context.Context, batch []*stepmodel.Relationship) error {
			return c.uploadRelationshipChunk(ctx, jobID, batch)
		}); err != nil {
			return err
		}
	}
	return nil
}

func chunkEntities(entities []*stepmodel.Entity, size int) [][]*stepmodel.Entity {
	var out [][]*stepmodel.Entity
	for len(entities) > 0 {
		n := size
		if n > len(entities) {
			n = len(entities)
		}
		out = append(out, entities[:n])
		entities = entities[n:]
	}
	return out
}

func chunkRelationships(relationships []*stepmodel.Relationship, size int) [][]*stepmodel.Relationship {
	var out [][]*stepmodel.Relationship
	for len(relationships) > 0 {
		n := size
		if n > len(relationships) {
			n = len(relationships)
		}
		out = append(out, relationships[:n])
		relationships = relationships[n:]
	}
	return out
}

// uploadChunks dispatches up to UploadConcurrency of upload concurrently. A
// fatal error (job no longer accepting uploads) cancels the context shared
// by every chunk upload, so chunks not yet sent fail fast, and is returned
// in preference to ordinary errors; otherwise the first ordinary error is
// returned. Either way it returns only once every chunk has been attempted.
func uploadChunks[T any](ctx context.Context, chunks [][]T, upload func(context.Context, []T) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, UploadConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var fatalErr error

	for _, chunk := range chunks {
		chunk := chunk
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := upload(runCtx, chunk)
			if err == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if stepmodel.IsFatal(err) {
				if fatalErr == nil {
					fatalErr = err
					cancel()
				}
				return
			}
			if firstErr == nil {
				firstErr = err
			}
		}()
	}
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	return firstErr
}

func (c *Client) uploadEntityChunk(ctx context.Context, jobID string, batch []*stepmodel.Entity) error {
	path := fmt.Sprintf("/persister/synchronization/jobs/%s/entities", jobID)
	return c.uploadDataChunk(ctx, path, func() (map[string]any, error) {
		return map[string]any{"entities": batch}, nil
	}, func() error {
		_, err := ShrinkRawData(batch, UploadSizeMax)
		return err
	})
}

func (c *Client) uploadRelationshipChunk(ctx context.Context, jobID string, batch []*stepmodel.Relationship) error {
	path := fmt.Sprintf("/persister/synchronization/jobs/%s/relationships", jobID)
	return c.uploadDataChunk(ctx, path, func() (map[string]any, error) {
		return map[string]any{"relationships": batch}, nil
	}, nil)
}

// uploadDataChunk POSTs payload() to path, retrying per c.retry's policy.
// shrink is nil for relationship batches, which carry no _rawData to
// truncate; a 413 on those fails immediately with a ShrinkError.
func (c *Client) uploadDataChunk(ctx context.Context, path string, payload func() (map[string]any, error), shrink func() error) error {
	logger := ctxlog.FromContext(ctx)
	correlationID := newCorrelationID()
	delay := c.retry.InitialDelay
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := payload()
		if err != nil {
			return err
		}

		_, err = c.doJSON(ctx, path, body, correlationID)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		isAPIErr := errors.As(err, &apiErr)

		switch {
		case isAPIErr && apiErr.Code == CodeJobNotAwaitingUploads:
			return stepmodel.Fatal(&APIError{
				Code:    CodeIntegrationUploadAfterJobEnded,
				Message: "upload attempted after the job stopped accepting uploads",
				Cause:   err,
			})

		case isAPIErr && (apiErr.HTTPStatus == http.StatusRequestEntityTooLarge || apiErr.Code == CodeRequestEntityTooLargeException):
			if shrink == nil {
				return &ShrinkError{Code: CodeIntegrationUploadFailed, Message: "payload rejected for size and batch cannot be shrunk"}
			}
			if shrinkErr := shrink(); shrinkErr != nil {
				return shrinkErr
			}
			logger.Warn("shrank oversized upload batch, retrying", "path", path, "attempt", attempt)
			continue

		case isAPIErr && apiErr.Code == CodeCredentialsError:
			// Silent retry: no warn log for credential hiccups.

		default:
			if attempt < maxAttempts {
				logger.Warn("upload attempt failed, retrying", "path", path, "attempt", attempt, "error", err)
			}
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * c.retry.Factor)
	}

	return &APIError{Code: CodeSynchronizationAPIError, Message: "upload failed after exhausting retries", Cause: lastErr}
}
