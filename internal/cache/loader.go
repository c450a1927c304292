// Package cache implements the step-level cache loader: it reads
// pre-materialized graph object files from disk as a substitute for
// running a step's handler.
//
// File discovery walks a directory and filters by extension, applied here
// to two fixed subdirectories: entities/ and relationships/.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/alexbckr/sdk/internal/stepmodel"
)

// Sink is the subset of stepmodel.JobState the cache loader writes into.
type Sink interface {
	AddEntities(ctx context.Context, es []*stepmodel.Entity) error
	AddRelationships(ctx context.Context, rs []*stepmodel.Relationship) error
}

// Result reports how many graph objects the loader injected.
type Result struct {
	EntitiesLoaded      int
	RelationshipsLoaded int
}

// Loaded reports whether at least one entity or relationship was loaded.
func (r Result) Loaded() bool {
	return r.EntitiesLoaded > 0 || r.RelationshipsLoaded > 0
}

// Load reads <baseDir>/entities/*.json and <baseDir>/relationships/*.json,
// each file holding a JSON array of graph objects (the format written by
// internal/jobstate.StepWriter.Flush), and injects every batch into
// sink via AddEntities/AddRelationships. Files are processed in
// lexicographic name order for determinism.
func Load(ctx context.Context, baseDir string, sink Sink) (Result, error) {
	var result Result

	entityFiles, err := listJSONFiles(filepath.Join(baseDir, "entities"))
	if err != nil {
		return result, err
	}
	for _, path := range entityFiles {
		batch, err := readEntityBatch(path)
		if err != nil {
			return result, fmt.Errorf("reading cached entities from %q: %w", path, err)
		}
		if err := sink.AddEntities(ctx, batch); err != nil {
			return result, err
		}
		result.EntitiesLoaded += len(batch)
	}

	relationshipFiles, err := listJSONFiles(filepath.Join(baseDir, "relationships"))
	if err != nil {
		return result, err
	}
	for _, path := range relationshipFiles {
		batch, err := readRelationshipBatch(path)
		if err != nil {
			return result, fmt.Errorf("reading cached relationships from %q: %w", path, err)
		}
		if err := sink.AddRelationships(ctx, batch); err != nil {
			return result, err
		}
		result.RelationshipsLoaded += len(batch)
	}

	return result, nil
}

func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readEntityBatch(path string) ([]*stepmodel.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch []*stepmodel.Entity
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func readRelationshipBatch(path string) ([]*stepmodel.Relationship, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch []*stepmodel.Relationship
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}
