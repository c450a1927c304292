package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/alexbckr/sdk/internal/sync"
	"gopkg.in/yaml.v3"
)

// ExecuteIntegrationResult is the persisted shape of a completed run
// (summary.json).
type ExecuteIntegrationResult struct {
	Metadata struct {
		PartialDatasets sync.PartialDatasets `json:"partialDatasets" yaml:"partialDatasets"`
	} `json:"metadata" yaml:"metadata"`
	StepResults []*stepmodel.StepResult `json:"stepResults" yaml:"stepResults"`
}

// buildSummary derives the run's partial-dataset declaration from every
// step's declared-partial types, and collects every step's final result.
func buildSummary(steps []*stepmodel.Step, results []*stepmodel.StepResult) *ExecuteIntegrationResult {
	summary := &ExecuteIntegrationResult{StepResults: results}

	entitySeen := make(map[string]bool)
	relSeen := make(map[string]bool)
	for _, step := range steps {
		for _, e := range step.Entities {
			if e.Partial && !entitySeen[e.Type] {
				entitySeen[e.Type] = true
				summary.Metadata.PartialDatasets.Entities = append(summary.Metadata.PartialDatasets.Entities, e.Type)
			}
		}
		for _, r := range step.Relationships {
			if r.Partial && !relSeen[r.Type] {
				relSeen[r.Type] = true
				summary.Metadata.PartialDatasets.Relationships = append(summary.Metadata.PartialDatasets.Relationships, r.Type)
			}
		}
		for _, m := range step.MappedRelationships {
			if m.Partial && !relSeen[m.Type] {
				relSeen[m.Type] = true
				summary.Metadata.PartialDatasets.Relationships = append(summary.Metadata.PartialDatasets.Relationships, m.Type)
			}
		}
	}
	return summary
}

// persistSummary writes summary.json and, next to it, a run-summary.yaml
// mirror for operators who prefer to grep YAML. Both are best-effort: a
// failure here does not change the run's outcome.
func (a *App) persistSummary(summary *ExecuteIntegrationResult) error {
	if a.cfg.OutputRootDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.OutputRootDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run summary as json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.cfg.OutputRootDir, "summary.json"), jsonData, 0o644); err != nil {
		return fmt.Errorf("writing summary.json: %w", err)
	}

	yamlData, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary as yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.cfg.OutputRootDir, "run-summary.yaml"), yamlData, 0o644); err != nil {
		return fmt.Errorf("writing run-summary.yaml: %w", err)
	}
	return nil
}
