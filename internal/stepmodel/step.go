package stepmodel

import "context"

// EntitySchema declares one entity type a step may produce.
type EntitySchema struct {
	Type    string
	Partial bool
}

// RelationshipSchema declares one relationship type a step may produce.
type RelationshipSchema struct {
	Type    string
	Partial bool
}

// MappedRelationshipSchema declares one mapped relationship type a step may produce.
type MappedRelationshipSchema struct {
	Type    string
	Partial bool
}

// JobState is the per-step façade a step's ExecutionHandler uses to read
// and write shared run state. The concrete implementation lives in
// internal/jobstate; it is declared here, at the point of use, so that
// package can depend on stepmodel without stepmodel depending back on it.
type JobState interface {
	AddEntity(ctx context.Context, e *Entity) error
	AddEntities(ctx context.Context, es []*Entity) error
	AddRelationship(ctx context.Context, r *Relationship) error
	AddRelationships(ctx context.Context, rs []*Relationship) error

	FindEntity(ctx context.Context, key string) (*Entity, bool, error)

	IterateEntities(ctx context.Context, entityType string, fn func(*Entity) error) error
	IterateRelationships(ctx context.Context, relationshipType string, fn func(*Relationship) error) error

	SetData(scope, key string, value any)
	GetData(scope, key string) (any, bool)

	Flush(ctx context.Context) error
	WaitUntilUploadsComplete(ctx context.Context) error

	// EncounteredTypes returns the set of _type values this step has
	// recorded against the shared Type Tracker so far.
	EncounteredTypes() []string
}

// ExecutionHandler is the effect a Step runs with its execution context.
type ExecutionHandler func(ctx context.Context, state JobState) error

// BeforeAddEntityHook lets a collector customize or reject an entity right
// before it is admitted to the graph object store. The default
// implementation is the identity function.
type BeforeAddEntityHook func(ctx context.Context, e *Entity) (*Entity, error)

// IdentityBeforeAddEntity is the default BeforeAddEntityHook.
func IdentityBeforeAddEntity(_ context.Context, e *Entity) (*Entity, error) {
	return e, nil
}

// Step is a declarative unit of collection work.
type Step struct {
	ID                  string
	Name                string
	DependsOn           []string
	Entities            []EntitySchema
	Relationships       []RelationshipSchema
	MappedRelationships []MappedRelationshipSchema
	ExecutionHandler    ExecutionHandler
}

// DeclaredTypes returns every _type this step declares across all three
// output schemas, in declaration order.
func (s *Step) DeclaredTypes() []string {
	types := make([]string, 0, len(s.Entities)+len(s.Relationships)+len(s.MappedRelationships))
	for _, e := range s.Entities {
		types = append(types, e.Type)
	}
	for _, r := range s.Relationships {
		types = append(types, r.Type)
	}
	for _, m := range s.MappedRelationships {
		types = append(types, m.Type)
	}
	return types
}

// PartialTypes returns every declared _type marked partial.
func (s *Step) PartialTypes() []string {
	var types []string
	for _, e := range s.Entities {
		if e.Partial {
			types = append(types, e.Type)
		}
	}
	for _, r := range s.Relationships {
		if r.Partial {
			types = append(types, r.Type)
		}
	}
	for _, m := range s.MappedRelationships {
		if m.Partial {
			types = append(types, m.Type)
		}
	}
	return types
}

// StepStartState controls whether a step runs, and optionally redirects
// execution to load a cached artifact from disk instead.
type StepStartState struct {
	Disabled      bool
	StepCachePath string
}

// CacheEnabled reports whether this start state names a cache directory to
// load instead of running the step's handler.
func (s StepStartState) CacheEnabled() bool {
	return s.StepCachePath != ""
}

// Status is a StepResult's lifecycle status.
type Status string

const (
	StatusDisabled                               Status = "DISABLED"
	StatusPendingEvaluation                      Status = "PENDING_EVALUATION"
	StatusSuccess                                Status = "SUCCESS"
	StatusFailure                                Status = "FAILURE"
	StatusPartialSuccessDueToDependencyFailure   Status = "PARTIAL_SUCCESS_DUE_TO_DEPENDENCY_FAILURE"
	StatusCached                                 Status = "CACHED"
	StatusSkipped                                Status = "SKIPPED"
	StatusNotExecuted                            Status = "NOT_EXECUTED"
)

// Terminal reports whether a status is a final state a step will not leave.
func (s Status) Terminal() bool {
	return s != StatusPendingEvaluation
}

// StepResult is the lifecycle record the scheduler maintains for one step.
type StepResult struct {
	ID               string
	Name             string
	DependsOn        []string
	DeclaredTypes    []string
	PartialTypes     []string
	EncounteredTypes []string
	Status           Status
}

// NewStepResult seeds a StepResult from a Step's static metadata, with the
// given initial status (DISABLED or PENDING_EVALUATION).
func NewStepResult(s *Step, status Status) *StepResult {
	return &StepResult{
		ID:            s.ID,
		Name:          s.Name,
		DependsOn:     append([]string(nil), s.DependsOn...),
		DeclaredTypes: s.DeclaredTypes(),
		PartialTypes:  s.PartialTypes(),
		Status:        status,
	}
}
