package conflict

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// Pattern classifies what kind of divergence a conflict represents.
type Pattern string

const (
	PatternUpdate     Pattern = "UPDATE_CONFLICT"
	PatternDelete     Pattern = "DELETE_CONFLICT"
	PatternSchedule   Pattern = "SCHEDULE_CONFLICT"
	PatternDependency Pattern = "DEPENDENCY_CONFLICT"
	PatternResource   Pattern = "RESOURCE_CONFLICT"
)

// Severity grades a conflict. Errors block the operation that surfaced
// them; warnings are safe to proceed past.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyCurrent  Strategy = "current"  // keep stored values
	StrategyIncoming Strategy = "incoming" // take the attempted values wholesale
	StrategyManual   Strategy = "manual"   // take explicitly supplied values
	StrategyMerge    Strategy = "merge"    // field-level rule merge
)

// Valid reports whether s is a recognized resolution strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCurrent, StrategyIncoming, StrategyManual, StrategyMerge:
		return true
	}
	return false
}

// Conflict is a detected divergence between an intended mutation and the
// stored state, or an internal inconsistency of the stored state itself.
// Conflicts are findings returned as data, never raised as errors.
type Conflict struct {
	ID                string          `json:"id"`
	Pattern           Pattern         `json:"pattern"`
	Severity          Severity        `json:"severity"`
	EntityType        string          `json:"entity_type"`
	EntityID          string          `json:"entity_id"`
	CurrentVersion    int64           `json:"current_version,omitempty"`
	AttemptedVersion  int64           `json:"attempted_version,omitempty"`
	ConflictingFields []string        `json:"conflicting_fields,omitempty"`
	AttemptedValues   json.RawMessage `json:"attempted_values,omitempty"`
	Message           string          `json:"message"`
	Suggested         []Strategy      `json:"suggested_resolutions,omitempty"`
	DetectedAt        time.Time       `json:"detected_at"`
}

// Store is the slice of the persistence collaborator the conflict services
// need. Reads return request-scoped copies; missing entities come back as a
// nil record with a nil error. UpdateTask must perform an atomic
// check-and-increment on the entity version — the detection services are
// only a best-effort pre-check under concurrent writers.
type Store interface {
	Task(ctx context.Context, id string) (*graph.Task, error)
	Tasks(ctx context.Context, projectID string) ([]*graph.Task, error)
	Dependency(ctx context.Context, id string) (*graph.Dependency, error)
	Dependencies(ctx context.Context, projectID string) ([]*graph.Dependency, error)
	UpdateTask(ctx context.Context, id string, expectedVersion int64, fields map[string]any) (*graph.Task, error)
}

// watchedFields are the task fields compared between current and attempted
// values when grading an update conflict. Names match the task JSON tags.
var watchedFields = []string{
	"title", "status", "duration", "start_date", "due_date", "assignee_id", "progress",
}

// watchedDependencyFields is the dependency counterpart of watchedFields.
var watchedDependencyFields = []string{
	"predecessor_id", "successor_id", "type", "lag",
}
