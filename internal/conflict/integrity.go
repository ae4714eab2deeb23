package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// CheckIntegrity scans a project's stored tasks and dependencies for
// structural damage: dependencies referencing soft-deleted or missing tasks
// (orphans), cycles in the dependency graph, and tasks whose start date
// falls after their due date. Findings come back as conflicts.
func (d *Detector) CheckIntegrity(ctx context.Context, projectID string) ([]Conflict, error) {
	tasks, err := d.store.Tasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	deps, err := d.store.Dependencies(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}

	byID := make(map[string]*graph.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var conflicts []Conflict

	// Orphaned dependencies.
	var live []*graph.Dependency
	for _, dep := range deps {
		orphanEnd := ""
		for _, id := range []string{dep.PredecessorID, dep.SuccessorID} {
			t := byID[id]
			if t == nil || t.Deleted {
				orphanEnd = id
				break
			}
		}
		if orphanEnd != "" {
			conflicts = append(conflicts, Conflict{
				ID:         uuid.NewString(),
				Pattern:    PatternDependency,
				Severity:   SeverityWarning,
				EntityType: "dependency",
				EntityID:   dep.ID,
				Message:    fmt.Sprintf("dependency %s references deleted or missing task %s", dep.ID, orphanEnd),
				Suggested:  []Strategy{StrategyManual},
				DetectedAt: time.Now(),
			})
			continue
		}
		live = append(live, dep)
	}

	// Cycles among live tasks.
	var liveTasks []*graph.Task
	for _, t := range tasks {
		if !t.Deleted {
			liveTasks = append(liveTasks, t)
		}
	}
	g, err := graph.New(liveTasks, live)
	if err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}
	if cycle := g.DetectCycle(); cycle != nil {
		conflicts = append(conflicts, Conflict{
			ID:                uuid.NewString(),
			Pattern:           PatternDependency,
			Severity:          SeverityError,
			EntityType:        "task",
			EntityID:          cycle[0],
			ConflictingFields: cycle,
			Message:           fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
			Suggested:         []Strategy{StrategyManual},
			DetectedAt:        time.Now(),
		})
	}

	// Inverted date ranges.
	for _, t := range liveTasks {
		if t.StartDate.IsZero() || t.DueDate.IsZero() {
			continue
		}
		if t.StartDate.After(t.DueDate) {
			conflicts = append(conflicts, Conflict{
				ID:                uuid.NewString(),
				Pattern:           PatternSchedule,
				Severity:          SeverityError,
				EntityType:        "task",
				EntityID:          t.ID,
				ConflictingFields: []string{"start_date", "due_date"},
				Message: fmt.Sprintf("task %s starts %s after its due date %s",
					t.ID, calendar.DateKey(t.StartDate), calendar.DateKey(t.DueDate)),
				Suggested:  []Strategy{StrategyManual},
				DetectedAt: time.Now(),
			})
		}
	}

	return conflicts, nil
}

// CheckNewDependency reports whether adding pred -> succ would create a
// cycle, before the edge is persisted. Returns the offending conflict, or
// nil when the edge is safe.
func (d *Detector) CheckNewDependency(ctx context.Context, projectID, predecessorID, successorID string) (*Conflict, error) {
	tasks, err := d.store.Tasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	deps, err := d.store.Dependencies(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}

	var live []*graph.Task
	for _, t := range tasks {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	candidate := &graph.Dependency{
		ID:            "candidate",
		ProjectID:     projectID,
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		Type:          graph.FinishToStart,
	}
	g, err := graph.New(live, append(deps, candidate))
	if err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}
	cycle := g.DetectCycle()
	if cycle == nil {
		return nil, nil
	}
	return &Conflict{
		ID:                uuid.NewString(),
		Pattern:           PatternDependency,
		Severity:          SeverityError,
		EntityType:        "dependency",
		EntityID:          fmt.Sprintf("%s->%s", predecessorID, successorID),
		ConflictingFields: cycle,
		Message: fmt.Sprintf("adding %s -> %s would create a cycle: %s",
			predecessorID, successorID, strings.Join(cycle, " -> ")),
		Suggested:  []Strategy{StrategyCurrent},
		DetectedAt: time.Now(),
	}, nil
}
