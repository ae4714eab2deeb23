package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// Detector surfaces optimistic-concurrency, schedule and integrity
// conflicts against the current stored state.
type Detector struct {
	store Store
	cal   *calendar.Calendar
}

// NewDetector creates a Detector reading through store. cal is used
// whenever proposed changes must be compared against calendar boundaries.
func NewDetector(store Store, cal *calendar.Calendar) *Detector {
	return &Detector{store: store, cal: cal}
}

// Detect compares a caller's intended update against the stored entity.
// Returns nil when the caller's version is current. A missing entity yields
// a DELETE_CONFLICT; a stale version yields an UPDATE_CONFLICT whose
// severity is error only if a watched field genuinely differs in value
// between the stored state and the attempted payload.
func (d *Detector) Detect(ctx context.Context, entityType, entityID string, expectedVersion int64, attempted []byte) (*Conflict, error) {
	switch entityType {
	case "task":
		return d.detectTask(ctx, entityID, expectedVersion, attempted)
	case "dependency":
		return d.detectDependency(ctx, entityID, expectedVersion, attempted)
	default:
		return nil, fmt.Errorf("detect conflict: unsupported entity type %q", entityType)
	}
}

func (d *Detector) detectTask(ctx context.Context, entityID string, expectedVersion int64, attempted []byte) (*Conflict, error) {
	current, err := d.store.Task(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", entityID, err)
	}
	if current == nil || current.Deleted {
		return deleteConflict("task", entityID, expectedVersion, attempted), nil
	}
	if current.Version == expectedVersion {
		return nil, nil
	}
	return updateConflict("task", entityID, current, current.Version, expectedVersion, attempted, watchedFields)
}

func (d *Detector) detectDependency(ctx context.Context, entityID string, expectedVersion int64, attempted []byte) (*Conflict, error) {
	current, err := d.store.Dependency(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load dependency %s: %w", entityID, err)
	}
	if current == nil {
		return deleteConflict("dependency", entityID, expectedVersion, attempted), nil
	}
	if current.Version == expectedVersion {
		return nil, nil
	}
	return updateConflict("dependency", entityID, current, current.Version, expectedVersion, attempted, watchedDependencyFields)
}

func deleteConflict(entityType, entityID string, expectedVersion int64, attempted []byte) *Conflict {
	return &Conflict{
		ID:               uuid.NewString(),
		Pattern:          PatternDelete,
		Severity:         SeverityError,
		EntityType:       entityType,
		EntityID:         entityID,
		AttemptedVersion: expectedVersion,
		AttemptedValues:  attempted,
		Message:          fmt.Sprintf("%s %s no longer exists", entityType, entityID),
		Suggested:        []Strategy{StrategyCurrent},
		DetectedAt:       time.Now(),
	}
}

func updateConflict(entityType, entityID string, current any, currentVersion, expectedVersion int64, attempted []byte, fields []string) (*Conflict, error) {
	diff, err := diffFields(current, attempted, fields)
	if err != nil {
		return nil, err
	}

	sev := SeverityWarning
	suggested := []Strategy{StrategyIncoming}
	if len(diff) > 0 {
		sev = SeverityError
		suggested = []Strategy{StrategyMerge, StrategyManual, StrategyCurrent}
	}

	return &Conflict{
		ID:                uuid.NewString(),
		Pattern:           PatternUpdate,
		Severity:          sev,
		EntityType:        entityType,
		EntityID:          entityID,
		CurrentVersion:    currentVersion,
		AttemptedVersion:  expectedVersion,
		ConflictingFields: diff,
		AttemptedValues:   attempted,
		Message:           fmt.Sprintf("%s %s is at version %d, caller read version %d", entityType, entityID, currentVersion, expectedVersion),
		Suggested:         suggested,
		DetectedAt:        time.Now(),
	}, nil
}

// diffFields returns the watched fields whose attempted value exists and
// differs from the stored value. Comparison is over the JSON projection of
// the stored entity so both sides share one representation.
func diffFields(current any, attempted []byte, fields []string) ([]string, error) {
	if len(attempted) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(attempted) {
		return nil, fmt.Errorf("attempted values are not valid JSON")
	}
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("marshal current entity: %w", err)
	}

	var diff []string
	for _, f := range fields {
		av := gjson.GetBytes(attempted, f)
		if !av.Exists() {
			continue
		}
		cv := gjson.GetBytes(currentJSON, f)
		if av.String() != cv.String() {
			diff = append(diff, f)
		}
	}
	sort.Strings(diff)
	return diff, nil
}

// TaskChange is one proposed task mutation in a schedule-validation batch.
type TaskChange struct {
	TaskID     string    `json:"task_id"`
	StartDate  time.Time `json:"start_date"`
	DueDate    time.Time `json:"due_date"`
	AssigneeID string    `json:"assignee_id,omitempty"`
}

// ValidateSchedule checks a proposed batch of date/assignee changes against
// dependency ordering, resource overlap and business rules. Findings come
// back as conflicts; only malformed input is an error.
func (d *Detector) ValidateSchedule(ctx context.Context, projectID string, changes []TaskChange) ([]Conflict, error) {
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
	proposed := make(map[string]TaskChange, len(changes))
	for _, ch := range changes {
		proposed[ch.TaskID] = ch
	}

	// Effective dates: proposed change if present, else stored.
	startOf := func(id string) time.Time {
		if ch, ok := proposed[id]; ok && !ch.StartDate.IsZero() {
			return ch.StartDate
		}
		if t := byID[id]; t != nil {
			return t.StartDate
		}
		return time.Time{}
	}
	dueOf := func(id string) time.Time {
		if ch, ok := proposed[id]; ok && !ch.DueDate.IsZero() {
			return ch.DueDate
		}
		if t := byID[id]; t != nil {
			return t.DueDate
		}
		return time.Time{}
	}
	assigneeOf := func(id string) string {
		if ch, ok := proposed[id]; ok && ch.AssigneeID != "" {
			return ch.AssigneeID
		}
		if t := byID[id]; t != nil {
			return t.AssigneeID
		}
		return ""
	}

	var conflicts []Conflict

	for _, ch := range changes {
		t := byID[ch.TaskID]
		if t == nil {
			conflicts = append(conflicts, Conflict{
				ID:         uuid.NewString(),
				Pattern:    PatternDelete,
				Severity:   SeverityError,
				EntityType: "task",
				EntityID:   ch.TaskID,
				Message:    fmt.Sprintf("task %s no longer exists", ch.TaskID),
				DetectedAt: time.Now(),
			})
			continue
		}

		// Business rules.
		if t.Locked {
			conflicts = append(conflicts, Conflict{
				ID:         uuid.NewString(),
				Pattern:    PatternSchedule,
				Severity:   SeverityError,
				EntityType: "task",
				EntityID:   t.ID,
				Message:    fmt.Sprintf("task %s is locked and cannot be rescheduled", t.ID),
				Suggested:  []Strategy{StrategyCurrent},
				DetectedAt: time.Now(),
			})
			continue
		}
		if t.Completed() {
			conflicts = append(conflicts, Conflict{
				ID:         uuid.NewString(),
				Pattern:    PatternSchedule,
				Severity:   SeverityWarning,
				EntityType: "task",
				EntityID:   t.ID,
				Message:    fmt.Sprintf("task %s is completed; rescheduling it changes history", t.ID),
				Suggested:  []Strategy{StrategyIncoming},
				DetectedAt: time.Now(),
			})
		}

		// Dependency ordering against predecessor dates.
		for _, dep := range deps {
			if dep.SuccessorID != ch.TaskID {
				continue
			}
			required := d.requiredStart(dep, startOf(dep.PredecessorID), dueOf(dep.PredecessorID))
			if required.IsZero() {
				continue
			}
			start := startOf(ch.TaskID)
			if !start.IsZero() && start.Before(required) {
				conflicts = append(conflicts, Conflict{
					ID:                uuid.NewString(),
					Pattern:           PatternDependency,
					Severity:          SeverityError,
					EntityType:        "task",
					EntityID:          ch.TaskID,
					ConflictingFields: []string{"start_date"},
					Message: fmt.Sprintf("task %s starts %s but %s dependency on %s requires %s or later",
						ch.TaskID, calendar.DateKey(start), dep.Type, dep.PredecessorID, calendar.DateKey(required)),
					Suggested:  []Strategy{StrategyCurrent, StrategyManual},
					DetectedAt: time.Now(),
				})
			}
		}

		// Resource overlap against other proposed and existing assignments.
		assignee := assigneeOf(ch.TaskID)
		if assignee == "" {
			continue
		}
		for _, other := range tasks {
			if other.ID == ch.TaskID || other.Deleted || other.Completed() {
				continue
			}
			if assigneeOf(other.ID) != assignee {
				continue
			}
			if rangesOverlap(startOf(ch.TaskID), dueOf(ch.TaskID), startOf(other.ID), dueOf(other.ID)) {
				conflicts = append(conflicts, Conflict{
					ID:         uuid.NewString(),
					Pattern:    PatternResource,
					Severity:   SeverityWarning,
					EntityType: "task",
					EntityID:   ch.TaskID,
					Message: fmt.Sprintf("task %s overlaps task %s for assignee %s",
						ch.TaskID, other.ID, assignee),
					Suggested:  []Strategy{StrategyManual},
					DetectedAt: time.Now(),
				})
			}
		}
	}

	return conflicts, nil
}

// requiredStart computes the earliest start a dependency permits its
// successor, given the predecessor's effective dates. Start-anchored types
// measure from the predecessor's start, finish-anchored from its due date.
func (d *Detector) requiredStart(dep *graph.Dependency, predStart, predDue time.Time) time.Time {
	var anchor time.Time
	switch dep.Type {
	case graph.FinishToStart, graph.FinishToFinish:
		anchor = predDue
	case graph.StartToStart, graph.StartToFinish:
		anchor = predStart
	}
	if anchor.IsZero() {
		return time.Time{}
	}
	lag := dep.Lag
	if dep.Type == graph.FinishToStart {
		// FS hands off at the end of the predecessor's last day.
		lag++
	}
	return d.addWorkingDays(anchor, lag)
}

// addWorkingDays walks n working days (sign-aware) from d0.
func (d *Detector) addWorkingDays(d0 time.Time, n float64) time.Time {
	steps := int(n)
	cur := d0
	for steps > 0 {
		cur = cur.AddDate(0, 0, 1)
		for !d.cal.IsWorkingDay(cur) {
			cur = cur.AddDate(0, 0, 1)
		}
		steps--
	}
	for steps < 0 {
		cur = cur.AddDate(0, 0, -1)
		for !d.cal.IsWorkingDay(cur) {
			cur = cur.AddDate(0, 0, -1)
		}
		steps++
	}
	return cur
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aStart.IsZero() || aEnd.IsZero() || bStart.IsZero() || bEnd.IsZero() {
		return false
	}
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
