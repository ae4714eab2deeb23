// Package store provides the persistence backends for tasks, dependencies
// and computed schedules. Memory is the test and single-run backend;
// SQLite is the durable one. Both enforce optimistic concurrency: every
// task write checks the expected version and increments it atomically.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/solver"
)

// ErrVersionMismatch is returned by UpdateTask when the stored version no
// longer matches the expected one. Callers route it into conflict
// detection rather than retrying blindly.
var ErrVersionMismatch = fmt.Errorf("version mismatch")

// ErrNotFound is returned by writes against an entity that does not exist.
// Reads report a missing entity as a nil record instead.
var ErrNotFound = fmt.Errorf("not found")

// Memory is an in-process store. All reads return copies so callers can
// never mutate shared state.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]*graph.Task
	deps      map[string]*graph.Dependency
	schedules map[string]*engine.ComputedSchedule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[string]*graph.Task),
		deps:      make(map[string]*graph.Dependency),
		schedules: make(map[string]*engine.ComputedSchedule),
	}
}

// AddTask inserts or replaces a task. Version 0 is bumped to 1 so every
// stored task carries a valid optimistic-concurrency version.
func (m *Memory) AddTask(t *graph.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.tasks[cp.ID] = &cp
}

// AddDependency inserts or replaces a dependency. Version 0 is bumped to 1
// the same way AddTask does it.
func (m *Memory) AddDependency(d *graph.Dependency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	if cp.Version == 0 {
		cp.Version = 1
	}
	m.deps[cp.ID] = &cp
}

// Dependency returns a copy of the dependency, or nil if unknown.
func (m *Memory) Dependency(ctx context.Context, id string) (*graph.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deps[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

// Task returns a copy of the task, or nil if unknown.
func (m *Memory) Task(ctx context.Context, id string) (*graph.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// Tasks returns copies of every task in the project, deleted ones
// included, sorted by id.
func (m *Memory) Tasks(ctx context.Context, projectID string) ([]*graph.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*graph.Task
	for _, t := range m.tasks {
		if t.ProjectID != projectID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Dependencies returns copies of every dependency in the project, sorted
// by id.
func (m *Memory) Dependencies(ctx context.Context, projectID string) ([]*graph.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*graph.Dependency
	for _, d := range m.deps {
		if d.ProjectID != projectID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTask applies fields to the task if and only if its stored version
// equals expectedVersion, then increments the version. Returns the updated
// copy, or ErrVersionMismatch.
func (m *Memory) UpdateTask(ctx context.Context, id string, expectedVersion int64, fields map[string]any) (*graph.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Version != expectedVersion {
		return nil, fmt.Errorf("task %s: expected version %d, stored %d: %w",
			id, expectedVersion, t.Version, ErrVersionMismatch)
	}
	if err := applyFields(t, fields); err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	t.Version++
	cp := *t
	return &cp, nil
}

// DeleteTask soft-deletes a task and bumps its version.
func (m *Memory) DeleteTask(ctx context.Context, id string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if t.Version != expectedVersion {
		return fmt.Errorf("task %s: expected version %d, stored %d: %w",
			id, expectedVersion, t.Version, ErrVersionMismatch)
	}
	t.Deleted = true
	t.Version++
	return nil
}

// SaveSchedule inserts or replaces a computed schedule.
func (m *Memory) SaveSchedule(ctx context.Context, s *engine.ComputedSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = copySchedule(s)
	return nil
}

// Schedule returns a copy of the schedule, or nil if unknown.
func (m *Memory) Schedule(ctx context.Context, id string) (*engine.ComputedSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

// Schedules returns the project's schedules, newest first.
func (m *Memory) Schedules(ctx context.Context, projectID string) ([]*engine.ComputedSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*engine.ComputedSchedule
	for _, s := range m.schedules {
		if s.ProjectID != projectID {
			continue
		}
		out = append(out, copySchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalculatedAt.After(out[j].CalculatedAt) })
	return out, nil
}

// copySchedule deep-copies a computed schedule so the stored record and the
// caller's never share slices, maps or pointers.
func copySchedule(s *engine.ComputedSchedule) *engine.ComputedSchedule {
	cp := *s
	if s.Results != nil {
		cp.Results = make([]*cpm.ScheduleResult, len(s.Results))
		for i, r := range s.Results {
			rc := *r
			cp.Results[i] = &rc
		}
	}
	cp.CriticalPath = append([]string(nil), s.CriticalPath...)
	cp.Conflicts = append([]conflict.Conflict(nil), s.Conflicts...)
	cp.Violations = append([]solver.Violation(nil), s.Violations...)
	cp.Suggestions = append([]solver.Suggestion(nil), s.Suggestions...)
	if s.Windows != nil {
		cp.Windows = make(map[string]solver.DateRange, len(s.Windows))
		for k, v := range s.Windows {
			cp.Windows[k] = v
		}
	}
	if s.Delays != nil {
		cp.Delays = make(map[string]float64, len(s.Delays))
		for k, v := range s.Delays {
			cp.Delays[k] = v
		}
	}
	if s.PreImage != nil {
		cp.PreImage = make(map[string]engine.TaskDates, len(s.PreImage))
		for k, v := range s.PreImage {
			cp.PreImage[k] = v
		}
	}
	if s.AppliedAt != nil {
		at := *s.AppliedAt
		cp.AppliedAt = &at
	}
	return &cp
}

// applyFields writes the recognized update fields onto a task in place.
// Dates accept either time.Time or the string layouts used on the wire.
func applyFields(t *graph.Task, fields map[string]any) error {
	for f, v := range fields {
		switch f {
		case "title":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field title: want string, got %T", v)
			}
			t.Title = s
		case "status":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field status: want string, got %T", v)
			}
			t.Status = graph.TaskStatus(s)
		case "duration":
			d, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("field duration: want number, got %T", v)
			}
			if d < 0 {
				return fmt.Errorf("field duration: negative value %g", d)
			}
			t.Duration = d
		case "progress":
			p, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("field progress: want number, got %T", v)
			}
			if p < 0 || p > 100 {
				return fmt.Errorf("field progress: %g outside [0,100]", p)
			}
			t.Progress = p
		case "start_date":
			d, err := toDate(v)
			if err != nil {
				return fmt.Errorf("field start_date: %w", err)
			}
			t.StartDate = d
		case "due_date":
			d, err := toDate(v)
			if err != nil {
				return fmt.Errorf("field due_date: %w", err)
			}
			t.DueDate = d
		case "assignee_id":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("field assignee_id: want string, got %T", v)
			}
			t.AssigneeID = s
		default:
			return fmt.Errorf("unknown field %q", f)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		if d == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", d)
	}
	return time.Time{}, fmt.Errorf("want time or string, got %T", v)
}
