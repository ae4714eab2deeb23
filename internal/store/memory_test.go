package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/solver"
)

func memTask(id string) *graph.Task {
	return &graph.Task{
		ID: id, ProjectID: "p1", Title: "Task " + id,
		Status: graph.StatusOpen, Duration: 3,
	}
}

func TestMemory_TaskRoundTrip(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	got, err := m.Task(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Title != "Task a" {
		t.Fatalf("expected stored task back, got %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("expected version defaulted to 1, got %d", got.Version)
	}

	missing, err := m.Task(context.Background(), "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing task, got %+v, %v", missing, err)
	}
}

func TestMemory_ReadsReturnCopies(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	first, _ := m.Task(context.Background(), "a")
	first.Title = "Mutated by caller"

	second, _ := m.Task(context.Background(), "a")
	if second.Title != "Task a" {
		t.Errorf("caller mutation leaked into the store: %q", second.Title)
	}
}

func TestMemory_TasksSortedAndScoped(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("b"))
	m.AddTask(memTask("a"))
	other := memTask("z")
	other.ProjectID = "p2"
	m.AddTask(other)

	tasks, err := m.Tasks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Errorf("expected [a b], got %+v", tasks)
	}
}

func TestMemory_DependencyRoundTrip(t *testing.T) {
	m := NewMemory()
	m.AddDependency(&graph.Dependency{
		ID: "a->b", ProjectID: "p1",
		PredecessorID: "a", SuccessorID: "b",
		Type: graph.FinishToStart, Lag: 1,
	})

	got, err := m.Dependency(context.Background(), "a->b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.PredecessorID != "a" || got.Lag != 1 {
		t.Fatalf("expected stored dependency back, got %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("expected version defaulted to 1, got %d", got.Version)
	}

	got.Lag = 9
	second, _ := m.Dependency(context.Background(), "a->b")
	if second.Lag != 1 {
		t.Errorf("caller mutation leaked into the store: lag %g", second.Lag)
	}

	missing, err := m.Dependency(context.Background(), "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing dependency, got %+v, %v", missing, err)
	}
}

func TestMemory_UpdateTask(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	updated, err := m.UpdateTask(context.Background(), "a", 1, map[string]any{
		"title":      "Renamed",
		"progress":   55.0,
		"start_date": time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		"due_date":   "2026-01-09",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "Renamed" || updated.Progress != 55 {
		t.Errorf("expected fields applied, got %+v", updated)
	}
	if updated.DueDate.Format("2006-01-02") != "2026-01-09" {
		t.Errorf("expected string date parsed, got %v", updated.DueDate)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
}

func TestMemory_UpdateTaskVersionMismatch(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	_, err := m.UpdateTask(context.Background(), "a", 7, map[string]any{"title": "x"})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	// The failed write must not have touched the task.
	stored, _ := m.Task(context.Background(), "a")
	if stored.Title != "Task a" || stored.Version != 1 {
		t.Errorf("expected task untouched after failed write, got %+v", stored)
	}
}

func TestMemory_UpdateTaskValidation(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	if _, err := m.UpdateTask(context.Background(), "a", 1, map[string]any{"progress": 140.0}); err == nil {
		t.Error("expected error for progress above 100")
	}
	if _, err := m.UpdateTask(context.Background(), "a", 1, map[string]any{"duration": -2.0}); err == nil {
		t.Error("expected error for negative duration")
	}
	if _, err := m.UpdateTask(context.Background(), "a", 1, map[string]any{"color": "red"}); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := m.UpdateTask(context.Background(), "ghost", 1, map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DeleteTask(t *testing.T) {
	m := NewMemory()
	m.AddTask(memTask("a"))

	if err := m.DeleteTask(context.Background(), "a", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := m.Task(context.Background(), "a")
	if !stored.Deleted || stored.Version != 2 {
		t.Errorf("expected soft delete with version bump, got %+v", stored)
	}

	if err := m.DeleteTask(context.Background(), "a", 1); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch on stale delete, got %v", err)
	}
}

func TestMemory_ScheduleRoundTrip(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	cs := &engine.ComputedSchedule{
		ID: "s1", ProjectID: "p1", Algorithm: engine.Algorithm,
		CalculatedAt: now, ProjectFinish: 11,
	}
	if err := m.SaveSchedule(context.Background(), cs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := m.Schedule(context.Background(), "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.ProjectFinish != 11 {
		t.Fatalf("expected schedule back, got %+v", got)
	}

	missing, err := m.Schedule(context.Background(), "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing schedule, got %+v, %v", missing, err)
	}
}

func TestMemory_ScheduleReadsAreDeepCopies(t *testing.T) {
	m := NewMemory()
	cs := &engine.ComputedSchedule{
		ID: "s1", ProjectID: "p1", CalculatedAt: time.Now(),
		Results:      []*cpm.ScheduleResult{{TaskID: "a", EarliestStart: 0, EarliestFinish: 2}},
		CriticalPath: []string{"a"},
		Delays:       map[string]float64{"b": 5},
		Windows:      map[string]solver.DateRange{"a": {}},
	}
	if err := m.SaveSchedule(context.Background(), cs); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the saved value after the fact must not reach the store.
	cs.Results[0].EarliestFinish = 99
	cs.Delays["b"] = 99

	got, _ := m.Schedule(context.Background(), "s1")
	if got.Results[0].EarliestFinish != 2 || got.Delays["b"] != 5 {
		t.Fatalf("saved-value mutation leaked into the store: %+v", got)
	}

	// Mutating a read copy must not reach the store either.
	got.Results[0].EarliestStart = 7
	got.Delays["b"] = 7
	got.CriticalPath[0] = "z"

	again, _ := m.Schedule(context.Background(), "s1")
	if again.Results[0].EarliestStart != 0 || again.Delays["b"] != 5 || again.CriticalPath[0] != "a" {
		t.Errorf("read-copy mutation leaked into the store: %+v", again)
	}
}

func TestMemory_SchedulesNewestFirst(t *testing.T) {
	m := NewMemory()
	old := &engine.ComputedSchedule{ID: "s1", ProjectID: "p1", CalculatedAt: time.Now().Add(-time.Hour)}
	recent := &engine.ComputedSchedule{ID: "s2", ProjectID: "p1", CalculatedAt: time.Now()}
	m.SaveSchedule(context.Background(), old)
	m.SaveSchedule(context.Background(), recent)

	list, err := m.Schedules(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" {
		t.Errorf("expected newest first, got %+v", list)
	}
}
