package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "gantt.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_TaskRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	in := memTask("a")
	in.StartDate = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	in.Locked = true
	if err := s.PutTask(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Task(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.Title != "Task a" || !got.Locked {
		t.Fatalf("expected stored task back, got %+v", got)
	}
	if !got.StartDate.Equal(in.StartDate) {
		t.Errorf("expected start date round-tripped, got %v", got.StartDate)
	}
	if got.Version != 1 {
		t.Errorf("expected version defaulted to 1, got %d", got.Version)
	}

	missing, err := s.Task(ctx, "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing task, got %+v, %v", missing, err)
	}
}

func TestSQLite_UpdateTaskVersionCheck(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	if err := s.PutTask(ctx, memTask("a")); err != nil {
		t.Fatalf("put: %v", err)
	}

	updated, err := s.UpdateTask(ctx, "a", 1, map[string]any{"title": "Renamed", "progress": 25.0})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Version != 2 {
		t.Errorf("expected title applied and version 2, got %+v", updated)
	}

	// The old version no longer wins.
	if _, err := s.UpdateTask(ctx, "a", 1, map[string]any{"title": "Stale"}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := s.UpdateTask(ctx, "ghost", 1, map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_DeleteTask(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	if err := s.PutTask(ctx, memTask("a")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.DeleteTask(ctx, "a", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.Task(ctx, "a")
	if !got.Deleted || got.Version != 2 {
		t.Errorf("expected soft delete with version bump, got %+v", got)
	}
}

func TestSQLite_DependenciesScoped(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	d := &graph.Dependency{
		ID: "a->b", ProjectID: "p1",
		PredecessorID: "a", SuccessorID: "b",
		Type: graph.FinishToStart, Lag: 1.5,
	}
	if err := s.PutDependency(ctx, d); err != nil {
		t.Fatalf("put: %v", err)
	}
	other := &graph.Dependency{
		ID: "x->y", ProjectID: "p2",
		PredecessorID: "x", SuccessorID: "y", Type: graph.StartToStart,
	}
	if err := s.PutDependency(ctx, other); err != nil {
		t.Fatalf("put: %v", err)
	}

	deps, err := s.Dependencies(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(deps) != 1 || deps[0].Type != graph.FinishToStart || deps[0].Lag != 1.5 {
		t.Errorf("expected the p1 dependency back, got %+v", deps)
	}
	if deps[0].Version != 1 {
		t.Errorf("expected version defaulted to 1, got %d", deps[0].Version)
	}
}

func TestSQLite_DependencyRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	in := &graph.Dependency{
		ID: "a->b", ProjectID: "p1",
		PredecessorID: "a", SuccessorID: "b",
		Type: graph.StartToStart, Lag: 2, Version: 3,
	}
	if err := s.PutDependency(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Dependency(ctx, "a->b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.Type != graph.StartToStart || got.Version != 3 {
		t.Fatalf("expected stored dependency back, got %+v", got)
	}

	missing, err := s.Dependency(ctx, "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing dependency, got %+v, %v", missing, err)
	}
}

func TestSQLite_ScheduleRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	cs := &engine.ComputedSchedule{
		ID: "s1", ProjectID: "p1", Algorithm: engine.Algorithm,
		CalculatedAt: time.Now(), ProjectFinish: 11,
		CriticalPath: []string{"a", "b"},
	}
	if err := s.SaveSchedule(ctx, cs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Schedule(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.ProjectFinish != 11 || len(got.CriticalPath) != 2 {
		t.Fatalf("expected schedule back, got %+v", got)
	}

	latest, err := s.LatestSchedule(ctx, "p1")
	if err != nil || latest == nil || latest.ID != "s1" {
		t.Errorf("expected latest schedule s1, got %+v, %v", latest, err)
	}

	none, err := s.LatestSchedule(ctx, "empty")
	if err != nil || none != nil {
		t.Errorf("expected nil, nil for empty project, got %+v, %v", none, err)
	}
}

func TestSQLite_SaveScheduleOverwrites(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	cs := &engine.ComputedSchedule{ID: "s1", ProjectID: "p1", CalculatedAt: time.Now()}
	if err := s.SaveSchedule(ctx, cs); err != nil {
		t.Fatalf("save: %v", err)
	}
	cs.Applied = true
	cs.RollbackToken = "tok"
	if err := s.SaveSchedule(ctx, cs); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, _ := s.Schedule(ctx, "s1")
	if !got.Applied || got.RollbackToken != "tok" {
		t.Errorf("expected the re-save to win, got %+v", got)
	}
}
