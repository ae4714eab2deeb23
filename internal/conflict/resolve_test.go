package conflict_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/store"
)

func updateConflict(entityID string, attempted string) *conflict.Conflict {
	return &conflict.Conflict{
		ID:              "c-" + entityID,
		Pattern:         conflict.PatternUpdate,
		Severity:        conflict.SeverityError,
		EntityType:      "task",
		EntityID:        entityID,
		AttemptedValues: json.RawMessage(attempted),
	}
}

func newResolver(t *testing.T, tasks ...*graph.Task) (*conflict.Resolver, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	for _, task := range tasks {
		st.AddTask(task)
	}
	return conflict.NewResolver(st, t.TempDir()), st
}

func TestResolve_CurrentKeepsStoredState(t *testing.T) {
	r, st := newResolver(t, task("a"))

	out, err := r.Resolve(context.Background(), updateConflict("a", `{"title":"New"}`),
		conflict.Resolution{Strategy: conflict.StrategyCurrent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Task a" || stored.Version != 1 {
		t.Errorf("expected stored state untouched, got title %q version %d", stored.Title, stored.Version)
	}
}

func TestResolve_IncomingWritesAttemptedValues(t *testing.T) {
	r, st := newResolver(t, task("a"))

	out, err := r.Resolve(context.Background(),
		updateConflict("a", `{"title":"Renamed","progress":40,"due_date":"2026-01-09"}`),
		conflict.Resolution{Strategy: conflict.StrategyIncoming})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Renamed" || stored.Progress != 40 {
		t.Errorf("expected incoming values written, got %+v", stored)
	}
	if stored.DueDate.Format("2006-01-02") != "2026-01-09" {
		t.Errorf("expected due date 2026-01-09, got %v", stored.DueDate)
	}
	if stored.Version != 2 {
		t.Errorf("expected version bumped to 2, got %d", stored.Version)
	}
	if out.PreImage["title"] != "Task a" {
		t.Errorf("expected pre-image to hold the prior title, got %v", out.PreImage)
	}
}

func TestResolve_ManualRequiresValues(t *testing.T) {
	r, _ := newResolver(t, task("a"))

	out, err := r.Resolve(context.Background(), updateConflict("a", `{}`),
		conflict.Resolution{Strategy: conflict.StrategyManual})
	var resErr *conflict.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if out.Success {
		t.Error("expected failed outcome")
	}
}

func TestResolve_ManualWritesSuppliedValues(t *testing.T) {
	r, st := newResolver(t, task("a"))

	out, err := r.Resolve(context.Background(), updateConflict("a", `{}`),
		conflict.Resolution{
			Strategy: conflict.StrategyManual,
			Values:   map[string]any{"title": "Hand-picked"},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Hand-picked" {
		t.Errorf("expected manual title, got %q", stored.Title)
	}
}

func TestResolve_UnknownStrategy(t *testing.T) {
	r, _ := newResolver(t, task("a"))
	_, err := r.Resolve(context.Background(), updateConflict("a", `{}`),
		conflict.Resolution{Strategy: "coinflip"})
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestResolve_DeletedEntityOnlyCurrent(t *testing.T) {
	gone := task("a")
	gone.Deleted = true
	r, _ := newResolver(t, gone)

	out, err := r.Resolve(context.Background(), updateConflict("a", `{"title":"x"}`),
		conflict.Resolution{Strategy: conflict.StrategyCurrent})
	if err != nil {
		t.Fatalf("current strategy should succeed on deleted entity: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	if _, err := r.Resolve(context.Background(), updateConflict("a", `{"title":"x"}`),
		conflict.Resolution{Strategy: conflict.StrategyIncoming}); err == nil {
		t.Fatal("expected incoming strategy to fail on deleted entity")
	}
}

func TestResolve_MergeProgressMaxIsCommutative(t *testing.T) {
	rules := &conflict.MergeRules{Progress: conflict.ProgressMax}

	// Stored 70, incoming 30.
	high := task("a")
	high.Progress = 70
	r, st := newResolver(t, high)
	if _, err := r.Resolve(context.Background(), updateConflict("a", `{"progress":30}`),
		conflict.Resolution{Strategy: conflict.StrategyMerge, Rules: rules}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Progress != 70 {
		t.Errorf("max(70,30): expected 70, got %g", stored.Progress)
	}

	// Stored 30, incoming 70.
	low := task("b")
	low.Progress = 30
	r2, st2 := newResolver(t, low)
	if _, err := r2.Resolve(context.Background(), updateConflict("b", `{"progress":70}`),
		conflict.Resolution{Strategy: conflict.StrategyMerge, Rules: rules}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored2, _ := st2.Task(context.Background(), "b")
	if stored2.Progress != 70 {
		t.Errorf("max(30,70): expected 70, got %g", stored2.Progress)
	}
}

func TestResolve_MergeProgressAverage(t *testing.T) {
	cur := task("a")
	cur.Progress = 20
	r, st := newResolver(t, cur)

	_, err := r.Resolve(context.Background(), updateConflict("a", `{"progress":60}`),
		conflict.Resolution{
			Strategy: conflict.StrategyMerge,
			Rules:    &conflict.MergeRules{Progress: conflict.ProgressAverage},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Progress != 40 {
		t.Errorf("avg(20,60): expected 40, got %g", stored.Progress)
	}
}

func TestResolve_MergeDateRules(t *testing.T) {
	cur := task("a")
	cur.DueDate = day(2026, 1, 9)
	r, st := newResolver(t, cur)

	_, err := r.Resolve(context.Background(), updateConflict("a", `{"due_date":"2026-01-07"}`),
		conflict.Resolution{
			Strategy: conflict.StrategyMerge,
			Rules:    &conflict.MergeRules{Dates: map[string]conflict.DateRule{"due_date": conflict.DateEarliest}},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := st.Task(context.Background(), "a")
	if !stored.DueDate.Equal(day(2026, 1, 7)) {
		t.Errorf("earliest: expected Jan 7, got %v", stored.DueDate)
	}

	cur2 := task("b")
	cur2.DueDate = day(2026, 1, 9)
	r2, st2 := newResolver(t, cur2)
	_, err = r2.Resolve(context.Background(), updateConflict("b", `{"due_date":"2026-01-07"}`),
		conflict.Resolution{
			Strategy: conflict.StrategyMerge,
			Rules:    &conflict.MergeRules{Dates: map[string]conflict.DateRule{"due_date": conflict.DateLatest}},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored2, _ := st2.Task(context.Background(), "b")
	if !stored2.DueDate.Equal(day(2026, 1, 9)) {
		t.Errorf("latest: expected Jan 9, got %v", stored2.DueDate)
	}
}

func TestResolve_MergeUnknownRuleWarnsAndTakesIncoming(t *testing.T) {
	cur := task("a")
	cur.Progress = 10
	r, st := newResolver(t, cur)

	out, err := r.Resolve(context.Background(), updateConflict("a", `{"progress":90}`),
		conflict.Resolution{
			Strategy: conflict.StrategyMerge,
			Rules:    &conflict.MergeRules{Progress: "median"},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Warnings) == 0 {
		t.Error("expected a warning for the unknown rule")
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Progress != 90 {
		t.Errorf("expected incoming fallback 90, got %g", stored.Progress)
	}
}

func TestResolveBulk_SkipGate(t *testing.T) {
	r, st := newResolver(t, task("a"), task("b"))

	warning := *updateConflict("a", `{"title":"From warning"}`)
	warning.Severity = conflict.SeverityWarning
	warning.ID = "c-warn"
	errorGrade := *updateConflict("b", `{"title":"From error"}`)
	errorGrade.ID = "c-err"

	outcomes, _, err := r.ResolveBulk(context.Background(), "p1",
		[]conflict.Conflict{warning, errorGrade},
		conflict.BulkOptions{Strategy: conflict.StrategyIncoming})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Success {
		t.Errorf("expected the warning to be resolved, got %+v", outcomes[0])
	}
	if outcomes[1].Success || len(outcomes[1].Warnings) == 0 {
		t.Errorf("expected the error-grade conflict to be skipped, got %+v", outcomes[1])
	}

	a, _ := st.Task(context.Background(), "a")
	b, _ := st.Task(context.Background(), "b")
	if a.Title != "From warning" {
		t.Errorf("expected a updated, got %q", a.Title)
	}
	if b.Title != "Task b" {
		t.Errorf("expected b untouched, got %q", b.Title)
	}
}

func TestResolveBulk_AllLevelProcessesErrors(t *testing.T) {
	r, st := newResolver(t, task("a"))

	outcomes, _, err := r.ResolveBulk(context.Background(), "p1",
		[]conflict.Conflict{*updateConflict("a", `{"title":"Forced"}`)},
		conflict.BulkOptions{
			Strategy:    conflict.StrategyIncoming,
			AutoResolve: conflict.AutoResolveAll,
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcomes[0].Success {
		t.Fatalf("expected success, got %+v", outcomes[0])
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Forced" {
		t.Errorf("expected title written, got %q", stored.Title)
	}
}

func TestResolveBulk_FailureDoesNotAbortBatch(t *testing.T) {
	r, st := newResolver(t, task("b"))

	// First conflict targets a missing task and fails; the second still runs.
	outcomes, _, err := r.ResolveBulk(context.Background(), "p1",
		[]conflict.Conflict{
			*updateConflict("ghost", `{"title":"x"}`),
			*updateConflict("b", `{"title":"Still applied"}`),
		},
		conflict.BulkOptions{
			Strategy:    conflict.StrategyIncoming,
			AutoResolve: conflict.AutoResolveAll,
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Success {
		t.Error("expected the first outcome to fail")
	}
	if !outcomes[1].Success {
		t.Errorf("expected the second outcome to succeed, got %+v", outcomes[1])
	}
	b, _ := st.Task(context.Background(), "b")
	if b.Title != "Still applied" {
		t.Errorf("expected b updated, got %q", b.Title)
	}
}

func TestResolveBulk_DefaultStrategyUsesRecommendation(t *testing.T) {
	// A warning-grade update conflict recommends incoming.
	r, st := newResolver(t, task("a"))
	warn := *updateConflict("a", `{"title":"Recommended"}`)
	warn.Severity = conflict.SeverityWarning

	outcomes, _, err := r.ResolveBulk(context.Background(), "p1",
		[]conflict.Conflict{warn}, conflict.BulkOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].AppliedStrategy != conflict.StrategyIncoming {
		t.Errorf("expected recommended incoming strategy, got %s", outcomes[0].AppliedStrategy)
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Recommended" {
		t.Errorf("expected title written, got %q", stored.Title)
	}
}

func TestSnapshotAndRollback(t *testing.T) {
	r, st := newResolver(t, task("a"))

	token, err := r.Snapshot(context.Background(), "p1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if token == "" {
		t.Fatal("expected a backup token")
	}

	// Mutate after the snapshot.
	if _, err := st.UpdateTask(context.Background(), "a", 1, map[string]any{"title": "Mutated"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, err := r.Rollback(context.Background(), token)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 task restored, got %d", n)
	}
	stored, _ := st.Task(context.Background(), "a")
	if stored.Title != "Task a" {
		t.Errorf("expected title restored, got %q", stored.Title)
	}
}

func TestRollback_UnknownToken(t *testing.T) {
	r, _ := newResolver(t, task("a"))
	if _, err := r.Rollback(context.Background(), "no-such-token"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestRecommend_Defaults(t *testing.T) {
	cases := []struct {
		pattern  conflict.Pattern
		severity conflict.Severity
		want     conflict.Strategy
		minConf  float64
	}{
		{conflict.PatternDelete, conflict.SeverityError, conflict.StrategyCurrent, 0.9},
		{conflict.PatternSchedule, conflict.SeverityError, conflict.StrategyIncoming, 0.7},
		{conflict.PatternUpdate, conflict.SeverityWarning, conflict.StrategyIncoming, 0.8},
		{conflict.PatternUpdate, conflict.SeverityError, conflict.StrategyMerge, 0.6},
		{conflict.PatternDependency, conflict.SeverityError, conflict.StrategyManual, 0.6},
		{conflict.PatternResource, conflict.SeverityWarning, conflict.StrategyManual, 0.5},
	}
	for _, tc := range cases {
		rec := conflict.Recommend(tc.pattern, tc.severity)
		if rec.Strategy != tc.want {
			t.Errorf("%s/%s: expected %s, got %s", tc.pattern, tc.severity, tc.want, rec.Strategy)
		}
		if rec.Confidence < tc.minConf {
			t.Errorf("%s/%s: expected confidence >= %g, got %g", tc.pattern, tc.severity, tc.minConf, rec.Confidence)
		}
	}
}
