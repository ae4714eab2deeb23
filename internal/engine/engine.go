// Package engine ties the schedule pipeline together: it loads project
// state through the persistence collaborator, runs the CPM passes and the
// constraint solver over a request-scoped snapshot, and exposes
// apply/preview/rollback of computed schedules.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/solver"
)

// Algorithm tag recorded on every computed schedule.
const Algorithm = "cpm"

// TaskDates is the pre-image of one task captured before apply.
type TaskDates struct {
	Start   time.Time `json:"start"`
	Due     time.Time `json:"due"`
	Version int64     `json:"version"`
}

// ComputedSchedule is the persisted result of one calculation run. It is
// mutated only by Apply (stamps applied/appliedAt and the pre-image) and
// Rollback (restores task dates from the pre-image).
type ComputedSchedule struct {
	ID            string                      `json:"id"`
	ProjectID     string                      `json:"project_id"`
	CalculatedAt  time.Time                   `json:"calculated_at"`
	Algorithm     string                      `json:"algorithm"`
	Results       []*cpm.ScheduleResult       `json:"results"`
	CriticalPath  []string                    `json:"critical_path"`
	ProjectFinish float64                     `json:"project_finish"`
	Windows       map[string]solver.DateRange `json:"windows,omitempty"`
	Delays        map[string]float64          `json:"delays,omitempty"`
	Conflicts     []conflict.Conflict         `json:"conflicts,omitempty"`
	Violations    []solver.Violation          `json:"violations,omitempty"`
	Suggestions   []solver.Suggestion         `json:"suggestions,omitempty"`
	Applied       bool                        `json:"applied"`
	AppliedAt     *time.Time                  `json:"applied_at,omitempty"`
	RollbackToken string                      `json:"rollback_token,omitempty"`
	PreImage      map[string]TaskDates        `json:"pre_image,omitempty"`
}

// Result returns the per-task result for id, or nil.
func (s *ComputedSchedule) Result(id string) *cpm.ScheduleResult {
	for _, r := range s.Results {
		if r.TaskID == id {
			return r
		}
	}
	return nil
}

// Store is the persistence collaborator contract the engine requires. It
// extends the conflict services' view with computed-schedule records. The
// implementation must make UpdateTask an atomic check-and-increment on the
// entity version.
type Store interface {
	conflict.Store
	SaveSchedule(ctx context.Context, s *ComputedSchedule) error
	Schedule(ctx context.Context, id string) (*ComputedSchedule, error)
}

// Options configures a calculation run.
type Options struct {
	Deadline       *time.Time
	MandatoryDates map[string]time.Time
	Capacity       map[string]float64
}

// Engine computes and reconciles schedules for one project calendar.
type Engine struct {
	store Store
	cal   *calendar.Calendar
}

// New creates an Engine over store and cal.
func New(store Store, cal *calendar.Calendar) *Engine {
	return &Engine{store: store, cal: cal}
}

// Calculate runs the full pipeline for a project and persists the result.
// The computation operates on a snapshot of the stored tasks and never
// mutates them; conflicts and violations are findings on the returned
// schedule, not errors.
func (e *Engine) Calculate(ctx context.Context, projectID string, opts Options) (*ComputedSchedule, error) {
	if err := e.cal.Validate(); err != nil {
		return nil, err
	}

	tasks, err := e.store.Tasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	deps, err := e.store.Dependencies(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}

	var live []*graph.Task
	for _, t := range tasks {
		if !t.Deleted {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("project %s has no tasks", projectID)
	}

	g, err := graph.Build(live, deps)
	if err != nil {
		return nil, err
	}

	var deadlineUnits *float64
	if opts.Deadline != nil {
		u := e.cal.UnitsForDate(*opts.Deadline) + 1
		deadlineUnits = &u
	}

	sched, err := cpm.Calculate(g, e.cal, deadlineUnits)
	if err != nil {
		return nil, err
	}

	solved, err := solver.Solve(g, sched, e.cal, solver.Options{
		MandatoryDates: opts.MandatoryDates,
		Capacity:       opts.Capacity,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*cpm.ScheduleResult, 0, len(sched.Tasks))
	for _, id := range sched.TopoOrder {
		results = append(results, sched.Tasks[id])
	}

	cs := &ComputedSchedule{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		CalculatedAt:  time.Now(),
		Algorithm:     Algorithm,
		Results:       results,
		CriticalPath:  sched.CriticalPath,
		ProjectFinish: sched.ProjectFinish,
		Windows:       solved.Windows,
		Delays:        solved.Delays,
		Conflicts:     solved.Conflicts,
		Violations:    solved.Violations,
		Suggestions:   solved.Suggestions,
	}

	if err := e.store.SaveSchedule(ctx, cs); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	return cs, nil
}

// TaskDiff is one task whose live dates differ from a computed schedule.
type TaskDiff struct {
	TaskID       string    `json:"task_id"`
	CurrentStart time.Time `json:"current_start,omitempty"`
	CurrentDue   time.Time `json:"current_due,omitempty"`
	NewStart     time.Time `json:"new_start"`
	NewDue       time.Time `json:"new_due"`
}

// Preview is the diff between a stored schedule and the live task dates.
type Preview struct {
	ScheduleID string     `json:"schedule_id"`
	Changed    []TaskDiff `json:"changed_tasks"`
	// EstimatedSavings is how many working days earlier the project would
	// finish if the schedule were applied. Negative means it finishes later.
	EstimatedSavings float64 `json:"estimated_savings"`
}

// PreviewSchedule diffs a stored computed schedule against the current
// live task dates.
func (e *Engine) PreviewSchedule(ctx context.Context, scheduleID string) (*Preview, error) {
	cs, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	p := &Preview{ScheduleID: cs.ID}
	currentFinish := time.Time{}
	computedFinish := time.Time{}

	for _, r := range cs.Results {
		w, ok := cs.Windows[r.TaskID]
		if !ok {
			w = solver.DateRange{Start: r.StartDate, End: r.FinishDate}
		}
		t, err := e.store.Task(ctx, r.TaskID)
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", r.TaskID, err)
		}
		if t == nil || t.Deleted {
			continue
		}
		if !sameDay(t.StartDate, w.Start) || !sameDay(t.DueDate, w.End) {
			p.Changed = append(p.Changed, TaskDiff{
				TaskID:       t.ID,
				CurrentStart: t.StartDate,
				CurrentDue:   t.DueDate,
				NewStart:     w.Start,
				NewDue:       w.End,
			})
		}
		if t.DueDate.After(currentFinish) {
			currentFinish = t.DueDate
		}
		if w.End.After(computedFinish) {
			computedFinish = w.End
		}
	}

	if !currentFinish.IsZero() && !computedFinish.IsZero() {
		p.EstimatedSavings = e.cal.UnitsBetween(computedFinish, currentFinish)
	}
	sort.Slice(p.Changed, func(i, j int) bool { return p.Changed[i].TaskID < p.Changed[j].TaskID })
	return p, nil
}

// ApplyResult reports what ApplySchedule wrote.
type ApplyResult struct {
	AppliedCount  int    `json:"applied_count"`
	RollbackToken string `json:"rollback_token"`
}

// ApplySchedule writes a computed schedule's dates back through the store.
// scope, when non-empty, limits the write to those task ids. Every written
// task's prior dates and version are captured as a pre-image keyed by the
// returned rollback token.
func (e *Engine) ApplySchedule(ctx context.Context, scheduleID string, scope []string) (*ApplyResult, error) {
	cs, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if cs.Applied {
		return nil, fmt.Errorf("schedule %s is already applied", cs.ID)
	}

	inScope := func(id string) bool {
		if len(scope) == 0 {
			return true
		}
		for _, s := range scope {
			if s == id {
				return true
			}
		}
		return false
	}

	preImage := make(map[string]TaskDates)
	applied := 0

	for _, r := range cs.Results {
		if !inScope(r.TaskID) {
			continue
		}
		t, err := e.store.Task(ctx, r.TaskID)
		if err != nil {
			return nil, fmt.Errorf("load task %s: %w", r.TaskID, err)
		}
		if t == nil || t.Deleted || t.Locked {
			continue
		}

		w, ok := cs.Windows[r.TaskID]
		if !ok {
			w = solver.DateRange{Start: r.StartDate, End: r.FinishDate}
		}
		if sameDay(t.StartDate, w.Start) && sameDay(t.DueDate, w.End) {
			continue
		}

		preImage[t.ID] = TaskDates{Start: t.StartDate, Due: t.DueDate, Version: t.Version}
		if _, err := e.store.UpdateTask(ctx, t.ID, t.Version, map[string]any{
			"start_date": w.Start,
			"due_date":   w.End,
		}); err != nil {
			return nil, fmt.Errorf("apply task %s: %w", t.ID, err)
		}
		applied++
	}

	now := time.Now()
	cs.Applied = true
	cs.AppliedAt = &now
	cs.RollbackToken = uuid.NewString()
	cs.PreImage = preImage
	if err := e.store.SaveSchedule(ctx, cs); err != nil {
		return nil, fmt.Errorf("record apply: %w", err)
	}

	return &ApplyResult{AppliedCount: applied, RollbackToken: cs.RollbackToken}, nil
}

// RollbackSchedule restores the task dates captured when a schedule was
// applied. The token must match the one ApplySchedule returned. Returns
// the number of tasks restored.
func (e *Engine) RollbackSchedule(ctx context.Context, scheduleID, token string) (int, error) {
	cs, err := e.loadSchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	if !cs.Applied {
		return 0, fmt.Errorf("schedule %s has not been applied", cs.ID)
	}
	if cs.RollbackToken == "" || cs.RollbackToken != token {
		return 0, fmt.Errorf("rollback token does not match schedule %s", cs.ID)
	}

	ids := make([]string, 0, len(cs.PreImage))
	for id := range cs.PreImage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	restored := 0
	for _, id := range ids {
		prior := cs.PreImage[id]
		t, err := e.store.Task(ctx, id)
		if err != nil {
			return restored, fmt.Errorf("load task %s: %w", id, err)
		}
		if t == nil {
			continue
		}
		if _, err := e.store.UpdateTask(ctx, id, t.Version, map[string]any{
			"start_date": prior.Start,
			"due_date":   prior.Due,
		}); err != nil {
			return restored, fmt.Errorf("restore task %s: %w", id, err)
		}
		restored++
	}

	cs.Applied = false
	cs.AppliedAt = nil
	cs.RollbackToken = ""
	cs.PreImage = nil
	if err := e.store.SaveSchedule(ctx, cs); err != nil {
		return restored, fmt.Errorf("record rollback: %w", err)
	}
	return restored, nil
}

func (e *Engine) loadSchedule(ctx context.Context, id string) (*ComputedSchedule, error) {
	cs, err := e.store.Schedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load schedule %s: %w", id, err)
	}
	if cs == nil {
		return nil, fmt.Errorf("schedule %s not found", id)
	}
	return cs, nil
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return calendar.DateKey(a) == calendar.DateKey(b)
}
