// Package solver applies calendar and resource-capacity constraints on top
// of a CPM schedule, levels over-allocated resources within available
// float, and emits residual violations, conflicts and optimization
// suggestions.
package solver

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// adjustTolerance is the working-day drift between a task's stored dates
// and its computed dates above which a calendar adjustment is flagged.
const adjustTolerance = 1.0

// taskAllocation is the capacity one scheduled task consumes from its
// assignee while active.
const taskAllocation = 100.0

// Options configures a solve run.
type Options struct {
	// MandatoryDates are hard per-task deadlines (task id -> date).
	MandatoryDates map[string]time.Time
	// Capacity is each assignee's concurrent capacity in percent (0,100].
	// Assignees not listed default to 100.
	Capacity map[string]float64
}

// Violation is a single constraint finding.
type Violation struct {
	TaskID   string            `json:"task_id,omitempty"`
	Kind     string            `json:"kind"`
	Severity conflict.Severity `json:"severity"`
	Message  string            `json:"message"`
}

// Violation kinds.
const (
	KindCalendarAdjustment = "calendar_adjustment"
	KindMandatoryDate      = "mandatory_date"
	KindResourceOverlap    = "resource_overlap"
	KindDependencyDate     = "dependency_date"
	KindInfeasibleDeadline = "infeasible_deadline"
)

// DateRange is a task's adjusted calendar window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is the solver output. Delays holds the working-day delay applied
// to each leveled task; Conflicts are the findings that survived leveling.
type Result struct {
	Violations  []Violation          `json:"violations,omitempty"`
	Conflicts   []conflict.Conflict  `json:"conflicts,omitempty"`
	Delays      map[string]float64   `json:"delays,omitempty"`
	Windows     map[string]DateRange `json:"windows"`
	Suggestions []Suggestion         `json:"suggestions,omitempty"`
}

// Solve runs the constraint pipeline: calendar adjustment, mandatory-date
// checks, resource allocation, dependency-date checks, resource leveling,
// and suggestion generation. The input schedule is not mutated; leveling
// results are expressed as per-task delays.
func Solve(g *graph.Graph, sched *cpm.Result, cal *calendar.Calendar, opts Options) (*Result, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	for assignee, cap := range opts.Capacity {
		if cap <= 0 || cap > 100 {
			return nil, &calendar.InvalidConstraintError{
				Reason: fmt.Sprintf("capacity %g%% for assignee %s outside (0,100]", cap, assignee),
			}
		}
	}

	res := &Result{
		Delays:  make(map[string]float64),
		Windows: make(map[string]DateRange, len(sched.Tasks)),
	}

	res.checkCalendarDrift(g, sched, cal)
	res.checkMandatoryDates(sched, cal, opts.MandatoryDates)
	res.checkDependencyDates(g, sched)

	// Initial allocation check, then leveling, then a re-check; whatever
	// still overlaps is returned to the caller as a conflict.
	overlaps := res.resourceOverlaps(g, sched, opts.Capacity)
	if len(overlaps) > 0 {
		res.level(g, sched)
		overlaps = res.resourceOverlaps(g, sched, opts.Capacity)
	}
	for _, o := range overlaps {
		res.Violations = append(res.Violations, Violation{
			TaskID:   o.taskID,
			Kind:     KindResourceOverlap,
			Severity: conflict.SeverityError,
			Message:  o.message,
		})
		res.Conflicts = append(res.Conflicts, conflict.Conflict{
			ID:         uuid.NewString(),
			Pattern:    conflict.PatternResource,
			Severity:   conflict.SeverityError,
			EntityType: "task",
			EntityID:   o.taskID,
			Message:    o.message,
			Suggested:  []conflict.Strategy{conflict.StrategyManual},
			DetectedAt: time.Now(),
		})
	}

	res.checkInfeasible(sched)
	res.buildWindows(sched, cal)
	res.Suggestions = suggest(g, sched, opts.Capacity)

	return res, nil
}

// checkCalendarDrift compares each task's stored dates against its mapped
// schedule dates and flags drift beyond tolerance.
func (r *Result) checkCalendarDrift(g *graph.Graph, sched *cpm.Result, cal *calendar.Calendar) {
	for _, id := range sched.TopoOrder {
		t := g.Tasks[id]
		s := sched.Tasks[id]
		if t.StartDate.IsZero() {
			continue
		}
		mapped := cal.DateForUnits(s.EarliestStart + r.Delays[id])
		drift := math.Abs(cal.UnitsBetween(t.StartDate, mapped))
		if drift > adjustTolerance {
			r.Violations = append(r.Violations, Violation{
				TaskID:   id,
				Kind:     KindCalendarAdjustment,
				Severity: conflict.SeverityWarning,
				Message: fmt.Sprintf("task %s moves from %s to %s (%.1f working days)",
					id, calendar.DateKey(t.StartDate), calendar.DateKey(mapped), drift),
			})
		}
	}
}

// checkMandatoryDates flags tasks whose computed finish lands after a hard
// deadline.
func (r *Result) checkMandatoryDates(sched *cpm.Result, cal *calendar.Calendar, mandatory map[string]time.Time) {
	ids := make([]string, 0, len(mandatory))
	for id := range mandatory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s, ok := sched.Tasks[id]
		if !ok {
			continue
		}
		deadline := mandatory[id]
		finish := cal.EndDateForUnits(s.EarliestFinish + r.Delays[id])
		if finish.After(deadline) {
			msg := fmt.Sprintf("task %s finishes %s, after its mandatory date %s",
				id, calendar.DateKey(finish), calendar.DateKey(deadline))
			r.Violations = append(r.Violations, Violation{
				TaskID:   id,
				Kind:     KindMandatoryDate,
				Severity: conflict.SeverityError,
				Message:  msg,
			})
			r.Conflicts = append(r.Conflicts, conflict.Conflict{
				ID:                uuid.NewString(),
				Pattern:           conflict.PatternSchedule,
				Severity:          conflict.SeverityError,
				EntityType:        "task",
				EntityID:          id,
				ConflictingFields: []string{"due_date"},
				Message:           msg,
				Suggested:         []conflict.Strategy{conflict.StrategyManual},
				DetectedAt:        time.Now(),
			})
		}
	}
}

// checkDependencyDates flags tasks scheduled before the start their
// dependencies require.
func (r *Result) checkDependencyDates(g *graph.Graph, sched *cpm.Result) {
	for _, id := range sched.TopoOrder {
		s := sched.Tasks[id]
		for _, e := range g.Preds[id] {
			p := sched.Tasks[e.TaskID]
			var required float64
			switch e.Type {
			case graph.FinishToStart:
				required = p.EarliestFinish + e.Lag
			case graph.StartToStart:
				required = p.EarliestStart + e.Lag
			case graph.FinishToFinish:
				required = p.EarliestFinish + e.Lag - s.EarliestFinish + s.EarliestStart
			case graph.StartToFinish:
				required = p.EarliestStart + e.Lag - s.EarliestFinish + s.EarliestStart
			}
			if s.EarliestStart+1e-9 < required {
				msg := fmt.Sprintf("task %s starts at day %.1f but its %s dependency on %s requires day %.1f",
					id, s.EarliestStart, e.Type, e.TaskID, required)
				r.Violations = append(r.Violations, Violation{
					TaskID:   id,
					Kind:     KindDependencyDate,
					Severity: conflict.SeverityError,
					Message:  msg,
				})
				r.Conflicts = append(r.Conflicts, conflict.Conflict{
					ID:         uuid.NewString(),
					Pattern:    conflict.PatternDependency,
					Severity:   conflict.SeverityError,
					EntityType: "task",
					EntityID:   id,
					Message:    msg,
					Suggested:  []conflict.Strategy{conflict.StrategyManual},
					DetectedAt: time.Now(),
				})
			}
		}
	}
}

// checkInfeasible surfaces negative float: the supplied deadline cannot be
// met by the tasks carrying it.
func (r *Result) checkInfeasible(sched *cpm.Result) {
	var late []string
	for _, id := range sched.TopoOrder {
		if sched.Tasks[id].TotalFloat < -cpm.CriticalTolerance {
			late = append(late, id)
			r.Violations = append(r.Violations, Violation{
				TaskID:   id,
				Kind:     KindInfeasibleDeadline,
				Severity: conflict.SeverityError,
				Message:  fmt.Sprintf("task %s has %.1f days of negative float", id, sched.Tasks[id].TotalFloat),
			})
		}
	}
	if len(late) > 0 {
		r.Conflicts = append(r.Conflicts, conflict.Conflict{
			ID:                uuid.NewString(),
			Pattern:           conflict.PatternSchedule,
			Severity:          conflict.SeverityError,
			EntityType:        "project",
			EntityID:          "deadline",
			ConflictingFields: late,
			Message:           fmt.Sprintf("deadline is infeasible: %d tasks carry negative float", len(late)),
			Suggested:         []conflict.Strategy{conflict.StrategyManual},
			DetectedAt:        time.Now(),
		})
	}
}

// buildWindows maps every task's delayed unit span to calendar dates.
func (r *Result) buildWindows(sched *cpm.Result, cal *calendar.Calendar) {
	for id, s := range sched.Tasks {
		delay := r.Delays[id]
		r.Windows[id] = DateRange{
			Start: cal.DateForUnits(s.EarliestStart + delay),
			End:   cal.EndDateForUnits(s.EarliestFinish + delay),
		}
	}
}

// start and end of a task's active span in working-day units, after any
// leveling delay.
func (r *Result) span(s *cpm.ScheduleResult) (float64, float64) {
	delay := r.Delays[s.TaskID]
	return s.EarliestStart + delay, s.EarliestFinish + delay
}
