package cpm

import (
	"math"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// effectiveDuration returns the working-day duration a task still occupies
// on the schedule. Completed tasks contribute their actual elapsed working
// time; in-progress tasks contribute the remaining share of their estimate.
func effectiveDuration(t *graph.Task, cal *calendar.Calendar) float64 {
	if t.Completed() {
		if !t.StartDate.IsZero() && !t.DueDate.IsZero() {
			return cal.WorkingDaysInclusive(t.StartDate, t.DueDate)
		}
		return 0
	}
	if t.Progress > 0 {
		return t.Duration * (1 - t.Progress/100)
	}
	return t.Duration
}

// forwardPass computes earliest start and finish for every task, visiting
// tasks in topological order. Constraint per incoming edge:
//
//	FS: pred.EF + lag    SS: pred.ES + lag
//	FF: pred.EF - d + lag    SF: pred.ES - d + lag
//
// where d is the successor's effective duration.
func forwardPass(g *graph.Graph, cal *calendar.Calendar, order []string) map[string]*ScheduleResult {
	results := make(map[string]*ScheduleResult, len(order))
	for _, id := range order {
		results[id] = &ScheduleResult{TaskID: id}
	}

	for _, id := range order {
		r := results[id]
		dur := effectiveDuration(g.Tasks[id], cal)

		es := 0.0
		for _, e := range g.Preds[id] {
			p := results[e.TaskID]
			var c float64
			switch e.Type {
			case graph.FinishToStart:
				c = p.EarliestFinish + e.Lag
			case graph.StartToStart:
				c = p.EarliestStart + e.Lag
			case graph.FinishToFinish:
				c = p.EarliestFinish - dur + e.Lag
			case graph.StartToFinish:
				c = p.EarliestStart - dur + e.Lag
			}
			if c > es {
				es = c
			}
		}
		// A lead cannot pull a task before the project start.
		if es < 0 {
			es = 0
		}

		r.EarliestStart = es
		r.EarliestFinish = es + dur
	}

	return results
}

// projectFinish returns the maximum earliest finish and the tasks achieving
// it within tolerance.
func projectFinish(results map[string]*ScheduleResult, order []string) (float64, []string) {
	finish := 0.0
	for _, id := range order {
		if ef := results[id].EarliestFinish; ef > finish {
			finish = ef
		}
	}
	var finishers []string
	for _, id := range order {
		if math.Abs(results[id].EarliestFinish-finish) <= CriticalTolerance {
			finishers = append(finishers, id)
		}
	}
	return finish, finishers
}
