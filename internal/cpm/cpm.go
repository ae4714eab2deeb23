// Package cpm implements the Critical Path Method: a forward pass deriving
// earliest bounds from typed, lagged dependencies, and a backward pass
// deriving latest bounds, float and the critical path.
package cpm

import (
	"fmt"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// Calculate runs the forward and backward passes over g. deadlineUnits, when
// non-nil, is a hard project deadline in working days from the project start
// and replaces the project's earliest finish as the backward-pass horizon;
// an infeasible deadline surfaces as negative total float. The input graph
// is never mutated.
func Calculate(g *graph.Graph, cal *calendar.Calendar, deadlineUnits *float64) (*Result, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	order, err := g.TopoSort()
	if err != nil {
		return nil, fmt.Errorf("order tasks: %w", err)
	}

	results := forwardPass(g, cal, order)
	finish, finishers := projectFinish(results, order)

	horizon := finish
	if deadlineUnits != nil {
		horizon = *deadlineUnits
	}
	backwardPass(g, results, order, horizon)

	for _, r := range results {
		r.StartDate = cal.DateForUnits(r.EarliestStart)
		r.FinishDate = cal.EndDateForUnits(r.EarliestFinish)
	}

	return &Result{
		Tasks:         results,
		TopoOrder:     order,
		CriticalPath:  criticalPath(g, results, order),
		ProjectFinish: finish,
		FinishTasks:   finishers,
	}, nil
}
