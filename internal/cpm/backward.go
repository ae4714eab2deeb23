package cpm

import (
	"math"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// backwardPass computes latest start/finish, floats and criticality,
// visiting tasks in reverse topological order. The constraint a successor
// edge imposes on this task's latest finish mirrors the forward formulas
// with the lag direction negated:
//
//	FS: succ.LS - lag        SS: succ.LS - lag + d
//	FF: succ.LF - lag        SF: succ.LF - lag + d
//
// where d is this task's effective duration.
func backwardPass(g *graph.Graph, results map[string]*ScheduleResult, order []string, horizon float64) {
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		r := results[id]
		dur := r.duration()
		succs := g.Succs[id]

		if len(succs) == 0 {
			r.LatestFinish = horizon
		} else {
			lf := math.Inf(1)
			for _, e := range succs {
				s := results[e.TaskID]
				var c float64
				switch e.Type {
				case graph.FinishToStart:
					c = s.LatestStart - e.Lag
				case graph.StartToStart:
					c = s.LatestStart - e.Lag + dur
				case graph.FinishToFinish:
					c = s.LatestFinish - e.Lag
				case graph.StartToFinish:
					c = s.LatestFinish - e.Lag + dur
				}
				if c < lf {
					lf = c
				}
			}
			r.LatestFinish = lf
		}

		r.LatestStart = r.LatestFinish - dur
		r.TotalFloat = r.LatestStart - r.EarliestStart
		r.FreeFloat = freeFloat(g, results, r, succs)
		r.IsCritical = math.Abs(r.TotalFloat) <= CriticalTolerance
	}
}

// freeFloat is the slack a task can absorb without delaying any successor:
// the minimum, over outgoing edges, of the successor's earliest start minus
// the start this edge would force on it. Clamped to [0, totalFloat]; tasks
// with no successors inherit their total float.
func freeFloat(g *graph.Graph, results map[string]*ScheduleResult, r *ScheduleResult, succs []graph.Edge) float64 {
	if len(succs) == 0 {
		return r.TotalFloat
	}
	ff := math.Inf(1)
	for _, e := range succs {
		s := results[e.TaskID]
		var required float64
		switch e.Type {
		case graph.FinishToStart:
			required = r.EarliestFinish + e.Lag
		case graph.StartToStart:
			required = r.EarliestStart + e.Lag
		case graph.FinishToFinish:
			required = r.EarliestFinish + e.Lag - s.duration()
		case graph.StartToFinish:
			required = r.EarliestStart + e.Lag - s.duration()
		}
		if slack := s.EarliestStart - required; slack < ff {
			ff = slack
		}
	}
	if ff < 0 {
		ff = 0
	}
	if ff > r.TotalFloat {
		ff = r.TotalFloat
	}
	return ff
}

// criticalPath extracts the ordered critical chain: start from critical
// tasks with no critical predecessor and greedily follow the
// earliest-starting unvisited critical successor. Unvisited critical start
// tasks seed additional segments.
func criticalPath(g *graph.Graph, results map[string]*ScheduleResult, order []string) []string {
	hasCriticalPred := func(id string) bool {
		for _, e := range g.Preds[id] {
			if results[e.TaskID].IsCritical {
				return true
			}
		}
		return false
	}

	var starts []string
	for _, id := range order {
		if results[id].IsCritical && !hasCriticalPred(id) {
			starts = append(starts, id)
		}
	}

	visited := make(map[string]bool)
	var path []string
	for _, start := range starts {
		if visited[start] {
			continue
		}
		cur := start
		for {
			path = append(path, cur)
			visited[cur] = true

			next := ""
			nextES := math.Inf(1)
			for _, e := range g.Succs[cur] {
				s := results[e.TaskID]
				if s.IsCritical && !visited[e.TaskID] && s.EarliestStart < nextES {
					next = e.TaskID
					nextES = s.EarliestStart
				}
			}
			if next == "" {
				break
			}
			cur = next
		}
	}
	return path
}
