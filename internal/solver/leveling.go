package solver

import (
	"fmt"
	"sort"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// overlap is one over-allocation finding.
type overlap struct {
	taskID  string
	message string
}

// resourceOverlaps builds a per-assignee allocation timeline and returns
// every task pair whose summed allocation exceeds the assignee's capacity
// while their spans overlap. Completed tasks hold no allocation.
func (r *Result) resourceOverlaps(g *graph.Graph, sched *cpm.Result, capacity map[string]float64) []overlap {
	byAssignee := make(map[string][]string)
	for _, id := range sched.TopoOrder {
		t := g.Tasks[id]
		if t.AssigneeID == "" || t.Completed() {
			continue
		}
		byAssignee[t.AssigneeID] = append(byAssignee[t.AssigneeID], id)
	}

	assignees := make([]string, 0, len(byAssignee))
	for a := range byAssignee {
		assignees = append(assignees, a)
	}
	sort.Strings(assignees)

	var found []overlap
	for _, a := range assignees {
		cap := 100.0
		if c, ok := capacity[a]; ok {
			cap = c
		}
		ids := byAssignee[a]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				s1, e1 := r.span(sched.Tasks[ids[i]])
				s2, e2 := r.span(sched.Tasks[ids[j]])
				if s1 < e2-1e-9 && s2 < e1-1e-9 && 2*taskAllocation > cap {
					found = append(found, overlap{
						taskID: ids[j],
						message: fmt.Sprintf("assignee %s is allocated %.0f%% across tasks %s and %s (capacity %.0f%%)",
							a, 2*taskAllocation, ids[i], ids[j], cap),
					})
				}
			}
		}
	}
	return found
}

// level delays non-critical tasks to clear their overlap with critical
// tasks sharing an assignee. Candidates are visited in descending
// total-float order; each is pushed by the minimum amount that clears the
// overlap, never beyond its remaining float.
func (r *Result) level(g *graph.Graph, sched *cpm.Result) {
	var candidates []string
	for _, id := range sched.TopoOrder {
		s := sched.Tasks[id]
		if !s.IsCritical && !g.Tasks[id].Completed() && g.Tasks[id].AssigneeID != "" {
			candidates = append(candidates, id)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return sched.Tasks[candidates[i]].TotalFloat > sched.Tasks[candidates[j]].TotalFloat
	})

	for _, id := range candidates {
		s := sched.Tasks[id]
		assignee := g.Tasks[id].AssigneeID

		for _, other := range sched.TopoOrder {
			if other == id {
				continue
			}
			o := sched.Tasks[other]
			if !o.IsCritical || g.Tasks[other].AssigneeID != assignee || g.Tasks[other].Completed() {
				continue
			}

			start, end := r.span(s)
			oStart, oEnd := r.span(o)
			if start >= oEnd-1e-9 || oStart >= end-1e-9 {
				continue
			}

			needed := oEnd - start
			available := s.TotalFloat - r.Delays[id]
			if available <= 0 {
				continue
			}
			if needed > available {
				needed = available
			}
			if needed > 0 {
				r.Delays[id] += needed
			}
		}
	}

	// Drop zero entries so Delays reports only tasks actually moved.
	for id, d := range r.Delays {
		if d == 0 {
			delete(r.Delays, id)
		}
	}
}
