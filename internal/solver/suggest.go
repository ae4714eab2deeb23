package solver

import (
	"fmt"
	"sort"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/cpm"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// Thresholds for optimization suggestions.
const (
	lowUtilization    = 60.0 // percent
	highCriticalRatio = 0.4
	highFloatDays     = 5.0
)

// Suggestion is a non-binding optimization hint.
type Suggestion struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

// Suggestion kinds.
const (
	SuggestUnderutilized = "underutilized_resource"
	SuggestCriticalRatio = "high_critical_ratio"
	SuggestRedistribute  = "redistribute_float"
)

// suggest emits optimization hints: under-utilized assignees, a critical
// path covering too much of the project, and high-float tasks that could
// absorb redistributed work.
func suggest(g *graph.Graph, sched *cpm.Result, capacity map[string]float64) []Suggestion {
	var out []Suggestion

	if sched.ProjectFinish > 0 {
		busy := make(map[string]float64)
		for _, id := range sched.TopoOrder {
			t := g.Tasks[id]
			if t.AssigneeID == "" {
				continue
			}
			s := sched.Tasks[id]
			busy[t.AssigneeID] += s.EarliestFinish - s.EarliestStart
		}
		assignees := make([]string, 0, len(busy))
		for a := range busy {
			assignees = append(assignees, a)
		}
		sort.Strings(assignees)
		for _, a := range assignees {
			util := busy[a] / sched.ProjectFinish * 100
			if cap, ok := capacity[a]; ok {
				util = util / cap * 100
			}
			if util < lowUtilization {
				out = append(out, Suggestion{
					Kind:    SuggestUnderutilized,
					Message: fmt.Sprintf("assignee %s is utilized %.0f%% of the project span; consider assigning more work", a, util),
				})
			}
		}
	}

	critical := 0
	for _, s := range sched.Tasks {
		if s.IsCritical {
			critical++
		}
	}
	if n := len(sched.Tasks); n > 0 {
		if ratio := float64(critical) / float64(n); ratio > highCriticalRatio {
			out = append(out, Suggestion{
				Kind: SuggestCriticalRatio,
				Message: fmt.Sprintf("%.0f%% of tasks are on the critical path; adding resources or splitting tasks would reduce schedule risk",
					ratio*100),
			})
		}
	}

	var slack []string
	for _, id := range sched.TopoOrder {
		if sched.Tasks[id].TotalFloat > highFloatDays {
			slack = append(slack, id)
		}
	}
	if len(slack) > 0 {
		out = append(out, Suggestion{
			Kind:    SuggestRedistribute,
			Message: fmt.Sprintf("%d tasks have more than %.0f days of float and could absorb redistributed work", len(slack), highFloatDays),
			TaskIDs: slack,
		})
	}

	return out
}
