// Package reporter renders computed schedules and conflict findings for
// the terminal and as JSON.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/solver"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/ui"
)

// Reporter writes schedule output for one computed schedule.
type Reporter struct {
	Schedule *engine.ComputedSchedule
}

// New creates a Reporter for a computed schedule.
func New(s *engine.ComputedSchedule) *Reporter {
	return &Reporter{Schedule: s}
}

// PrintSchedule writes a terminal-friendly schedule table: one row per
// task in topological order, critical tasks marked, followed by the
// critical path and the project finish.
func (r *Reporter) PrintSchedule(w io.Writer) {
	s := r.Schedule
	fmt.Fprintf(w, "%s %s %s\n\n",
		ui.BoldCyan("Schedule"), s.ID, ui.Dim(fmt.Sprintf("(%s, %s)", s.Algorithm, s.CalculatedAt.Format("2006-01-02 15:04"))))

	fmt.Fprintf(w, "  %s %-12s %8s %8s %8s %8s %7s  %-10s %-10s\n",
		" ", ui.Bold("TASK"), "ES", "EF", "LS", "LF", "FLOAT", "START", "FINISH")
	for _, res := range s.Results {
		start, end := res.StartDate, res.FinishDate
		if wdw, ok := s.Windows[res.TaskID]; ok {
			start, end = wdw.Start, wdw.End
		}
		fmt.Fprintf(w, "  %s %-12s %8.1f %8.1f %8.1f %8.1f %7.1f  %-10s %-10s\n",
			ui.CriticalMark(res.IsCritical), res.TaskID,
			res.EarliestStart, res.EarliestFinish,
			res.LatestStart, res.LatestFinish,
			res.TotalFloat,
			calendar.DateKey(start), calendar.DateKey(end))
	}

	fmt.Fprintf(w, "\n  %s %s\n", ui.Bold("Critical path:"), ui.BoldRed(strings.Join(s.CriticalPath, " -> ")))
	fmt.Fprintf(w, "  %s %.1f working days\n", ui.Bold("Project finish:"), s.ProjectFinish)

	if len(s.Delays) > 0 {
		ids := make([]string, 0, len(s.Delays))
		for id := range s.Delays {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(w, "\n  %s\n", ui.Bold("Leveling delays"))
		for _, id := range ids {
			fmt.Fprintf(w, "    %-12s +%.1f days\n", id, s.Delays[id])
		}
	}

	r.printFindings(w, s.Conflicts, s.Violations, s.Suggestions)
}

// PrintConflicts writes standalone conflict findings, one block per
// conflict with its recommended resolution.
func PrintConflicts(w io.Writer, conflicts []conflict.Conflict) {
	if len(conflicts) == 0 {
		fmt.Fprintf(w, "%s no conflicts\n", ui.Green("ok:"))
		return
	}
	for i := range conflicts {
		c := &conflicts[i]
		fmt.Fprintf(w, "%s %s %s %s\n",
			ui.SeverityLabel(string(c.Severity)), ui.PatternLabel(string(c.Pattern)),
			ui.Bold(c.EntityType+"/"+c.EntityID), ui.Dim(c.ID))
		fmt.Fprintf(w, "    %s\n", c.Message)
		if len(c.ConflictingFields) > 0 {
			fmt.Fprintf(w, "    %s %s\n", ui.Dim("fields:"), strings.Join(c.ConflictingFields, ", "))
		}
		rec := conflict.Recommend(c.Pattern, c.Severity)
		fmt.Fprintf(w, "    %s %s %s\n",
			ui.Dim("suggested:"), ui.Cyan(string(rec.Strategy)),
			ui.Dim(fmt.Sprintf("(%.0f%%: %s)", rec.Confidence*100, rec.Reason)))
	}
}

func (r *Reporter) printFindings(w io.Writer, conflicts []conflict.Conflict, violations []solver.Violation, suggestions []solver.Suggestion) {
	if len(violations) > 0 {
		fmt.Fprintf(w, "\n  %s\n", ui.Bold("Violations"))
		for _, v := range violations {
			fmt.Fprintf(w, "    %s %-22s %s\n", ui.SeverityLabel(string(v.Severity)), v.Kind, v.Message)
		}
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(w, "\n  %s\n", ui.Bold("Conflicts"))
		for i := range conflicts {
			c := &conflicts[i]
			fmt.Fprintf(w, "    %s %-12s %s\n",
				ui.SeverityLabel(string(c.Severity)), ui.PatternLabel(string(c.Pattern)), c.Message)
		}
	}
	if len(suggestions) > 0 {
		fmt.Fprintf(w, "\n  %s\n", ui.Bold("Suggestions"))
		for _, s := range suggestions {
			fmt.Fprintf(w, "    %s %s\n", ui.Cyan("•"), s.Message)
		}
	}
}

// JSON writes any report payload as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
