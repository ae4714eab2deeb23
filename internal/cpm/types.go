package cpm

import "time"

// CriticalTolerance is the float magnitude (in working days) below which a
// task counts as critical.
const CriticalTolerance = 0.1

// ScheduleResult holds the computed bounds for a single task. Unit fields
// are working-day offsets from the project start; date fields are their
// calendar mapping.
type ScheduleResult struct {
	TaskID         string    `json:"task_id"`
	EarliestStart  float64   `json:"earliest_start"`
	EarliestFinish float64   `json:"earliest_finish"`
	LatestStart    float64   `json:"latest_start"`
	LatestFinish   float64   `json:"latest_finish"`
	TotalFloat     float64   `json:"total_float"`
	FreeFloat      float64   `json:"free_float"`
	IsCritical     bool      `json:"is_critical"`
	StartDate      time.Time `json:"start_date"`
	FinishDate     time.Time `json:"finish_date"`
}

// duration returns the effective duration the passes computed with.
func (r *ScheduleResult) duration() float64 {
	return r.EarliestFinish - r.EarliestStart
}

// Result is the output of a full forward+backward pass over one task graph.
type Result struct {
	Tasks         map[string]*ScheduleResult
	TopoOrder     []string
	CriticalPath  []string // ordered task ids
	ProjectFinish float64  // earliest finish over all tasks, working days
	FinishTasks   []string // tasks achieving ProjectFinish
}
