package graph

import "time"

// DependencyType classifies how a dependency constrains its successor.
type DependencyType string

const (
	FinishToStart  DependencyType = "FS"
	StartToStart   DependencyType = "SS"
	StartToFinish  DependencyType = "SF"
	FinishToFinish DependencyType = "FF"
)

// Valid reports whether t is one of the four recognized dependency types.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, StartToFinish, FinishToFinish:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Task represents a single schedulable task.
type Task struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Title      string     `json:"title"`
	Status     TaskStatus `json:"status"`
	Duration   float64    `json:"duration"` // working days
	StartDate  time.Time  `json:"start_date,omitempty"`
	DueDate    time.Time  `json:"due_date,omitempty"`
	AssigneeID string     `json:"assignee_id,omitempty"`
	Progress   float64    `json:"progress"` // 0-100
	Locked     bool       `json:"locked"`
	Deleted    bool       `json:"deleted"`
	Version    int64      `json:"version"`
}

// Completed reports whether the task has finished.
func (t *Task) Completed() bool {
	return t.Status == StatusDone
}

// Dependency is a typed, lagged edge between two tasks.
// A negative lag is a lead: the successor may overlap its predecessor.
type Dependency struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	PredecessorID string         `json:"predecessor_id"`
	SuccessorID   string         `json:"successor_id"`
	Type          DependencyType `json:"type"`
	Lag           float64        `json:"lag"` // working days
	Version       int64          `json:"version"`
}

// Edge is one side of a dependency as seen from a task. In Preds lists
// TaskID names the predecessor; in Succs lists it names the successor.
type Edge struct {
	TaskID string
	Type   DependencyType
	Lag    float64
}

// Graph is an id-indexed task arena with typed adjacency lists.
// Tasks and edges never hold object references to each other, so traversal
// is always by id lookup.
type Graph struct {
	Tasks  map[string]*Task
	Preds  map[string][]Edge // successor id -> incoming edges
	Succs  map[string][]Edge // predecessor id -> outgoing edges
	Roots  []string          // tasks with no predecessors
	Leaves []string          // tasks with no successors
}
