package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
)

// ResolutionError reports that a specific resolution attempt failed. In
// bulk mode it is recorded per item and never aborts the batch.
type ResolutionError struct {
	ConflictID string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve conflict %s: %v", e.ConflictID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DateRule selects which side wins for a date field during a merge.
type DateRule string

const (
	DateCurrent  DateRule = "current"
	DateIncoming DateRule = "incoming"
	DateEarliest DateRule = "earliest"
	DateLatest   DateRule = "latest"
)

// ProgressRule selects how progress values combine during a merge.
type ProgressRule string

const (
	ProgressCurrent  ProgressRule = "current"
	ProgressIncoming ProgressRule = "incoming"
	ProgressMax      ProgressRule = "max"
	ProgressAverage  ProgressRule = "average"
)

// MergeRules drives field-level merging. Fields without a rule, and fields
// the rule set does not recognize, default to the incoming value.
type MergeRules struct {
	Dates    map[string]DateRule `json:"dates,omitempty"`
	Progress ProgressRule        `json:"progress,omitempty"`
}

// Resolution is the caller's choice for settling one conflict.
type Resolution struct {
	Strategy Strategy       `json:"strategy"`
	Values   map[string]any `json:"values,omitempty"` // manual strategy only
	Rules    *MergeRules    `json:"rules,omitempty"`  // merge strategy only
}

// Outcome records what a resolution attempt did.
type Outcome struct {
	ConflictID      string         `json:"conflict_id"`
	Success         bool           `json:"success"`
	AppliedStrategy Strategy       `json:"applied_strategy,omitempty"`
	FinalValues     map[string]any `json:"final_values,omitempty"`
	PreImage        map[string]any `json:"pre_image,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Err             string         `json:"error,omitempty"`
}

// Resolver applies resolution strategies through the persistence
// collaborator, capturing pre-images for rollback.
type Resolver struct {
	store     Store
	backupDir string
	mu        sync.Mutex
}

// NewResolver creates a Resolver. backupDir holds project snapshots taken
// before bulk resolution; it defaults to .ganttsched.
func NewResolver(store Store, backupDir string) *Resolver {
	if backupDir == "" {
		backupDir = ".ganttsched"
	}
	return &Resolver{store: store, backupDir: backupDir}
}

// Resolve settles a single conflict with the given resolution. The returned
// Outcome always describes what happened; the error, when non-nil, is a
// *ResolutionError wrapping the cause.
func (r *Resolver) Resolve(ctx context.Context, c *Conflict, res Resolution) (*Outcome, error) {
	out := &Outcome{ConflictID: c.ID, AppliedStrategy: res.Strategy}

	if !res.Strategy.Valid() {
		return r.fail(out, c, fmt.Errorf("unknown strategy %q", res.Strategy))
	}

	current, err := r.store.Task(ctx, c.EntityID)
	if err != nil {
		return r.fail(out, c, fmt.Errorf("load task %s: %w", c.EntityID, err))
	}

	if current == nil || current.Deleted {
		if res.Strategy == StrategyCurrent {
			out.Success = true
			out.Warnings = append(out.Warnings, fmt.Sprintf("task %s is deleted; kept as-is", c.EntityID))
			return out, nil
		}
		return r.fail(out, c, fmt.Errorf("task %s is deleted; only the current strategy applies", c.EntityID))
	}

	out.PreImage = taskFieldValues(current)

	var fields map[string]any
	switch res.Strategy {
	case StrategyCurrent:
		out.Success = true
		out.FinalValues = out.PreImage
		return out, nil
	case StrategyIncoming:
		fields, err = incomingFields(c.AttemptedValues)
		if err != nil {
			return r.fail(out, c, err)
		}
	case StrategyManual:
		if len(res.Values) == 0 {
			return r.fail(out, c, fmt.Errorf("manual strategy requires explicit values"))
		}
		fields = res.Values
	case StrategyMerge:
		var warnings []string
		fields, warnings, err = mergeFields(current, c.AttemptedValues, res.Rules)
		if err != nil {
			return r.fail(out, c, err)
		}
		out.Warnings = append(out.Warnings, warnings...)
	}

	if len(fields) == 0 {
		out.Success = true
		out.FinalValues = out.PreImage
		out.Warnings = append(out.Warnings, "no fields to change")
		return out, nil
	}

	updated, err := r.store.UpdateTask(ctx, current.ID, current.Version, fields)
	if err != nil {
		return r.fail(out, c, fmt.Errorf("write task %s: %w", current.ID, err))
	}

	out.Success = true
	out.FinalValues = taskFieldValues(updated)
	return out, nil
}

func (r *Resolver) fail(out *Outcome, c *Conflict, err error) (*Outcome, error) {
	resErr := &ResolutionError{ConflictID: c.ID, Err: err}
	out.Success = false
	out.Err = resErr.Error()
	return out, resErr
}

// AutoResolveLevel gates which conflicts bulk resolution touches.
type AutoResolveLevel string

const (
	AutoResolveNone     AutoResolveLevel = "none"     // skip everything
	AutoResolveWarnings AutoResolveLevel = "warnings" // skip error-severity conflicts
	AutoResolveAll      AutoResolveLevel = "all"      // process everything
)

// BulkOptions configures ResolveBulk.
type BulkOptions struct {
	Strategy     Strategy         // empty: use the per-pattern recommendation
	AutoResolve  AutoResolveLevel // default: warnings
	CreateBackup bool
	Rules        *MergeRules
}

// ResolveBulk settles a list of conflicts. A failure on one conflict is
// recorded as a failed outcome and processing continues; there is no
// transaction across items. When CreateBackup is set a whole-project
// snapshot is written first and its token returned for Rollback.
func (r *Resolver) ResolveBulk(ctx context.Context, projectID string, conflicts []Conflict, opts BulkOptions) ([]Outcome, string, error) {
	if opts.AutoResolve == "" {
		opts.AutoResolve = AutoResolveWarnings
	}

	token := ""
	if opts.CreateBackup {
		var err error
		token, err = r.Snapshot(ctx, projectID)
		if err != nil {
			return nil, "", fmt.Errorf("create backup: %w", err)
		}
	}

	outcomes := make([]Outcome, 0, len(conflicts))
	for i := range conflicts {
		c := &conflicts[i]

		skip := opts.AutoResolve == AutoResolveNone ||
			(opts.AutoResolve == AutoResolveWarnings && c.Severity == SeverityError)
		if skip {
			outcomes = append(outcomes, Outcome{
				ConflictID: c.ID,
				Success:    false,
				Warnings:   []string{fmt.Sprintf("skipped by auto-resolve level %q", opts.AutoResolve)},
			})
			continue
		}

		strategy := opts.Strategy
		if strategy == "" {
			strategy = Recommend(c.Pattern, c.Severity).Strategy
		}

		out, _ := r.Resolve(ctx, c, Resolution{Strategy: strategy, Rules: opts.Rules})
		outcomes = append(outcomes, *out)
	}

	return outcomes, token, nil
}

// backupFile is the on-disk snapshot format.
type backupFile struct {
	Token     string        `json:"token"`
	ProjectID string        `json:"project_id"`
	CreatedAt time.Time     `json:"created_at"`
	Tasks     []*graph.Task `json:"tasks"`
}

// Snapshot writes the project's current tasks to a backup file and returns
// its token.
func (r *Resolver) Snapshot(ctx context.Context, projectID string) (string, error) {
	tasks, err := r.store.Tasks(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("load tasks: %w", err)
	}

	b := backupFile{
		Token:     uuid.NewString(),
		ProjectID: projectID,
		CreatedAt: time.Now(),
		Tasks:     tasks,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}
	if err := os.WriteFile(r.backupPath(b.Token), data, 0644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return b.Token, nil
}

// Rollback restores every task captured in the snapshot identified by
// token. Returns the number of tasks restored.
func (r *Resolver) Rollback(ctx context.Context, token string) (int, error) {
	data, err := os.ReadFile(r.backupPath(token))
	if err != nil {
		return 0, fmt.Errorf("read backup %s: %w", token, err)
	}
	var b backupFile
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("parse backup %s: %w", token, err)
	}

	restored := 0
	for _, snap := range b.Tasks {
		current, err := r.store.Task(ctx, snap.ID)
		if err != nil || current == nil {
			continue
		}
		fields := taskFieldValues(snap)
		if _, err := r.store.UpdateTask(ctx, snap.ID, current.Version, fields); err != nil {
			return restored, fmt.Errorf("restore task %s: %w", snap.ID, err)
		}
		restored++
	}
	return restored, nil
}

func (r *Resolver) backupPath(token string) string {
	return filepath.Join(r.backupDir, "backup-"+token+".json")
}

// taskFieldValues projects the watched fields of a task into an update map.
func taskFieldValues(t *graph.Task) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"status":      string(t.Status),
		"duration":    t.Duration,
		"start_date":  t.StartDate,
		"due_date":    t.DueDate,
		"assignee_id": t.AssigneeID,
		"progress":    t.Progress,
	}
}

// incomingFields extracts the watched fields present in an attempted-values
// payload, typed for the store.
func incomingFields(attempted []byte) (map[string]any, error) {
	if len(attempted) == 0 {
		return nil, fmt.Errorf("conflict carries no attempted values")
	}
	if !gjson.ValidBytes(attempted) {
		return nil, fmt.Errorf("attempted values are not valid JSON")
	}

	fields := make(map[string]any)
	for _, f := range watchedFields {
		v := gjson.GetBytes(attempted, f)
		if !v.Exists() {
			continue
		}
		typed, err := typedValue(f, v)
		if err != nil {
			return nil, err
		}
		fields[f] = typed
	}
	return fields, nil
}

func typedValue(field string, v gjson.Result) (any, error) {
	switch field {
	case "start_date", "due_date":
		return parseDate(v.String())
	case "duration", "progress":
		return v.Float(), nil
	default:
		return v.String(), nil
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// mergeFields combines current and incoming values field by field. Date
// fields follow their DateRule, progress follows the ProgressRule, and
// everything else defaults to incoming.
func mergeFields(current *graph.Task, attempted []byte, rules *MergeRules) (map[string]any, []string, error) {
	incoming, err := incomingFields(attempted)
	if err != nil {
		return nil, nil, err
	}
	if rules == nil {
		rules = &MergeRules{}
	}

	currentVals := taskFieldValues(current)
	fields := make(map[string]any, len(incoming))
	var warnings []string

	for f, in := range incoming {
		switch f {
		case "start_date", "due_date":
			rule := rules.Dates[f]
			cur, _ := currentVals[f].(time.Time)
			inT, _ := in.(time.Time)
			switch rule {
			case DateCurrent:
				fields[f] = cur
			case DateEarliest:
				fields[f] = earlier(cur, inT)
			case DateLatest:
				fields[f] = later(cur, inT)
			case DateIncoming, "":
				fields[f] = inT
			default:
				warnings = append(warnings, fmt.Sprintf("unknown date rule %q for %s; took incoming", rule, f))
				fields[f] = inT
			}
		case "progress":
			cur := current.Progress
			inF, _ := in.(float64)
			switch rules.Progress {
			case ProgressCurrent:
				fields[f] = cur
			case ProgressMax:
				if cur > inF {
					fields[f] = cur
				} else {
					fields[f] = inF
				}
			case ProgressAverage:
				fields[f] = (cur + inF) / 2
			case ProgressIncoming, "":
				fields[f] = inF
			default:
				warnings = append(warnings, fmt.Sprintf("unknown progress rule %q; took incoming", rules.Progress))
				fields[f] = inF
			}
		default:
			fields[f] = in
		}
	}

	return fields, warnings, nil
}

func earlier(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
