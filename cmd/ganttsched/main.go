package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/config"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/conflict"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/engine"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/graph"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/reporter"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/store"
	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/ui"
)

var (
	flagDB       string
	flagConfig   string
	flagProject  string
	flagJSON     bool
	flagTasks    string
	flagStrategy string
	flagAuto     string
	flagBackup   bool
	flagEntity   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ganttsched",
		Short: "Compute, validate and reconcile project schedules",
		Long: `Ganttsched computes critical-path schedules over a task dependency graph,
checks proposed changes against dependency, calendar and resource
constraints, and resolves concurrent-edit conflicts against the stored
project state.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", ".ganttsched/gantt.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "ganttsched.yaml", "Project configuration file")
	rootCmd.PersistentFlags().StringVar(&flagProject, "project", "", "Project id (defaults to the configured one)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(calculateCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(integrityCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(rollbackCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(recommendCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is the shared setup every command needs: the config, the opened
// store, and the engine wired over both.
type env struct {
	cfg    *config.Config
	cal    *calendar.Calendar
	store  *store.SQLite
	engine *engine.Engine
	det    *conflict.Detector
	proj   string
}

func setup() (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	cal, err := cfg.BuildCalendar()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(flagDB)
	if err != nil {
		return nil, err
	}
	proj := flagProject
	if proj == "" {
		proj = cfg.Project.ID
	}
	return &env{
		cfg:    cfg,
		cal:    cal,
		store:  st,
		engine: engine.New(st, cal),
		det:    conflict.NewDetector(st, cal),
		proj:   proj,
	}, nil
}

func (e *env) close() { e.store.Close() }

func outputJSON(v any) error {
	return reporter.JSON(os.Stdout, v)
}

// importFile is the JSON document the import command loads.
type importFile struct {
	Tasks        []*importTask       `json:"tasks"`
	Dependencies []*graph.Dependency `json:"dependencies"`
}

// importTask accepts a task whose duration is given in working hours
// instead of days; the calendar's hours per day drives the conversion.
type importTask struct {
	graph.Task
	DurationHours float64 `json:"duration_hours,omitempty"`
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load tasks and dependencies from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var doc importFile
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse import file: %w", err)
			}

			ctx := context.Background()
			for _, t := range doc.Tasks {
				if t.ProjectID == "" {
					t.ProjectID = e.proj
				}
				if t.DurationHours > 0 {
					if t.Duration > 0 {
						return fmt.Errorf("task %s: duration and duration_hours are mutually exclusive", t.ID)
					}
					t.Duration = e.cal.UnitsForHours(t.DurationHours)
				}
				if err := e.store.PutTask(ctx, &t.Task); err != nil {
					return err
				}
			}
			for _, d := range doc.Dependencies {
				if d.ProjectID == "" {
					d.ProjectID = e.proj
				}
				if err := e.store.PutDependency(ctx, d); err != nil {
					return err
				}
			}

			fmt.Fprintf(os.Stderr, "%s imported %d tasks, %d dependencies into project %s\n",
				ui.Green("ok:"), len(doc.Tasks), len(doc.Dependencies), e.proj)
			return nil
		},
	}
}

func calculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calculate",
		Short: "Compute the critical-path schedule for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			deadline, err := e.cfg.DeadlineTime()
			if err != nil {
				return err
			}
			mandatory, err := e.cfg.MandatoryDates()
			if err != nil {
				return err
			}

			cs, err := e.engine.Calculate(context.Background(), e.proj, engine.Options{
				Deadline:       deadline,
				MandatoryDates: mandatory,
				Capacity:       e.cfg.Resources,
			})
			if err != nil {
				return fmt.Errorf("calculate schedule: %w", err)
			}

			if flagJSON {
				return outputJSON(cs)
			}
			reporter.New(cs).PrintSchedule(os.Stdout)
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <changes-file>",
		Short: "Check proposed date and assignee changes against project constraints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read changes file: %w", err)
			}
			var changes []conflict.TaskChange
			if err := json.Unmarshal(data, &changes); err != nil {
				return fmt.Errorf("parse changes file: %w", err)
			}

			conflicts, err := e.det.ValidateSchedule(context.Background(), e.proj, changes)
			if err != nil {
				return fmt.Errorf("validate schedule: %w", err)
			}

			if flagJSON {
				return outputJSON(conflicts)
			}
			reporter.PrintConflicts(os.Stdout, conflicts)
			return exitOnErrors(conflicts)
		},
	}
}

func integrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Scan stored tasks and dependencies for structural damage",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			conflicts, err := e.det.CheckIntegrity(context.Background(), e.proj)
			if err != nil {
				return fmt.Errorf("check integrity: %w", err)
			}

			if flagJSON {
				return outputJSON(conflicts)
			}
			reporter.PrintConflicts(os.Stdout, conflicts)
			return exitOnErrors(conflicts)
		},
	}
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <schedule-id>",
		Short: "Show what applying a computed schedule would change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.engine.PreviewSchedule(context.Background(), args[0])
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(p)
			}
			if len(p.Changed) == 0 {
				fmt.Printf("%s schedule matches the stored dates; nothing to apply\n", ui.Green("ok:"))
				return nil
			}
			fmt.Printf("%s %d tasks would move:\n", ui.Bold("Preview:"), len(p.Changed))
			for _, d := range p.Changed {
				fmt.Printf("  %-12s %s..%s %s %s..%s\n",
					d.TaskID,
					dateOrDash(d.CurrentStart), dateOrDash(d.CurrentDue),
					ui.Dim("->"),
					dateOrDash(d.NewStart), dateOrDash(d.NewDue))
			}
			fmt.Printf("  %s %.1f working days\n", ui.Bold("Estimated savings:"), p.EstimatedSavings)
			return nil
		},
	}
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <schedule-id>",
		Short: "Write a computed schedule's dates back to the stored tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			var scope []string
			if flagTasks != "" {
				scope = strings.Split(flagTasks, ",")
			}

			res, err := e.engine.ApplySchedule(context.Background(), args[0], scope)
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(res)
			}
			fmt.Printf("%s applied %d tasks\n", ui.Green("ok:"), res.AppliedCount)
			fmt.Printf("%s %s\n", ui.Dim("rollback token:"), res.RollbackToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagTasks, "tasks", "", "Comma-separated task ids to limit the apply to")
	return cmd
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <schedule-id> <token>",
		Short: "Restore the task dates captured when a schedule was applied",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.engine.RollbackSchedule(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(map[string]int{"restored": n})
			}
			fmt.Printf("%s restored %d tasks\n", ui.Green("ok:"), n)
			return nil
		},
	}
}

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <entity-id> <expected-version> [attempted-file]",
		Short: "Check an intended update against the stored entity version",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("expected-version %q is not a number", args[1])
			}
			var attempted []byte
			if len(args) == 3 {
				attempted, err = os.ReadFile(args[2])
				if err != nil {
					return fmt.Errorf("read attempted values: %w", err)
				}
			}

			c, err := e.det.Detect(context.Background(), flagEntity, args[0], version, attempted)
			if err != nil {
				return err
			}

			if c == nil {
				if flagJSON {
					return outputJSON([]conflict.Conflict{})
				}
				fmt.Printf("%s no conflict; version %d is current\n", ui.Green("ok:"), version)
				return nil
			}
			if flagJSON {
				return outputJSON([]conflict.Conflict{*c})
			}
			reporter.PrintConflicts(os.Stdout, []conflict.Conflict{*c})
			return exitOnErrors([]conflict.Conflict{*c})
		},
	}
	cmd.Flags().StringVar(&flagEntity, "entity", "task", "Entity type to check: task or dependency")
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <conflicts-file>",
		Short: "Resolve a batch of detected conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read conflicts file: %w", err)
			}
			var conflicts []conflict.Conflict
			if err := json.Unmarshal(data, &conflicts); err != nil {
				return fmt.Errorf("parse conflicts file: %w", err)
			}

			resolver := conflict.NewResolver(e.store, "")
			outcomes, token, err := resolver.ResolveBulk(context.Background(), e.proj, conflicts, conflict.BulkOptions{
				Strategy:     conflict.Strategy(flagStrategy),
				AutoResolve:  conflict.AutoResolveLevel(flagAuto),
				CreateBackup: flagBackup,
			})
			if err != nil {
				return err
			}

			if flagJSON {
				return outputJSON(map[string]any{
					"outcomes":     outcomes,
					"backup_token": token,
				})
			}
			for _, out := range outcomes {
				mark := ui.Green("ok")
				if !out.Success {
					mark = ui.Red("failed")
				}
				fmt.Printf("  %-6s %s %s\n", mark, out.ConflictID, ui.Dim(string(out.AppliedStrategy)))
				for _, w := range out.Warnings {
					fmt.Printf("         %s %s\n", ui.Yellow("warn:"), w)
				}
				if out.Err != "" {
					fmt.Printf("         %s\n", ui.Red(out.Err))
				}
			}
			if token != "" {
				fmt.Printf("%s %s\n", ui.Dim("backup token:"), token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "Force one strategy (current, incoming, manual, merge); default uses recommendations")
	cmd.Flags().StringVar(&flagAuto, "auto", "warnings", "Auto-resolve level: none, warnings, all")
	cmd.Flags().BoolVar(&flagBackup, "backup", false, "Snapshot the project before resolving")
	return cmd
}

func recommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <pattern> <severity>",
		Short: "Show the default resolution strategy for a conflict pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := conflict.Recommend(conflict.Pattern(args[0]), conflict.Severity(args[1]))

			if flagJSON {
				return outputJSON(rec)
			}
			fmt.Printf("%s %s %s\n", ui.Bold("strategy:"), ui.Cyan(string(rec.Strategy)),
				ui.Dim(fmt.Sprintf("(confidence %.0f%%)", rec.Confidence*100)))
			fmt.Printf("%s %s\n", ui.Bold("reason:"), rec.Reason)
			for _, alt := range rec.Alternatives {
				fmt.Printf("  %s %s %s / %s\n", ui.Dim("alt:"), alt.Strategy, ui.Green(alt.Pros), ui.Red(alt.Cons))
			}
			return nil
		},
	}
}

// exitOnErrors turns error-severity findings into a non-zero exit so the
// command is usable as a gate in scripts.
func exitOnErrors(conflicts []conflict.Conflict) error {
	for i := range conflicts {
		if conflicts[i].Severity == conflict.SeverityError {
			return fmt.Errorf("%d conflicts found, at least one error severity", len(conflicts))
		}
	}
	return nil
}

func dateOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
