// Package ui holds terminal styling helpers shared by the CLI commands.
package ui

import "github.com/fatih/color"

// Sprint color functions for building styled strings.
var (
	Bold       = color.New(color.Bold).SprintFunc()
	Dim        = color.New(color.Faint).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	Red        = color.New(color.FgRed).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	Magenta    = color.New(color.FgMagenta).SprintFunc()
	BoldCyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen  = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
)

// SeverityLabel returns a colored label for a conflict or violation
// severity.
func SeverityLabel(severity string) string {
	switch severity {
	case "error":
		return BoldRed("ERROR")
	case "warning":
		return BoldYellow("WARN")
	}
	return Dim(severity)
}

// PatternLabel returns a colored short label for a conflict pattern.
func PatternLabel(pattern string) string {
	switch pattern {
	case "UPDATE_CONFLICT":
		return Yellow("update")
	case "DELETE_CONFLICT":
		return Red("delete")
	case "SCHEDULE_CONFLICT":
		return Magenta("schedule")
	case "DEPENDENCY_CONFLICT":
		return Cyan("dependency")
	case "RESOURCE_CONFLICT":
		return Yellow("resource")
	}
	return Dim(pattern)
}

// CriticalMark returns the marker rendered next to critical-path tasks.
func CriticalMark(critical bool) string {
	if critical {
		return BoldRed("*")
	}
	return " "
}
