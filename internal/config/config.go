// Package config loads project configuration from a YAML file: the project
// identity and start date, the working calendar, the optional deadline, and
// per-assignee capacity and per-task mandatory dates for the solver.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/calendar"
)

// Config is the on-disk project configuration.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Calendar CalendarConfig `yaml:"calendar"`
	Deadline string         `yaml:"deadline,omitempty"`
	// Resources maps assignee id to concurrent capacity in percent.
	Resources map[string]float64 `yaml:"resources,omitempty"`
	// Mandatory maps task id to a hard finish date.
	Mandatory map[string]string `yaml:"mandatory_dates,omitempty"`
}

// ProjectConfig identifies the project and anchors its calendar.
type ProjectConfig struct {
	ID    string `yaml:"id"`
	Start string `yaml:"start"`
}

// CalendarConfig shapes the working calendar. Zero values fall back to
// Monday-to-Friday, 8 hours, no holidays.
type CalendarConfig struct {
	WorkingDays []string `yaml:"working_days,omitempty"`
	HoursPerDay float64  `yaml:"hours_per_day,omitempty"`
	Holidays    []string `yaml:"holidays,omitempty"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Project.ID == "" {
		return nil, fmt.Errorf("config %s: project.id is required", path)
	}
	if cfg.Project.Start == "" {
		return nil, fmt.Errorf("config %s: project.start is required", path)
	}
	if _, err := cfg.BuildCalendar(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// BuildCalendar constructs the working calendar the configuration
// describes.
func (c *Config) BuildCalendar() (*calendar.Calendar, error) {
	start, err := parseDate(c.Project.Start)
	if err != nil {
		return nil, fmt.Errorf("project.start: %w", err)
	}

	cal := calendar.Default(start)
	if c.Calendar.HoursPerDay > 0 {
		cal.HoursPerDay = c.Calendar.HoursPerDay
	}
	if len(c.Calendar.WorkingDays) > 0 {
		cal.WorkingDays = make(map[time.Weekday]bool)
		for _, name := range c.Calendar.WorkingDays {
			wd, ok := weekdayNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("calendar.working_days: unknown weekday %q", name)
			}
			cal.WorkingDays[wd] = true
		}
	}
	for _, h := range c.Calendar.Holidays {
		d, err := parseDate(h)
		if err != nil {
			return nil, fmt.Errorf("calendar.holidays: %w", err)
		}
		cal.Holidays[calendar.DateKey(d)] = true
	}
	return cal, nil
}

// DeadlineTime returns the project deadline, or nil when none is set.
func (c *Config) DeadlineTime() (*time.Time, error) {
	if c.Deadline == "" {
		return nil, nil
	}
	d, err := parseDate(c.Deadline)
	if err != nil {
		return nil, fmt.Errorf("deadline: %w", err)
	}
	return &d, nil
}

// MandatoryDates returns the per-task hard finish dates.
func (c *Config) MandatoryDates() (map[string]time.Time, error) {
	if len(c.Mandatory) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Time, len(c.Mandatory))
	for id, s := range c.Mandatory {
		d, err := parseDate(s)
		if err != nil {
			return nil, fmt.Errorf("mandatory_dates.%s: %w", id, err)
		}
		out[id] = d
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
