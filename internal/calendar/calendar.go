package calendar

import (
	"fmt"
	"math"
	"time"
)

// InvalidConstraintError reports unusable calendar or resource configuration.
// Computation is rejected before it starts when one of these is raised.
type InvalidConstraintError struct {
	Reason string
}

func (e *InvalidConstraintError) Error() string {
	return "invalid constraint: " + e.Reason
}

// Calendar maps abstract working-day units to concrete dates and back.
// Unit 0 is the first working day on or after Start; weekends (days outside
// the working mask) and holidays are skipped when walking.
type Calendar struct {
	Start       time.Time
	WorkingDays map[time.Weekday]bool
	Holidays    map[string]bool // keyed by DateKey
	HoursPerDay float64
}

// DateKey formats a date the way the holiday set is keyed.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Default returns a Monday-to-Friday calendar with 8 working hours per day
// and no holidays.
func Default(start time.Time) *Calendar {
	return &Calendar{
		Start: start,
		WorkingDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		Holidays:    make(map[string]bool),
		HoursPerDay: 8,
	}
}

// Validate checks the calendar is usable for schedule computation.
func (c *Calendar) Validate() error {
	if c.Start.IsZero() {
		return &InvalidConstraintError{Reason: "calendar has no project start date"}
	}
	if c.HoursPerDay <= 0 || c.HoursPerDay > 24 {
		return &InvalidConstraintError{Reason: fmt.Sprintf("hours per day %g outside (0,24]", c.HoursPerDay)}
	}
	any := false
	for _, ok := range c.WorkingDays {
		if ok {
			any = true
			break
		}
	}
	if !any {
		return &InvalidConstraintError{Reason: "working-day mask has no working days"}
	}
	return nil
}

// IsWorkingDay reports whether d falls on a working day that is not a holiday.
func (c *Calendar) IsWorkingDay(d time.Time) bool {
	if !c.WorkingDays[d.Weekday()] {
		return false
	}
	return !c.Holidays[DateKey(d)]
}

// NextWorkingDay returns d if it is a working day, otherwise the first
// working day after it.
func (c *Calendar) NextWorkingDay(d time.Time) time.Time {
	d = midnight(d)
	for !c.IsWorkingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// DateForUnits returns the calendar day on which working-day offset units
// falls, counted from the project start. Fractional offsets land within a
// day, so DateForUnits(2.5) is the third working day.
func (c *Calendar) DateForUnits(units float64) time.Time {
	if units < 0 {
		units = 0
	}
	n := int(math.Floor(units + 1e-9))
	d := c.NextWorkingDay(c.Start)
	for i := 0; i < n; i++ {
		d = c.NextWorkingDay(d.AddDate(0, 0, 1))
	}
	return d
}

// EndDateForUnits returns the last calendar day occupied by work finishing
// at working-day offset units. A task spanning [0,2) occupies working days
// 0 and 1, so its end date is the second working day.
func (c *Calendar) EndDateForUnits(units float64) time.Time {
	last := math.Ceil(units-1e-9) - 1
	if last < 0 {
		last = 0
	}
	return c.DateForUnits(last)
}

// UnitsBetween counts the working days in [from, to). A to before from
// yields a negative count.
func (c *Calendar) UnitsBetween(from, to time.Time) float64 {
	from, to = midnight(from), midnight(to)
	if to.Before(from) {
		return -c.UnitsBetween(to, from)
	}
	units := 0.0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			units++
		}
	}
	return units
}

// UnitsForDate returns the working-day offset of d from the project start.
func (c *Calendar) UnitsForDate(d time.Time) float64 {
	return c.UnitsBetween(c.NextWorkingDay(c.Start), d)
}

// Hours converts a working-day unit span to working hours.
func (c *Calendar) Hours(units float64) float64 {
	return units * c.HoursPerDay
}

// UnitsForHours converts a duration given in working hours to working-day
// units.
func (c *Calendar) UnitsForHours(hours float64) float64 {
	return hours / c.HoursPerDay
}

// WorkingDaysInclusive counts the working days in [from, to] inclusive.
func (c *Calendar) WorkingDaysInclusive(from, to time.Time) float64 {
	if to.Before(from) {
		return 0
	}
	return c.UnitsBetween(from, to.AddDate(0, 0, 1))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
