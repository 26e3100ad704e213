// Package calendar computes the month grid and lunar label printed on a poster.
//
// A Geometry describes a Monday-first, seven-column month grid: how many blank
// cells precede day 1 and how many days follow. Month names are the upper-case
// English names produced by the metadata source ("MARCH"), matched
// case-insensitively.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownMonth is returned when a month name is not one of the twelve
// English month names.
var ErrUnknownMonth = errors.New("unknown month name")

// Columns is the number of weekday columns in the grid.
const Columns = 7

// MaxRows is the most week rows any month can occupy.
const MaxRows = 6

// Weekdays is the header row, Monday first.
var Weekdays = [Columns]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

var monthIndex = map[string]time.Month{
	"JANUARY":   time.January,
	"FEBRUARY":  time.February,
	"MARCH":     time.March,
	"APRIL":     time.April,
	"MAY":       time.May,
	"JUNE":      time.June,
	"JULY":      time.July,
	"AUGUST":    time.August,
	"SEPTEMBER": time.September,
	"OCTOBER":   time.October,
	"NOVEMBER":  time.November,
	"DECEMBER":  time.December,
}

// Geometry is the layout of one month in a Monday-first grid.
type Geometry struct {
	StartOffset int // blank cells before day 1, 0..6
	DaysInMonth int // 28..31
}

// Cell is one numbered day in the grid. Row 0 is the first week row
// (the weekday header is not counted).
type Cell struct {
	Row int
	Col int
	Day int
}

// ParseMonth maps an English month name to its time.Month.
func ParseMonth(name string) (time.Month, error) {
	m, ok := monthIndex[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return time.January, fmt.Errorf("%w: %q", ErrUnknownMonth, name)
	}
	return m, nil
}

// ResolveMonth is ParseMonth with a policy for bad input. In strict mode the
// error is returned; otherwise January is returned together with the error so
// the caller can log it and carry on.
func ResolveMonth(name string, strict bool) (time.Month, error) {
	m, err := ParseMonth(name)
	if err != nil && strict {
		return 0, err
	}
	return m, err
}

// For computes the grid geometry of the given Gregorian month.
func For(month time.Month, year int) Geometry {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	// day 0 of the next month is the last day of this one
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return Geometry{
		StartOffset: (int(first.Weekday()) + 6) % Columns,
		DaysInMonth: last.Day(),
	}
}

// Compute looks up the month by name and returns its geometry. Unknown names
// yield January's geometry along with ErrUnknownMonth.
func Compute(monthName string, year int) (Geometry, error) {
	m, err := ParseMonth(monthName)
	return For(m, year), err
}

// Cells lays out the numbered days row by row, skipping StartOffset cells on
// the first row and stopping after DaysInMonth cells.
func (g Geometry) Cells() []Cell {
	cells := make([]Cell, 0, g.DaysInMonth)
	day := 1
	for row := 0; row < MaxRows && day <= g.DaysInMonth; row++ {
		for col := 0; col < Columns && day <= g.DaysInMonth; col++ {
			if row == 0 && col < g.StartOffset {
				continue
			}
			cells = append(cells, Cell{Row: row, Col: col, Day: day})
			day++
		}
	}
	return cells
}

// Rows returns the number of week rows the month occupies.
func (g Geometry) Rows() int {
	return (g.StartOffset + g.DaysInMonth + Columns - 1) / Columns
}

// String renders the grid as plain text, one week per line.
func (g Geometry) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(Weekdays[:], " "))
	row := -1
	for _, c := range g.Cells() {
		if c.Row != row {
			row = c.Row
			sb.WriteByte('\n')
			sb.WriteString(strings.Repeat("    ", c.Col))
		} else {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%3d", c.Day)
	}
	sb.WriteByte('\n')
	return sb.String()
}
