// Package cadence turns free-text review intervals into due dates and walks
// the staged interval progression of a task type.
//
// Both halves fail soft: an interval that cannot be read leaves the start
// date unchanged, and any lookup that cannot find a following stage reports
// that there is none.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the calendar unit recognised in an interval label.
type Unit string

const (
	UnitNone  Unit = ""
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// unitPriority is the order in which unit keywords are looked for. The first
// keyword contained anywhere in the label wins, so "3 months 2 weeks" reads as
// three months.
var unitPriority = []Unit{UnitMonth, UnitWeek, UnitDay, UnitYear}

// MaxMagnitude is the largest magnitude read from a label. Labels with a
// larger number are unparsed.
const MaxMagnitude = 10000

// Interval is a parsed interval label.
type Interval struct {
	Unit Unit `json:"unit"`
	N    int  `json:"magnitude"`
}

// Valid reports whether a unit was recognised.
func (i Interval) Valid() bool {
	return i.Unit != UnitNone
}

func (i Interval) String() string {
	if !i.Valid() {
		return "unparsed"
	}
	if i.N == 1 {
		return fmt.Sprintf("1 %s", i.Unit)
	}
	return fmt.Sprintf("%d %ss", i.N, i.Unit)
}

// AddTo returns the date-only result of moving start forward by the interval.
// Months and years clamp to the last day of the target month; weeks and days
// are plain day counts. An invalid interval returns start's date unchanged.
func (i Interval) AddTo(start time.Time) time.Time {
	d := DateOf(start)
	switch i.Unit {
	case UnitMonth:
		return addMonths(d, i.N)
	case UnitYear:
		return addMonths(d, 12*i.N)
	case UnitWeek:
		return d.AddDate(0, 0, 7*i.N)
	case UnitDay:
		return d.AddDate(0, 0, i.N)
	}
	return d
}

// ParseInterval reads a free-text interval label such as "3 months",
// "Monthly" or "2 weeks".
//
// The magnitude is the first run of ASCII digits anywhere in the label, or 1
// when the label has no digits. The unit is found by substring match in the
// order month, week, day, year. Labels without a unit keyword, or with a
// magnitude above MaxMagnitude, come back as an invalid Interval.
func ParseInterval(label string) Interval {
	s := strings.ToLower(strings.TrimSpace(label))

	n, ok := firstNumber(s)
	if !ok {
		return Interval{}
	}
	for _, u := range unitPriority {
		if strings.Contains(s, string(u)) {
			return Interval{Unit: u, N: n}
		}
	}
	return Interval{}
}

// Outcome is the result of applying a label to a start date.
type Outcome struct {
	Due      time.Time
	Interval Interval
	Parsed   bool
}

// Resolve applies label to start. When the label cannot be read the outcome
// is marked unparsed and Due falls back to start's date.
func Resolve(start time.Time, label string) Outcome {
	iv := ParseInterval(label)
	return Outcome{
		Due:      iv.AddTo(start),
		Interval: iv,
		Parsed:   iv.Valid(),
	}
}

// ComputeDueDate returns start plus the interval described by label, as a
// date with no time of day. It never fails.
func ComputeDueDate(start time.Time, label string) time.Time {
	return Resolve(start, label).Due
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addMonths(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, d.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

// daysIn returns the number of days in t's month.
func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func firstNumber(s string) (int, bool) {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 1, true
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil || n > MaxMagnitude {
		return 0, false
	}
	return n, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
