package types

import (
	"fmt"
	"time"
)

// Cycle names reported for the states that have no numbered range.
const (
	CycleNamePlanClosed    = "plan closed"
	CycleNameBeforeStart   = "before start"
	CycleNamePlanCompleted = "plan completed"
)

// CycleInfo describes one cycle of a plan relative to a reference date.
// Number is nil when the plan is closed.
type CycleInfo struct {
	Number        *int      `json:"number"`
	Name          string    `json:"name"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Progress      float64   `json:"progress"`       // Percent of the cycle elapsed, 0..100.
	DaysRemaining int       `json:"days_remaining"` // Days from the reference date to End.
	TotalCycles   int       `json:"total_cycles"`
}

// HasNumber reports whether the info names a cycle that can be closed.
func (c CycleInfo) HasNumber() bool {
	return c.Number != nil && *c.Number > 0
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months to the date of t. When the day of month
// does not exist in the target month it is clamped to the month's last day,
// so Jan 31 plus one month is Feb 28 (or Feb 29 in a leap year).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	idx := int(m) - 1 + n
	y += floorDiv(idx, 12)
	month := time.Month(idx - floorDiv(idx, 12)*12 + 1)
	if last := daysIn(y, month); d > last {
		d = last
	}
	return time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// daysIn returns the number of days in month m of year y.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysBetween returns whole days from a to b; both are dates at midnight UTC.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// cycleRange returns the first and last day of cycle n. The last day is the
// day before the next cycle starts, so consecutive cycles tile the calendar.
func cycleRange(plan *CyclePlan, n int) (time.Time, time.Time) {
	start := DateOf(plan.StartDate)
	from := AddMonths(start, (n-1)*plan.CycleLengthMonths)
	to := AddMonths(start, n*plan.CycleLengthMonths).AddDate(0, 0, -1)
	return from, to
}

// CalculateCurrent returns the cycle of plan that contains today.
//
// A closed plan has no number and reports 100% progress. Before the start
// date the cycle number is 0. Past the last cycle the number is clamped to
// TotalCycles and the plan is reported as completed.
func CalculateCurrent(plan *CyclePlan, today time.Time) CycleInfo {
	if !plan.Active {
		return CycleInfo{Name: CycleNamePlanClosed, Progress: 100, TotalCycles: plan.TotalCycles}
	}

	today = DateOf(today)
	start := DateOf(plan.StartDate)
	if today.Before(start) {
		zero := 0
		return CycleInfo{
			Number:        &zero,
			Name:          CycleNameBeforeStart,
			Start:         start,
			End:           start,
			DaysRemaining: daysBetween(today, start),
			TotalCycles:   plan.TotalCycles,
		}
	}

	monthsElapsed := (today.Year()-start.Year())*12 + int(today.Month()-start.Month())
	n := monthsElapsed/plan.CycleLengthMonths + 1
	// A start date late in the month means today may still sit in the
	// previous cycle even though the month boundary has passed.
	if from, _ := cycleRange(plan, n); today.Before(from) {
		n--
	}

	if n > plan.TotalCycles {
		info := cycleInfo(plan, plan.TotalCycles)
		info.Name = CycleNamePlanCompleted
		info.Progress = 100
		return info
	}

	info := cycleInfo(plan, n)
	total := daysBetween(info.Start, info.End) + 1
	elapsed := daysBetween(info.Start, today) + 1
	info.Progress = min(100, float64(elapsed)/float64(total)*100)
	info.DaysRemaining = max(0, daysBetween(today, info.End))
	return info
}

// CalculateSpecific returns the date range of cycle n, or nil when n is
// outside 1..TotalCycles. Progress and DaysRemaining are left zero; they
// only have meaning for the live cycle.
func CalculateSpecific(plan *CyclePlan, n int) *CycleInfo {
	if n < 1 || n > plan.TotalCycles {
		return nil
	}
	info := cycleInfo(plan, n)
	return &info
}

// ListCycles returns the date range of every cycle in the plan.
func ListCycles(plan *CyclePlan) []CycleInfo {
	cycles := make([]CycleInfo, 0, plan.TotalCycles)
	for n := 1; n <= plan.TotalCycles; n++ {
		cycles = append(cycles, cycleInfo(plan, n))
	}
	return cycles
}

func cycleInfo(plan *CyclePlan, n int) CycleInfo {
	from, to := cycleRange(plan, n)
	num := n
	return CycleInfo{
		Number:      &num,
		Name:        CycleName(n),
		Start:       from,
		End:         to,
		TotalCycles: plan.TotalCycles,
	}
}

// CycleName returns the display name of cycle n.
func CycleName(n int) string {
	return fmt.Sprintf("cycle %d", n)
}
