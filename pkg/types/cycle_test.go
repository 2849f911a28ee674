package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testPlan(start time.Time, months, total int) *CyclePlan {
	return &CyclePlan{
		OwnerID:           "owner-1",
		Title:             "Plan",
		StartDate:         start,
		CycleLengthMonths: months,
		TotalCycles:       total,
		Active:            true,
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"same day next month", date(2022, 1, 15), 1, date(2022, 2, 15)},
		{"jan 31 clamps to feb 28", date(2023, 1, 31), 1, date(2023, 2, 28)},
		{"jan 31 clamps to feb 29 in leap year", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"crosses year boundary", date(2022, 11, 30), 3, date(2023, 2, 28)},
		{"zero months", date(2022, 5, 5), 0, date(2022, 5, 5)},
		{"negative months", date(2022, 3, 31), -1, date(2022, 2, 28)},
		{"negative across year", date(2022, 1, 10), -13, date(2020, 12, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.from, tt.n))
		})
	}
}

func TestCalculateCurrent(t *testing.T) {
	tests := []struct {
		name      string
		plan      *CyclePlan
		today     time.Time
		wantNum   *int
		wantName  string
		wantStart time.Time
		wantEnd   time.Time
		check     func(t *testing.T, info CycleInfo)
	}{
		{
			name:      "first day of plan is cycle 1",
			plan:      testPlan(date(2022, 1, 1), 3, 36),
			today:     date(2022, 1, 1),
			wantNum:   intp(1),
			wantName:  "cycle 1",
			wantStart: date(2022, 1, 1),
			wantEnd:   date(2022, 3, 31),
			check: func(t *testing.T, info CycleInfo) {
				assert.InDelta(t, 100.0/90.0, info.Progress, 0.001)
				assert.Equal(t, 89, info.DaysRemaining)
			},
		},
		{
			name:      "first day after boundary is cycle 2",
			plan:      testPlan(date(2022, 1, 1), 3, 36),
			today:     date(2022, 4, 1),
			wantNum:   intp(2),
			wantName:  "cycle 2",
			wantStart: date(2022, 4, 1),
			wantEnd:   date(2022, 6, 30),
		},
		{
			name:      "last day of a cycle",
			plan:      testPlan(date(2022, 1, 1), 3, 36),
			today:     date(2022, 3, 31),
			wantNum:   intp(1),
			wantName:  "cycle 1",
			wantStart: date(2022, 1, 1),
			wantEnd:   date(2022, 3, 31),
			check: func(t *testing.T, info CycleInfo) {
				assert.Equal(t, 100.0, info.Progress)
				assert.Equal(t, 0, info.DaysRemaining)
			},
		},
		{
			name:      "time of day is ignored",
			plan:      testPlan(date(2022, 1, 1), 3, 36),
			today:     time.Date(2022, 3, 31, 23, 59, 0, 0, time.UTC),
			wantNum:   intp(1),
			wantName:  "cycle 1",
			wantStart: date(2022, 1, 1),
			wantEnd:   date(2022, 3, 31),
		},
		{
			name:      "mid-month start stays in previous cycle before the day",
			plan:      testPlan(date(2022, 1, 20), 1, 12),
			today:     date(2022, 2, 10),
			wantNum:   intp(1),
			wantName:  "cycle 1",
			wantStart: date(2022, 1, 20),
			wantEnd:   date(2022, 2, 19),
		},
		{
			name:      "mid-month start advances on the day",
			plan:      testPlan(date(2022, 1, 20), 1, 12),
			today:     date(2022, 2, 20),
			wantNum:   intp(2),
			wantName:  "cycle 2",
			wantStart: date(2022, 2, 20),
			wantEnd:   date(2022, 3, 19),
		},
		{
			name:      "leap february",
			plan:      testPlan(date(2024, 1, 1), 1, 12),
			today:     date(2024, 2, 29),
			wantNum:   intp(2),
			wantName:  "cycle 2",
			wantStart: date(2024, 2, 1),
			wantEnd:   date(2024, 2, 29),
		},
		{
			name:      "before start is cycle 0",
			plan:      testPlan(date(2022, 1, 1), 3, 36),
			today:     date(2021, 12, 22),
			wantNum:   intp(0),
			wantName:  CycleNameBeforeStart,
			wantStart: date(2022, 1, 1),
			wantEnd:   date(2022, 1, 1),
			check: func(t *testing.T, info CycleInfo) {
				assert.Equal(t, 10, info.DaysRemaining)
				assert.Zero(t, info.Progress)
				assert.False(t, info.HasNumber())
			},
		},
		{
			name:      "past the last cycle clamps to total",
			plan:      testPlan(date(2022, 1, 1), 3, 4),
			today:     date(2030, 6, 1),
			wantNum:   intp(4),
			wantName:  CycleNamePlanCompleted,
			wantStart: date(2022, 10, 1),
			wantEnd:   date(2022, 12, 31),
			check: func(t *testing.T, info CycleInfo) {
				assert.Equal(t, 100.0, info.Progress)
				assert.Equal(t, 0, info.DaysRemaining)
			},
		},
		{
			name: "closed plan has no number",
			plan: func() *CyclePlan {
				p := testPlan(date(2022, 1, 1), 3, 36)
				p.Close()
				return p
			}(),
			today:    date(2022, 5, 1),
			wantName: CycleNamePlanClosed,
			check: func(t *testing.T, info CycleInfo) {
				assert.Equal(t, 100.0, info.Progress)
				assert.False(t, info.HasNumber())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := CalculateCurrent(tt.plan, tt.today)
			if tt.wantNum == nil {
				assert.Nil(t, info.Number)
			} else {
				require.NotNil(t, info.Number)
				assert.Equal(t, *tt.wantNum, *info.Number)
			}
			assert.Equal(t, tt.wantName, info.Name)
			if !tt.wantStart.IsZero() {
				assert.Equal(t, tt.wantStart, info.Start)
				assert.Equal(t, tt.wantEnd, info.End)
			}
			assert.Equal(t, tt.plan.TotalCycles, info.TotalCycles)
			if tt.check != nil {
				tt.check(t, info)
			}
		})
	}
}

func TestCalculateSpecific(t *testing.T) {
	plan := testPlan(date(2022, 1, 1), 3, 36)

	assert.Nil(t, CalculateSpecific(plan, 0))
	assert.Nil(t, CalculateSpecific(plan, 37))
	assert.Nil(t, CalculateSpecific(plan, -1))

	last := CalculateSpecific(plan, 36)
	require.NotNil(t, last)
	assert.Equal(t, date(2030, 10, 1), last.Start)
	assert.Equal(t, date(2030, 12, 31), last.End)
	assert.Equal(t, plan.EndDate(), last.End)
	assert.Zero(t, last.Progress)
	assert.Zero(t, last.DaysRemaining)
}

func TestCalculateSpecificAgreesWithCurrent(t *testing.T) {
	plans := []*CyclePlan{
		testPlan(date(2022, 1, 1), 3, 20),
		testPlan(date(2022, 1, 31), 1, 30),
		testPlan(date(2023, 8, 29), 2, 15),
	}
	for _, plan := range plans {
		for day := DateOf(plan.StartDate); day.Before(plan.EndDate()); day = day.AddDate(0, 0, 5) {
			cur := CalculateCurrent(plan, day)
			require.True(t, cur.HasNumber(), "day %s", day.Format(time.DateOnly))
			byNumber := CalculateSpecific(plan, *cur.Number)
			require.NotNil(t, byNumber)
			assert.Equal(t, byNumber.Start, cur.Start, "day %s", day.Format(time.DateOnly))
			assert.Equal(t, byNumber.End, cur.End, "day %s", day.Format(time.DateOnly))
			assert.False(t, day.Before(cur.Start))
			assert.False(t, day.After(cur.End))
		}
	}
}

func TestListCyclesTilesCalendar(t *testing.T) {
	plan := testPlan(date(2022, 1, 31), 1, 14)
	cycles := ListCycles(plan)
	require.Len(t, cycles, 14)

	assert.Equal(t, date(2022, 1, 31), cycles[0].Start)
	// Ends come from the plan start, not the clamped cycle start, so the
	// day-31 anchor is not lost after February.
	assert.Equal(t, date(2022, 2, 28), cycles[1].Start)
	assert.Equal(t, date(2022, 3, 30), cycles[1].End)
	assert.Equal(t, date(2022, 3, 31), cycles[2].Start)
	for i := 1; i < len(cycles); i++ {
		assert.Equal(t, cycles[i-1].End.AddDate(0, 0, 1), cycles[i].Start, "cycle %d", i+1)
		assert.Equal(t, i+1, *cycles[i].Number)
	}
	assert.Equal(t, plan.EndDate(), cycles[13].End)
}

func intp(n int) *int { return &n }
