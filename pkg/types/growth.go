package types

// Growth holds period-over-period percentage change for a snapshot.
type Growth struct {
	ActivitiesPct   float64 `json:"activities_pct"`
	ParticipantsPct float64 `json:"participants_pct"`
	BooksPct        float64 `json:"books_pct"`
}

// GrowthPct returns the percentage change from previous to current.
// Growth from zero to any positive value is reported as 100%, and zero to
// zero as 0%.
func GrowthPct(current, previous int) float64 {
	if previous > 0 {
		return float64(current-previous) / float64(previous) * 100
	}
	if current > 0 {
		return 100
	}
	return 0
}

// ComputeGrowth compares current against the snapshot of the preceding
// cycle. A nil previous yields zero growth on every axis.
func ComputeGrowth(current, previous *CycleSnapshot) Growth {
	if previous == nil {
		return Growth{}
	}
	return Growth{
		ActivitiesPct:   GrowthPct(current.ActivitySum(), previous.ActivitySum()),
		ParticipantsPct: GrowthPct(current.ParticipantSum(), previous.ParticipantSum()),
		BooksPct:        GrowthPct(current.BooksTotal(), previous.BooksTotal()),
	}
}

// GrowthAverage is the mean growth over a window of snapshots.
type GrowthAverage struct {
	Growth
	Cycles int `json:"cycles"` // Snapshots included in the mean.
}

// AverageGrowth averages the stored growth of up to window snapshots taken
// from the front of snapshots, which callers order most recent first.
func AverageGrowth(snapshots []*CycleSnapshot, window int) GrowthAverage {
	if window > 0 && len(snapshots) > window {
		snapshots = snapshots[:window]
	}
	var avg GrowthAverage
	for _, s := range snapshots {
		avg.ActivitiesPct += s.Growth.ActivitiesPct
		avg.ParticipantsPct += s.Growth.ParticipantsPct
		avg.BooksPct += s.Growth.BooksPct
	}
	if n := len(snapshots); n > 0 {
		avg.ActivitiesPct /= float64(n)
		avg.ParticipantsPct /= float64(n)
		avg.BooksPct /= float64(n)
		avg.Cycles = n
	}
	return avg
}
