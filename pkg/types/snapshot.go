package types

import (
	"strings"
	"time"
)

// Snapshot origins.
const (
	OriginClosure  = "closure"  // Frozen by an explicit close of the live cycle.
	OriginBackfill = "backfill" // Created by an activity tagged with a past cycle.
)

// Demographics buckets roster members by age band.
type Demographics struct {
	Children    int `json:"children" validate:"gte=0"`     // 11 and under.
	JuniorYouth int `json:"junior_youth" validate:"gte=0"` // 12 to 14.
	Youth       int `json:"youth" validate:"gte=0"`        // 15 to 30.
	Adults      int `json:"adults" validate:"gte=0"`       // Over 30.
}

// Total returns the number of people across all bands.
func (d Demographics) Total() int {
	return d.Children + d.JuniorYouth + d.Youth + d.Adults
}

// BookTotals counts book studies started and completed.
type BookTotals struct {
	Started   int `json:"started"`
	Completed int `json:"completed"`
}

// SystemTotals are the aggregates derived from the ledgers at closure time.
type SystemTotals struct {
	Activities   ActivityCounts `json:"activities"`
	Participants Participants   `json:"participants"`
	Demographics Demographics   `json:"demographics"`
	Books        BookTotals     `json:"books"`
}

// BookStudyDetail counts studies of one book attributed to a snapshot.
// Unique per (snapshot, category, book name).
type BookStudyDetail struct {
	Category  BookCategory `json:"category"`
	BookName  string       `json:"book_name"`
	Started   int          `json:"started_count"`
	Completed int          `json:"completed_count"`
}

// Period is an inclusive date range.
type Period struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// CycleSnapshot is the frozen aggregate record of one cycle of a plan.
// Identity is (PlanID, CycleNumber). Once GrowthComputedAt is set the growth
// figures are never rewritten; RecomputeSystemTotals may refresh System only.
type CycleSnapshot struct {
	SnapshotID  string `json:"snapshot_id"`
	PlanID      string `json:"plan_id"`
	OwnerID     string `json:"owner_id"`
	CycleNumber int    `json:"cycle_number"`
	Period      Period `json:"period"`
	Origin      string `json:"origin"`

	Totals       ActivityCounts      `json:"totals"`             // total_X counters.
	New          ActivityCounts      `json:"new_this_cycle"`     // new_X counters.
	NewBooks     BookTotals          `json:"new_books"`          // Books started and completed during the cycle.
	Participants Participants        `json:"participants"`       // Copied from editable statistics.
	Editable     *EditableStatistics `json:"editable,omitempty"` // Nil for backfill-only snapshots.
	System       SystemTotals        `json:"system"`
	Books        []BookStudyDetail   `json:"book_breakdown"`

	Growth           Growth     `json:"growth"`
	GrowthComputedAt *time.Time `json:"growth_computed_at,omitempty"`

	RecomputedAt   *time.Time `json:"recomputed_at,omitempty"`
	RecomputeCount int        `json:"recompute_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ActivitySum totals the group activity counters.
func (s *CycleSnapshot) ActivitySum() int {
	return s.Totals.ActivitySum()
}

// ParticipantSum totals participants across group categories.
func (s *CycleSnapshot) ParticipantSum() int {
	return s.Participants.Sum()
}

// BooksTotal is the book-study figure compared for growth.
func (s *CycleSnapshot) BooksTotal() int {
	return s.Totals.BookStudies
}

// GrowthFrozen reports whether growth has been stored for this snapshot.
func (s *CycleSnapshot) GrowthFrozen() bool {
	return s.GrowthComputedAt != nil
}

// Key returns the category as a snake_case record key fragment.
func (c Category) Key() string {
	return strings.ReplaceAll(string(c), "-", "_")
}

// Record flattens the snapshot into key/value pairs for export and display.
func (s *CycleSnapshot) Record() map[string]any {
	r := map[string]any{
		"snapshot_id":             s.SnapshotID,
		"plan_id":                 s.PlanID,
		"owner_id":                s.OwnerID,
		"cycle_number":            s.CycleNumber,
		"start_date":              s.Period.Start.Format(time.DateOnly),
		"end_date":                s.Period.End.Format(time.DateOnly),
		"origin":                  s.Origin,
		"growth_activities_pct":   s.Growth.ActivitiesPct,
		"growth_participants_pct": s.Growth.ParticipantsPct,
		"growth_books_pct":        s.Growth.BooksPct,
		"system_children":         s.System.Demographics.Children,
		"system_junior_youth":     s.System.Demographics.JuniorYouth,
		"system_youth":            s.System.Demographics.Youth,
		"system_adults":           s.System.Demographics.Adults,
		"system_books_started":    s.System.Books.Started,
		"system_books_completed":  s.System.Books.Completed,
		"new_books_started":       s.NewBooks.Started,
		"new_books_completed":     s.NewBooks.Completed,
		"recompute_count":         s.RecomputeCount,
	}

	for _, c := range Categories {
		k := c.Key()
		r["total_"+k] = s.Totals.Get(c)
		r["new_"+k] = s.New.Get(c)
		r["system_"+k] = s.System.Activities.Get(c)
	}
	for _, c := range GroupCategories {
		k := c.Key()
		r["participants_"+k] = s.Participants[c].Total
		r["qualifying_"+k] = s.Participants[c].Qualifying
		r["system_participants_"+k] = s.System.Participants[c].Total
		r["system_qualifying_"+k] = s.System.Participants[c].Qualifying
	}

	if e := s.Editable; e != nil {
		for _, c := range Categories {
			r["editable_total_"+c.Key()] = e.Activities.Get(c)
		}
		for _, c := range GroupCategories {
			r["editable_participants_"+c.Key()] = e.Participants[c].Total
			r["editable_qualifying_"+c.Key()] = e.Participants[c].Qualifying
		}
		r["editable_animators"] = e.Animators
		r["editable_teachers"] = e.Teachers
		r["editable_tutors"] = e.Tutors
		r["editable_facilitators"] = e.Facilitators
	}

	books := make([]map[string]any, 0, len(s.Books))
	for _, b := range s.Books {
		books = append(books, map[string]any{
			"category":        string(b.Category),
			"book_name":       b.BookName,
			"started_count":   b.Started,
			"completed_count": b.Completed,
		})
	}
	r["book_breakdown"] = books
	return r
}
