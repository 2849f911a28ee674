package types

import (
	"context"
	"time"
)

// Activity is a ledger record of one running activity. Participant counts
// are supplied by the activity's roster.
type Activity struct {
	ActivityID    string    `json:"activity_id"`
	OwnerID       string    `json:"owner_id"`
	PlanID        string    `json:"plan_id,omitempty"` // Empty means the owner's primary plan.
	Category      Category  `json:"category"`
	Name          string    `json:"name"`
	Participants  int       `json:"participants"`
	Qualifying    int       `json:"qualifying"`
	CreationCycle *int      `json:"creation_cycle,omitempty"` // Cycle the activity was started in, if tagged.
	CreatedAt     time.Time `json:"created_at"`
}

// BookStudy records one person studying one book.
type BookStudy struct {
	StudyID       string       `json:"study_id"`
	OwnerID       string       `json:"owner_id"`
	PlanID        string       `json:"plan_id,omitempty"`
	Category      BookCategory `json:"category"`
	BookName      string       `json:"book_name"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CreationCycle *int         `json:"creation_cycle,omitempty"`
}

// Contact is a roster entry used for demographic bucketing.
type Contact struct {
	ContactID string     `json:"contact_id"`
	OwnerID   string     `json:"owner_id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// ActivityEvent announces a newly created activity to the backfill path.
type ActivityEvent struct {
	OwnerID       string
	PlanID        string // Empty resolves to the owner's primary plan.
	Category      Category
	CreationCycle *int // Nil means the live cycle; nothing is backfilled.
}

// Ledger reads the owner's activity records. It is the boundary to the
// record-keeping layer that feeds the engine.
type Ledger interface {
	Activities(ctx context.Context, ownerID string) ([]Activity, error)
	BookStudies(ctx context.Context, ownerID string) ([]BookStudy, error)
	Roster(ctx context.Context, ownerID string) ([]Contact, error)
}

// AgeAt returns the age in whole years on ref of someone born on birth.
func AgeAt(birth, ref time.Time) int {
	birth, ref = DateOf(birth), DateOf(ref)
	age := ref.Year() - birth.Year()
	if ref.Month() < birth.Month() || (ref.Month() == birth.Month() && ref.Day() < birth.Day()) {
		age--
	}
	return age
}

// Count adds one person of the given age to the matching band.
func (d *Demographics) Count(age int) {
	switch {
	case age <= 11:
		d.Children++
	case age <= 14:
		d.JuniorYouth++
	case age <= 30:
		d.Youth++
	default:
		d.Adults++
	}
}
