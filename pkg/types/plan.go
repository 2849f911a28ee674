package types

import (
	"strings"
	"time"
)

// CyclePlan partitions an owner's timeline into TotalCycles repeating
// periods of CycleLengthMonths calendar months starting at StartDate.
// At most one plan per owner has IsPrimary set.
type CyclePlan struct {
	PlanID            string    `json:"plan_id"`                                      // UUID v7, generated on creation.
	OwnerID           string    `json:"owner_id" validate:"required"`                 // Owning user.
	Title             string    `json:"title" validate:"required,max=100"`            // Unique per owner.
	Description       string    `json:"description,omitempty"`                        // Free text.
	StartDate         time.Time `json:"start_date" validate:"required"`               // First day of cycle 1.
	CycleLengthMonths int       `json:"cycle_length_months" validate:"gte=1,lte=120"` // Months per cycle.
	TotalCycles       int       `json:"total_cycles" validate:"gte=1,lte=1000"`       // Cycles in the plan.
	Active            bool      `json:"active"`                                       // False once the plan is closed.
	IsPrimary         bool      `json:"is_primary"`                                   // The owner's default plan.
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks plan parameters. The calculators assume a plan that has
// passed Validate. Returns a *ValidationError on failure.
func (p *CyclePlan) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	p.StartDate = DateOf(p.StartDate)
	return validateStruct(p)
}

// Close deactivates the plan. CalculateCurrent reports a closed plan as
// having no current cycle.
func (p *CyclePlan) Close() {
	p.Active = false
	p.UpdatedAt = time.Now()
}

// Restart reactivates the plan beginning at start.
func (p *CyclePlan) Restart(start time.Time) {
	p.Active = true
	p.StartDate = DateOf(start)
	p.UpdatedAt = time.Now()
}

// EndDate returns the last day of the final cycle.
func (p *CyclePlan) EndDate() time.Time {
	return AddMonths(p.StartDate, p.TotalCycles*p.CycleLengthMonths).AddDate(0, 0, -1)
}
