package types

import "time"

// EditableStatistics are the owner's manually entered totals. They are kept
// beside the ledger-derived figures for comparison and copied into a
// snapshot when the live cycle is closed.
type EditableStatistics struct {
	OwnerID      string         `json:"owner_id" validate:"required"`
	Activities   ActivityCounts `json:"activities"`
	Participants Participants   `json:"participants" validate:"dive"`
	Demographics Demographics   `json:"demographics"`

	Animators            int `json:"animators" validate:"gte=0"`
	Teachers             int `json:"teachers" validate:"gte=0"`
	Tutors               int `json:"tutors" validate:"gte=0"`
	Facilitators         int `json:"facilitators" validate:"gte=0"`
	JuniorYouthLocations int `json:"junior_youth_locations" validate:"gte=0"`
	CompletedCircles     int `json:"completed_circles" validate:"gte=0"`

	ChildrensClassGrades string `json:"childrens_class_grades,omitempty"` // Grades taught, free text.
	StudyCircleBooks     string `json:"study_circle_books,omitempty"`     // Books in study, free text.

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the statistics belong to an owner and that no count
// is negative. Returns a *ValidationError on failure.
func (s *EditableStatistics) Validate() error {
	return validateStruct(s)
}

// Clone returns a deep copy suitable for embedding in a snapshot.
func (s *EditableStatistics) Clone() *EditableStatistics {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Participants = make(Participants, len(s.Participants))
	for k, v := range s.Participants {
		cp.Participants[k] = v
	}
	return &cp
}
