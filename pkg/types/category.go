package types

import "fmt"

// Category tags an activity with one of the closed set of ledger kinds.
type Category string

// Activity categories.
const (
	CategoryJuniorYouthGroup     Category = "junior-youth-group"
	CategoryChildrensClass       Category = "childrens-class"
	CategoryStudyCircle          Category = "study-circle"
	CategoryFamilyGroup          Category = "family-group"
	CategoryDevotionalGathering  Category = "devotional-gathering"
	CategoryFamilyWithDevotional Category = "family-with-devotional"
	CategoryBookStudy            Category = "book-study"
)

// Categories lists every activity category in display order.
var Categories = []Category{
	CategoryStudyCircle,
	CategoryJuniorYouthGroup,
	CategoryChildrensClass,
	CategoryDevotionalGathering,
	CategoryFamilyGroup,
	CategoryFamilyWithDevotional,
	CategoryBookStudy,
}

// GroupCategories are the categories that run as groups with participants.
// Their counts make up the activity and participant sums used for growth.
var GroupCategories = []Category{
	CategoryStudyCircle,
	CategoryJuniorYouthGroup,
	CategoryChildrensClass,
	CategoryDevotionalGathering,
	CategoryFamilyGroup,
}

// ParseCategory converts a tag into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryJuniorYouthGroup, CategoryChildrensClass, CategoryStudyCircle,
		CategoryFamilyGroup, CategoryDevotionalGathering,
		CategoryFamilyWithDevotional, CategoryBookStudy:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ActivityCounts holds one counter per category.
type ActivityCounts struct {
	JuniorYouthGroups      int `json:"junior_youth_groups" validate:"gte=0"`
	ChildrensClasses       int `json:"childrens_classes" validate:"gte=0"`
	StudyCircles           int `json:"study_circles" validate:"gte=0"`
	FamilyGroups           int `json:"family_groups" validate:"gte=0"`
	DevotionalGatherings   int `json:"devotional_gatherings" validate:"gte=0"`
	FamiliesWithDevotional int `json:"families_with_devotional" validate:"gte=0"`
	BookStudies            int `json:"book_studies" validate:"gte=0"`
}

// field returns a pointer to the counter for c, or nil if c is unknown.
func (a *ActivityCounts) field(c Category) *int {
	switch c {
	case CategoryJuniorYouthGroup:
		return &a.JuniorYouthGroups
	case CategoryChildrensClass:
		return &a.ChildrensClasses
	case CategoryStudyCircle:
		return &a.StudyCircles
	case CategoryFamilyGroup:
		return &a.FamilyGroups
	case CategoryDevotionalGathering:
		return &a.DevotionalGatherings
	case CategoryFamilyWithDevotional:
		return &a.FamiliesWithDevotional
	case CategoryBookStudy:
		return &a.BookStudies
	}
	return nil
}

// Get returns the counter for c. Unknown categories read as zero.
func (a ActivityCounts) Get(c Category) int {
	if p := a.field(c); p != nil {
		return *p
	}
	return 0
}

// Add increments the counter for c by n.
// Returns ErrInvalidCategory if c is not in the closed set.
func (a *ActivityCounts) Add(c Category, n int) error {
	p := a.field(c)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	*p += n
	return nil
}

// ActivitySum totals the group categories.
func (a ActivityCounts) ActivitySum() int {
	sum := 0
	for _, c := range GroupCategories {
		sum += a.Get(c)
	}
	return sum
}

// Participation counts the participants of one category. Qualifying is the
// subset that meets the owner's membership criterion.
type Participation struct {
	Total      int `json:"total" validate:"gte=0"`
	Qualifying int `json:"qualifying" validate:"gte=0"`
}

// Participants maps each group category to its participation.
type Participants map[Category]Participation

// Sum totals participants across the group categories.
func (p Participants) Sum() int {
	sum := 0
	for _, c := range GroupCategories {
		sum += p[c].Total
	}
	return sum
}

// BookCategory groups books for the per-book breakdown.
type BookCategory string

// Book categories.
const (
	BookCategorySequence       BookCategory = "sequence"
	BookCategoryChildrensClass BookCategory = "childrens-classes"
	BookCategoryJuniorYouth    BookCategory = "junior-youth"
	BookCategoryOther          BookCategory = "other"
)

// ParseBookCategory converts a tag into a BookCategory.
func ParseBookCategory(s string) (BookCategory, error) {
	switch c := BookCategory(s); c {
	case BookCategorySequence, BookCategoryChildrensClass, BookCategoryJuniorYouth, BookCategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBookCat, s)
}
