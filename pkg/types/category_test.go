package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("choir")
	assert.ErrorIs(t, err, ErrInvalidCategory)
	_, err = ParseCategory("")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestParseBookCategory(t *testing.T) {
	got, err := ParseBookCategory("sequence")
	require.NoError(t, err)
	assert.Equal(t, BookCategorySequence, got)

	_, err = ParseBookCategory("novel")
	assert.ErrorIs(t, err, ErrInvalidBookCat)
}

func TestActivityCounts(t *testing.T) {
	var a ActivityCounts
	for i, c := range Categories {
		require.NoError(t, a.Add(c, i+1))
	}
	for i, c := range Categories {
		assert.Equal(t, i+1, a.Get(c), string(c))
	}
	assert.ErrorIs(t, a.Add("choir", 1), ErrInvalidCategory)
	assert.Zero(t, a.Get("choir"))

	// Study circles through family groups; the last two categories are not groups.
	assert.Equal(t, 1+2+3+4+5, a.ActivitySum())
}

func TestParticipantsSum(t *testing.T) {
	p := Participants{
		CategoryStudyCircle:          {Total: 10, Qualifying: 4},
		CategoryJuniorYouthGroup:     {Total: 7},
		CategoryFamilyWithDevotional: {Total: 100},
	}
	assert.Equal(t, 17, p.Sum())
	assert.Zero(t, Participants(nil).Sum())
}

func TestCategoryKey(t *testing.T) {
	assert.Equal(t, "junior_youth_group", CategoryJuniorYouthGroup.Key())
	assert.Equal(t, "book_study", CategoryBookStudy.Key())
}
