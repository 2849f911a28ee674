package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

func TestStatisticsTable(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)
	stats, err := b.Statistics()
	require.NoError(t, err)

	_, err = stats.Get(ctx, "owner-1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	in := &types.EditableStatistics{
		OwnerID:      "owner-1",
		Participants: types.Participants{
			types.CategoryChildrensClass: {Total: 20, Qualifying: 8},
		},
		Tutors: 4,
	}
	in.Activities.ChildrensClasses = 3
	require.NoError(t, stats.Set(ctx, in))

	got, err := stats.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Activities.ChildrensClasses)
	assert.Equal(t, 20, got.Participants[types.CategoryChildrensClass].Total)
	assert.Equal(t, 4, got.Tutors)

	in.Tutors = 6
	require.NoError(t, stats.Set(ctx, in), "set upserts")
	got, err = stats.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Tutors)

	bad := &types.EditableStatistics{OwnerID: "owner-1", Animators: -1}
	assert.ErrorIs(t, stats.Set(ctx, bad), types.ErrValidation)
}
