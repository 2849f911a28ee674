package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

func closureSnapshot(plan *types.CyclePlan, n int) *types.CycleSnapshot {
	info := types.CalculateSpecific(plan, n)
	at := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	s := &types.CycleSnapshot{
		PlanID:       plan.PlanID,
		OwnerID:      plan.OwnerID,
		CycleNumber:  n,
		Period:       types.Period{Start: info.Start, End: info.End},
		Origin:       types.OriginClosure,
		Participants: types.Participants{
			types.CategoryStudyCircle: {Total: 12, Qualifying: 5},
		},
		Editable: &types.EditableStatistics{OwnerID: plan.OwnerID, Animators: 3},
		Books:    []types.BookStudyDetail{
			{Category: types.BookCategorySequence, BookName: "Book 1", Started: 4, Completed: 2},
			{Category: types.BookCategoryOther, BookName: "Extra", Started: 1},
		},
		Growth:           types.Growth{ActivitiesPct: 50, ParticipantsPct: -10, BooksPct: 100},
		GrowthComputedAt: &at,
	}
	s.Totals.StudyCircles = 3
	s.New.StudyCircles = 1
	s.System.Activities.StudyCircles = 2
	s.System.Demographics = types.Demographics{Children: 1, Youth: 2}
	return s
}

func TestSnapshotsTable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		check func(t *testing.T, b *Backend, plan *types.CyclePlan)
	}{
		{
			name: "create and get round-trips every section",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, err := b.Snapshots()
				require.NoError(t, err)
				in := closureSnapshot(plan, 1)
				require.NoError(t, snaps.Create(ctx, in))
				assert.NotEmpty(t, in.SnapshotID)

				got, err := snaps.Get(ctx, plan.PlanID, 1)
				require.NoError(t, err)
				assert.Equal(t, in.SnapshotID, got.SnapshotID)
				assert.Equal(t, in.Period, got.Period)
				assert.Equal(t, 3, got.Totals.StudyCircles)
				assert.Equal(t, 1, got.New.StudyCircles)
				assert.Equal(t, types.Participation{Total: 12, Qualifying: 5}, got.Participants[types.CategoryStudyCircle])
				require.NotNil(t, got.Editable)
				assert.Equal(t, 3, got.Editable.Animators)
				assert.Equal(t, 2, got.System.Activities.StudyCircles)
				assert.Equal(t, 2, got.System.Demographics.Youth)
				assert.Equal(t, in.Growth, got.Growth)
				require.NotNil(t, got.GrowthComputedAt)
				assert.True(t, in.GrowthComputedAt.Equal(*got.GrowthComputedAt))
				require.Len(t, got.Books, 2)
				assert.Equal(t, "Extra", got.Books[0].BookName, "books ordered by category then name")
				assert.Equal(t, types.BookCategorySequence, got.Books[1].Category)
			},
		},
		{
			name: "second create for the same cycle returns ErrDuplicateSnapshot",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				require.NoError(t, snaps.Create(ctx, closureSnapshot(plan, 1)))
				err := snaps.Create(ctx, closureSnapshot(plan, 1))
				assert.ErrorIs(t, err, types.ErrDuplicateSnapshot)

				list, err := snaps.List(ctx, plan.PlanID)
				require.NoError(t, err)
				assert.Len(t, list, 1)
			},
		},
		{
			name: "get missing snapshot returns ErrNotFound",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				_, err := snaps.Get(ctx, plan.PlanID, 7)
				assert.ErrorIs(t, err, types.ErrNotFound)
			},
		},
		{
			name: "list orders by cycle number descending",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				for _, n := range []int{2, 1, 3} {
					require.NoError(t, snaps.Create(ctx, closureSnapshot(plan, n)))
				}
				list, err := snaps.List(ctx, plan.PlanID)
				require.NoError(t, err)
				require.Len(t, list, 3)
				assert.Equal(t, []int{3, 2, 1}, []int{list[0].CycleNumber, list[1].CycleNumber, list[2].CycleNumber})
				assert.Len(t, list[0].Books, 2)
			},
		},
		{
			name: "two increments create one row with both counters at two",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				info := types.CalculateSpecific(plan, 2)
				inc := types.BackfillIncrement{
					PlanID:      plan.PlanID,
					OwnerID:     plan.OwnerID,
					CycleNumber: 2,
					Period:      types.Period{Start: info.Start, End: info.End},
					Category:    types.CategoryJuniorYouthGroup,
				}
				_, err := snaps.Increment(ctx, inc)
				require.NoError(t, err)
				got, err := snaps.Increment(ctx, inc)
				require.NoError(t, err)

				assert.Equal(t, 2, got.Totals.JuniorYouthGroups)
				assert.Equal(t, 2, got.New.JuniorYouthGroups)
				assert.Equal(t, 0, got.Totals.StudyCircles)
				assert.Equal(t, types.OriginBackfill, got.Origin)
				assert.Nil(t, got.Editable)
				assert.Equal(t, info.Start, got.Period.Start)
				assert.Equal(t, info.End, got.Period.End)

				list, err := snaps.List(ctx, plan.PlanID)
				require.NoError(t, err)
				assert.Len(t, list, 1)
			},
		},
		{
			name: "concurrent increments are not lost",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				info := types.CalculateSpecific(plan, 3)
				const workers = 16

				var wg sync.WaitGroup
				errs := make(chan error, workers)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := snaps.Increment(ctx, types.BackfillIncrement{
							PlanID:      plan.PlanID,
							OwnerID:     plan.OwnerID,
							CycleNumber: 3,
							Period:      types.Period{Start: info.Start, End: info.End},
							Category:    types.CategoryDevotionalGathering,
						})
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					require.NoError(t, err)
				}

				got, err := snaps.Get(ctx, plan.PlanID, 3)
				require.NoError(t, err)
				assert.Equal(t, workers, got.Totals.DevotionalGatherings)
				assert.Equal(t, workers, got.New.DevotionalGatherings)
			},
		},
		{
			name: "increment rejects unknown categories",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				_, err := snaps.Increment(ctx, types.BackfillIncrement{
					PlanID:      plan.PlanID,
					OwnerID:     plan.OwnerID,
					CycleNumber: 1,
					Category:    types.Category("choir; DROP TABLE cycle_plans"),
				})
				assert.ErrorIs(t, err, types.ErrInvalidCategory)
			},
		},
		{
			name: "increment on a closed snapshot keeps its growth",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				in := closureSnapshot(plan, 1)
				require.NoError(t, snaps.Create(ctx, in))

				got, err := snaps.Increment(ctx, types.BackfillIncrement{
					PlanID:      plan.PlanID,
					OwnerID:     plan.OwnerID,
					CycleNumber: 1,
					Period:      in.Period,
					Category:    types.CategoryStudyCircle,
				})
				require.NoError(t, err)
				assert.Equal(t, 4, got.Totals.StudyCircles)
				assert.Equal(t, 2, got.New.StudyCircles)
				assert.Equal(t, types.OriginClosure, got.Origin)
				assert.Equal(t, in.Growth, got.Growth)
			},
		},
		{
			name: "recompute replaces system totals and books only",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				in := closureSnapshot(plan, 1)
				require.NoError(t, snaps.Create(ctx, in))

				in.System.Activities.StudyCircles = 9
				in.Books = []types.BookStudyDetail{{Category: types.BookCategoryJuniorYouth, BookName: "Glimmerings", Started: 1}}
				require.NoError(t, snaps.Recompute(ctx, in))
				assert.Equal(t, 1, in.RecomputeCount)
				assert.NotNil(t, in.RecomputedAt)

				got, err := snaps.Get(ctx, plan.PlanID, 1)
				require.NoError(t, err)
				assert.Equal(t, 9, got.System.Activities.StudyCircles)
				assert.Equal(t, 1, got.RecomputeCount)
				require.Len(t, got.Books, 1)
				assert.Equal(t, "Glimmerings", got.Books[0].BookName)
				assert.Equal(t, 3, got.Totals.StudyCircles)
				assert.Equal(t, types.Growth{ActivitiesPct: 50, ParticipantsPct: -10, BooksPct: 100}, got.Growth)
			},
		},
		{
			name: "delete removes the snapshot and its books",
			check: func(t *testing.T, b *Backend, plan *types.CyclePlan) {
				snaps, _ := b.Snapshots()
				in := closureSnapshot(plan, 1)
				require.NoError(t, snaps.Create(ctx, in))
				require.NoError(t, snaps.Delete(ctx, plan.PlanID, 1))

				_, err := snaps.Get(ctx, plan.PlanID, 1)
				assert.ErrorIs(t, err, types.ErrNotFound)
				var n int
				require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM book_study_details WHERE snapshot_id = ?", in.SnapshotID).Scan(&n))
				assert.Zero(t, n)

				assert.ErrorIs(t, snaps.Delete(ctx, plan.PlanID, 1), types.ErrNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setupBackend(t)
			plan := createPlan(t, b, "owner-1", "Plan A", true)
			tt.check(t, b, plan)
		})
	}
}
