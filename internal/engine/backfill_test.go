package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

func TestRecordActivity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		events  []types.ActivityEvent
		wantErr error
		check   func(t *testing.T, svc *Service, last *types.CycleSnapshot)
	}{
		{
			name: "two activities for an empty past cycle create one snapshot",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryJuniorYouthGroup, CreationCycle: intp(1)},
				{OwnerID: owner, Category: types.CategoryJuniorYouthGroup, CreationCycle: intp(1)},
			},
			check: func(t *testing.T, svc *Service, last *types.CycleSnapshot) {
				require.NotNil(t, last)
				assert.Equal(t, 2, last.Totals.JuniorYouthGroups)
				assert.Equal(t, 2, last.New.JuniorYouthGroups)
				assert.Equal(t, types.OriginBackfill, last.Origin)
				assert.Nil(t, last.Editable, "backfilled snapshots carry no editable figures")
				assert.Equal(t, date(2022, 1, 1), last.Period.Start)
				assert.Equal(t, date(2022, 3, 31), last.Period.End)

				list, err := svc.ListSnapshots(ctx, owner, "")
				require.NoError(t, err)
				assert.Len(t, list, 1)
				assert.Equal(t, 2.0, testutil.ToFloat64(svc.metrics.BackfillsTotal.WithLabelValues(string(types.CategoryJuniorYouthGroup))))
			},
		},
		{
			name: "categories increment their own counters",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(2)},
				{OwnerID: owner, Category: types.CategoryBookStudy, CreationCycle: intp(2)},
				{OwnerID: owner, Category: types.CategoryFamilyWithDevotional, CreationCycle: intp(2)},
			},
			check: func(t *testing.T, svc *Service, last *types.CycleSnapshot) {
				assert.Equal(t, 1, last.Totals.StudyCircles)
				assert.Equal(t, 1, last.Totals.BookStudies)
				assert.Equal(t, 1, last.New.FamiliesWithDevotional)
				assert.Equal(t, 0, last.Totals.ChildrensClasses)
			},
		},
		{
			name: "untagged activity is not backfilled",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle},
			},
			check: func(t *testing.T, svc *Service, last *types.CycleSnapshot) {
				assert.Nil(t, last)
				list, err := svc.ListSnapshots(ctx, owner, "")
				require.NoError(t, err)
				assert.Empty(t, list)
			},
		},
		{
			name: "activity in the live cycle is left for closure",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(3)},
			},
			check: func(t *testing.T, svc *Service, last *types.CycleSnapshot) {
				assert.Nil(t, last)
				snap, err := svc.GetSnapshot(ctx, owner, "", 3)
				require.NoError(t, err)
				assert.Nil(t, snap)
			},
		},
		{
			name: "cycle zero is rejected",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(0)},
			},
			wantErr: types.ErrValidation,
		},
		{
			name: "cycle past the plan is rejected",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(37)},
			},
			wantErr: types.ErrValidation,
		},
		{
			name: "future cycle is rejected",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(5)},
			},
			wantErr: types.ErrValidation,
		},
		{
			name: "unknown category is rejected",
			events: []types.ActivityEvent{
				{OwnerID: owner, Category: "choir", CreationCycle: intp(1)},
			},
			wantErr: types.ErrInvalidCategory,
		},
		{
			name: "owner without a plan is configuration missing",
			events: []types.ActivityEvent{
				{OwnerID: "owner-2", Category: types.CategoryStudyCircle, CreationCycle: intp(1)},
			},
			wantErr: types.ErrConfigurationMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupService(t)
			createPlan(t, svc, "Plan")

			var (
				last *types.CycleSnapshot
				err  error
			)
			for _, ev := range tt.events {
				last, err = svc.RecordActivity(ctx, ev)
				if err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, svc, last)
			}
		})
	}
}

func TestRecordActivityExplicitPlan(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	createPlan(t, svc, "Primary")
	other := createPlan(t, svc, "Other")

	snap, err := svc.RecordActivity(ctx, types.ActivityEvent{
		OwnerID:       owner,
		PlanID:        other.PlanID,
		Category:      types.CategoryChildrensClass,
		CreationCycle: intp(1),
	})
	require.NoError(t, err)
	assert.Equal(t, other.PlanID, snap.PlanID)

	primary, err := svc.ListSnapshots(ctx, owner, "")
	require.NoError(t, err)
	assert.Empty(t, primary)
}

func TestRecordActivityConcurrent(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	createPlan(t, svc, "Plan")

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordActivity(ctx, types.ActivityEvent{
				OwnerID:       owner,
				Category:      types.CategoryDevotionalGathering,
				CreationCycle: intp(1),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := svc.GetSnapshot(ctx, owner, "", 1)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, workers, snap.Totals.DevotionalGatherings)
	assert.Equal(t, workers, snap.New.DevotionalGatherings)
}

func TestAddActivityValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	createPlan(t, svc, "Plan")

	_, err := svc.AddActivity(ctx, &types.Activity{
		OwnerID:       owner,
		Category:      types.CategoryStudyCircle,
		Name:          "Future circle",
		CreationCycle: intp(9),
	})
	assert.ErrorIs(t, err, types.ErrValidation)

	ledger, err := svc.store.Ledger()
	require.NoError(t, err)
	activities, err := ledger.Activities(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, activities)

	snap, err := svc.AddActivity(ctx, &types.Activity{
		OwnerID:       owner,
		Category:      types.CategoryStudyCircle,
		Name:          "Spring circle",
		CreationCycle: intp(2),
	})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.CycleNumber)
	assert.Equal(t, 1, snap.New.StudyCircles)

	activities, err = ledger.Activities(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, activities, 1)

	snap, err = svc.AddBookStudy(ctx, &types.BookStudy{
		OwnerID:       owner,
		Category:      types.BookCategorySequence,
		BookName:      "Book 2",
		CreationCycle: intp(2),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Totals.BookStudies)
	assert.Equal(t, 1, snap.Totals.StudyCircles)
}

func TestAddActivityUnnamedEvent(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	createPlan(t, svc, "Plan")

	a := &types.Activity{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(1)}
	snap, err := svc.AddActivity(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Totals.StudyCircles)
	assert.Equal(t, "study-circle", a.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.BackfillsTotal.WithLabelValues("study-circle")))
}

func TestAddActivityBackfillFailureKeepsLedgerClean(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	createPlan(t, svc, "Plan")

	svc.store = incrementDownStore{svc.store}
	_, err := svc.AddActivity(ctx, &types.Activity{OwnerID: owner, Category: types.CategoryStudyCircle, CreationCycle: intp(1)})
	require.Error(t, err)

	ledger, err := svc.store.Ledger()
	require.NoError(t, err)
	activities, err := ledger.Activities(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, activities)
	list, err := svc.ListSnapshots(ctx, owner, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, testutil.ToFloat64(svc.metrics.BackfillsTotal.WithLabelValues("study-circle")))
}

// incrementDownStore points every backfill at a plan that does not exist,
// so the counter write fails inside the ledger transaction.
type incrementDownStore struct {
	types.Store
}

func (s incrementDownStore) Ledger() (types.LedgerStore, error) {
	ledger, err := s.Store.Ledger()
	if err != nil {
		return nil, err
	}
	return incrementDownLedger{ledger}, nil
}

type incrementDownLedger struct {
	types.LedgerStore
}

func (l incrementDownLedger) AddActivityBackfill(ctx context.Context, a *types.Activity, inc types.BackfillIncrement) (*types.CycleSnapshot, error) {
	inc.PlanID = "missing-plan"
	return l.LedgerStore.AddActivityBackfill(ctx, a, inc)
}
