package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// CloseCurrentCycle freezes the plan's live cycle into a snapshot.
//
// The snapshot copies the owner's editable statistics, adds the
// ledger-derived system totals and this cycle's new counts, and stores
// growth against the snapshot of the preceding cycle. Nothing is written
// when the cycle cannot be closed:
//   - ErrValidation: the plan is closed or has not started.
//   - ErrDuplicateSnapshot: the cycle already has a snapshot.
//   - ErrConfigurationMissing: no plan, or no editable statistics.
func (s *Service) CloseCurrentCycle(ctx context.Context, ownerID, planID string) (*types.CycleSnapshot, error) {
	snap, err := s.closeCurrentCycle(ctx, ownerID, planID)
	switch {
	case err == nil:
		s.metrics.ClosuresTotal.WithLabelValues(closureClosed).Inc()
	case errors.Is(err, types.ErrDuplicateSnapshot):
		s.metrics.ClosuresTotal.WithLabelValues(closureDuplicate).Inc()
	default:
		s.metrics.ClosuresTotal.WithLabelValues(closureRejected).Inc()
	}
	return snap, err
}

func (s *Service) closeCurrentCycle(ctx context.Context, ownerID, planID string) (*types.CycleSnapshot, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	info := types.CalculateCurrent(plan, now)
	if !info.HasNumber() {
		return nil, types.NewValidationError("cycle", info.Name+" has no cycle to close")
	}
	n := *info.Number

	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	if _, err := snaps.Get(ctx, plan.PlanID, n); err == nil {
		s.logger.Info("cycle already closed", "owner", ownerID, "plan", plan.PlanID, "cycle", n)
		return nil, fmt.Errorf("%w: cycle %d of plan %q", types.ErrDuplicateSnapshot, n, plan.Title)
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	stats, err := s.GetStatistics(ctx, ownerID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("%w: owner %s has no editable statistics", types.ErrConfigurationMissing, ownerID)
	}
	if err != nil {
		return nil, err
	}

	view, err := s.readLedger(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	period := types.Period{Start: info.Start, End: info.End}
	agg := s.aggregate(view, plan, n, period, now)

	editable := stats.Clone()
	snap := &types.CycleSnapshot{
		PlanID:       plan.PlanID,
		OwnerID:      ownerID,
		CycleNumber:  n,
		Period:       period,
		Origin:       types.OriginClosure,
		Totals:       editable.Activities,
		New:          agg.New,
		NewBooks:     agg.NewBooks,
		Participants: editable.Clone().Participants,
		Editable:     editable,
		System:       agg.System,
		Books:        agg.Books,
	}
	snap.Totals.BookStudies = agg.System.Books.Started + agg.System.Books.Completed

	var prev *types.CycleSnapshot
	if n > 1 {
		prev, err = snaps.Get(ctx, plan.PlanID, n-1)
		if errors.Is(err, types.ErrNotFound) {
			prev = nil
		} else if err != nil {
			return nil, err
		}
	}
	snap.Growth = types.ComputeGrowth(snap, prev)
	computedAt := now.UTC()
	snap.GrowthComputedAt = &computedAt

	if err := snaps.Create(ctx, snap); err != nil {
		return nil, err
	}
	s.logger.Info("cycle closed",
		"owner", ownerID,
		"plan", plan.PlanID,
		"cycle", n,
		"activities", snap.ActivitySum(),
		"participants", snap.ParticipantSum(),
		"growth_activities_pct", snap.Growth.ActivitiesPct,
	)
	return snap, nil
}

// RecomputeSystemTotals refreshes the ledger-derived totals and book
// breakdown of cycle n's snapshot. Ages are taken on the cycle's last day.
// Identity, counters, and stored growth are left as they were.
func (s *Service) RecomputeSystemTotals(ctx context.Context, ownerID, planID string, n int) (*types.CycleSnapshot, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	snap, err := snaps.Get(ctx, plan.PlanID, n)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot of cycle %d: %w", n, err)
	}
	if err := s.recompute(ctx, snaps, plan, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecomputeAllSystemTotals recomputes every snapshot of the plan and returns
// how many were refreshed.
func (s *Service) RecomputeAllSystemTotals(ctx context.Context, ownerID, planID string) (int, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return 0, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return 0, err
	}
	list, err := snaps.List(ctx, plan.PlanID)
	if err != nil {
		return 0, err
	}
	for i, snap := range list {
		if err := s.recompute(ctx, snaps, plan, snap); err != nil {
			return i, err
		}
	}
	return len(list), nil
}

func (s *Service) recompute(ctx context.Context, snaps types.SnapshotStore, plan *types.CyclePlan, snap *types.CycleSnapshot) error {
	view, err := s.readLedger(ctx, snap.OwnerID)
	if err != nil {
		return err
	}
	agg := s.aggregate(view, plan, snap.CycleNumber, snap.Period, snap.Period.End)
	snap.System = agg.System
	snap.Books = agg.Books
	if err := snaps.Recompute(ctx, snap); err != nil {
		return fmt.Errorf("recomputing cycle %d: %w", snap.CycleNumber, err)
	}
	s.metrics.RecomputesTotal.Inc()
	s.logger.Info("system totals recomputed",
		"owner", snap.OwnerID,
		"plan", snap.PlanID,
		"cycle", snap.CycleNumber,
		"recompute_count", snap.RecomputeCount,
	)
	return nil
}
