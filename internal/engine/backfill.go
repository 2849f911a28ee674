package engine

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// backfillTarget is a validated increment waiting to be applied.
type backfillTarget struct {
	plan *types.CyclePlan
	inc  types.BackfillIncrement
}

// prepareBackfill resolves the plan and cycle for ev. It returns nil when
// the activity needs no backfill: it carries no cycle tag, or it is tagged
// with the live cycle, which closure counts.
func (s *Service) prepareBackfill(ctx context.Context, ev types.ActivityEvent) (*backfillTarget, error) {
	if ev.CreationCycle == nil {
		return nil, nil
	}
	cat, err := types.ParseCategory(string(ev.Category))
	if err != nil {
		return nil, err
	}
	plan, err := s.resolvePlan(ctx, ev.OwnerID, ev.PlanID)
	if err != nil {
		return nil, err
	}

	n := *ev.CreationCycle
	info := types.CalculateSpecific(plan, n)
	if info == nil {
		return nil, types.NewValidationError("creation_cycle",
			fmt.Sprintf("cycle %d is outside 1..%d", n, plan.TotalCycles))
	}
	now := s.now()
	if cur := types.CalculateCurrent(plan, now); cur.Number != nil {
		switch {
		case n == *cur.Number:
			s.logger.Debug("activity in live cycle, not backfilled", "owner", ev.OwnerID, "plan", plan.PlanID, "cycle", n)
			return nil, nil
		case n > *cur.Number:
			return nil, types.NewValidationError("creation_cycle",
				fmt.Sprintf("cycle %d has not started; the current cycle is %d", n, *cur.Number))
		}
	}

	return &backfillTarget{
		plan: plan,
		inc: types.BackfillIncrement{
			PlanID:      plan.PlanID,
			OwnerID:     ev.OwnerID,
			CycleNumber: n,
			Period:      types.Period{Start: info.Start, End: info.End},
			Category:    cat,
			At:          now,
		},
	}, nil
}

func (s *Service) applyBackfill(ctx context.Context, t *backfillTarget) (*types.CycleSnapshot, error) {
	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	snap, err := snaps.Increment(ctx, t.inc)
	if err != nil {
		return nil, fmt.Errorf("backfilling cycle %d: %w", t.inc.CycleNumber, err)
	}
	s.backfilled(t, snap)
	return snap, nil
}

func (s *Service) backfilled(t *backfillTarget, snap *types.CycleSnapshot) {
	s.metrics.BackfillsTotal.WithLabelValues(string(t.inc.Category)).Inc()
	s.logger.Info("activity backfilled",
		"owner", t.inc.OwnerID,
		"plan", t.plan.PlanID,
		"cycle", t.inc.CycleNumber,
		"category", t.inc.Category,
		"total", snap.Totals.Get(t.inc.Category),
	)
}

// RecordActivity applies one activity-create event. An event tagged with a
// past cycle adds one to that cycle's total and new counters for its
// category, creating the snapshot when the cycle has none. It returns the
// updated snapshot, or nil when nothing was backfilled.
//
// Repeated events are each counted; nothing is deduplicated.
func (s *Service) RecordActivity(ctx context.Context, ev types.ActivityEvent) (*types.CycleSnapshot, error) {
	target, err := s.prepareBackfill(ctx, ev)
	if err != nil || target == nil {
		return nil, err
	}
	return s.applyBackfill(ctx, target)
}

// AddActivity writes a to the ledger and backfills its cycle tag. The tag is
// validated before anything is written, and a backfilled activity is
// written together with its counters.
func (s *Service) AddActivity(ctx context.Context, a *types.Activity) (*types.CycleSnapshot, error) {
	target, err := s.prepareBackfill(ctx, types.ActivityEvent{
		OwnerID:       a.OwnerID,
		PlanID:        a.PlanID,
		Category:      a.Category,
		CreationCycle: a.CreationCycle,
	})
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.Ledger()
	if err != nil {
		return nil, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if target == nil {
		return nil, ledger.AddActivity(ctx, a)
	}
	snap, err := ledger.AddActivityBackfill(ctx, a, target.inc)
	if err != nil {
		return nil, fmt.Errorf("backfilling cycle %d: %w", target.inc.CycleNumber, err)
	}
	s.backfilled(target, snap)
	return snap, nil
}

// AddBookStudy writes b to the ledger. A study tagged with a past cycle is
// backfilled as a book-study activity in the same write.
func (s *Service) AddBookStudy(ctx context.Context, b *types.BookStudy) (*types.CycleSnapshot, error) {
	target, err := s.prepareBackfill(ctx, types.ActivityEvent{
		OwnerID:       b.OwnerID,
		PlanID:        b.PlanID,
		Category:      types.CategoryBookStudy,
		CreationCycle: b.CreationCycle,
	})
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.Ledger()
	if err != nil {
		return nil, err
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = s.now().UTC()
	}
	if target == nil {
		return nil, ledger.AddBookStudy(ctx, b)
	}
	snap, err := ledger.AddBookStudyBackfill(ctx, b, target.inc)
	if err != nil {
		return nil, fmt.Errorf("backfilling cycle %d: %w", target.inc.CycleNumber, err)
	}
	s.backfilled(target, snap)
	return snap, nil
}

// AddContact writes c to the roster.
func (s *Service) AddContact(ctx context.Context, c *types.Contact) error {
	ledger, err := s.store.Ledger()
	if err != nil {
		return err
	}
	return ledger.AddContact(ctx, c)
}
