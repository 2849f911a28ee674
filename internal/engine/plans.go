package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// CreatePlan validates and stores a new plan. The owner's first plan is
// made primary.
func (s *Service) CreatePlan(ctx context.Context, plan *types.CyclePlan) error {
	plans, err := s.store.Plans()
	if err != nil {
		return err
	}
	existing, err := plans.List(ctx, plan.OwnerID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		plan.IsPrimary = true
	}
	if err := plans.Create(ctx, plan); err != nil {
		return err
	}
	s.logger.Info("plan created", "owner", plan.OwnerID, "plan", plan.PlanID, "title", plan.Title, "primary", plan.IsPrimary)
	return nil
}

// GetPlan returns the named plan, or the owner's primary plan for "".
func (s *Service) GetPlan(ctx context.Context, ownerID, planID string) (*types.CyclePlan, error) {
	return s.resolvePlan(ctx, ownerID, planID)
}

// ListPlans returns the owner's plans, primary first.
func (s *Service) ListPlans(ctx context.Context, ownerID string) ([]*types.CyclePlan, error) {
	plans, err := s.store.Plans()
	if err != nil {
		return nil, err
	}
	return plans.List(ctx, ownerID)
}

// UpdatePlan rewrites an existing plan.
func (s *Service) UpdatePlan(ctx context.Context, plan *types.CyclePlan) error {
	plans, err := s.store.Plans()
	if err != nil {
		return err
	}
	return plans.Update(ctx, plan)
}

// SetPrimary makes planID the owner's only primary plan.
func (s *Service) SetPrimary(ctx context.Context, ownerID, planID string) error {
	plans, err := s.store.Plans()
	if err != nil {
		return err
	}
	if err := plans.SetPrimary(ctx, ownerID, planID); err != nil {
		return fmt.Errorf("setting primary plan: %w", err)
	}
	s.logger.Info("primary plan set", "owner", ownerID, "plan", planID)
	return nil
}

// ClosePlan deactivates the plan. A closed plan has no current cycle.
func (s *Service) ClosePlan(ctx context.Context, ownerID, planID string) (*types.CyclePlan, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	plan.Close()
	if err := s.UpdatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("plan closed", "owner", ownerID, "plan", plan.PlanID)
	return plan, nil
}

// RestartPlan reactivates the plan from start, or from today when start is
// zero.
func (s *Service) RestartPlan(ctx context.Context, ownerID, planID string, start time.Time) (*types.CyclePlan, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = s.now()
	}
	plan.Restart(start)
	if err := s.UpdatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("plan restarted", "owner", ownerID, "plan", plan.PlanID, "start", plan.StartDate.Format(time.DateOnly))
	return plan, nil
}

// DeletePlan removes a plan that has no snapshots.
func (s *Service) DeletePlan(ctx context.Context, ownerID, planID string) error {
	plans, err := s.store.Plans()
	if err != nil {
		return err
	}
	if err := plans.Delete(ctx, ownerID, planID); err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	s.logger.Info("plan deleted", "owner", ownerID, "plan", planID)
	return nil
}

// ListCycles returns the resolved plan with the date range of each cycle.
func (s *Service) ListCycles(ctx context.Context, ownerID, planID string) (*types.CyclePlan, []types.CycleInfo, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, nil, err
	}
	return plan, types.ListCycles(plan), nil
}
