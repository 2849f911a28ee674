// Package engine implements cycle accounting over a types.Store: resolving
// an owner's plan, reporting cycles, closing the live cycle into a frozen
// snapshot, and backfilling snapshots of past cycles as tagged activities
// arrive.
//
// Every operation takes an explicit owner ID. A plan ID of "" resolves to
// the owner's primary plan.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// Reporting windows.
const (
	GrowthWindow     = 5 // Snapshots averaged by GrowthOverview.
	SuggestionsLimit = 5 // Cycles returned by SuggestBackfillCycles.
)

// Options configures a Service. The zero value is usable.
type Options struct {
	Logger     *slog.Logger         // Defaults to slog.Default().
	Now        func() time.Time     // Defaults to time.Now.
	Registerer prometheus.Registerer // Nil leaves metrics unregistered.
}

// Service runs cycle operations against a store.
type Service struct {
	store   types.Store
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics
}

// New returns a Service over an attached store.
func New(store types.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   store,
		logger:  opts.Logger,
		now:     opts.Now,
		metrics: NewMetrics(opts.Registerer),
	}
}

// Metrics returns the service counters.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// resolvePlan returns the named plan, or the owner's primary plan when
// planID is empty. A missing plan is ErrConfigurationMissing.
func (s *Service) resolvePlan(ctx context.Context, ownerID, planID string) (*types.CyclePlan, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	plans, err := s.store.Plans()
	if err != nil {
		return nil, err
	}

	var plan *types.CyclePlan
	if planID == "" {
		plan, err = plans.Primary(ctx, ownerID)
	} else {
		plan, err = plans.Get(ctx, ownerID, planID)
	}
	if errors.Is(err, types.ErrNotFound) {
		if planID == "" {
			return nil, fmt.Errorf("%w: owner %s has no primary plan", types.ErrConfigurationMissing, ownerID)
		}
		return nil, fmt.Errorf("%w: plan %s not found", types.ErrConfigurationMissing, planID)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetCurrentCycle reports the plan's live cycle as of now.
func (s *Service) GetCurrentCycle(ctx context.Context, ownerID, planID string) (types.CycleInfo, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return types.CycleInfo{}, err
	}
	return types.CalculateCurrent(plan, s.now()), nil
}

// GetCycle returns the date range of cycle n, or nil when n is outside the plan.
func (s *Service) GetCycle(ctx context.Context, ownerID, planID string, n int) (*types.CycleInfo, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	return types.CalculateSpecific(plan, n), nil
}

// ListSnapshots returns the plan's snapshots, most recent cycle first.
func (s *Service) ListSnapshots(ctx context.Context, ownerID, planID string) ([]*types.CycleSnapshot, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	return snaps.List(ctx, plan.PlanID)
}

// GetSnapshot returns the snapshot of cycle n, or nil if the cycle has none.
func (s *Service) GetSnapshot(ctx context.Context, ownerID, planID string, n int) (*types.CycleSnapshot, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	snap, err := snaps.Get(ctx, plan.PlanID, n)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	return snap, err
}

// DeleteSnapshot removes the snapshot of cycle n and its book breakdown.
func (s *Service) DeleteSnapshot(ctx context.Context, ownerID, planID string, n int) error {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return err
	}
	if err := snaps.Delete(ctx, plan.PlanID, n); err != nil {
		return fmt.Errorf("deleting snapshot of cycle %d: %w", n, err)
	}
	s.logger.Info("snapshot deleted", "owner", ownerID, "plan", plan.PlanID, "cycle", n)
	return nil
}

// GrowthOverview pairs the live cycle with the average growth of the most
// recent snapshots.
type GrowthOverview struct {
	Plan    *types.CyclePlan       `json:"plan"`
	Current types.CycleInfo        `json:"current"`
	Average types.GrowthAverage    `json:"average"`
	Recent  []*types.CycleSnapshot `json:"recent"`
}

// GrowthOverview averages the stored growth of the last GrowthWindow snapshots.
func (s *Service) GrowthOverview(ctx context.Context, ownerID, planID string) (*GrowthOverview, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	list, err := snaps.List(ctx, plan.PlanID)
	if err != nil {
		return nil, err
	}
	if len(list) > GrowthWindow {
		list = list[:GrowthWindow]
	}
	return &GrowthOverview{
		Plan:    plan,
		Current: types.CalculateCurrent(plan, s.now()),
		Average: types.AverageGrowth(list, GrowthWindow),
		Recent:  list,
	}, nil
}

// SuggestBackfillCycles returns up to SuggestionsLimit past cycles that have
// no snapshot, most recent first.
func (s *Service) SuggestBackfillCycles(ctx context.Context, ownerID, planID string) ([]types.CycleInfo, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	cur := types.CalculateCurrent(plan, s.now())
	if !cur.HasNumber() {
		return nil, nil
	}

	snaps, err := s.store.Snapshots()
	if err != nil {
		return nil, err
	}
	list, err := snaps.List(ctx, plan.PlanID)
	if err != nil {
		return nil, err
	}
	closed := make(map[int]bool, len(list))
	for _, snap := range list {
		closed[snap.CycleNumber] = true
	}

	var out []types.CycleInfo
	for n := *cur.Number - 1; n >= 1 && len(out) < SuggestionsLimit; n-- {
		if closed[n] {
			continue
		}
		out = append(out, *types.CalculateSpecific(plan, n))
	}
	return out, nil
}

// GetStatistics returns the owner's editable statistics.
func (s *Service) GetStatistics(ctx context.Context, ownerID string) (*types.EditableStatistics, error) {
	stats, err := s.store.Statistics()
	if err != nil {
		return nil, err
	}
	return stats.Get(ctx, ownerID)
}

// SetStatistics replaces the owner's editable statistics.
func (s *Service) SetStatistics(ctx context.Context, st *types.EditableStatistics) error {
	stats, err := s.store.Statistics()
	if err != nil {
		return err
	}
	st.UpdatedAt = s.now().UTC()
	return stats.Set(ctx, st)
}
