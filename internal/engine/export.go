package engine

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/cycles/internal/store"
)

// ExportSnapshots writes the plan's snapshots to path as JSONL, most recent
// cycle first. With flat set each line is the snapshot's flattened Record.
// It returns the number of snapshots written.
func (s *Service) ExportSnapshots(ctx context.Context, ownerID, planID, path string, flat bool) (int, error) {
	list, err := s.ListSnapshots(ctx, ownerID, planID)
	if err != nil {
		return 0, err
	}
	write := store.ExportSnapshots
	if flat {
		write = store.ExportRecords
	}
	if err := write(path, list); err != nil {
		return 0, fmt.Errorf("exporting snapshots: %w", err)
	}
	s.logger.Info("snapshots exported", "owner", ownerID, "path", path, "count", len(list), "flat", flat)
	return len(list), nil
}

// ImportSnapshots loads a JSONL file written by ExportSnapshots into the
// plan. Cycles that already have a snapshot are left alone.
func (s *Service) ImportSnapshots(ctx context.Context, ownerID, planID, path string) (store.ImportResult, error) {
	plan, err := s.resolvePlan(ctx, ownerID, planID)
	if err != nil {
		return store.ImportResult{}, err
	}
	snaps, err := s.store.Snapshots()
	if err != nil {
		return store.ImportResult{}, err
	}
	res, err := store.ImportSnapshots(ctx, snaps, path, ownerID, plan.PlanID)
	if err != nil {
		return res, err
	}
	s.logger.Info("snapshots imported",
		"owner", ownerID,
		"plan", plan.PlanID,
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"skipped", res.Skipped,
	)
	return res, nil
}
