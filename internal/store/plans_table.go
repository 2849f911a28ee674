// This file implements the cycle plan accessor. Primary selection is a
// clear-then-set inside one transaction, backed by a partial unique index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

var _ types.PlanStore = (*plansTable)(nil)

type plansTable struct {
	backend *Backend
}

const selectPlanColumns = `SELECT plan_id, owner_id, title, description, start_date,
    cycle_length_months, total_cycles, active, is_primary, created_at, updated_at
FROM cycle_plans`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Get retrieves one of the owner's plans.
func (pt *plansTable) Get(ctx context.Context, ownerID, planID string) (*types.CyclePlan, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	if planID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := pt.backend.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		pt.backend.rebind(selectPlanColumns+" WHERE owner_id = ? AND plan_id = ?"),
		ownerID, planID,
	)
	plan, err := hydratePlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting plan %s: %w", planID, err)
	}
	return plan, nil
}

// Primary retrieves the owner's primary plan.
func (pt *plansTable) Primary(ctx context.Context, ownerID string) (*types.CyclePlan, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	db, err := pt.backend.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		pt.backend.rebind(selectPlanColumns+" WHERE owner_id = ? AND is_primary = 1"),
		ownerID,
	)
	plan, err := hydratePlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting primary plan: %w", err)
	}
	return plan, nil
}

// List returns the owner's plans, primary first, then by title.
func (pt *plansTable) List(ctx context.Context, ownerID string) ([]*types.CyclePlan, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	db, err := pt.backend.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		pt.backend.rebind(selectPlanColumns+" WHERE owner_id = ? ORDER BY is_primary DESC, title ASC"),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	plans := []*types.CyclePlan{}
	for rows.Next() {
		plan, err := hydratePlan(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

// Create validates and inserts plan with a new UUID v7.
func (pt *plansTable) Create(ctx context.Context, plan *types.CyclePlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	db, err := pt.backend.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	plan.PlanID = generateUUID()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := pt.checkTitle(ctx, tx, plan); err != nil {
		return err
	}
	if plan.IsPrimary {
		if err := pt.demoteOthers(ctx, tx, plan.OwnerID, plan.PlanID, now); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, pt.backend.rebind(`INSERT INTO cycle_plans
    (plan_id, owner_id, title, description, start_date, cycle_length_months,
     total_cycles, active, is_primary, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		plan.PlanID, plan.OwnerID, plan.Title, plan.Description, formatDate(plan.StartDate),
		plan.CycleLengthMonths, plan.TotalCycles, boolToInt(plan.Active), boolToInt(plan.IsPrimary),
		formatTime(plan.CreatedAt), formatTime(plan.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("persisting plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing plan: %w", err)
	}
	return nil
}

// Update validates and rewrites an existing plan.
func (pt *plansTable) Update(ctx context.Context, plan *types.CyclePlan) error {
	if plan.PlanID == "" {
		return types.ErrInvalidID
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	db, err := pt.backend.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	plan.UpdatedAt = now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := pt.checkTitle(ctx, tx, plan); err != nil {
		return err
	}
	if plan.IsPrimary {
		if err := pt.demoteOthers(ctx, tx, plan.OwnerID, plan.PlanID, now); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, pt.backend.rebind(`UPDATE cycle_plans SET
    title = ?, description = ?, start_date = ?, cycle_length_months = ?,
    total_cycles = ?, active = ?, is_primary = ?, updated_at = ?
WHERE owner_id = ? AND plan_id = ?`),
		plan.Title, plan.Description, formatDate(plan.StartDate), plan.CycleLengthMonths,
		plan.TotalCycles, boolToInt(plan.Active), boolToInt(plan.IsPrimary), formatTime(now),
		plan.OwnerID, plan.PlanID,
	)
	if err != nil {
		return fmt.Errorf("updating plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing plan: %w", err)
	}
	return nil
}

// SetPrimary makes planID the owner's only primary plan.
func (pt *plansTable) SetPrimary(ctx context.Context, ownerID, planID string) error {
	if ownerID == "" {
		return types.ErrInvalidOwner
	}
	if planID == "" {
		return types.ErrInvalidID
	}
	db, err := pt.backend.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		pt.backend.rebind("SELECT 1 FROM cycle_plans WHERE owner_id = ? AND plan_id = ?"),
		ownerID, planID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		return fmt.Errorf("checking plan existence: %w", err)
	}

	now := time.Now().UTC()
	if err := pt.demoteOthers(ctx, tx, ownerID, planID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		pt.backend.rebind("UPDATE cycle_plans SET is_primary = 1, updated_at = ? WHERE plan_id = ?"),
		formatTime(now), planID,
	); err != nil {
		return fmt.Errorf("setting primary plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing primary plan: %w", err)
	}
	return nil
}

// Delete removes a plan that has no snapshots.
func (pt *plansTable) Delete(ctx context.Context, ownerID, planID string) error {
	if ownerID == "" {
		return types.ErrInvalidOwner
	}
	if planID == "" {
		return types.ErrInvalidID
	}
	db, err := pt.backend.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		pt.backend.rebind("SELECT COUNT(*) FROM cycle_snapshots WHERE plan_id = ?"),
		planID,
	).Scan(&count); err != nil {
		return fmt.Errorf("counting snapshots: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d snapshots reference plan %s", types.ErrPlanInUse, count, planID)
	}

	res, err := tx.ExecContext(ctx,
		pt.backend.rebind("DELETE FROM cycle_plans WHERE owner_id = ? AND plan_id = ?"),
		ownerID, planID,
	)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing plan deletion: %w", err)
	}
	return nil
}

// checkTitle rejects a title already used by another of the owner's plans.
func (pt *plansTable) checkTitle(ctx context.Context, tx *sql.Tx, plan *types.CyclePlan) error {
	var dupID string
	err := tx.QueryRowContext(ctx,
		pt.backend.rebind("SELECT plan_id FROM cycle_plans WHERE owner_id = ? AND title = ? AND plan_id <> ?"),
		plan.OwnerID, plan.Title, plan.PlanID,
	).Scan(&dupID)
	if err == nil {
		return types.ErrDuplicateTitle
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking plan title uniqueness: %w", err)
	}
	return nil
}

// demoteOthers clears is_primary on every other plan of the owner.
func (pt *plansTable) demoteOthers(ctx context.Context, tx *sql.Tx, ownerID, keepID string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		pt.backend.rebind("UPDATE cycle_plans SET is_primary = 0, updated_at = ? WHERE owner_id = ? AND plan_id <> ? AND is_primary = 1"),
		formatTime(now), ownerID, keepID,
	)
	if err != nil {
		return fmt.Errorf("clearing primary plans: %w", err)
	}
	return nil
}

// hydratePlan converts a cycle_plans row into a *types.CyclePlan.
func hydratePlan(row rowScanner) (*types.CyclePlan, error) {
	var (
		p                    types.CyclePlan
		start                string
		active, primary      int
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.PlanID, &p.OwnerID, &p.Title, &p.Description, &start,
		&p.CycleLengthMonths, &p.TotalCycles, &active, &primary, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if p.StartDate, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	p.Active = active != 0
	p.IsPrimary = primary != 0
	return &p, nil
}
