package types

import (
	"context"
	"time"
)

// Store is the backend-agnostic persistence boundary. Callers attach to a
// backend, obtain typed accessors, and detach when done.
type Store interface {
	// Attach connects the store to the backend described by config and
	// applies the schema. Returns ErrAlreadyAttached if already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach the
	// accessors return ErrStoreDetached.
	Detach() error

	Plans() (PlanStore, error)
	Snapshots() (SnapshotStore, error)
	Statistics() (StatisticsStore, error)
	Ledger() (LedgerStore, error)
}

// PlanStore persists cycle plans and enforces one primary plan per owner.
type PlanStore interface {
	// Get returns the owner's plan. Returns ErrNotFound if absent.
	Get(ctx context.Context, ownerID, planID string) (*CyclePlan, error)

	// Primary returns the owner's primary plan. Returns ErrNotFound if the
	// owner has none.
	Primary(ctx context.Context, ownerID string) (*CyclePlan, error)

	// List returns the owner's plans, primary first, then by title.
	List(ctx context.Context, ownerID string) ([]*CyclePlan, error)

	// Create validates and inserts plan, generating its ID. A plan created
	// with IsPrimary set demotes the owner's other plans in the same
	// transaction.
	Create(ctx context.Context, plan *CyclePlan) error

	// Update validates and rewrites plan with the same primary handling.
	Update(ctx context.Context, plan *CyclePlan) error

	// SetPrimary makes planID the owner's only primary plan.
	SetPrimary(ctx context.Context, ownerID, planID string) error

	// Delete removes the plan. Returns ErrPlanInUse while snapshots exist.
	Delete(ctx context.Context, ownerID, planID string) error
}

// BackfillIncrement identifies the counter pair bumped for one activity
// tagged with a past cycle.
type BackfillIncrement struct {
	PlanID      string
	OwnerID     string
	CycleNumber int
	Period      Period
	Category    Category
	At          time.Time
}

// SnapshotStore persists cycle snapshots and their book breakdown.
type SnapshotStore interface {
	// Get returns the snapshot for (planID, n). Returns ErrNotFound if absent.
	Get(ctx context.Context, planID string, n int) (*CycleSnapshot, error)

	// List returns the plan's snapshots ordered by cycle number descending.
	List(ctx context.Context, planID string) ([]*CycleSnapshot, error)

	// Create inserts s with its book breakdown in one transaction. Returns
	// ErrDuplicateSnapshot if (PlanID, CycleNumber) already exists.
	Create(ctx context.Context, s *CycleSnapshot) error

	// Increment creates the snapshot if needed and adds one to the total and
	// new counters of the category as a single atomic statement.
	Increment(ctx context.Context, inc BackfillIncrement) (*CycleSnapshot, error)

	// Recompute replaces the ledger-derived system totals and book breakdown
	// of s, stamping RecomputedAt and bumping RecomputeCount. Identity,
	// counters, and growth are left untouched.
	Recompute(ctx context.Context, s *CycleSnapshot) error

	// Delete removes the snapshot and its book breakdown.
	Delete(ctx context.Context, planID string, n int) error
}

// StatisticsStore persists the per-owner editable statistics.
type StatisticsStore interface {
	// Get returns the owner's statistics. Returns ErrNotFound if none exist.
	Get(ctx context.Context, ownerID string) (*EditableStatistics, error)

	// Set validates and upserts the owner's statistics.
	Set(ctx context.Context, stats *EditableStatistics) error
}

// LedgerStore is the minimal record-keeping layer behind Ledger.
type LedgerStore interface {
	Ledger

	AddActivity(ctx context.Context, a *Activity) error
	AddBookStudy(ctx context.Context, b *BookStudy) error

	// AddActivityBackfill and AddBookStudyBackfill record the entry and
	// apply inc in one transaction; neither write lands without the other.
	AddActivityBackfill(ctx context.Context, a *Activity, inc BackfillIncrement) (*CycleSnapshot, error)
	AddBookStudyBackfill(ctx context.Context, b *BookStudy, inc BackfillIncrement) (*CycleSnapshot, error)
	AddContact(ctx context.Context, c *Contact) error
}
