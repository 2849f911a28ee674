package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema DDL. The statements are portable between SQLite and Postgres:
// dates and timestamps are TEXT, booleans are INTEGER 0/1, and nested
// aggregates are JSON text.
const (
	createCyclePlans = `CREATE TABLE IF NOT EXISTS cycle_plans (
    plan_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    start_date TEXT NOT NULL,
    cycle_length_months INTEGER NOT NULL CHECK (cycle_length_months >= 1),
    total_cycles INTEGER NOT NULL CHECK (total_cycles >= 1),
    active INTEGER NOT NULL DEFAULT 1,
    is_primary INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (owner_id, title)
)`

	createCycleSnapshots = `CREATE TABLE IF NOT EXISTS cycle_snapshots (
    snapshot_id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL REFERENCES cycle_plans(plan_id),
    owner_id TEXT NOT NULL,
    cycle_number INTEGER NOT NULL CHECK (cycle_number >= 1),
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    origin TEXT NOT NULL,
    total_junior_youth_group INTEGER NOT NULL DEFAULT 0,
    total_childrens_class INTEGER NOT NULL DEFAULT 0,
    total_study_circle INTEGER NOT NULL DEFAULT 0,
    total_family_group INTEGER NOT NULL DEFAULT 0,
    total_devotional_gathering INTEGER NOT NULL DEFAULT 0,
    total_family_with_devotional INTEGER NOT NULL DEFAULT 0,
    total_book_study INTEGER NOT NULL DEFAULT 0,
    new_junior_youth_group INTEGER NOT NULL DEFAULT 0,
    new_childrens_class INTEGER NOT NULL DEFAULT 0,
    new_study_circle INTEGER NOT NULL DEFAULT 0,
    new_family_group INTEGER NOT NULL DEFAULT 0,
    new_devotional_gathering INTEGER NOT NULL DEFAULT 0,
    new_family_with_devotional INTEGER NOT NULL DEFAULT 0,
    new_book_study INTEGER NOT NULL DEFAULT 0,
    new_books TEXT NOT NULL DEFAULT '{}',
    participants TEXT NOT NULL DEFAULT '{}',
    editable_totals TEXT,
    system_totals TEXT NOT NULL DEFAULT '{}',
    growth_activities_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    growth_participants_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    growth_books_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    growth_computed_at TEXT,
    recomputed_at TEXT,
    recompute_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (plan_id, cycle_number)
)`

	createBookStudyDetails = `CREATE TABLE IF NOT EXISTS book_study_details (
    snapshot_id TEXT NOT NULL REFERENCES cycle_snapshots(snapshot_id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    book_name TEXT NOT NULL,
    started_count INTEGER NOT NULL DEFAULT 0,
    completed_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (snapshot_id, category, book_name)
)`

	createEditableStatistics = `CREATE TABLE IF NOT EXISTS editable_statistics (
    owner_id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

	createActivities = `CREATE TABLE IF NOT EXISTS activities (
    activity_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    plan_id TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    name TEXT NOT NULL,
    participants INTEGER NOT NULL DEFAULT 0,
    qualifying INTEGER NOT NULL DEFAULT 0,
    creation_cycle INTEGER,
    created_at TEXT NOT NULL
)`

	createBookStudies = `CREATE TABLE IF NOT EXISTS book_studies (
    study_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    plan_id TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    book_name TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    creation_cycle INTEGER
)`

	createContacts = `CREATE TABLE IF NOT EXISTS contacts (
    contact_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    birth_date TEXT
)`
)

// Indexes. The partial unique index holds the one-primary-plan-per-owner
// rule even if a writer bypasses the plan accessor.
const (
	indexOnePrimary       = `CREATE UNIQUE INDEX IF NOT EXISTS idx_cycle_plans_one_primary ON cycle_plans (owner_id) WHERE is_primary = 1`
	indexSnapshotsOwner   = `CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_owner ON cycle_snapshots (owner_id)`
	indexActivitiesOwner  = `CREATE INDEX IF NOT EXISTS idx_activities_owner ON activities (owner_id)`
	indexBookStudiesOwner = `CREATE INDEX IF NOT EXISTS idx_book_studies_owner ON book_studies (owner_id)`
	indexContactsOwner    = `CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts (owner_id)`
)

var schemaDDL = []string{
	createCyclePlans,
	createCycleSnapshots,
	createBookStudyDetails,
	createEditableStatistics,
	createActivities,
	createBookStudies,
	createContacts,
}

var indexDDL = []string{
	indexOnePrimary,
	indexSnapshotsOwner,
	indexActivitiesOwner,
	indexBookStudiesOwner,
	indexContactsOwner,
}

// applySchema creates any missing tables and indexes.
func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
