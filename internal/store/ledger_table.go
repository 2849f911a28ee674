// This file implements the activity ledger: the minimal record-keeping
// layer the closure reads from and the CLI writes to.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

var _ types.LedgerStore = (*ledgerTable)(nil)

type ledgerTable struct {
	backend *Backend
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AddActivity records an activity, generating its ID. An activity without a
// name is named after its category.
func (lt *ledgerTable) AddActivity(ctx context.Context, a *types.Activity) error {
	if err := checkActivity(a); err != nil {
		return err
	}
	db, err := lt.backend.conn()
	if err != nil {
		return err
	}
	return lt.insertActivity(ctx, db, a)
}

// AddActivityBackfill records a and applies inc in one transaction, so the
// ledger never holds a backfilled activity its cycle has not counted.
func (lt *ledgerTable) AddActivityBackfill(ctx context.Context, a *types.Activity, inc types.BackfillIncrement) (*types.CycleSnapshot, error) {
	if err := checkActivity(a); err != nil {
		return nil, err
	}
	return lt.withIncrement(ctx, inc, func(tx *sql.Tx) error {
		return lt.insertActivity(ctx, tx, a)
	})
}

// AddBookStudy records a book study, generating its ID.
func (lt *ledgerTable) AddBookStudy(ctx context.Context, b *types.BookStudy) error {
	if err := checkBookStudy(b); err != nil {
		return err
	}
	db, err := lt.backend.conn()
	if err != nil {
		return err
	}
	return lt.insertBookStudy(ctx, db, b)
}

// AddBookStudyBackfill records b and applies inc in one transaction.
func (lt *ledgerTable) AddBookStudyBackfill(ctx context.Context, b *types.BookStudy, inc types.BackfillIncrement) (*types.CycleSnapshot, error) {
	if err := checkBookStudy(b); err != nil {
		return nil, err
	}
	return lt.withIncrement(ctx, inc, func(tx *sql.Tx) error {
		return lt.insertBookStudy(ctx, tx, b)
	})
}

func (lt *ledgerTable) withIncrement(ctx context.Context, inc types.BackfillIncrement, insert func(*sql.Tx) error) (*types.CycleSnapshot, error) {
	if _, err := checkIncrement(inc); err != nil {
		return nil, err
	}
	db, err := lt.backend.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insert(tx); err != nil {
		return nil, err
	}
	snaps := &snapshotsTable{backend: lt.backend}
	s, err := snaps.increment(ctx, tx, inc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing backfill: %w", err)
	}
	return s, nil
}

func checkActivity(a *types.Activity) error {
	if a.OwnerID == "" {
		return types.ErrInvalidOwner
	}
	if _, err := types.ParseCategory(string(a.Category)); err != nil {
		return err
	}
	if strings.TrimSpace(a.Name) == "" {
		a.Name = string(a.Category)
	}
	if a.Participants < 0 || a.Qualifying < 0 || a.Qualifying > a.Participants {
		return types.NewValidationError("Qualifying", "must be between 0 and participants")
	}
	return nil
}

func (lt *ledgerTable) insertActivity(ctx context.Context, ex execer, a *types.Activity) error {
	a.ActivityID = generateUUID()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx, lt.backend.rebind(`INSERT INTO activities
    (activity_id, owner_id, plan_id, category, name, participants, qualifying, creation_cycle, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ActivityID, a.OwnerID, a.PlanID, string(a.Category), a.Name,
		a.Participants, a.Qualifying, nullInt(a.CreationCycle), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("persisting activity: %w", err)
	}
	return nil
}

func checkBookStudy(b *types.BookStudy) error {
	if b.OwnerID == "" {
		return types.ErrInvalidOwner
	}
	if _, err := types.ParseBookCategory(string(b.Category)); err != nil {
		return err
	}
	if strings.TrimSpace(b.BookName) == "" {
		return types.NewValidationError("BookName", "required")
	}
	if b.StartedAt.IsZero() {
		return types.NewValidationError("StartedAt", "required")
	}
	return nil
}

func (lt *ledgerTable) insertBookStudy(ctx context.Context, ex execer, b *types.BookStudy) error {
	b.StudyID = generateUUID()
	_, err := ex.ExecContext(ctx, lt.backend.rebind(`INSERT INTO book_studies
    (study_id, owner_id, plan_id, category, book_name, started_at, completed_at, creation_cycle)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		b.StudyID, b.OwnerID, b.PlanID, string(b.Category), b.BookName,
		formatTime(b.StartedAt), nullTime(b.CompletedAt), nullInt(b.CreationCycle),
	)
	if err != nil {
		return fmt.Errorf("persisting book study: %w", err)
	}
	return nil
}

// AddContact records a roster entry, generating its ID.
func (lt *ledgerTable) AddContact(ctx context.Context, c *types.Contact) error {
	if c.OwnerID == "" {
		return types.ErrInvalidOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return types.NewValidationError("Name", "required")
	}
	db, err := lt.backend.conn()
	if err != nil {
		return err
	}

	var birth sql.NullString
	if c.BirthDate != nil {
		birth = sql.NullString{String: formatDate(*c.BirthDate), Valid: true}
	}
	c.ContactID = generateUUID()
	_, err = db.ExecContext(ctx, lt.backend.rebind(
		"INSERT INTO contacts (contact_id, owner_id, name, birth_date) VALUES (?, ?, ?, ?)"),
		c.ContactID, c.OwnerID, c.Name, birth,
	)
	if err != nil {
		return fmt.Errorf("persisting contact: %w", err)
	}
	return nil
}

// Activities returns the owner's activities in creation order.
func (lt *ledgerTable) Activities(ctx context.Context, ownerID string) ([]types.Activity, error) {
	db, err := lt.backend.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, lt.backend.rebind(`SELECT activity_id, owner_id, plan_id, category, name,
    participants, qualifying, creation_cycle, created_at
FROM activities WHERE owner_id = ? ORDER BY created_at ASC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching activities: %w", err)
	}
	defer rows.Close()

	out := []types.Activity{}
	for rows.Next() {
		var (
			a         types.Activity
			cat       string
			cycle     sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&a.ActivityID, &a.OwnerID, &a.PlanID, &cat, &a.Name,
			&a.Participants, &a.Qualifying, &cycle, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.Category = types.Category(cat)
		a.CreationCycle = intPtr(cycle)
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}
	return out, nil
}

// BookStudies returns the owner's book studies in start order.
func (lt *ledgerTable) BookStudies(ctx context.Context, ownerID string) ([]types.BookStudy, error) {
	db, err := lt.backend.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, lt.backend.rebind(`SELECT study_id, owner_id, plan_id, category, book_name,
    started_at, completed_at, creation_cycle
FROM book_studies WHERE owner_id = ? ORDER BY started_at ASC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching book studies: %w", err)
	}
	defer rows.Close()

	out := []types.BookStudy{}
	for rows.Next() {
		var (
			b         types.BookStudy
			cat       string
			startedAt string
			completed sql.NullString
			cycle     sql.NullInt64
		)
		if err := rows.Scan(&b.StudyID, &b.OwnerID, &b.PlanID, &cat, &b.BookName,
			&startedAt, &completed, &cycle); err != nil {
			return nil, fmt.Errorf("scanning book study: %w", err)
		}
		b.Category = types.BookCategory(cat)
		b.CreationCycle = intPtr(cycle)
		if b.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if b.CompletedAt, err = parseNullTime(completed); err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating book studies: %w", err)
	}
	return out, nil
}

// Roster returns the owner's contacts ordered by name.
func (lt *ledgerTable) Roster(ctx context.Context, ownerID string) ([]types.Contact, error) {
	db, err := lt.backend.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, lt.backend.rebind(
		"SELECT contact_id, owner_id, name, birth_date FROM contacts WHERE owner_id = ? ORDER BY name ASC"), ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}
	defer rows.Close()

	out := []types.Contact{}
	for rows.Next() {
		var (
			c     types.Contact
			birth sql.NullString
		)
		if err := rows.Scan(&c.ContactID, &c.OwnerID, &c.Name, &birth); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		if birth.Valid {
			d, err := parseDate(birth.String)
			if err != nil {
				return nil, fmt.Errorf("parsing birth_date: %w", err)
			}
			c.BirthDate = &d
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster: %w", err)
	}
	return out, nil
}
