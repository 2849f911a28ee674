// This file implements the cycle snapshot accessor. Backfill counters are
// bumped with a single INSERT ... ON CONFLICT DO UPDATE so concurrent
// activities for the same past cycle never create a second row or lose an
// increment.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

var _ types.SnapshotStore = (*snapshotsTable)(nil)

type snapshotsTable struct {
	backend *Backend
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// counterColumns returns prefix_<category> for every category, in
// types.Categories order.
func counterColumns(prefix string) []string {
	cols := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		cols[i] = prefix + c.Key()
	}
	return cols
}

var snapshotColumns = strings.Join(append(append(append(
	[]string{"snapshot_id", "plan_id", "owner_id", "cycle_number", "start_date", "end_date", "origin"},
	counterColumns("total_")...),
	counterColumns("new_")...),
	"new_books", "participants", "editable_totals", "system_totals",
	"growth_activities_pct", "growth_participants_pct", "growth_books_pct", "growth_computed_at",
	"recomputed_at", "recompute_count", "created_at", "updated_at",
), ", ")

var selectSnapshotColumns = "SELECT " + snapshotColumns + " FROM cycle_snapshots"

var insertSnapshotSQL = "INSERT INTO cycle_snapshots (" + snapshotColumns + ") VALUES (" +
	strings.TrimSuffix(strings.Repeat("?, ", strings.Count(snapshotColumns, ",")+1), ", ") + ")"

// Get retrieves the snapshot of cycle n of a plan.
func (st *snapshotsTable) Get(ctx context.Context, planID string, n int) (*types.CycleSnapshot, error) {
	if planID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := st.backend.conn()
	if err != nil {
		return nil, err
	}
	return st.get(ctx, db, planID, n)
}

func (st *snapshotsTable) get(ctx context.Context, q querier, planID string, n int) (*types.CycleSnapshot, error) {
	row := q.QueryRowContext(ctx,
		st.backend.rebind(selectSnapshotColumns+" WHERE plan_id = ? AND cycle_number = ?"),
		planID, n,
	)
	s, err := hydrateSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot %d: %w", n, err)
	}
	if s.Books, err = st.loadBooks(ctx, q, s.SnapshotID); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns a plan's snapshots, most recent cycle first.
func (st *snapshotsTable) List(ctx context.Context, planID string) ([]*types.CycleSnapshot, error) {
	if planID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := st.backend.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		st.backend.rebind(selectSnapshotColumns+" WHERE plan_id = ? ORDER BY cycle_number DESC"),
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	snapshots := []*types.CycleSnapshot{}
	for rows.Next() {
		s, err := hydrateSnapshot(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("hydrating snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	// Release the connection before the per-snapshot book queries.
	rows.Close()

	for _, s := range snapshots {
		if s.Books, err = st.loadBooks(ctx, db, s.SnapshotID); err != nil {
			return nil, err
		}
	}
	return snapshots, nil
}

// Create inserts s and its book breakdown.
func (st *snapshotsTable) Create(ctx context.Context, s *types.CycleSnapshot) error {
	if s.PlanID == "" || s.OwnerID == "" || s.CycleNumber < 1 {
		return types.ErrInvalidSnapshot
	}
	db, err := st.backend.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if s.SnapshotID == "" {
		s.SnapshotID = generateUUID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	args, err := snapshotArgs(s)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, st.backend.rebind(insertSnapshotSQL), args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: plan %s cycle %d", types.ErrDuplicateSnapshot, s.PlanID, s.CycleNumber)
		}
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	if err := st.insertBooks(ctx, tx, s.SnapshotID, s.Books); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Increment applies one backfilled activity to (PlanID, CycleNumber).
func (st *snapshotsTable) Increment(ctx context.Context, inc types.BackfillIncrement) (*types.CycleSnapshot, error) {
	db, err := st.backend.conn()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	s, err := st.increment(ctx, tx, inc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing increment: %w", err)
	}
	return s, nil
}

func checkIncrement(inc types.BackfillIncrement) (types.Category, error) {
	if inc.PlanID == "" || inc.OwnerID == "" || inc.CycleNumber < 1 {
		return "", types.ErrInvalidSnapshot
	}
	return types.ParseCategory(string(inc.Category))
}

// increment runs the counter upsert inside tx and returns the updated row.
func (st *snapshotsTable) increment(ctx context.Context, tx *sql.Tx, inc types.BackfillIncrement) (*types.CycleSnapshot, error) {
	cat, err := checkIncrement(inc)
	if err != nil {
		return nil, err
	}
	at := inc.At
	if at.IsZero() {
		at = time.Now()
	}
	totalCol, newCol := "total_"+cat.Key(), "new_"+cat.Key()
	upsert := fmt.Sprintf(`INSERT INTO cycle_snapshots
    (snapshot_id, plan_id, owner_id, cycle_number, start_date, end_date, origin, %[1]s, %[2]s, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
ON CONFLICT (plan_id, cycle_number) DO UPDATE SET
    %[1]s = cycle_snapshots.%[1]s + 1,
    %[2]s = cycle_snapshots.%[2]s + 1,
    updated_at = excluded.updated_at`, totalCol, newCol)

	stamp := formatTime(at)
	if _, err := tx.ExecContext(ctx, st.backend.rebind(upsert),
		generateUUID(), inc.PlanID, inc.OwnerID, inc.CycleNumber,
		formatDate(inc.Period.Start), formatDate(inc.Period.End), types.OriginBackfill,
		stamp, stamp,
	); err != nil {
		return nil, fmt.Errorf("incrementing snapshot %d: %w", inc.CycleNumber, err)
	}
	return st.get(ctx, tx, inc.PlanID, inc.CycleNumber)
}

// Recompute rewrites the ledger-derived totals of an existing snapshot.
func (st *snapshotsTable) Recompute(ctx context.Context, s *types.CycleSnapshot) error {
	if s.SnapshotID == "" {
		return types.ErrInvalidID
	}
	db, err := st.backend.conn()
	if err != nil {
		return err
	}

	system, err := json.Marshal(s.System)
	if err != nil {
		return fmt.Errorf("marshaling system totals: %w", err)
	}
	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, st.backend.rebind(`UPDATE cycle_snapshots SET
    system_totals = ?, recomputed_at = ?, recompute_count = recompute_count + 1, updated_at = ?
WHERE snapshot_id = ?`),
		string(system), formatTime(now), formatTime(now), s.SnapshotID,
	)
	if err != nil {
		return fmt.Errorf("updating system totals: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		st.backend.rebind("DELETE FROM book_study_details WHERE snapshot_id = ?"), s.SnapshotID,
	); err != nil {
		return fmt.Errorf("clearing book breakdown: %w", err)
	}
	if err := st.insertBooks(ctx, tx, s.SnapshotID, s.Books); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing recompute: %w", err)
	}
	s.RecomputedAt = &now
	s.RecomputeCount++
	s.UpdatedAt = now
	return nil
}

// Delete removes the snapshot of cycle n and its book breakdown.
func (st *snapshotsTable) Delete(ctx context.Context, planID string, n int) error {
	if planID == "" {
		return types.ErrInvalidID
	}
	db, err := st.backend.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		st.backend.rebind("SELECT snapshot_id FROM cycle_snapshots WHERE plan_id = ? AND cycle_number = ?"),
		planID, n,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		return fmt.Errorf("checking snapshot existence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		st.backend.rebind("DELETE FROM book_study_details WHERE snapshot_id = ?"), id,
	); err != nil {
		return fmt.Errorf("deleting book breakdown: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		st.backend.rebind("DELETE FROM cycle_snapshots WHERE snapshot_id = ?"), id,
	); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot deletion: %w", err)
	}
	return nil
}

func (st *snapshotsTable) insertBooks(ctx context.Context, tx *sql.Tx, snapshotID string, books []types.BookStudyDetail) error {
	for _, b := range books {
		if _, err := tx.ExecContext(ctx, st.backend.rebind(`INSERT INTO book_study_details
    (snapshot_id, category, book_name, started_count, completed_count) VALUES (?, ?, ?, ?, ?)`),
			snapshotID, string(b.Category), b.BookName, b.Started, b.Completed,
		); err != nil {
			return fmt.Errorf("persisting book detail %q: %w", b.BookName, err)
		}
	}
	return nil
}

func (st *snapshotsTable) loadBooks(ctx context.Context, q querier, snapshotID string) ([]types.BookStudyDetail, error) {
	rows, err := q.QueryContext(ctx, st.backend.rebind(`SELECT category, book_name, started_count, completed_count
FROM book_study_details WHERE snapshot_id = ? ORDER BY category ASC, book_name ASC`),
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading book breakdown: %w", err)
	}
	defer rows.Close()

	books := []types.BookStudyDetail{}
	for rows.Next() {
		var b types.BookStudyDetail
		var cat string
		if err := rows.Scan(&cat, &b.BookName, &b.Started, &b.Completed); err != nil {
			return nil, fmt.Errorf("scanning book detail: %w", err)
		}
		b.Category = types.BookCategory(cat)
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating book breakdown: %w", err)
	}
	return books, nil
}

// snapshotArgs returns the insert arguments in snapshotColumns order.
func snapshotArgs(s *types.CycleSnapshot) ([]any, error) {
	newBooks, err := json.Marshal(s.NewBooks)
	if err != nil {
		return nil, fmt.Errorf("marshaling new books: %w", err)
	}
	participants, err := json.Marshal(nonNil(s.Participants))
	if err != nil {
		return nil, fmt.Errorf("marshaling participants: %w", err)
	}
	system, err := json.Marshal(s.System)
	if err != nil {
		return nil, fmt.Errorf("marshaling system totals: %w", err)
	}
	var editable sql.NullString
	if s.Editable != nil {
		data, err := json.Marshal(s.Editable)
		if err != nil {
			return nil, fmt.Errorf("marshaling editable totals: %w", err)
		}
		editable = sql.NullString{String: string(data), Valid: true}
	}

	args := []any{
		s.SnapshotID, s.PlanID, s.OwnerID, s.CycleNumber,
		formatDate(s.Period.Start), formatDate(s.Period.End), s.Origin,
	}
	for _, c := range types.Categories {
		args = append(args, s.Totals.Get(c))
	}
	for _, c := range types.Categories {
		args = append(args, s.New.Get(c))
	}
	args = append(args,
		string(newBooks), string(participants), editable, string(system),
		s.Growth.ActivitiesPct, s.Growth.ParticipantsPct, s.Growth.BooksPct, nullTime(s.GrowthComputedAt),
		nullTime(s.RecomputedAt), s.RecomputeCount, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	return args, nil
}

func nonNil(p types.Participants) types.Participants {
	if p == nil {
		return types.Participants{}
	}
	return p
}

// hydrateSnapshot converts a cycle_snapshots row into a *types.CycleSnapshot.
// Book details are loaded separately.
func hydrateSnapshot(row rowScanner) (*types.CycleSnapshot, error) {
	var (
		s                    types.CycleSnapshot
		start, end           string
		newBooks, parts      string
		editable             sql.NullString
		system               string
		growthAt, recompAt   sql.NullString
		createdAt, updatedAt string
	)
	totals := make([]int, len(types.Categories))
	news := make([]int, len(types.Categories))

	dest := []any{&s.SnapshotID, &s.PlanID, &s.OwnerID, &s.CycleNumber, &start, &end, &s.Origin}
	for i := range totals {
		dest = append(dest, &totals[i])
	}
	for i := range news {
		dest = append(dest, &news[i])
	}
	dest = append(dest,
		&newBooks, &parts, &editable, &system,
		&s.Growth.ActivitiesPct, &s.Growth.ParticipantsPct, &s.Growth.BooksPct, &growthAt,
		&recompAt, &s.RecomputeCount, &createdAt, &updatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for i, c := range types.Categories {
		_ = s.Totals.Add(c, totals[i])
		_ = s.New.Add(c, news[i])
	}

	var err error
	if s.Period.Start, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	if s.Period.End, err = parseDate(end); err != nil {
		return nil, fmt.Errorf("parsing end_date: %w", err)
	}
	if err := json.Unmarshal([]byte(newBooks), &s.NewBooks); err != nil {
		return nil, fmt.Errorf("decoding new_books: %w", err)
	}
	if err := json.Unmarshal([]byte(parts), &s.Participants); err != nil {
		return nil, fmt.Errorf("decoding participants: %w", err)
	}
	if editable.Valid {
		s.Editable = &types.EditableStatistics{}
		if err := json.Unmarshal([]byte(editable.String), s.Editable); err != nil {
			return nil, fmt.Errorf("decoding editable_totals: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(system), &s.System); err != nil {
		return nil, fmt.Errorf("decoding system_totals: %w", err)
	}
	if s.GrowthComputedAt, err = parseNullTime(growthAt); err != nil {
		return nil, fmt.Errorf("parsing growth_computed_at: %w", err)
	}
	if s.RecomputedAt, err = parseNullTime(recompAt); err != nil {
		return nil, fmt.Errorf("parsing recomputed_at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}
