// Package store implements the SQL storage backend for cycle plans,
// snapshots, editable statistics, and the activity ledger. SQLite (via
// modernc.org/sqlite) is the default; Postgres is reached through the pgx
// database/sql driver. Both share one schema and one set of queries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	// DatabaseFile is the SQLite database name inside DataDir.
	DatabaseFile = "cycles.db"
)

var sqlOpen = sql.Open

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store over database/sql.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	driver   string
	db       *sql.DB

	plans      *plansTable
	snapshots  *snapshotsTable
	statistics *statisticsTable
	ledger     *ledgerTable
}

// NewBackend creates a new backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens the database described by config and applies the schema.
// For SQLite, DataDir is created if it does not exist.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	driver, dsn, err := dataSource(config)
	if err != nil {
		return err
	}

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", config.Backend, err)
	}
	if driver == driverSQLite {
		// One writer at a time; transactions queue instead of failing busy.
		db.SetMaxOpenConns(1)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping %s: %w", config.Backend, err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.driver = driver
	b.config = config
	b.attached = true

	b.plans = &plansTable{backend: b}
	b.snapshots = &snapshotsTable{backend: b}
	b.statistics = &statisticsTable{backend: b}
	b.ledger = &ledgerTable{backend: b}
	return nil
}

// dataSource maps a Config to a database/sql driver name and DSN.
func dataSource(config types.Config) (string, string, error) {
	switch config.Backend {
	case types.BackendPostgres:
		return driverPostgres, config.DSN, nil
	default:
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return "", "", fmt.Errorf("create data dir: %w", err)
		}
		path := filepath.Join(dataDir, DatabaseFile)
		dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		return driverSQLite, dsn, nil
	}
}

// Detach closes the database. After Detach, all accessors return
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	b.plans, b.snapshots, b.statistics, b.ledger = nil, nil, nil, nil
	return nil
}

// Plans returns the plan accessor.
func (b *Backend) Plans() (types.PlanStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.plans, nil
}

// Snapshots returns the snapshot accessor.
func (b *Backend) Snapshots() (types.SnapshotStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.snapshots, nil
}

// Statistics returns the editable statistics accessor.
func (b *Backend) Statistics() (types.StatisticsStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.statistics, nil
}

// Ledger returns the activity ledger accessor.
func (b *Backend) Ledger() (types.LedgerStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.ledger, nil
}

// conn returns the open database or ErrStoreDetached.
func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.db, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (b *Backend) rebind(query string) string {
	if b.driver != driverPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// isUniqueViolation reports whether err is a unique or primary key conflict.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE constraint failed")
		}
		return false
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
