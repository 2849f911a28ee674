// This file implements the editable statistics accessor. Each owner has at
// most one row; the statistics are stored as a JSON payload.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

var _ types.StatisticsStore = (*statisticsTable)(nil)

type statisticsTable struct {
	backend *Backend
}

// Get retrieves the owner's editable statistics.
func (tt *statisticsTable) Get(ctx context.Context, ownerID string) (*types.EditableStatistics, error) {
	if ownerID == "" {
		return nil, types.ErrInvalidOwner
	}
	db, err := tt.backend.conn()
	if err != nil {
		return nil, err
	}

	var payload string
	err = db.QueryRowContext(ctx,
		tt.backend.rebind("SELECT payload FROM editable_statistics WHERE owner_id = ?"),
		ownerID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting statistics: %w", err)
	}

	var stats types.EditableStatistics
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return nil, fmt.Errorf("decoding statistics: %w", err)
	}
	return &stats, nil
}

// Set validates and upserts the owner's editable statistics.
func (tt *statisticsTable) Set(ctx context.Context, stats *types.EditableStatistics) error {
	if err := stats.Validate(); err != nil {
		return err
	}
	db, err := tt.backend.conn()
	if err != nil {
		return err
	}

	stats.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling statistics: %w", err)
	}

	_, err = db.ExecContext(ctx, tt.backend.rebind(`INSERT INTO editable_statistics (owner_id, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (owner_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`),
		stats.OwnerID, string(payload), formatTime(stats.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("persisting statistics: %w", err)
	}
	return nil
}
