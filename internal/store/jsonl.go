// This file provides snapshot export and import as JSONL with atomic
// persistence: write to a temp file, fsync, then rename over the target.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/cycles/pkg/types"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err = w.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err = w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ExportSnapshots writes snapshots to path, one JSON object per line.
func ExportSnapshots(path string, snapshots []*types.CycleSnapshot) error {
	records := make([]json.RawMessage, 0, len(snapshots))
	for _, s := range snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshaling snapshot %d: %w", s.CycleNumber, err)
		}
		records = append(records, data)
	}
	return writeJSONL(path, records)
}

// ExportRecords writes each snapshot as its flattened Record, one object per
// line. The flat form is for spreadsheets and reports and cannot be imported.
func ExportRecords(path string, snapshots []*types.CycleSnapshot) error {
	records := make([]json.RawMessage, 0, len(snapshots))
	for _, s := range snapshots {
		data, err := json.Marshal(s.Record())
		if err != nil {
			return fmt.Errorf("marshaling record of cycle %d: %w", s.CycleNumber, err)
		}
		records = append(records, data)
	}
	return writeJSONL(path, records)
}

// ImportResult summarizes an ImportSnapshots run.
type ImportResult struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"` // Lines that did not decode to a snapshot.
}

// ImportSnapshots loads snapshots exported by ExportSnapshots into planID,
// keeping their cycle numbers, periods, and frozen growth. Snapshots whose
// cycle already exists in the plan are counted as duplicates and left alone.
func ImportSnapshots(ctx context.Context, store types.SnapshotStore, path, ownerID, planID string) (ImportResult, error) {
	var res ImportResult
	records, err := readJSONL(path)
	if err != nil {
		return res, err
	}

	for _, rec := range records {
		var s types.CycleSnapshot
		if err := json.Unmarshal(rec, &s); err != nil || s.CycleNumber < 1 || s.Period.Start.IsZero() {
			res.Skipped++
			continue
		}
		s.SnapshotID = ""
		s.PlanID = planID
		s.OwnerID = ownerID
		if s.Editable != nil {
			s.Editable.OwnerID = ownerID
		}

		err := store.Create(ctx, &s)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, types.ErrDuplicateSnapshot):
			res.Duplicates++
		default:
			return res, fmt.Errorf("importing cycle %d: %w", s.CycleNumber, err)
		}
	}
	return res, nil
}
