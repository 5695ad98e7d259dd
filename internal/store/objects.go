package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/edgelisp/internal/payload"
)

// ScriptPath is where the current script record lives.
const ScriptPath = "script/current"

// Restore returns the object stored at path. ok is false if nothing is stored.
func (s *Store) Restore(ctx context.Context, path string) (obj payload.Object, ok bool, err error) {
	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("restore %s: %w", path, err)
	}

	obj, err = payload.UnmarshalObject([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("restore %s: %w", path, err)
	}
	return obj, true, nil
}

// Store replaces the object at path.
func (s *Store) Store(ctx context.Context, path string, obj payload.Object) error {
	data, err := payload.Marshal(obj)
	if err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (path, data, updated_seq)
		VALUES (?, ?, 1)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			updated_seq = objects.updated_seq + 1
	`, path, string(data))
	if err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	return nil
}

// Delete removes the object at path. Deleting a missing path is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// ScriptRecord is the persisted form of the current script.
type ScriptRecord struct {
	Code     string
	Persist  bool
	Checksum uint32
}

// Object encodes the record with fields code, persist and checksum.
func (r ScriptRecord) Object() payload.Object {
	return payload.NewObject(
		payload.O("code", payload.String(r.Code)),
		payload.O("persist", payload.Bool(r.Persist)),
		payload.O("checksum", payload.Int(int64(r.Checksum))),
	)
}

// ScriptRecordFromObject decodes a stored record.
func ScriptRecordFromObject(obj payload.Object) (ScriptRecord, error) {
	code, ok := obj.String("code")
	if !ok {
		return ScriptRecord{}, fmt.Errorf("script record: missing code")
	}
	persist, ok := obj.Bool("persist")
	if !ok {
		return ScriptRecord{}, fmt.Errorf("script record: missing persist")
	}
	sum, ok := obj.Int("checksum")
	if !ok || sum < 0 || sum > 1<<32-1 {
		return ScriptRecord{}, fmt.Errorf("script record: missing or invalid checksum")
	}
	return ScriptRecord{Code: code, Persist: persist, Checksum: uint32(sum)}, nil
}

// RestoreScript reads the script record at ScriptPath.
func (s *Store) RestoreScript(ctx context.Context) (ScriptRecord, bool, error) {
	obj, ok, err := s.Restore(ctx, ScriptPath)
	if err != nil || !ok {
		return ScriptRecord{}, false, err
	}
	rec, err := ScriptRecordFromObject(obj)
	if err != nil {
		return ScriptRecord{}, false, fmt.Errorf("restore script: %w", err)
	}
	return rec, true, nil
}

// StoreScript writes the script record at ScriptPath.
func (s *Store) StoreScript(ctx context.Context, rec ScriptRecord) error {
	return s.Store(ctx, ScriptPath, rec.Object())
}
