package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/pkg/types"
)

// Schema for the snapshots table. Applied by Open.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	size_label TEXT NOT NULL DEFAULT '0 B',
	payload TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_owner ON snapshots(owner_id, created_at DESC);
`

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("create storage directory", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, storeErr("open snapshot database", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, storeErr("apply snapshot schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns all snapshots for an owner, newest first.
func (s *SQLiteStore) List(ctx context.Context, ownerID string) ([]types.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, status, progress, size_label, payload, created_at, updated_at
		 FROM snapshots WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, storeErr("list snapshots", err)
	}
	defer rows.Close()

	var snaps []types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list snapshots", err)
	}
	return snaps, nil
}

// Create persists a new snapshot record, assigning id and timestamps.
func (s *SQLiteStore) Create(ctx context.Context, snap *types.Snapshot) (*types.Snapshot, error) {
	stored := snap.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if err := stored.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceStore, "invalid snapshot record").WithCause(err.Error())
	}

	payload, err := marshalPayload(stored.Payload)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, owner_id, kind, status, progress, size_label, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.OwnerID, stored.Kind.String(), stored.Status.String(),
		stored.Progress, stored.SizeLabel, payload, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, storeErr("create snapshot", err)
	}
	return stored, nil
}

// Update applies the non-nil fields of upd and returns the new record.
func (s *SQLiteStore) Update(ctx context.Context, id string, upd Update) (*types.Snapshot, error) {
	query := "UPDATE snapshots SET updated_at = ?"
	args := []any{time.Now().UTC().UnixMilli()}

	if upd.Status != nil {
		query += ", status = ?"
		args = append(args, upd.Status.String())
	}
	if upd.Progress != nil {
		query += ", progress = ?"
		args = append(args, *upd.Progress)
	}
	if upd.SizeLabel != nil {
		query += ", size_label = ?"
		args = append(args, *upd.SizeLabel)
	}
	if upd.Payload != nil {
		payload, err := marshalPayload(upd.Payload)
		if err != nil {
			return nil, err
		}
		query += ", payload = ?"
		args = append(args, payload)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("update snapshot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("snapshot")
	}
	return s.Get(ctx, id)
}

// Get returns the snapshot by id, or (nil, nil) if absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, kind, status, progress, size_label, payload, created_at, updated_at
		 FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return snap, err
}

// Delete removes the record. Absent ids are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return storeErr("delete snapshot", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*types.Snapshot, error) {
	var (
		snap               types.Snapshot
		kind, status       string
		payload            sql.NullString
		createdMs, updated int64
	)
	err := row.Scan(&snap.ID, &snap.OwnerID, &kind, &status, &snap.Progress,
		&snap.SizeLabel, &payload, &createdMs, &updated)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storeErr("scan snapshot row", err)
	}
	snap.Kind = types.SnapshotKind(kind)
	snap.Status = types.SnapshotStatus(status)
	snap.CreatedAt = time.UnixMilli(createdMs).UTC()
	snap.UpdatedAt = time.UnixMilli(updated).UTC()
	if payload.Valid && payload.String != "" {
		var p types.SnapshotPayload
		if err := json.Unmarshal([]byte(payload.String), &p); err != nil {
			return nil, storeErr("decode snapshot payload", err)
		}
		snap.Payload = &p
	}
	return &snap, nil
}

func marshalPayload(p *types.SnapshotPayload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, storeErr("encode snapshot payload", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func storeErr(op string, err error) *apperrors.EngineError {
	return apperrors.New(apperrors.ErrorTypeStore, apperrors.ServiceStore,
		fmt.Sprintf("failed to %s", op)).WithCause(err.Error())
}
