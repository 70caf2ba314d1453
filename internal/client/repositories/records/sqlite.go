package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/dbx"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// SQLiteRepository implements Repository on top of a DBTX (either *sql.DB or *sql.Tx).
// Field maps are stored as a JSON payload; timestamps as unix nanoseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec models.Record) error {
	if !rec.Table.Valid() {
		return fmt.Errorf("upsert %q: %w", rec.Table, common.ErrUnknownTable)
	}

	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", rec.Table, rec.ID, err)
	}

	var deletedAt sql.NullInt64
	if rec.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: rec.DeletedAt.UnixNano(), Valid: true}
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, payload, version, last_modified, device_id, checksum, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload,
			version = excluded.version,
			last_modified = excluded.last_modified,
			device_id = excluded.device_id,
			checksum = excluded.checksum,
			deleted_at = excluded.deleted_at`, rec.Table)

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, payload, rec.Version, unixNano(rec.LastModified), rec.DeviceID, rec.Checksum, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("get all %q: %w", table, common.ErrUnknownTable)
	}

	query := fmt.Sprintf(`SELECT id, payload, version, last_modified, device_id, checksum, deleted_at
		FROM %s ORDER BY id`, table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", table, err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, table)
		if err != nil && !errors.Is(err, ErrCorruptPayload) {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("get %q: %w", table, common.ErrUnknownTable)
	}

	query := fmt.Sprintf(`SELECT id, payload, version, last_modified, device_id, checksum, deleted_at
		FROM %s WHERE id = ?`, table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id), table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, common.ErrNotFound)
	}
	if errors.Is(err, ErrCorruptPayload) {
		return &rec, err
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, table models.Table) error {
	if !table.Valid() {
		return fmt.Errorf("clear %q: %w", table, common.ErrUnknownTable)
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, table models.Table) (models.Record, error) {
	var (
		rec          models.Record
		payload      []byte
		lastModified int64
		deletedAt    sql.NullInt64
	)
	rec.Table = table

	if err := s.Scan(&rec.ID, &payload, &rec.Version, &lastModified, &rec.DeviceID, &rec.Checksum, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan %s row: %w", table, err)
	}

	if lastModified != 0 {
		rec.LastModified = time.Unix(0, lastModified).UTC()
	}
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64).UTC()
		rec.DeletedAt = &t
	}

	var fields models.Fields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return rec, fmt.Errorf("%s/%s: %w", table, rec.ID, ErrCorruptPayload)
	}
	rec.Fields = fields
	return rec, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
