package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/dbx"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, userID string, rec models.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var deletedAt sql.NullTime
	if rec.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *rec.DeletedAt, Valid: true}
	}

	query := `
		INSERT INTO records (table_name, id, user_id, payload, version, last_modified, device_id, checksum, deleted_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
		ON CONFLICT (table_name, id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			version = EXCLUDED.version,
			last_modified = EXCLUDED.last_modified,
			device_id = EXCLUDED.device_id,
			checksum = EXCLUDED.checksum,
			deleted_at = EXCLUDED.deleted_at
			WHERE records.user_id = EXCLUDED.user_id AND records.version <= EXCLUDED.version;
	`
	res, err := r.db.ExecContext(ctx, query,
		string(rec.Table), rec.ID, userID, string(payload), rec.Version, rec.LastModified,
		rec.DeviceID, rec.Checksum, deletedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	ok, err := dbx.RowsAffectedOne(res)
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if ok {
		return nil
	}

	// Nothing changed: either the row belongs to someone else or the stored
	// version is newer than rec.
	var owner string
	err = r.db.QueryRowContext(ctx,
		`SELECT user_id FROM records WHERE table_name = $1 AND id = $2`,
		string(rec.Table), rec.ID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrRowLevelSecurity
	case err != nil:
		return fmt.Errorf("failed to select owner: %w", err)
	case owner != userID:
		return common.ErrRowLevelSecurity
	}
	return nil
}

const selectColumns = `table_name, id, payload, version, last_modified, device_id, checksum, deleted_at`

func (r *PostgresRepository) Get(ctx context.Context, userID string, table models.Table, id string) (*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE user_id = $1 AND table_name = $2 AND id = $3`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, string(table), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", models.RecordKey(table, id), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) ListLive(ctx context.Context, userID string, table models.Table) ([]models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records
		WHERE user_id = $1 AND table_name = $2 AND deleted_at IS NULL
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	result := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var (
		rec       models.Record
		table     string
		payload   []byte
		deletedAt sql.NullTime
	)
	if err := s.Scan(&table, &rec.ID, &payload, &rec.Version, &rec.LastModified,
		&rec.DeviceID, &rec.Checksum, &deletedAt); err != nil {
		return rec, err
	}
	rec.Table = models.Table(table)
	if err := json.Unmarshal(payload, &rec.Fields); err != nil {
		return rec, fmt.Errorf("decode payload %s: %w", rec.Key(), err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return rec, nil
}
