package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/shiftsync/internal/client/migrations"
	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shiftsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/shiftsync/internal/filex"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Repositories bundles the local database handle with the repositories
// built on it.
type Repositories struct {
	DB       *sql.DB
	Records  records.Repository
	Metadata metadata.Repository
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

// dsn turns a file path into a modernc sqlite DSN with WAL and a busy
// timeout. ":memory:" is passed through.
func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// InitDatabase opens the SQLite database at path and migrates it.
func InitDatabase(ctx context.Context, path string) (*Repositories, error) {
	if path != ":memory:" {
		abs, err := filex.EnsureParentDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare local database: %w", err)
		}
		path = abs
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Records:  records.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}, nil
}

// DeviceID returns the id persisted under metadata.KeyDeviceID, creating
// one on first use.
func DeviceID(ctx context.Context, meta metadata.Repository) (string, error) {
	raw, err := meta.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if len(raw) > 0 {
		return string(raw), nil
	}

	id := uuid.NewString()
	if err := meta.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
