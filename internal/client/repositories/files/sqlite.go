// Package files persists the client's synced-file state in SQLite.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/client/models"
	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, filename string) (*models.SyncedFile, error) {

	query := `select filename, content_hash, version, last_modified, synced_at from synced_files where filename=?`
	row := r.db.QueryRowContext(ctx, query, filename)

	f := &models.SyncedFile{}
	err := row.Scan(&f.Filename, &f.ContentHash, &f.Version, &f.LastModified, &f.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.SyncedFile, error) {

	query := `select filename, content_hash, version, last_modified, synced_at from synced_files order by filename`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting files: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncedFile

	for rows.Next() {
		f := &models.SyncedFile{}
		if err := rows.Scan(&f.Filename, &f.ContentHash, &f.Version, &f.LastModified, &f.SyncedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, f *models.SyncedFile) error {

	query := `insert into synced_files (filename, content_hash, version, last_modified, synced_at)
			values (?, ?, ?, ?, ?)
			on conflict(filename) do update set
				content_hash = excluded.content_hash,
				version = excluded.version,
				last_modified = excluded.last_modified,
				synced_at = excluded.synced_at`

	_, err := r.db.ExecContext(ctx, query, f.Filename, f.ContentHash, f.Version, f.LastModified.UTC(), f.SyncedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, filename string) error {

	if _, err := r.db.ExecContext(ctx, `delete from synced_files where filename=?`, filename); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
