package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// nullable maps an empty device id to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepository) Get(ctx context.Context, userID, filename string) (*models.Replica, error) {

	query :=
		`SELECT id, user_id, filename, content, content_hash, file_type, size, last_modified,
		        device_id, version, created_at, updated_at
		 FROM files
		 WHERE user_id = $1 AND filename = $2
		 `

	item := &models.Replica{}
	var deviceID sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID, filename).Scan(
		&item.ID, &item.UserID, &item.Filename, &item.Content, &item.ContentHash, &item.FileType,
		&item.Size, &item.LastModified, &deviceID, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	item.DeviceID = deviceID.String

	return item, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Replica, error) {

	query :=
		`SELECT f.id, f.user_id, f.filename, f.content, f.content_hash, f.file_type, f.size,
		        f.last_modified, f.device_id, COALESCE(d.name, $2), f.version, f.created_at, f.updated_at
		 FROM files f
		 LEFT JOIN devices d ON d.id = f.device_id
		 WHERE f.user_id = $1
		 ORDER BY f.updated_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, common.UnknownDeviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.Replica
	for rows.Next() {
		item := &models.Replica{}
		var deviceID sql.NullString
		err := rows.Scan(
			&item.ID, &item.UserID, &item.Filename, &item.Content, &item.ContentHash, &item.FileType,
			&item.Size, &item.LastModified, &deviceID, &item.DeviceName, &item.Version,
			&item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		item.DeviceID = deviceID.String
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, replica *models.Replica) error {

	query :=
		`INSERT INTO files (id, user_id, filename, content, content_hash, file_type, size, last_modified, device_id, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		 ON CONFLICT (user_id, filename) DO NOTHING
		 RETURNING version, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		replica.ID, replica.UserID, replica.Filename, replica.Content, replica.ContentHash,
		replica.FileType, replica.Size, replica.LastModified, nullable(replica.DeviceID),
	).Scan(&replica.Version, &replica.CreatedAt, &replica.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}

	return nil
}

func (r *PostgresRepository) Replace(ctx context.Context, replica *models.Replica, expectedVersion int64) error {

	query :=
		`UPDATE files
		 SET content = $3, content_hash = $4, file_type = $5, size = $6, last_modified = $7,
		     device_id = $8, version = version + 1, updated_at = now()
		 WHERE user_id = $1 AND filename = $2 AND version = $9
		 RETURNING id, version, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		replica.UserID, replica.Filename, replica.Content, replica.ContentHash, replica.FileType,
		replica.Size, replica.LastModified, nullable(replica.DeviceID), expectedVersion,
	).Scan(&replica.ID, &replica.Version, &replica.CreatedAt, &replica.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, filename string) (bool, error) {

	query := `DELETE FROM files WHERE user_id = $1 AND filename = $2`

	res, err := r.db.ExecContext(ctx, query, userID, filename)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

func (r *PostgresRepository) Totals(ctx context.Context, userID string) (int64, int64, error) {

	query := `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files WHERE user_id = $1`

	var count, size int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count, &size); err != nil {
		return 0, 0, fmt.Errorf("db error: %w", err)
	}

	return count, size, nil
}
