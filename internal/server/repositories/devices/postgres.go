package devices

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

func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) (*models.Device, error) {

	query :=
		`INSERT INTO devices (id, user_id, name, kind, platform, last_active)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id, name)
		 DO UPDATE SET kind = EXCLUDED.kind, platform = EXCLUDED.platform, last_active = now()
		 RETURNING id, last_active, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		device.ID, device.UserID, device.Name, string(device.Kind), device.Platform,
	).Scan(&device.ID, &device.LastActive, &device.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.MapError(err))
	}

	return device, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Device, error) {

	query :=
		`SELECT id, user_id, name, kind, platform, last_active, created_at FROM devices
		 WHERE user_id = $1 AND id = $2
		 `

	d := &models.Device{}
	var kind string
	err := r.db.QueryRowContext(ctx, query, userID, id).
		Scan(&d.ID, &d.UserID, &d.Name, &kind, &d.Platform, &d.LastActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	d.Kind = models.DeviceKind(kind)

	return d, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, userID, id string) error {

	query := `UPDATE devices SET last_active = now() WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) ListWithFileCounts(ctx context.Context, userID string) ([]*models.DeviceStats, error) {

	query :=
		`SELECT d.id, d.name, d.last_active, COUNT(f.id)
		 FROM devices d
		 LEFT JOIN files f ON f.device_id = d.id
		 WHERE d.user_id = $1
		 GROUP BY d.id, d.name, d.last_active
		 ORDER BY d.last_active DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.DeviceStats
	for rows.Next() {
		item := &models.DeviceStats{}
		if err := rows.Scan(&item.DeviceID, &item.Name, &item.LastActive, &item.FileCount); err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
