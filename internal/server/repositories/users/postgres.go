package users

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

const selectUser = `SELECT id, email, credential, storage_used, storage_limit, created_at FROM users`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Credential, &u.StorageUsed, &u.StorageLimit, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, credential, storage_used, storage_limit)
		 VALUES ($1, $2, $3, 0, $4)
		 RETURNING storage_used, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Credential, user.StorageLimit).Scan(&user.StorageUsed, &user.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.MapError(err))
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE email = $1`, email))
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresRepository) RecomputeStorageUsed(ctx context.Context, id string) (int64, error) {

	query :=
		`UPDATE users
		 SET storage_used = (SELECT COALESCE(SUM(size), 0) FROM files WHERE user_id = $1)
		 WHERE id = $1
		 RETURNING storage_used
		 `

	var used int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return used, nil
}
