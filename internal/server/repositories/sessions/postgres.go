package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, session *models.SyncSession) (*models.SyncSession, error) {

	query :=
		`INSERT INTO sync_sessions (id, user_id, device_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING started_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.UserID, session.DeviceID, string(session.Status),
	).Scan(&session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.MapError(err))
	}

	return session, nil
}

func (r *PostgresRepository) Finish(ctx context.Context, session *models.SyncSession) error {

	query :=
		`UPDATE sync_sessions
		 SET status = $2, files_synced = $3, files_failed = $4, files_conflicted = $5, completed_at = now()
		 WHERE id = $1 AND status = 'active'
		 RETURNING completed_at
		 `

	var completed time.Time
	err := r.db.QueryRowContext(ctx, query,
		session.ID, string(session.Status), session.FilesSynced, session.FilesFailed, session.FilesConflicted,
	).Scan(&completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrInvalidTransition
		}
		return fmt.Errorf("db error: %w", err)
	}
	session.CompletedAt = &completed

	return nil
}

func (r *PostgresRepository) LastCompleted(ctx context.Context, userID string) (*time.Time, error) {

	query := `SELECT MAX(completed_at) FROM sync_sessions WHERE user_id = $1 AND status = 'completed'`

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&last); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}

	return &last.Time, nil
}
