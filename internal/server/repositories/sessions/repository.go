package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.SyncSession) (*models.SyncSession, error)
	// Finish moves an active session to a terminal status. It returns
	// common.ErrInvalidTransition when the session is not active.
	Finish(ctx context.Context, session *models.SyncSession) error
	LastCompleted(ctx context.Context, userID string) (*time.Time, error)
}
