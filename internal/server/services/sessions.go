package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

// SessionCounts are the per-file outcomes of one batch.
type SessionCounts struct {
	Synced     int
	Failed     int
	Conflicted int
}

// SessionLedger records batch sync calls. A session moves from active to
// completed or failed exactly once.
type SessionLedger struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSessionLedger(db *sql.DB, m repomanager.RepositoryManager) *SessionLedger {
	return &SessionLedger{db: db, repomanager: m}
}

func (l *SessionLedger) Open(ctx context.Context, userID, deviceID string) (*models.SyncSession, error) {
	s := &models.SyncSession{
		ID:       cryptox.NewID(),
		UserID:   userID,
		DeviceID: deviceID,
		Status:   models.SessionActive,
	}
	created, err := l.repomanager.Sessions(l.db).Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("error opening session: %w", err)
	}
	return created, nil
}

func (l *SessionLedger) Complete(ctx context.Context, s *models.SyncSession, counts SessionCounts) error {
	return l.finish(ctx, s, models.SessionCompleted, counts)
}

func (l *SessionLedger) Fail(ctx context.Context, s *models.SyncSession, counts SessionCounts) error {
	return l.finish(ctx, s, models.SessionFailed, counts)
}

func (l *SessionLedger) finish(ctx context.Context, s *models.SyncSession, status models.SessionStatus, counts SessionCounts) error {
	next := *s
	next.Status = status
	next.FilesSynced = counts.Synced
	next.FilesFailed = counts.Failed
	next.FilesConflicted = counts.Conflicted

	if err := l.repomanager.Sessions(l.db).Finish(ctx, &next); err != nil {
		return fmt.Errorf("error closing session %s as %s: %w", s.ID, status, err)
	}
	*s = next
	return nil
}

// LastCompleted returns the completion time of the user's latest completed
// session, or nil if there is none.
func (l *SessionLedger) LastCompleted(ctx context.Context, userID string) (*time.Time, error) {
	return l.repomanager.Sessions(l.db).LastCompleted(ctx, userID)
}
