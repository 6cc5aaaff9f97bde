package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

// FileStore is the authoritative (user, filename) -> replica map. It knows
// nothing about conflicts; it only guarantees that a replace applies to the
// version the caller read.
type FileStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	archiver    Archiver
	logger      logging.Logger
}

func NewFileStore(db *sql.DB, m repomanager.RepositoryManager, archiver Archiver, logger logging.Logger) *FileStore {
	return &FileStore{db: db, repomanager: m, archiver: archiver, logger: logger.With("module", "filestore")}
}

func (s *FileStore) Get(ctx context.Context, userID, filename string) (*models.Replica, error) {
	return s.repomanager.Files(s.db).Get(ctx, userID, filename)
}

func (s *FileStore) ListByUser(ctx context.Context, userID string) ([]*models.Replica, error) {
	return s.repomanager.Files(s.db).ListByUser(ctx, userID)
}

// lookup reads through db and returns nil when the replica does not exist.
func (s *FileStore) lookup(ctx context.Context, db dbx.DBTX, userID, filename string) (*models.Replica, error) {
	r, err := s.repomanager.Files(db).Get(ctx, userID, filename)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// put inserts next at version 1 when existing is nil, otherwise replaces
// existing if its version is still current. Either path returns
// common.ErrVersionConflict when a concurrent writer got there first.
func (s *FileStore) put(ctx context.Context, db dbx.DBTX, next, existing *models.Replica) error {
	repo := s.repomanager.Files(db)
	if existing == nil {
		next.ID = cryptox.NewID()
		return repo.Insert(ctx, next)
	}
	return repo.Replace(ctx, next, existing.Version)
}

func (s *FileStore) delete(ctx context.Context, db dbx.DBTX, userID, filename string) (bool, error) {
	return s.repomanager.Files(db).Delete(ctx, userID, filename)
}

// archive copies a superseded replica to object storage. Failures are logged
// and never reach the caller.
func (s *FileStore) archive(ctx context.Context, superseded *models.Replica) {
	if s.archiver == nil || superseded == nil {
		return
	}
	key, err := s.archiver.Archive(ctx, superseded)
	if err != nil {
		s.logger.Warn(ctx, "archive failed", "user_id", superseded.UserID,
			"filename", superseded.Filename, "version", superseded.Version, "error", err)
		return
	}
	s.logger.Debug(ctx, "replica archived", "key", key)
}

func (s *FileStore) totals(ctx context.Context, userID string) (int64, int64, error) {
	count, size, err := s.repomanager.Files(s.db).Totals(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("error reading totals: %w", err)
	}
	return count, size, nil
}
