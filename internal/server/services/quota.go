package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/dbx"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

// QuotaService answers storage questions for a user. storage_used is a
// cache; RecomputeFromStore rebuilds it from the files table.
type QuotaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewQuotaService(db *sql.DB, m repomanager.RepositoryManager) *QuotaService {
	return &QuotaService{db: db, repomanager: m}
}

func (s *QuotaService) user(ctx context.Context, db dbx.DBTX, userID string) (*models.User, error) {
	u, err := s.repomanager.Users(db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

// Usage returns the user's current quota snapshot.
func (s *QuotaService) Usage(ctx context.Context, userID string) (models.StorageInfo, error) {
	u, err := s.user(ctx, s.db, userID)
	if err != nil {
		return models.StorageInfo{}, err
	}
	return models.NewStorageInfo(u.StorageUsed, u.StorageLimit), nil
}

// WouldExceed reports whether adding delta bytes would go over the limit.
// A non-positive delta never does.
func (s *QuotaService) WouldExceed(ctx context.Context, userID string, delta int64) (bool, error) {
	u, err := s.user(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return exceeds(u, delta), nil
}

// RecomputeFromStore rewrites storage_used from the stored replica sizes in
// one statement and returns the new value.
func (s *QuotaService) RecomputeFromStore(ctx context.Context, userID string) (int64, error) {
	return s.recompute(ctx, s.db, userID)
}

func (s *QuotaService) recompute(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	used, err := s.repomanager.Users(db).RecomputeStorageUsed(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrUserNotFound
		}
		return 0, fmt.Errorf("error recomputing storage: %w", err)
	}
	return used, nil
}

// CheckBatch rejects the whole batch when the full sizes of all proposed
// files do not fit. Replacements are not netted against existing sizes.
func (s *QuotaService) CheckBatch(ctx context.Context, userID string, files []models.ProposedFile) error {
	var requested int64
	for _, f := range files {
		requested += f.Size()
	}

	u, err := s.user(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if exceeds(u, requested) {
		return newStorageLimitError(u.StorageUsed, u.StorageLimit, requested)
	}
	return nil
}

// checkDelta is the in-transaction gate used by single uploads; u must have
// been read under the user row lock.
func checkDelta(u *models.User, delta int64) error {
	if exceeds(u, delta) {
		return newStorageLimitError(u.StorageUsed, u.StorageLimit, delta)
	}
	return nil
}

func exceeds(u *models.User, delta int64) bool {
	if delta <= 0 {
		return false
	}
	return u.StorageUsed+delta > u.StorageLimit
}
