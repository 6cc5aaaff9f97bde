package files

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// Repository stores at most one replica per (user, filename).
type Repository interface {
	Get(ctx context.Context, userID, filename string) (*models.Replica, error)
	// ListByUser returns the user's replicas, most recently updated first,
	// with DeviceName resolved.
	ListByUser(ctx context.Context, userID string) ([]*models.Replica, error)
	// Insert creates the first replica of a filename. It returns
	// common.ErrVersionConflict when another writer created it first.
	Insert(ctx context.Context, replica *models.Replica) error
	// Replace overwrites the replica only if its version still equals
	// expectedVersion, and bumps the version by one. It returns
	// common.ErrVersionConflict otherwise.
	Replace(ctx context.Context, replica *models.Replica, expectedVersion int64) error
	Delete(ctx context.Context, userID, filename string) (bool, error)
	Totals(ctx context.Context, userID string) (count int64, size int64, err error)
}
