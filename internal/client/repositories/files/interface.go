package files

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/client/models"
)

// Repository stores the last synced state per filename.
type Repository interface {
	Get(ctx context.Context, filename string) (*models.SyncedFile, error)
	List(ctx context.Context) ([]*models.SyncedFile, error)
	Upsert(ctx context.Context, f *models.SyncedFile) error
	Delete(ctx context.Context, filename string) error
}
