package users

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByIDForUpdate reads the user and locks the row until the
	// surrounding transaction ends. All writes of one user serialize on it.
	GetByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	// RecomputeStorageUsed sets storage_used to the sum of the user's file
	// sizes and returns the new value.
	RecomputeStorageUsed(ctx context.Context, id string) (int64, error)
}
