package devices

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

type Repository interface {
	// Upsert registers the device or, when the user already has a device
	// with the same name, refreshes its kind, platform and activity time.
	Upsert(ctx context.Context, device *models.Device) (*models.Device, error)
	GetByID(ctx context.Context, userID, id string) (*models.Device, error)
	Touch(ctx context.Context, userID, id string) error
	ListWithFileCounts(ctx context.Context, userID string) ([]*models.DeviceStats, error)
}
