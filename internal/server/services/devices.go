package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
)

type DeviceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewDeviceService(db *sql.DB, m repomanager.RepositoryManager) *DeviceService {
	return &DeviceService{db: db, repomanager: m}
}

// Register creates the device, or refreshes the user's existing device of
// the same name.
func (s *DeviceService) Register(ctx context.Context, userID, name string, kind models.DeviceKind, platform string) (*models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: device name is empty", common.ErrorValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown device kind %q", common.ErrorValidation, kind)
	}

	d, err := s.repomanager.Devices(s.db).Upsert(ctx, &models.Device{
		ID:       cryptox.NewID(),
		UserID:   userID,
		Name:     name,
		Kind:     kind,
		Platform: platform,
	})
	if err != nil {
		return nil, fmt.Errorf("error registering device: %w", err)
	}
	return d, nil
}

func (s *DeviceService) Get(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	return s.repomanager.Devices(s.db).GetByID(ctx, userID, deviceID)
}

// Touch marks the device as active now.
func (s *DeviceService) Touch(ctx context.Context, userID, deviceID string) error {
	return s.repomanager.Devices(s.db).Touch(ctx, userID, deviceID)
}

func (s *DeviceService) ListWithFileCounts(ctx context.Context, userID string) ([]*models.DeviceStats, error) {
	return s.repomanager.Devices(s.db).ListWithFileCounts(ctx, userID)
}
