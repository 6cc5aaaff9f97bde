package services

import (
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// StorageLimitError rejects a write that would push a user over quota.
// Info is the projected usage had the write been accepted.
type StorageLimitError struct {
	Info      models.StorageInfo
	Requested int64
}

func newStorageLimitError(used, limit, requested int64) *StorageLimitError {
	return &StorageLimitError{
		Info:      models.NewStorageInfo(used+requested, limit),
		Requested: requested,
	}
}

func (e *StorageLimitError) Error() string {
	return fmt.Sprintf("%s: requested %d bytes, projected %d of %d", common.ErrStorageLimitExceeded,
		e.Requested, e.Info.Used, e.Info.Limit)
}

func (e *StorageLimitError) Is(target error) bool {
	return target == common.ErrStorageLimitExceeded
}

// Shortfall is the number of bytes the user must free for the write to fit.
func (e *StorageLimitError) Shortfall() int64 {
	return max(0, e.Info.Used-e.Info.Limit)
}
