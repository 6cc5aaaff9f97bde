package models

import (
	"math"
	"time"
)

// StorageInfo is a snapshot of a user's quota.
type StorageInfo struct {
	Used        int64
	Limit       int64
	Available   int64
	PercentUsed int
}

// NewStorageInfo derives Available and PercentUsed from used and limit.
func NewStorageInfo(used, limit int64) StorageInfo {
	info := StorageInfo{Used: used, Limit: limit, Available: max(0, limit-used)}

	switch {
	case limit > 0:
		info.PercentUsed = int(math.Round(100 * float64(used) / float64(limit)))
	case used > 0:
		info.PercentUsed = 100
	}

	return info
}

// UserStats summarises a user's files and devices.
type UserStats struct {
	TotalFiles             int64
	TotalSize              int64
	LastCompletedSessionAt *time.Time
	Devices                []*DeviceStats
}
