package models

import "time"

// DeviceKind classifies a device.
type DeviceKind string

const (
	DeviceKindMobile  DeviceKind = "mobile"
	DeviceKindDesktop DeviceKind = "desktop"
)

// Valid reports whether k is a known kind.
func (k DeviceKind) Valid() bool {
	return k == DeviceKindMobile || k == DeviceKindDesktop
}

// Device is one endpoint of a user. Name is unique per user.
type Device struct {
	ID         string
	UserID     string
	Name       string
	Kind       DeviceKind
	Platform   string
	LastActive time.Time
	CreatedAt  time.Time
}

// DeviceStats is the per-device line of a user's statistics.
type DeviceStats struct {
	DeviceID   string
	Name       string
	LastActive time.Time
	FileCount  int64
}
