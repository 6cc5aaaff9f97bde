package models

import "time"

// ChangeType names a replica change pushed to connected devices.
type ChangeType string

const (
	ChangeUpdated ChangeType = "file.updated"
	ChangeDeleted ChangeType = "file.deleted"
)

// ChangeEvent announces that a user's replica changed. DeviceID is the
// device that caused the change; it does not receive its own events.
type ChangeEvent struct {
	Type     ChangeType `json:"type"`
	UserID   string     `json:"-"`
	DeviceID string     `json:"device_id"`
	Filename string     `json:"filename"`
	Version  int64      `json:"version,omitempty"`
	At       time.Time  `json:"at"`
}
