package models

import "time"

// SessionStatus is the lifecycle state of a sync session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SyncSession records one batch sync call.
type SyncSession struct {
	ID              string
	UserID          string
	DeviceID        string
	Status          SessionStatus
	FilesSynced     int
	FilesFailed     int
	FilesConflicted int
	StartedAt       time.Time
	CompletedAt     *time.Time
}
