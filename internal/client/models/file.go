// Package models defines the records the device client keeps about the
// synced directory.
package models

import "time"

// LocalFile is a file found in the synced directory. Filename is relative
// to the directory and uses forward slashes.
type LocalFile struct {
	Filename string
	Content  []byte
	Hash     string
	ModTime  time.Time
}

// SyncedFile is what the client last agreed on with the server for one
// filename. A local file whose hash differs from ContentHash has changed
// since then.
type SyncedFile struct {
	Filename     string
	ContentHash  string
	Version      int64
	LastModified time.Time
	SyncedAt     time.Time
}
