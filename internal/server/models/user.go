// Package models defines the server-side records persisted by the sync
// server and the values its services exchange.
package models

import "time"

// User is an account. StorageUsed is a cache of the sum of the user's
// replica sizes and can always be recomputed from the files table.
type User struct {
	ID           string
	Email        string
	Credential   []byte
	StorageUsed  int64
	StorageLimit int64
	CreatedAt    time.Time
}
