package models

import "time"

// ConflictDescriptor describes a proposed write that lost to the stored
// replica. ServerContent is the stored plaintext so the caller can offer a
// manual merge. LocalVersion is always 1: clients do not report versions.
type ConflictDescriptor struct {
	Filename           string
	ServerVersion      int64
	LocalVersion       int64
	ServerLastModified time.Time
	LocalLastModified  time.Time
	ServerContent      string
}
