package services

import (
	"time"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// Decision is the outcome of comparing a proposed write with the stored
// replica of the same filename.
type Decision int

const (
	DecisionCreate Decision = iota
	DecisionUnchanged
	DecisionReplace
	DecisionConflict
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUnchanged:
		return "unchanged"
	case DecisionReplace:
		return "replace"
	case DecisionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Decide applies the last-writer-wins rule with conflict surfacing:
//
//   - no stored replica: create;
//   - same content hash: unchanged, whatever the timestamps say;
//   - different content, client strictly newer: replace;
//   - different content otherwise: conflict. Equal timestamps conflict.
func Decide(existing *models.Replica, newHash string, clientLastModified time.Time) Decision {
	if existing == nil {
		return DecisionCreate
	}
	if existing.ContentHash == newHash {
		return DecisionUnchanged
	}
	if normalizeTime(clientLastModified).After(normalizeTime(existing.LastModified)) {
		return DecisionReplace
	}
	return DecisionConflict
}

// normalizeTime brings t to the precision PostgreSQL stores, so a value read
// back compares equal to the one written.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
