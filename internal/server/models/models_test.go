package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStorageInfo(t *testing.T) {
	tests := []struct {
		name        string
		used, limit int64
		want        StorageInfo
	}{
		{"half", 500, 1000, StorageInfo{Used: 500, Limit: 1000, Available: 500, PercentUsed: 50}},
		{"rounds", 1, 3, StorageInfo{Used: 1, Limit: 3, Available: 2, PercentUsed: 33}},
		{"rounds up", 2, 3, StorageInfo{Used: 2, Limit: 3, Available: 1, PercentUsed: 67}},
		{"over limit", 1100, 1000, StorageInfo{Used: 1100, Limit: 1000, Available: 0, PercentUsed: 110}},
		{"zero limit empty", 0, 0, StorageInfo{}},
		{"zero limit used", 5, 0, StorageInfo{Used: 5, PercentUsed: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewStorageInfo(tt.used, tt.limit))
		})
	}
}

func TestDeviceKind_Valid(t *testing.T) {
	assert.True(t, DeviceKindMobile.Valid())
	assert.True(t, DeviceKindDesktop.Valid())
	assert.False(t, DeviceKind("watch").Valid())
	assert.False(t, DeviceKind("").Valid())
}

func TestSessionStatus_Terminal(t *testing.T) {
	assert.False(t, SessionActive.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionFailed.Terminal())
}

func TestProposedFile_Size(t *testing.T) {
	assert.Equal(t, int64(0), ProposedFile{}.Size())
	// size counts bytes, not runes
	assert.Equal(t, int64(6), ProposedFile{Content: "héllo"}.Size())
}
