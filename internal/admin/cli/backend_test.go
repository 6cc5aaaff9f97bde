package cli

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophsync/internal/server"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/stretchr/testify/assert"
)

func TestServiceBackend_ArchiveContentPreconditions(t *testing.T) {
	called := false
	old := download
	download = func(context.Context, string) ([]byte, error) {
		called = true
		return nil, nil
	}
	t.Cleanup(func() { download = old })

	b := &serviceBackend{cfg: &config.Config{}, svc: &server.Services{}}
	_, err := b.ArchiveContent(context.Background(), "u1", "a.txt", 1)
	assert.ErrorIs(t, err, config.ErrNoPassphrase)

	b.cfg.EncryptionPassphrase = "pw"
	b.cfg.EncryptionSalt = "salt"
	_, err = b.ArchiveContent(context.Background(), "u1", "a.txt", 1)
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	assert.False(t, called)
}
