package services

import (
	"context"

	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// ContentCodec encrypts replica content at rest and fingerprints plaintext.
// cryptox.Codec is the production implementation.
type ContentCodec interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	Hash(plaintext []byte) string
}

// Notifier receives accepted replica changes. Publish must not block.
type Notifier interface {
	Publish(event models.ChangeEvent)
}

// Archiver keeps superseded replica ciphertext outside the database.
type Archiver interface {
	Archive(ctx context.Context, replica *models.Replica) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) Publish(models.ChangeEvent) {}
