// Package cli implements syncadmin, the operator tool for a gophsync
// deployment. Commands talk to the database directly through the same
// services the server uses.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/netx"
	"github.com/dmitrijs2005/gophsync/internal/server"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// ErrArchiveDisabled is returned for archive commands when no bucket is
// configured.
var ErrArchiveDisabled = errors.New("archive is disabled: no S3 bucket configured")

// Backend is what the commands need from a deployment. User arguments
// are a user id or an email address.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateUser(ctx context.Context, email string, limit int64) (*models.User, error)
	RegisterDevice(ctx context.Context, user, name string, kind models.DeviceKind, platform string) (*models.Device, error)
	Usage(ctx context.Context, user string) (models.StorageInfo, error)
	Recompute(ctx context.Context, user string) (int64, error)
	Stats(ctx context.Context, user string) (*models.UserStats, error)
	ArchiveURL(ctx context.Context, user, filename string, version int64) (string, error)
	ArchiveContent(ctx context.Context, user, filename string, version int64) ([]byte, error)
	Close() error
}

// Opener connects a Backend for cfg.
type Opener func(ctx context.Context, cfg *config.Config) (Backend, error)

type serviceBackend struct {
	cfg *config.Config
	svc *server.Services
}

// test seam
var download = netx.DownloadPresignedURL

// OpenServices is the production Opener.
func OpenServices(ctx context.Context, cfg *config.Config) (Backend, error) {
	db, err := server.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	svc, err := server.NewServices(ctx, cfg, db, logging.Nop(), false)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &serviceBackend{cfg: cfg, svc: svc}, nil
}

// userID accepts a user id or an email address.
func (b *serviceBackend) userID(ctx context.Context, ref string) (string, error) {
	if strings.Contains(ref, "@") {
		u, err := b.svc.Users.GetByEmail(ctx, ref)
		if err != nil {
			return "", err
		}
		return u.ID, nil
	}
	u, err := b.svc.Users.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (b *serviceBackend) Migrate(ctx context.Context) error {
	return b.svc.Manager.RunMigrations(ctx, b.svc.DB)
}

func (b *serviceBackend) CreateUser(ctx context.Context, email string, limit int64) (*models.User, error) {
	return b.svc.Users.Create(ctx, email, nil, limit)
}

func (b *serviceBackend) RegisterDevice(ctx context.Context, user, name string, kind models.DeviceKind, platform string) (*models.Device, error) {
	userID, err := b.userID(ctx, user)
	if err != nil {
		return nil, err
	}
	return b.svc.Devices.Register(ctx, userID, name, kind, platform)
}

func (b *serviceBackend) Usage(ctx context.Context, user string) (models.StorageInfo, error) {
	userID, err := b.userID(ctx, user)
	if err != nil {
		return models.StorageInfo{}, err
	}
	return b.svc.Quota.Usage(ctx, userID)
}

func (b *serviceBackend) Recompute(ctx context.Context, user string) (int64, error) {
	userID, err := b.userID(ctx, user)
	if err != nil {
		return 0, err
	}
	return b.svc.Quota.RecomputeFromStore(ctx, userID)
}

func (b *serviceBackend) Stats(ctx context.Context, user string) (*models.UserStats, error) {
	userID, err := b.userID(ctx, user)
	if err != nil {
		return nil, err
	}
	return b.svc.Sync.UserStats(ctx, userID)
}

func (b *serviceBackend) ArchiveURL(ctx context.Context, user, filename string, version int64) (string, error) {
	if b.svc.Archive == nil {
		return "", ErrArchiveDisabled
	}
	userID, err := b.userID(ctx, user)
	if err != nil {
		return "", err
	}
	u, err := b.svc.Archive.PresignedGetURL(ctx, userID, filename, version)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return u, nil
}

// ArchiveContent downloads an archived version and decrypts it with the
// deployment's passphrase.
func (b *serviceBackend) ArchiveContent(ctx context.Context, user, filename string, version int64) ([]byte, error) {
	if b.cfg.EncryptionPassphrase == "" {
		return nil, config.ErrNoPassphrase
	}
	codec, err := cryptox.NewCodec(cryptox.DeriveKey([]byte(b.cfg.EncryptionPassphrase), []byte(b.cfg.EncryptionSalt)))
	if err != nil {
		return nil, fmt.Errorf("codec init error: %w", err)
	}

	u, err := b.ArchiveURL(ctx, user, filename, version)
	if err != nil {
		return nil, err
	}
	data, err := download(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	plain, err := codec.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s version %d: %v", common.ErrDecryption, filename, version, err)
	}
	return plain, nil
}

func (b *serviceBackend) Close() error {
	return b.svc.DB.Close()
}
