package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/cryptox"
	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/archive"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/dmitrijs2005/gophsync/internal/server/notify"
	"github.com/dmitrijs2005/gophsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophsync/internal/server/services"
)

// Services is the object graph shared by the server and the admin CLI.
type Services struct {
	DB       *sql.DB
	Manager  repomanager.RepositoryManager
	Users    *services.UserService
	Devices  *services.DeviceService
	Quota    *services.QuotaService
	Store    *services.FileStore
	Sessions *services.SessionLedger
	Sync     *services.SyncService
	Hub      *notify.Hub
	// Archive is nil when archiving is disabled.
	Archive *archive.S3Archive
}

// test seam
var sqlOpen = sql.Open

// OpenDB opens the PostgreSQL pool and checks connectivity.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// NewServices wires the services on top of db. The content codec needs
// cfg.EncryptionPassphrase; pass needCodec=false for tooling that never
// touches content.
func NewServices(ctx context.Context, cfg *config.Config, db *sql.DB, logger logging.Logger, needCodec bool) (*Services, error) {
	m := repomanager.NewPostgresRepositoryManager()

	s := &Services{
		DB:       db,
		Manager:  m,
		Users:    services.NewUserService(db, m, cfg.DefaultStorageLimit),
		Devices:  services.NewDeviceService(db, m),
		Quota:    services.NewQuotaService(db, m),
		Sessions: services.NewSessionLedger(db, m),
		Hub:      notify.NewHub(notify.DefaultBuffer, logger),
	}

	var archiver services.Archiver
	if cfg.ArchiveEnabled() {
		a, err := archive.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		s.Archive = a
		archiver = a
	}
	s.Store = services.NewFileStore(db, m, archiver, logger)

	var codec services.ContentCodec
	if needCodec {
		if cfg.EncryptionPassphrase == "" {
			return nil, config.ErrNoPassphrase
		}
		c, err := cryptox.NewCodec(cryptox.DeriveKey([]byte(cfg.EncryptionPassphrase), []byte(cfg.EncryptionSalt)))
		if err != nil {
			return nil, fmt.Errorf("codec init error: %w", err)
		}
		codec = c
	}

	s.Sync = services.NewSyncService(db, m, services.SyncDeps{
		Codec:    codec,
		Quota:    s.Quota,
		Store:    s.Store,
		Sessions: s.Sessions,
		Devices:  s.Devices,
		Notifier: s.Hub,
		Logger:   logger,
	}, services.WithMaxBatchSize(cfg.MaxBatchSize))

	return s, nil
}
