package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/client/client"
	"github.com/dmitrijs2005/gophsync/internal/client/config"
	"github.com/dmitrijs2005/gophsync/internal/client/models"
	"github.com/dmitrijs2005/gophsync/internal/client/repositories/files"
	"github.com/dmitrijs2005/gophsync/internal/client/services"
	"github.com/dmitrijs2005/gophsync/internal/filex"
	"github.com/dmitrijs2005/gophsync/internal/logging"
)

// Agent is the sync work the commands drive.
type Agent interface {
	Push(ctx context.Context) (*services.Report, error)
	Pull(ctx context.Context) (*services.Report, error)
	Pending(ctx context.Context) ([]*models.LocalFile, error)
	ApplyDelete(ctx context.Context, filename string) (bool, error)
}

// Feed delivers change events from other devices.
type Feed interface {
	Listen(ctx context.Context, fn func(context.Context, client.Event)) error
}

// LocalWatcher reports edits made in the synced directory.
type LocalWatcher interface {
	Watch(ctx context.Context, fn func(context.Context)) error
}

type Session struct {
	Agent Agent
	Feed  Feed
	Local LocalWatcher
	Close func() error
}

// localDebounce is how long the directory must stay quiet before watch pushes.
const localDebounce = time.Second

// Opener connects a Session for cfg.
type Opener func(ctx context.Context, cfg *config.Config) (*Session, error)

var _ Agent = (*services.SyncService)(nil)

// OpenSession opens the state database and the server connection.
func OpenSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn)

	dir, err := filex.EnsureDir(cfg.SyncDir)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Dir(cfg.StatePath)); err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, cfg.StatePath)
	if err != nil {
		return nil, err
	}

	remote, conn, err := client.Dial(cfg.ServerEndpointAddr, cfg.AccessToken)
	if err != nil {
		db.Close()
		return nil, err
	}

	agent := services.NewSyncService(remote, files.NewSQLiteRepository(db), dir, logger)
	feed := client.NewFeed(cfg.EventsURL, cfg.AccessToken, cfg.ReconnectInterval, logger)

	return &Session{
		Agent: agent,
		Feed:  feed,
		Local: client.NewDirWatcher(dir, localDebounce, logger),
		Close: func() error {
			conn.Close()
			return db.Close()
		},
	}, nil
}
