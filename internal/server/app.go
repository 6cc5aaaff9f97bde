// Package server initializes and runs the sync server: storage, services,
// the gRPC API and the WebSocket change feed, with graceful shutdown on
// SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophsync/internal/logging"
	"github.com/dmitrijs2005/gophsync/internal/server/auth"
	"github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/dmitrijs2005/gophsync/internal/server/ws"

	gs "github.com/dmitrijs2005/gophsync/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	services  *Services
}

// NewLogger builds the JSON slog logger described by c, writing to stdout or
// to a rotated file.
func NewLogger(c *config.Config) (logging.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	w, closer := logging.NewWriter(logging.FileOptions{
		Path:       c.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	return logging.NewJSONLogger(w, level), closer, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, closer, err := NewLogger(c)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		closer.Close()
		return nil, err
	}

	svc, err := NewServices(ctx, c, db, logger, true)
	if err != nil {
		db.Close()
		closer.Close()
		return nil, err
	}

	if err := svc.Manager.RunMigrations(ctx, db); err != nil {
		db.Close()
		closer.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &App{config: c, logger: logger, logCloser: closer, services: svc}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.services.Sync, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startWSServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := ws.NewServer(app.config.EndpointAddrWS, auth.NewVerifier([]byte(app.config.SecretKey)),
		app.services.Hub, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startWSServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.services.DB.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
	_ = app.logCloser.Close()
}
