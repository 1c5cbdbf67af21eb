// Package server initializes and runs the record-store daemon. It builds
// the registry from the shard logs, starts the socket endpoint, the
// background log compaction and the storage watcher, and handles graceful
// shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/userdb/internal/logging"
	"github.com/dmitrijs2005/userdb/internal/server/config"
	"github.com/dmitrijs2005/userdb/internal/server/query"
	"github.com/dmitrijs2005/userdb/internal/server/registry"
	"github.com/dmitrijs2005/userdb/internal/server/shard"
	"github.com/dmitrijs2005/userdb/internal/server/socket"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	registry *registry.Registry
	engine   *query.Engine
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger()

	reg, err := registry.Open(ctx, c.StorageRoot, c.ShardTags, logger)
	if err != nil {
		return nil, fmt.Errorf("registry init error: %w", err)
	}

	return &App{
		config:   c,
		logger:   logger,
		registry: reg,
		engine:   query.NewEngine(reg),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startSocketServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := socket.NewServer(app.config.SocketPath, app.logger, app.registry, app.engine)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startCompactionLoop periodically rewrites the shard logs, dropping
// overwritten and deleted entries.
func (app *App) startCompactionLoop(ctx context.Context) {
	if app.config.CompactInterval <= 0 {
		return
	}

	ticker := time.NewTicker(app.config.CompactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.registry.Compact(ctx)
		}
	}
}

// startStorageWatcher warns when something other than this process touches
// the storage root. The registry is a derived cache over the shard logs: an
// out-of-band modification means it can no longer be trusted until the
// server is restarted and the logs replayed.
func (app *App) startStorageWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		app.logger.Warn(ctx, "Storage watcher unavailable", "error", err.Error())
		return
	}
	defer watcher.Close()

	if err := watcher.Add(app.config.StorageRoot); err != nil {
		app.logger.Warn(ctx, "Storage watcher unavailable", "error", err.Error())
		return
	}

	known := make(map[string]struct{})
	for _, tag := range app.registry.Tags() {
		known[filepath.Base(shard.LogPath(app.config.StorageRoot, tag))] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			switch {
			case event.Op&fsnotify.Chmod != 0:
			case strings.HasSuffix(base, ".tmp"):
				// compaction scratch files
			case event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0:
				if _, ok := known[base]; ok {
					app.logger.Warn(ctx, "Shard log modified out of band, registry may be stale; restart to rebuild",
						"file", base, "op", event.Op.String())
				}
			default:
				if _, ok := known[base]; !ok {
					app.logger.Warn(ctx, "Unexpected file in storage root",
						"file", base, "op", event.Op.String())
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			app.logger.Warn(ctx, "Storage watcher error", "error", err.Error())
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startSocketServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startCompactionLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startStorageWatcher(ctx)
	}()

	wg.Wait()

	if err := app.registry.Close(); err != nil {
		app.logger.Error(ctx, "Closing shards", "error", err.Error())
	}
}
