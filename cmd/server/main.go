package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/eligibility"
	"github.com/ichi0g0y/spinwheel/internal/env"
	"github.com/ichi0g0y/spinwheel/internal/identity"
	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/recordstore"
	"github.com/ichi0g0y/spinwheel/internal/shared/clock"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/shared/paths"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/version"
	"github.com/ichi0g0y/spinwheel/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "go.uber.org/automaxprocs"
)

// 共有ストアの記録を他インスタンスと同期する間隔
const remoteRefreshInterval = time.Minute

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting spinwheel server", zap.String("version", version.String()))

	if err := paths.EnsureDataDirs(); err != nil {
		logger.Fatal("Failed to ensure data directories", zap.Error(err))
	}

	if _, err := localdb.SetupDB(paths.GetDBPath()); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer localdb.Close()

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()
	configureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := recordstore.New(ctx, recordStoreConfig(env.Value))
	if err != nil {
		logger.Fatal("Failed to open record store", zap.String("backend", env.Value.RecordBackend), zap.Error(err))
	}
	defer store.Close()

	gate := eligibility.NewGate(store, localdb.KV{}, clock.Real{}, gateOptions(env.Value))
	defer gate.Close()

	session := identity.NewSession(newVerifier(env.Value))

	engine, err := spinengine.New(engineConfig(env.Value), spinengine.Deps{
		Gate:        gate,
		Session:     session,
		Stats:       localdb.KV{},
		History:     spinengine.LocalHistory{},
		Broadcaster: webserver.Broadcaster(),
	})
	if err != nil {
		logger.Fatal("Failed to create spin engine", zap.Error(err))
	}
	defer engine.Close()

	loadSegments(engine)

	webserver.SetServices(webserver.Services{
		Engine:  engine,
		Session: session,
		OnSettingsChanged: func() {
			applySettings(env.Value, gate, session, engine)
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webserver.Serve(gctx, env.Value.ServerPort)
	})
	if backend := env.Value.RecordBackend; backend != "" && backend != recordstore.BackendSQLite {
		g.Go(func() error {
			refreshLoop(gctx, gate, remoteRefreshInterval)
			return nil
		})
	}

	logger.Info("Server started",
		zap.Int("port", env.Value.ServerPort),
		zap.String("record_store", env.Value.RecordBackend),
		zap.Bool("fail_open", env.Value.FailOpen))

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		engine.Close()
		gate.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// refreshLoop re-reads the current user's record so spins made on another
// instance sharing the store are picked up.
func refreshLoop(ctx context.Context, gate *eligibility.Gate, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := gate.Refresh(ctx)
			if err != nil && !errors.Is(err, eligibility.ErrNoUser) && !errors.Is(err, context.Canceled) {
				logger.Warn("Eligibility refresh failed", zap.Error(err))
			}
		}
	}
}
