package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/oaengine/config"
	"github.com/c360studio/oaengine/internal/actions"
	"github.com/c360studio/oaengine/internal/attachment"
	"github.com/c360studio/oaengine/internal/bootstrap"
	"github.com/c360studio/oaengine/internal/catalog"
	"github.com/c360studio/oaengine/internal/engine"
	"github.com/c360studio/oaengine/internal/metrics"
	"github.com/c360studio/oaengine/internal/notify"
	"github.com/c360studio/oaengine/internal/rbac"
	"github.com/c360studio/oaengine/internal/store"
)

// App wires together the approval engine's components: NATS/JetStream
// transport and persistence, the catalog and its bootstrap seeding, the
// workflow engine, task actions, notifications, and RBAC.
type App struct {
	cfg *config.Config

	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	Store      *store.Store
	Catalog    *catalog.Catalog
	Metrics    *metrics.Metrics
	Engine     *engine.Engine
	Actions    *actions.Actions
	Notifier   *notify.Notifier
	RBAC       *rbac.RBAC
	Bootstrap  *bootstrap.Bootstrapper
	Attachment *attachment.Dir
}

// NewApp builds an App from cfg without starting any network connections.
func NewApp(cfg *config.Config) (*App, error) {
	return &App{cfg: cfg}, nil
}

// Start connects to NATS, opens (or creates) the JetStream buckets the
// store needs, and wires every component on top of it.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	st, err := store.New(ctx, a.js)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	a.Store = st

	attachDir, err := attachment.NewDir(a.cfg.Attachment.Dir)
	if err != nil {
		return fmt.Errorf("initialize attachment store: %w", err)
	}
	a.Attachment = attachDir

	a.Catalog = catalog.New(st)
	a.Metrics = metrics.New(prometheus.DefaultRegisterer)
	a.Engine = engine.New(a.Catalog, a.Metrics)
	a.Actions = actions.New(st, a.Catalog, a.Engine)
	a.Notifier = notify.New(st)
	a.RBAC = rbac.New(st)
	a.Bootstrap = bootstrap.New(a.Catalog, slog.Default())

	if err := a.RBAC.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed RBAC defaults: %w", err)
	}
	if err := a.Bootstrap.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed catalog defaults: %w", err)
	}
	if a.cfg.Catalog.SeedPath != "" {
		if err := a.Bootstrap.ReconcileFile(ctx, a.cfg.Catalog.SeedPath, a.cfg.Catalog.WatchForChanges); err != nil {
			return fmt.Errorf("reconcile catalog override %s: %w", a.cfg.Catalog.SeedPath, err)
		}
	}

	slog.Info("approval engine started")
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		slog.Info("connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL, nats.Timeout(a.cfg.NATS.ConnectTimeout))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		slog.Info("starting embedded NATS server")
		opts := &server.Options{
			Port:      -1,
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(a.connectTimeout()) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) connectTimeout() time.Duration {
	if a.cfg.NATS.ConnectTimeout > 0 {
		return a.cfg.NATS.ConnectTimeout
	}
	return 5 * time.Second
}

// Shutdown stops the catalog watcher (if running) and drains the NATS
// connection, waiting up to timeout for in-flight work to settle.
func (a *App) Shutdown(timeout time.Duration) {
	if a.Bootstrap != nil {
		if err := a.Bootstrap.Stop(); err != nil {
			slog.Warn("catalog watcher stop failed", "error", err)
		}
	}

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain failed", "error", err)
		}
		deadline := time.Now().Add(timeout)
		for a.natsConn.IsDraining() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
	}
}
