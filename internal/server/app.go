// Package server wires the intake service together: database and
// migrations, the upload service and HTTP API, the reconciler and its
// schedule, the authority handoff and the gRPC health endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/intake/internal/filex"
	"github.com/dmitrijs2005/intake/internal/lockx"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/config"
	"github.com/dmitrijs2005/intake/internal/server/handoff"
	"github.com/dmitrijs2005/intake/internal/server/health"
	"github.com/dmitrijs2005/intake/internal/server/httpapi"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
	"github.com/dmitrijs2005/intake/internal/server/promotion"
	"github.com/dmitrijs2005/intake/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/intake/internal/server/scheduler"
	"github.com/dmitrijs2005/intake/internal/server/services"
	grpchealth "google.golang.org/grpc/health"

	gs "github.com/dmitrijs2005/intake/internal/server/grpc"
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      *ledger.Ledger
	reconciler  *promotion.Reconciler
	uploads     *services.UploadService
	health      *grpchealth.Server
	monitor     *health.Monitor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	transport, err := newTransport(ctx, c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("handoff transport: %w", err)
	}

	registry := kinds.Default(nil)
	rm := repomanager.NewPostgresRepositoryManager()
	l := ledger.New(c.LedgerDir)
	client := handoff.NewClient(l, transport, logger)

	hs := grpchealth.NewServer()
	monitor := health.NewMonitor(hs, c.HealthCheckInterval, logger, health.Database(db), health.Ledger(l))

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		ledger:      l,
		reconciler:  promotion.New(rm.Uploads(db), registry, client, lockx.New(c.LockFile), c.ValidatedDir, logger),
		uploads:     services.NewUploadService(db, rm, registry, c.QuarantineDir, logger),
		health:      hs,
		monitor:     monitor,
	}, nil
}

func newTransport(ctx context.Context, c *config.Config, logger logging.Logger) (handoff.Transport, error) {
	switch c.HandoffTransport {
	case config.TransportNone, "":
		return handoff.NopTransport{Logger: logger.With("module", "handoff")}, nil
	case config.TransportS3:
		return handoff.NewS3Transport(ctx, awsConfig(c))
	}
	return nil, fmt.Errorf("unknown handoff transport %q", c.HandoffTransport)
}

func awsConfig(c *config.Config) handoff.AWSConfig {
	return handoff.AWSConfig{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	}
}

// Prepare runs migrations and makes sure the storage directories exist.
func (app *App) Prepare(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for _, dir := range []string{app.config.QuarantineDir, app.config.ValidatedDir} {
		if _, err := filex.EnsureDir(dir); err != nil {
			return err
		}
	}
	if err := app.ledger.EnsureReady(); err != nil {
		app.logger.Critical(ctx, "ledger not ready", "error", err)
	}
	return nil
}

// ReconcileOnce runs a single reconciler pass.
func (app *App) ReconcileOnce(ctx context.Context) (*promotion.RunReport, error) {
	return app.reconciler.Run(ctx)
}

func (app *App) Close() error {
	return app.db.Close()
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
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.health)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.uploads, app.reconciler, app.ledger, app.monitor, app.config.MaxUploadSize, app.logger)
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startScheduler(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.ReconcileSchedule == "" {
		app.logger.Info(ctx, "background reconciliation disabled")
		return
	}
	s, err := scheduler.New(app.config.ReconcileSchedule, app.reconciler, app.logger)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	s.Start(ctx)
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(sctx); err != nil {
		app.logger.Warn(ctx, "scheduler stop", "error", err)
	}
}

func (app *App) startResponsePoller(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.SQSResponseQueueURL == "" {
		return
	}
	client, err := handoff.NewSQSClient(ctx, awsConfig(app.config))
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	src := handoff.NewSQSResponseSource(ctx, client, app.ledger, app.config.SQSResponseQueueURL, app.logger)
	src.Start()
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := src.Shutdown(sctx); err != nil {
		app.logger.Warn(ctx, "response poller stop", "error", err)
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.Prepare(ctx); err != nil {
		return err
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for _, start := range []func(context.Context, context.CancelFunc){
		app.startHTTPServer,
		app.startGRPCServer,
		app.startScheduler,
		app.startResponsePoller,
		func(ctx context.Context, _ context.CancelFunc) { app.monitor.Run(ctx) },
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx, cancelFunc)
		}()
	}

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
	return app.Close()
}
