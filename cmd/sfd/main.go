package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	api "github.com/mind-engage/leptonsf/internal/api/http"
	auth "github.com/mind-engage/leptonsf/internal/auth/middleware"
	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/config"
	"github.com/mind-engage/leptonsf/internal/db"
	"github.com/mind-engage/leptonsf/internal/logging"
	"github.com/mind-engage/leptonsf/internal/metrics"
	"github.com/mind-engage/leptonsf/internal/rbac"
	"github.com/mind-engage/leptonsf/internal/storage"
	"github.com/mind-engage/leptonsf/internal/weights"
)

func main() {
	cfg, cfgErr := config.FromEnv()

	logger, _, err := logging.New("leptonsf-sfd", cfg.LogLevel, os.Stderr)
	if err != nil {
		logger, _, _ = logging.New("leptonsf-sfd", "info", os.Stderr)
		logger.Error("bad-log-level", err)
	}
	if cfgErr != nil {
		logger.Fatal("invalid-config", cfgErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	var dbh *sql.DB
	if cfg.DBDSN != "" || cfg.DBDriver == string(db.DriverSQLite) {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			logger.Fatal("failed-to-open-db", err, lager.Data{"driver": cfg.DBDriver})
		}
		defer dbh.Close()
	}

	// --- Blob store ---
	bs, err := storage.Open(cfg.BlobDriver, cfg.BlobBasePath, storage.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed-to-open-blob-store", err, lager.Data{"driver": cfg.BlobDriver})
	}

	// --- Producers ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opener := calibio.NewOpener(logger, bs)
	opener.DB = dbh

	chain, err := weights.NewChain(weights.Deps{Logger: logger, Loader: opener, Metrics: m}, cfg.Settings.Producers)
	if err != nil {
		logger.Fatal("failed-to-build-producers", err)
	}
	if err := chain.Init(ctx, cfg.Settings); err != nil {
		logger.Fatal("failed-to-initialize-producers", err)
	}

	// --- Auth (local accounts, JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthSecret,
		auth.Account{User: cfg.AdminUser, PassHash: cfg.AdminPassHash, Role: rbac.RoleAdmin},
		auth.Account{User: cfg.AnalystUser, PassHash: cfg.AnalystPassHash, Role: rbac.RoleAnalyst},
	)

	// --- Router ---
	r := api.NewRouter(api.Server{
		Chain:       chain,
		Auth:        authSvc,
		Blobs:       bs,
		DB:          dbh,
		Gatherer:    reg,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", lager.Data{
		"addr":      cfg.HTTPAddr,
		"mode":      cfg.Mode,
		"db":        cfg.DBDriver,
		"producers": cfg.Settings.Producers,
	})
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed-to-serve", err)
	}
	logger.Info("stopped")
}
