package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	shopcfg "github.com/Skotchmaster/therapy_shop/internal/config"
	"github.com/Skotchmaster/therapy_shop/internal/httpserver"
	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/search"
	"github.com/Skotchmaster/therapy_shop/internal/service"
	pkgdb "github.com/Skotchmaster/therapy_shop/pkg/db"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
	middleware "github.com/Skotchmaster/therapy_shop/pkg/middleware/auth"
	"github.com/Skotchmaster/therapy_shop/pkg/middleware/ratelimit"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so deferred cleanup, the Kafka flush
// included, always runs.
func run() error {
	cfg, err := shopcfg.Load(".env")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := pkgdb.Migrate(db, models.All()...); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}

	r := &repo.GormRepo{DB: db}

	var publisher events.Publisher = events.Nop{}
	var mailPublisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("kafka_close_failed", "error", err)
			}
		}()
		publisher = producer
		mailPublisher = producer
		logger.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}

	var index search.Index = &search.DBIndex{Repo: r}
	if cfg.ESURL != "" {
		esCtx, esCancel := context.WithTimeout(context.Background(), 10*time.Second)
		index, err = newElastic(esCtx, cfg, r, logger)
		esCancel()
		if err != nil {
			logger.Warn("es_unavailable", "error", err, "fallback", "database search")
			index = &search.DBIndex{Repo: r}
		}
	}

	configSvc := &service.ConfigService{Repo: r}
	authSvc := &service.AuthService{
		Repo:          r,
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Publisher:     publisher,
	}
	recoverySvc := &service.RecoveryService{
		Repo:     r,
		Notifier: &service.MailNotifier{Config: configSvc, Publisher: mailPublisher},
	}
	catalogSvc := &service.CatalogService{Repo: r, Index: index, Publisher: publisher}
	orderSvc := &service.OrderService{Repo: r, Publisher: publisher}

	seedCtx := logging.IntoContext(context.Background(), logger)
	if err := authSvc.EnsureAdmin(seedCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = httpserver.IPExtractor(cfg.TrustProxy)
	e.Use(httpserver.Common(logger, httpserver.CommonConfig{
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
	})...)

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:    &httpserver.AuthHTTP{Svc: authSvc, Recovery: recoverySvc},
		CatalogHandler: &httpserver.CatalogHTTP{Svc: catalogSvc},
		OrderHandler:   &httpserver.OrderHTTP{Svc: orderSvc},
		AdminHandler:   &httpserver.AdminHTTP{Config: configSvc},
		Gate:           middleware.NewGate(cfg.JWTAccessSecret, authSvc),
		RecoverLimit:   ratelimit.PerMinute(cfg.RecoverRatePerMin),
		Ready:          r.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
	logger.Info("stopped")
	return nil
}

func newElastic(ctx context.Context, cfg shopcfg.ServiceConfig, r *repo.GormRepo, logger *slog.Logger) (search.Index, error) {
	client, err := search.NewClient(search.ElasticConfig{
		URL:      cfg.ESURL,
		User:     cfg.ESUser,
		Password: cfg.ESPassword,
		Index:    cfg.ESIndex,
	}, logger)
	if err != nil {
		return nil, err
	}
	return search.NewElastic(ctx, client, cfg.ESIndex, r)
}
