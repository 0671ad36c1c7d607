package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"magazyn/internal/handler"
	"magazyn/internal/middleware"
	"magazyn/internal/service"
	"magazyn/internal/store"
	"magazyn/internal/store/memstore"
	"magazyn/internal/store/pgstore"
	"magazyn/pkg/config"
	"magazyn/pkg/database"
	"magazyn/pkg/imagestore"
	"magazyn/pkg/jwtutil"
	"magazyn/pkg/logger"
	"magazyn/pkg/password"
	"magazyn/prometheus"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, log)
		},
	}
}

// openStore connects the configured backend, migrating the schema for postgres
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.InitDB(&cfg.DB, log)
		if err != nil {
			return nil, err
		}
		st := pgstore.New(db, cfg.DB.Timeout)
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		log.Info("Database connection established")
		return st, nil
	default:
		st, err := memstore.Open(cfg.Store.DataPath, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting magazyn service...", cfg.LogConfig()...)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	images, err := imagestore.New(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("init image storage: %w", err)
	}

	passwords := password.Default()
	tokens := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	auth := service.NewAuthService(st, passwords, tokens)

	prometheus.SetInfo(version, cfg.Store.Driver)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomiddleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.RequestIDMiddleware())
	if cfg.Metrics.Enabled {
		// wraps the request logger, which writes error responses, so the real status is observed
		e.Use(prometheus.MetricsMiddleware())
		e.GET(cfg.Metrics.Path, echo.WrapHandler(prometheus.GetPrometheusHandler()))
	}
	e.Use(logger.Middleware())

	e.GET("/healthz", handler.NewHealthHandler(st).Check)
	if local, ok := images.(*imagestore.Local); ok {
		e.Static(cfg.Storage.PublicPath, local.Dir())
	}

	handler.RegisterRoutes(e.Group("/api"), &handler.Services{
		Auth:       auth,
		Warehouses: service.NewWarehouseService(st, passwords),
		Products:   service.NewProductService(st, images),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
