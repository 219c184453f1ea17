package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/logger"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/queue"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/router"
	"github.com/iliyamo/parking-reservation/internal/service"
	"github.com/iliyamo/parking-reservation/internal/session"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient(log)
	var sessions session.Store = session.NewSQLStore(repository.NewTokenRepo(db))
	if rdb != nil {
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb)
	}

	pub := queue.NewPublisher(cfg.AMQPURL, cfg.BusExchange, log)
	defer pub.Close()

	store := repository.NewMySQLStore(db)
	spaces := service.NewSpaceStateSynchronizer(pub, log)
	ledger := service.NewWalletLedger(store, log)
	conflicts := service.NewConflictDetector(store, spaces, nil, log)
	mgr := service.NewReservationManager(store, ledger, conflicts, spaces, service.Options{
		DefaultDeposit: cfg.DefaultDeposit,
		RefundOnCancel: cfg.RefundOnCancel,
	}, log)

	go service.RunSweeper(ctx, conflicts, cfg.SweepInterval)

	consumer := queue.NewConsumer(cfg.AMQPURL, cfg.BusExchange, cfg.ReportQueue, mgr, cfg.RequestTimeout, log)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("space report consumer stopped", "err", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "request_id", v.RequestID}
			if v.Error != nil {
				log.Error("request", append(attrs, "err", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))

	router.RegisterRoutes(e, router.Deps{
		JWTSecret:    cfg.JWTSecret,
		DeviceKey:    cfg.DeviceKey,
		DB:           db,
		Auth:         handler.NewAuthHandler(cfg, repository.NewUserRepo(db, repository.NewWalletRepo(db)), sessions, log),
		Reservations: handler.NewReservationHandler(mgr, cfg.RequestTimeout),
		Wallet:       handler.NewWalletHandler(ledger, cfg.RequestTimeout),
		Spaces:       handler.NewSpaceHandler(mgr, cfg.RequestTimeout),
		Cache:        middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		RateLimit:    middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	})

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
