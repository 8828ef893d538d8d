package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/config"
	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/handler"
	"github.com/iliyamo/trainer-seat-allocation/internal/lock"
	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/middleware"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
	"github.com/iliyamo/trainer-seat-allocation/internal/repository"
	"github.com/iliyamo/trainer-seat-allocation/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "server"})

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	deps := allocation.Deps{
		Plans:              repository.NewPlanRepo(db),
		Subscriptions:      repository.NewSubscriptionRepo(db),
		Students:           repository.NewStudentRepo(db),
		Tokens:             repository.NewTokenRepo(db),
		History:            repository.NewHistoryRepo(db),
		Tx:                 database.NewTransactor(db),
		ReactivationWindow: cfg.Allocation.ReactivationWindow,
		LowSlotsThreshold:  cfg.Allocation.LowSlotsThreshold,
	}
	if l := lock.NewTrainerLocker(rdb, cfg.Allocation.LockPrefix, cfg.Allocation.TransitionLockTTL); l != nil {
		deps.Locker = l
	}
	if cfg.RabbitURL != "" {
		deps.Events = queue.NewPublisher(cfg.RabbitURL)
	}
	svc := allocation.New(deps)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger())
	router.RegisterRoutes(e, db)
	router.RegisterPlans(e, handler.NewPlanHandler(repository.NewPlanRepo(db)),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterAllocation(e, handler.NewAllocationHandler(svc), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).
			Bool("redis", rdb != nil).Bool("events", cfg.RabbitURL != "").
			Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
