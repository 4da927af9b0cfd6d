package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hall-pass-service/internal/app"
	"github.com/iliyamo/hall-pass-service/internal/audit"
	"github.com/iliyamo/hall-pass-service/internal/config"
	"github.com/iliyamo/hall-pass-service/internal/database"
	"github.com/iliyamo/hall-pass-service/internal/engine"
	"github.com/iliyamo/hall-pass-service/internal/handler"
	"github.com/iliyamo/hall-pass-service/internal/middleware"
	"github.com/iliyamo/hall-pass-service/internal/queue"
	"github.com/iliyamo/hall-pass-service/internal/realtime"
	"github.com/iliyamo/hall-pass-service/internal/repository"
	"github.com/iliyamo/hall-pass-service/internal/router"
	queue_publisher "github.com/iliyamo/hall-pass-service/internal/service"
	"github.com/iliyamo/hall-pass-service/internal/sweep"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Redis backs rate limiting and response caching.  A nil client
	// simply disables both; pass admission never depends on Redis.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	}

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := &repository.TokenRepo{DB: db}
	passes := repository.NewPassRepo(db)
	locations := repository.NewLocationRepo(db)
	groups := repository.NewEncounterGroupRepo(db)
	windows := repository.NewNoFlyRepo(db)

	// Event fan-out: in-process websocket hub plus the broker bridge.
	hub := realtime.NewHub(logger)
	trail := audit.NewTrail(audit.NewRepo(db), logger)

	eng := engine.New(engine.Deps{
		Passes:    passes,
		Students:  users,
		Locations: locations,
		Groups:    groups,
		Windows:   windows,
		Sinks:     []engine.EventSink{hub, queue_publisher.BrokerSink{}},
		Auditor:   trail,
		Logger:    logger,
	}, engine.Config{
		DefaultTimeLimitMinutes: cfg.DefaultTimeLimitMin,
		MaxTimeLimitMinutes:     cfg.MaxTimeLimitMin,
		PendingExpiry:           time.Duration(cfg.PendingExpiryMin) * time.Minute,
		StoreTimeout:            time.Duration(cfg.StoreTimeoutMS) * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := sweep.New(eng, tokens, time.Duration(cfg.SweepIntervalSec)*time.Second, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// The broker consumer appends pass events to logs/passes.log.  It
	// reconnects forever on its own; losing the broker never affects
	// the API.
	go func() {
		if err := queue.StartPassConsumer(); err != nil {
			logger.Error("pass consumer stopped", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	if rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
		e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	}

	// Handlers.
	authH := handler.NewAuthHandler(cfg, users, tokens)
	passH := handler.NewPassHandler(eng, passes)
	staffH := handler.NewStaffPassHandler(eng, passes)
	monH := handler.NewMonitorHandler(passes, locations, hub)
	polH := handler.NewPolicyAdminHandler(windows, groups, locations, users, passes)
	locH := handler.NewLocationHandler(locations)
	expH := handler.NewExportHandler(passes)
	rtH := handler.NewRealtimeHandler(hub, cfg.JWTSecret)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterStudent(e, passH, locH, cfg.JWTSecret)
	router.RegisterStaff(e, staffH, monH, polH, locH, cfg.JWTSecret)
	router.RegisterAdmin(e, polH, locH, expH, cfg.JWTSecret)
	router.RegisterRealtime(e, rtH)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
