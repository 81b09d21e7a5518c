package main

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/classfit/gym-class-reservation/internal/booking"
	"github.com/classfit/gym-class-reservation/internal/config"
	"github.com/classfit/gym-class-reservation/internal/database"
	"github.com/classfit/gym-class-reservation/internal/handler"
	"github.com/classfit/gym-class-reservation/internal/logger"
	"github.com/classfit/gym-class-reservation/internal/middleware"
	"github.com/classfit/gym-class-reservation/internal/notifier"
	"github.com/classfit/gym-class-reservation/internal/queue"
	"github.com/classfit/gym-class-reservation/internal/router"
	"github.com/classfit/gym-class-reservation/internal/store/mysql"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(database.Config{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("run migrations", zap.Error(err))
	}

	var events booking.Notifier
	if cfg.AMQPURL != "" {
		events = notifier.New(cfg.AMQPURL, log)
		go queue.StartOfferConsumer(cfg.AMQPURL, log)
	} else {
		log.Warn("RABBITMQ_URL not set, event publishing disabled")
	}

	coord := booking.New(mysql.New(db), events, log, cfg.PromotionTTL)
	go booking.NewReaper(coord, cfg.SweepInterval, log).Run(ctx)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable, rate limiting falls back to in-process buckets")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterMember(e, handler.NewMemberHandler(coord), cfg.JWTSecret)
	router.RegisterStaff(e, handler.NewStaffHandler(coord), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
