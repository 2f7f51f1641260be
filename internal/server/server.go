package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/auth"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/config"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/location"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/notify"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/stream"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/syncer"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/tracking"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient)
	trackingSvc := tracking.NewService(
		tracking.NewStore(db),
		trackingSettings(cfg),
		nil,
		notify.NewRedisNotifier(redisClient),
		syncer.NewRedisSyncer(redisClient, cfg.SyncQueue),
		hub,
	)

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Tracking: trackingSvc,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	location.RegisterRoutes(s.App.Group("/locations"), location.NewService(s.DB), jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

func trackingSettings(cfg config.Config) tracking.Settings {
	return tracking.Settings{
		ExitCooldown:    time.Duration(cfg.ExitCooldownSeconds) * time.Second,
		ExitAdjustment:  time.Duration(cfg.ExitAdjustmentMinutes) * time.Minute,
		GuardFirstCheck: time.Duration(cfg.GuardFirstCheckHours) * time.Hour,
		GuardRepeat:     time.Duration(cfg.GuardRepeatCheckHours) * time.Hour,
		GuardMaxSession: time.Duration(cfg.GuardMaxSessionHours) * time.Hour,
	}
}
