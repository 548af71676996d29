package main

import (
	"context"

	cacheredis "github.com/arunvm123/flashdeal/cache/redis"
	"github.com/arunvm123/flashdeal/config"
	"github.com/arunvm123/flashdeal/idgen"
	lockredis "github.com/arunvm123/flashdeal/lock/redis"
	"github.com/arunvm123/flashdeal/logger"
	"github.com/arunvm123/flashdeal/repository/postgres"
	"github.com/arunvm123/flashdeal/seckill"
	"github.com/arunvm123/flashdeal/service"
	"github.com/arunvm123/flashdeal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter wires every dependency of the API process. The returned
// function drains background work on shutdown.
func SetupRouter(cfg *config.Config, log *logrus.Logger) (*gin.Engine, func(ctx context.Context)) {
	// Initialize repository
	repo, err := postgres.NewRepository(cfg.Database.GetDatabaseURL())
	if err != nil {
		log.Fatal("Failed to initialize repository: ", err)
	}

	sqlDB, err := repo.GetDB().DB()
	if err != nil {
		log.Fatal("Failed to access database pool: ", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	// Initialize Redis
	rdb, err := cacheredis.NewClient(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		log.Fatal("Failed to initialize cache: ", err)
	}

	// Rebuild pool for logical-expiry refreshes
	pool := worker.NewPool(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue, logger.Component(log, "rebuild-pool"))
	pool.Start()

	cacheClient := cacheredis.NewCacheClient(rdb, pool, lockredis.NewFactory(rdb), logger.Component(log, "cache"))
	shops := service.NewCachedShopService(repo, cacheClient, cfg.Cache.ShopTTL(), cfg.Cache.ShopLogicalTTL(), logger.Component(log, "shops"))

	ids := idgen.NewRedisIDWorker(rdb)
	vouchers := seckill.NewVoucherOrderService(rdb, ids, repo, logger.Component(log, "seckill"))

	checks := map[string]HealthChecker{
		"database": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	handler := NewHandler(shops, vouchers, checks, logger.Component(log, "http"))
	router := newRouter(handler, NewJWTService(cfg.JWTSecret), logger.Component(log, "http"))

	shutdown := func(ctx context.Context) {
		if err := pool.Shutdown(ctx); err != nil {
			log.Warnf("Rebuild pool did not drain: %v", err)
		}
		rdb.Close()
		sqlDB.Close()
	}

	return router, shutdown
}

func newRouter(h *Handler, jwtService *JWTService, log *logrus.Entry) *gin.Engine {
	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(LoggingMiddleware(log))

	// Health check and metrics (no auth required)
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public reads
	api.GET("/shops/:id", h.GetShop)
	api.GET("/shops/:id/locked", h.GetShopLocked)
	api.GET("/shops/:id/hot", h.GetHotShop)

	// Protected endpoints (require authentication)
	protected := api.Group("")
	protected.Use(AuthMiddleware(jwtService))

	protected.PUT("/shops/:id", h.UpdateShop)
	protected.POST("/shops/:id/warm", h.WarmShop)
	protected.POST("/vouchers/seckill", h.PublishVoucher)
	protected.POST("/vouchers/:voucherId/seckill", h.PlaceOrder)

	return r
}
