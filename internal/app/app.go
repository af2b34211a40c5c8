package app

import (
	"fmt"
	"net/http"

	"github.com/boglepay/gateway/internal/module/gateway"
	"github.com/boglepay/gateway/internal/module/order"
	"github.com/boglepay/gateway/internal/shared/cache"
	"github.com/boglepay/gateway/internal/shared/config"
	"github.com/boglepay/gateway/internal/shared/database"
	"github.com/boglepay/gateway/internal/shared/logger"
	"github.com/boglepay/gateway/internal/shared/metrics"
	"github.com/boglepay/gateway/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the gateway's components together.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  goredis.UniversalClient
	router *gin.Engine
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := order.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate orders: %w", err)
	}
	if err := gateway.MigrateLedger(db); err != nil {
		return nil, fmt.Errorf("migrate webhook ledger: %w", err)
	}

	rdb, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, idempotency cache degraded", zap.Error(err))
	}

	m := metrics.New("boglepay_gateway")

	store := order.NewStore(db)
	ledger := gateway.NewLedger(db)
	client := gateway.NewHTTPClient(&cfg.BoglePay, m, log)

	service := gateway.NewService(store, ledger, client, gateway.Config{
		BoglePay:  cfg.BoglePay,
		Store:     cfg.Store,
		PublicURL: cfg.Server.PublicURL,
	}, m, log)

	handler := gateway.NewHandler(service, cfg.BoglePay.SignatureHeader, log)

	app := &App{
		cfg:    cfg,
		logger: log,
		db:     db,
		redis:  rdb,
	}
	app.router = app.setupRouter(handler, m)
	return app, nil
}

func (a *App) setupRouter(handler *gateway.Handler, m *metrics.Metrics) *gin.Engine {
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterWebhookRoutes(r)

	idempotency := middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api, idempotency)

	return r
}

// Router returns the HTTP handler for the server.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop releases application resources.
func (a *App) Stop() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	if err := cache.Close(a.redis); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
	}
	a.logger.Sync()
}
