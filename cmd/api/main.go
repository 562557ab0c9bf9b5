package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/database"
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/routes"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/session"
	"github.com/damoang/angple-chat/internal/ws"
	pkgcache "github.com/damoang/angple-chat/pkg/cache"
	pkges "github.com/damoang/angple-chat/pkg/elasticsearch"
	"github.com/damoang/angple-chat/pkg/imagehost"
	"github.com/damoang/angple-chat/pkg/jwt"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/damoang/angple-chat/pkg/ratelimit"
	pkgredis "github.com/damoang/angple-chat/pkg/redis"
	pkgstorage "github.com/damoang/angple-chat/pkg/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Angple Chat API
// @version         1.0
// @description     Global room and consent-gated private messaging
//
// @license.name    MIT
//
// @host            localhost:8082
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.Setup(env, os.Getenv("LOG_LEVEL"))
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := database.Open(cfg.Database, logLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	pkglogger.Info("Connected to %s", cfg.Database.Driver)

	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Warn("Failed to connect to Redis: %v (continuing single-instance)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}

	var store pkgcache.Store
	if redisClient != nil {
		store = pkgcache.NewService(redisClient)
	} else {
		store = pkgcache.NewMemory()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := realtime.NewBroker(redisClient)
	go broker.Run(ctx)

	wsHub := ws.NewHub(redisClient, service.EventAccountDeleted)
	go wsHub.Run()
	defer wsHub.Stop()

	uploader := initUploader(cfg)
	contactSearch := initContactSearch(ctx, cfg)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	requestRepo := repository.NewAccessRequestRepository(db)

	// Services
	accessService := service.NewAccessService(requestRepo, userRepo, broker)
	messageService := service.NewMessageService(messageRepo, userRepo, accessService, uploader, broker, cfg.Chat.EditWindow())
	presenceService := service.NewPresenceService(userRepo, broker)
	userService := service.NewUserService(userRepo, messageService, accessService, presenceService, broker, service.UserServiceDeps{
		Uploader: uploader,
		Search:   contactSearch,
		Members:  wsHub,
	})
	sendLimiter := ratelimit.New(redisClient, middleware.SendRateLimitPrefix, cfg.Chat.SendRatePerMinute, time.Minute)
	feeds := service.NewFeeds(messageService, accessService, userService, sendLimiter)

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	handler.RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics(), middleware.SecurityHeaders())
	router.Use(cors.New(corsConfig(cfg.CORS.AllowOrigins)))
	router.Use(middleware.RateLimit(redisClient, middleware.DefaultRateLimitConfig()))

	router.GET("/health", healthHandler(db, redisClient))
	router.GET("/metrics", middleware.IPProtection(middleware.LoadIPAllowlist("METRICS_ALLOWED_IPS")), gin.WrapH(promhttp.Handler()))
	if cfg.IsDevelopment() {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auditLogger := middleware.NewAuditLogger(db)
	routes.Setup(router, routes.Handlers{
		User:    handler.NewUserHandler(userService, presenceService),
		Access:  handler.NewAccessHandler(accessService),
		Message: handler.NewMessageHandler(messageService),
		WS: handler.NewWSHandler(wsHub, userService, presenceService, feeds, store, session.Options{
			MessageCacheTTL: cfg.Chat.MessageCacheTTL(),
		}, cfg.CORS.AllowOrigins),
		Audit: handler.NewAuditHandler(auditLogger),
	}, jwtManager, routes.Options{
		SendLimiter: sendLimiter,
		AuditLogger: auditLogger,
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "not found"}})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		pkglogger.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	pkglogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("Server shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

func corsConfig(allowOrigins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	var origins []string
	for _, o := range strings.Split(allowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowCredentials = false
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// initUploader picks the image host. Without one, image sends and avatar uploads fail with ErrUploadFailed.
func initUploader(cfg *config.Config) imagehost.Uploader {
	timeout := time.Duration(cfg.ImageHost.Timeout) * time.Second

	switch cfg.ImageHost.Provider {
	case "s3":
		if !cfg.Storage.Enabled || cfg.Storage.Bucket == "" {
			pkglogger.Warn("image_host.provider=s3 but storage is not configured; image uploads disabled")
			return nil
		}
		s3Client, err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			CDNURL:          cfg.Storage.CDNURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			pkglogger.Warn("S3 storage init failed: %v; image uploads disabled", err)
			return nil
		}
		pkglogger.Info("Image host: S3 bucket %s", cfg.Storage.Bucket)
		return imagehost.WithBreaker("s3", imagehost.NewS3(s3Client, ""), imagehost.DefaultBreakerConfig())
	default:
		if cfg.ImageHost.APIKey == "" {
			pkglogger.Warn("IMGBB_API_KEY not set; image uploads disabled")
			return nil
		}
		pkglogger.Info("Image host: ImgBB")
		return imagehost.WithBreaker("imgbb",
			imagehost.NewImgBB(cfg.ImageHost.APIKey, cfg.ImageHost.Endpoint, timeout),
			imagehost.DefaultBreakerConfig())
	}
}

func initContactSearch(ctx context.Context, cfg *config.Config) service.ContactSearch {
	if !cfg.Elasticsearch.Enabled || len(cfg.Elasticsearch.Addresses) == 0 {
		return nil
	}
	client, err := pkges.NewClient(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
	if err != nil {
		pkglogger.Warn("Elasticsearch connection failed: %v (contact search falls back to SQL)", err)
		return nil
	}
	search, err := service.NewContactSearch(ctx, client, cfg.Elasticsearch.Index)
	if err != nil {
		pkglogger.Warn("Elasticsearch index setup failed: %v (contact search falls back to SQL)", err)
		return nil
	}
	pkglogger.Info("Connected to Elasticsearch")
	return search
}

func healthHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"database": "ok", "redis": "disabled"}
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = "down"
			}
		}
		c.JSON(code, status)
	}
}
