package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/modelgate/credential-engine/internal/api"
	"github.com/modelgate/credential-engine/internal/config"
	"github.com/modelgate/credential-engine/internal/services/cooldown"
	"github.com/modelgate/credential-engine/internal/services/database"
	"github.com/modelgate/credential-engine/internal/services/middleware"
	"github.com/modelgate/credential-engine/internal/services/secrets"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Engine is one running credential-engine server instance.
type Engine struct {
	config *config.Config
	app    *fiber.App
	redis  *redis.Client
	db     *database.DB
}

func New(cfg *config.Config) *Engine {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create one")
	}
	return &Engine{config: cfg}
}

// Run starts the server and blocks until shutdown.
func (e *Engine) Run() error {
	if err := e.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(e.config)

	port := e.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	e.app = createFiberApp(e.config)

	if e.config.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	db, err := database.New(*e.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	e.db = db
	defer func() {
		if err := e.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	redisClient, err := createRedisClient(e.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	e.redis = redisClient
	if e.redis != nil {
		defer func() {
			if err := e.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
		fiberlog.Info("Redis client initialized successfully")
	} else {
		fiberlog.Info("Redis not configured - cooldown tracking disabled")
	}

	cipher, err := secrets.NewCipher(e.config.Workspace.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to initialize secret cipher: %w", err)
	}

	var cooldowns *cooldown.Store
	if e.redis != nil {
		cooldowns = cooldown.NewStore(e.redis)
	}

	setupMiddleware(e.app, e.config)
	setupRoutes(e.app, e.config, api.NewServices(e.config, e.db, cipher, cooldowns), e.redis, e.db)

	fmt.Printf("Credential engine starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", e.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := e.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := e.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "CredentialEngine v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      1 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		CaseSensitive:     true,
		ServerHeader:      "CredentialEngine",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Key",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		MaxAge:       86400,
	}))
}

func setupRoutes(app *fiber.App, cfg *config.Config, services *api.Services, redisClient *redis.Client, db *database.DB) {
	healthHandler := api.NewHealthHandler(cfg, redisClient, db)
	app.Get("/health", healthHandler.HealthCheck)

	credentialHandler := api.NewCredentialHandler(services)
	validateHandler := api.NewValidateHandler(services)
	loadBalancingHandler := api.NewLoadBalancingHandler(services)

	adminKey := middleware.NewAdminKeyMiddleware(cfg.AdminAuth)

	v1 := app.Group("/v1", adminKey.RequireAdminKey())

	providers := v1.Group("/providers/:provider")
	providers.Get("/credentials", credentialHandler.GetCredential)
	providers.Post("/credentials", credentialHandler.SaveCredential)
	providers.Delete("/credentials/:credential_id", credentialHandler.DeleteCredential)
	providers.Post("/credentials/:credential_id/activate", credentialHandler.ActivateCredential)
	providers.Delete("/models", credentialHandler.DeleteModel)
	providers.Post("/credentials/validate", validateHandler.ValidateCredentials)

	pool := providers.Group("/models/:model_type/:model/load-balancing")
	pool.Get("/", loadBalancingHandler.GetConfig)
	pool.Put("/", loadBalancingHandler.UpdateConfig)
	pool.Post("/entries/:entry_id/validate", loadBalancingHandler.ValidateEntry)
	pool.Post("/entries/:entry_id/cooldown", loadBalancingHandler.SetCooldown)
	pool.Delete("/entries/:entry_id/cooldown", loadBalancingHandler.ClearCooldown)
}

func setupLogLevel(cfg *config.Config) {
	switch cfg.GetNormalizedLogLevel() {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", cfg.Server.LogLevel)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil {
		return nil, nil
	}

	var opt *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt = parsed
	} else if cfg.Redis.Addr != "" {
		opt = &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	} else {
		return nil, nil
	}

	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fiberlog.Warnf("Redis connection failed: %v", err)
	}
	return client, nil
}
