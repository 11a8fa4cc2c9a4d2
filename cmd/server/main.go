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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"artnote-server/internal/composer"
	"artnote-server/internal/config"
	"artnote-server/internal/database"
	"artnote-server/internal/generation"
	"artnote-server/internal/handler"
	"artnote-server/internal/imaging"
	"artnote-server/internal/logger"
	"artnote-server/internal/messaging"
	"artnote-server/internal/middleware"
	"artnote-server/internal/objectstore"
	"artnote-server/internal/repository"
	"artnote-server/internal/session"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogOutputPath,
		Service:    "artnote-server",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("db", cfg.MaskedDSN()),
		zap.String("generation_backend", cfg.GenerationBackend),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// --- PostgreSQL ---
	if err := database.MigrateUp(cfg.GetDSN(), log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}
	pgPool, err := database.Connect(ctx, database.PoolConfig{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DBMaxConns,
		IdleTimeout: cfg.DBIdleTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()

	// --- Draft stores ---
	stores := openDraftStores(ctx, cfg, retryPolicy{attempts: 5, delay: 3 * time.Second}, log)
	defer stores.Close()

	objects, err := objectstore.NewLocalStore(cfg.ImageSavePath, cfg.ImagePublicBaseURL, log)
	if err != nil {
		log.Fatal("Failed to create object store", zap.Error(err))
	}

	// --- Events ---
	var publisher session.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqConn, err := messaging.Connect(ctx, cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		ch, err := mqConn.Channel()
		if err != nil {
			log.Fatal("Failed to open RabbitMQ channel", zap.Error(err))
		}
		commitPublisher, err := messaging.NewCommitPublisher(ch, log)
		if err != nil {
			log.Fatal("Failed to create commit publisher", zap.Error(err))
		}
		defer commitPublisher.Close()
		publisher = commitPublisher
	} else {
		log.Info("RABBITMQ_URL is empty, committed events are not published")
	}

	// --- Composition ---
	generator, err := generation.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create generator", zap.Error(err))
	}
	tables, err := composer.DefaultTables()
	if err != nil {
		log.Fatal("Failed to load phrase tables", zap.Error(err))
	}
	engine := composer.NewEngine(tables, composer.NewRandomSource(), generator,
		composer.Config{GenerationTimeout: cfg.GenerationTimeout}, log)

	// --- Sessions ---
	txHelper := database.NewTransactionHelper(pgPool, log)
	templates := repository.NewPgTemplateRepository(pgPool, log)
	manager := session.NewManager(session.Deps{
		Fields:     stores.fields,
		Images:     stores.images,
		Normalizer: imaging.NewNormalizer(log),
		Composer:   engine,
		Templates:  templates,
		Objects:    objects,
		Messages:   repository.NewPgMessageRepository(pgPool, txHelper, log),
		Publisher:  publisher,
		Logger:     log,
	}, session.Options{
		DebounceInterval: cfg.DebounceWindow,
		MaxEdge:          cfg.ImageMaxEdge,
		Quality:          cfg.ImageQuality,
	})

	// --- HTTP ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")
	router.Use(p.HandlerFunc())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.HeaderTeacherID}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Count()})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/images", cfg.ImageSavePath)

	handler.NewSessionHandler(manager, templates, log).
		WithGenerateRateLimit(cfg.GenerateRateWindow, cfg.GenerateRateLimit).
		RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	// Незакрытые сеансы досохраняют черновики до закрытия хранилищ
	manager.CloseAll(shutdownCtx)

	log.Info("Server exiting")
}
