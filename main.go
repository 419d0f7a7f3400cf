package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/lock"
	"healthcare-scheduler/internal/middleware"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/notify"
	"healthcare-scheduler/internal/routes"
	"healthcare-scheduler/internal/scheduler"
	"healthcare-scheduler/internal/store"
)

func main() {
	// A missing .env is fine when the environment is set directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	db, err := models.InitDB(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	var rdb *redis.Client
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Redis.Addr != "" {
		rdb, err = lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("Error connecting to redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisSlotLocker(rdb, cfg.Scheduler.LockTTL)
	} else {
		log.Println("REDIS_ADDR not set, slot locking relies on the database only")
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mailer.Host != "" {
		mailer, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mailer.Host,
			Port:     cfg.Mailer.Port,
			Username: cfg.Mailer.Username,
			Password: cfg.Mailer.Password,
			From:     cfg.Mailer.DefaultFrom,
		})
		if err != nil {
			log.Fatalf("Error configuring mailer: %v", err)
		}
	} else {
		log.Println("SMTP_HOST not set, emails will be logged instead of sent")
	}
	notifier := notify.NewEmailNotifier(mailer)

	svc := scheduler.NewService(store.NewAppointmentStore(db), locker, notifier, scheduler.Options{
		NotifyTimeout: cfg.Scheduler.NotifyTimeout,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.RequestID())

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		DB:          db,
		Redis:       rdb,
		Config:      cfg,
		Scheduler:   svc,
		Mailer:      notifier,
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := svc.Drain(ctx); err != nil {
		log.Printf("Pending notifications abandoned: %v", err)
	}
	log.Println("Server stopped")
}
