package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"todo_service/internal/api"
	"todo_service/internal/api/middleware"
	"todo_service/internal/app/service"
	"todo_service/internal/common/security"
	"todo_service/internal/domain/repository"
	"todo_service/internal/platform/cache"
	"todo_service/internal/platform/config"
	"todo_service/internal/platform/database"
	"todo_service/internal/platform/observability"

	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	log.Info("configuration loaded")

	ctx := context.Background()

	// 2. Initialize Database
	db, err := database.Connect(ctx, cfg.DBConnStr, log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer database.Close(db, log)

	if err := database.RunMigrations(db, log); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	// 3. Initialize Redis (auth rate limiting only; the service runs without it)
	var authLimiter *middleware.RateLimiter
	rdb, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, auth rate limiting disabled")
	} else {
		defer cache.Close(rdb, log)
		authLimiter = middleware.NewRateLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, "auth", log, metrics)
	}

	// 4. Initialize Repositories
	userRepo := repository.NewPgUserRepository(db)
	todoRepo := repository.NewPgTodoRepository(db)

	// 5. Initialize Services
	codec := security.NewTokenCodec(cfg.JWTKey)
	accountService := service.NewAccountService(userRepo, security.BcryptHasher{}, codec, cfg.JWTExp, log, metrics)
	adminService := service.NewAdminService(userRepo, log, metrics)
	todoService := service.NewTodoService(todoRepo, log)

	// 6. Initialize Router & HTTP Server
	router := api.NewRouter(api.Deps{
		Accounts:    accountService,
		Admin:       adminService,
		Todos:       todoService,
		Verifier:    codec,
		Resolve:     userRepo.FindByEmail,
		Policy:      middleware.NewPolicy(middleware.DefaultRules(), log, metrics),
		AuthLimiter: authLimiter,
		Metrics:     metrics,
		Log:         log,

		TrustedProxies: cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("port", cfg.APIPort).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatalf("could not listen on %s", cfg.APIPort)
		}
	}()

	<-stop

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
		return
	}
	log.Info("server stopped gracefully")
}
