package main // attendance API server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/cbtwine/attendance/internal/config"
	"github.com/cbtwine/attendance/internal/database"
	"github.com/cbtwine/attendance/internal/handler"
	"github.com/cbtwine/attendance/internal/middleware"
	"github.com/cbtwine/attendance/internal/queue"
	"github.com/cbtwine/attendance/internal/repository"
	"github.com/cbtwine/attendance/internal/router"
	"github.com/cbtwine/attendance/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(context.Background(), db, database.MySQL); err != nil {
			log.Fatalf("database: %v", err)
		}
	}

	// Redis is optional: without it caching and rate limiting are off.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Printf("redis unavailable, cache and rate limit disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	rl := config.LoadRateLimitConfig()
	limit := middleware.NewTokenBucket(rl, rdb)
	authLimit := middleware.NewTokenBucket(rl.Auth(), rdb)
	cache := middleware.NewRedisCache(cacheCfg, rdb)
	invalidator := middleware.CacheInvalidator{Prefix: cacheCfg.Prefix, RDB: rdb}

	users := repository.NewUserRepo(db)
	visitors := repository.NewVisitorRepo(db)
	activities := repository.NewActivityRepo(db)

	authH := handler.NewAuthHandler(cfg, repository.NewOrganisationRepo(db), users, repository.NewTokenRepo(db))
	visitorH := handler.NewVisitorHandler(visitors)
	activityH := handler.NewActivityHandler(activities, invalidator)
	visitH := handler.NewVisitHandler(repository.NewVisitRepo(db), visitors, activities, service.VisitPublisher{URL: cfg.RabbitURL})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret, authLimit)
	router.RegisterKiosk(e, router.KioskAPI{Visitors: visitorH, Activities: activityH, Visits: visitH}, cfg.JWTSecret, limit, cache)
	router.RegisterAdmin(e, visitorH, activityH, cfg.JWTSecret, limit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RabbitURL != "" {
		go func() {
			if err := queue.StartVisitConsumer(ctx, cfg.RabbitURL, cfg.VisitLogDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("visit-consumer: stopped: %v", err)
			}
		}()
	} else {
		log.Printf("RABBITMQ_URL not set, visit events disabled")
	}

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
