package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/config"
	"tokopos/backend/internal/httpapi"
	"tokopos/backend/internal/outbox"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
	pgstore "tokopos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	lookupCache := cache.LookupCache(cache.NoopLookupCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLookupCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			lookupCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, lookupCache, time.Duration(cfg.LookupTTLSeconds)*time.Second, cfg.StoreID)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.OutboxWorker {
		worker := outbox.NewWorker(repo, lookupCache)
		go worker.Run(workerCtx)
		log.Println("outbox worker: running")
	} else {
		log.Println("outbox worker: disabled")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
