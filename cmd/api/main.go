package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/bookshop/internal/api"
	"github.com/example/bookshop/internal/auth"
	"github.com/example/bookshop/internal/catalog"
	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/kafka"
	"github.com/example/bookshop/internal/projection"
	"github.com/example/bookshop/internal/query"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}
	if err := cfg.RequireSecret(); err != nil {
		log.Fatalf("[API] %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Bookshop API")
	log.Println("[API] ========================================")
	log.Printf("[API] Catalog backend: %s", cfg.CatalogBackend)
	log.Printf("[API] Event backend:   %s", cfg.EventBackend)
	if cfg.FeedEnabled() {
		log.Printf("[API] Kafka: %v (topic %s)", cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	backends, err := cfg.Open(ctx)
	if err != nil {
		log.Fatalf("[API] Failed to open storage: %v", err)
	}
	defer backends.Close()

	// A memory catalog starts empty; rebuild it from a persistent event store
	if cfg.CatalogBackend == config.BackendMemory && cfg.EventBackend != config.BackendMemory {
		log.Println("[API] Replaying events into the in-memory catalog...")
		if _, err := projection.NewProjector(backends.Documents).Replay(ctx, backends.Events); err != nil {
			log.Printf("[API] Event replay failed: %v", err)
		}
	}

	repo := catalog.NewRepository(backends.Documents)
	bookSvc := book.NewService(repo, backends.Events, nil)
	userSvc := user.NewService(backends.Documents, backends.Events)
	carts := cart.NewRegistry(cfg.Cart)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	cmdHandler := command.NewHandler(bookSvc, userSvc, carts, backends.Events)
	queryHandler := query.NewHandler(repo, cfg.PageSize)

	// Live projection keeps an in-memory catalog in step with other writers
	var wg sync.WaitGroup
	if cfg.FeedEnabled() && cfg.CatalogBackend == config.BackendMemory {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "api-projector")
		defer consumer.Close()
		projector := projection.NewProjector(backends.Documents)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("[API] Starting Kafka consumer (live projection)...")
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				log.Printf("[API] Projector error: %v", err)
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:         api.NewHandlers(cmdHandler, queryHandler, bookSvc),
		AuthHandlers:     api.NewAuthHandlers(userSvc, jwtService, backends.Documents),
		CategoryHandlers: api.NewCategoryHandlers(queryHandler),
		JWTService:       jwtService,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}

	wg.Wait()
}
