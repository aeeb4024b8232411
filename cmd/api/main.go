package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-cart-sync/internal/api"
	"github.com/example/ec-cart-sync/internal/api/middleware"
	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/checkout"
	"github.com/example/ec-cart-sync/internal/config"
	"github.com/example/ec-cart-sync/internal/domain/cart"
	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/example/ec-cart-sync/internal/domain/logistics"
	"github.com/example/ec-cart-sync/internal/domain/order"
	"github.com/example/ec-cart-sync/internal/infrastructure/cache"
	"github.com/example/ec-cart-sync/internal/infrastructure/kafka"
	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/example/ec-cart-sync/internal/notification"
	"github.com/example/ec-cart-sync/internal/payment"
	"github.com/example/ec-cart-sync/internal/projection"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] EC Cart Sync")
	log.Println("[API] ========================================")
	log.Printf("[API] Document store: %s", cfg.DocumentStore)
	log.Printf("[API] Kafka: %v (topic %s, publish=%t)", cfg.KafkaBrokers, cfg.KafkaTopic, cfg.PublishEvents)

	// Document store
	ds, closeStore, err := store.Open(ctx, cfg.DocumentStore, store.OpenOptions{
		DatabaseURL:   cfg.DatabaseURL,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		log.Fatalf("[API] Failed to open document store: %v", err)
	}
	defer closeStore()

	// Caches: Redis when configured, process memory otherwise
	var catalogCache, pendingCache cache.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("[API] Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		catalogCache = cache.NewRedisCache(client, "catalog:")
		pendingCache = cache.NewRedisCache(client, "checkout:")
		log.Printf("[API] Connected to Redis at %s", cfg.RedisAddr)
	} else {
		catalogCache = cache.NewMemoryCache()
		pendingCache = cache.NewMemoryCache()
		log.Println("[API] Using in-memory caches")
	}

	// Order events
	var publisher checkout.Publisher
	if cfg.PublishEvents {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)
	if err != nil {
		log.Fatalf("[API] Failed to create token service: %v", err)
	}

	// Domain services
	notices := notification.NewCenter(cfg.NotificationCapacity, cfg.NotificationMaxAge)
	resolver := catalog.NewResolver(ds, catalogCache, cfg.CatalogCacheTTL)
	carts := cart.NewService(ds, resolver, notices)
	projections := projection.NewManager(carts, resolver)
	defer projections.Close()
	orders := order.NewService(ds)
	gateway := payment.NewPayMongoClient(payment.Config{
		SecretKey:     cfg.PayMongoSecretKey,
		BaseURL:       cfg.PayMongoBaseURL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	checkouts := checkout.NewService(projections, orders, carts, gateway, pendingCache, publisher, notices, checkout.Config{
		PendingTTL: cfg.PendingOrderTTL,
	})

	handlers := api.NewHandlers(api.Services{
		Carts:       carts,
		Projections: projections,
		Checkout:    checkouts,
		Orders:      orders,
		Catalog:     catalog.NewService(ds, resolver),
		Logistics:   logistics.NewService(ds, nil),
		Notices:     notices,
	})
	router := api.NewRouter(api.RouterConfig{
		Handlers:        handlers,
		AuthHandlers:    api.NewAuthHandlers(tokens, projections),
		Tokens:          tokens,
		CheckoutLimiter: middleware.NewRateLimiter(cfg.CheckoutRatePerMinute, cfg.CheckoutBurst),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
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
		log.Printf("[API] Error during shutdown: %v", err)
	}
}
