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

	"bazaar/auth"
	"bazaar/db"
	"bazaar/globals"
	"bazaar/idempotency"
	"bazaar/memdb"
	"bazaar/mq"
	"bazaar/orders"
	"bazaar/ratelim"
	"bazaar/rdx"
	"bazaar/reviews"
	"bazaar/routes"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s - %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// backend is the storage the services run against.
type backend struct {
	orders  orders.Repository
	hosts   reviews.HostRepository
	catalog orders.Catalog
	keys    idempotency.Store
	close   func(context.Context) error
}

func openBackend(ctx context.Context, cfg globals.Config) (*backend, error) {
	if cfg.StoreBackend == "memory" {
		hosts := memdb.NewHosts()
		if cfg.SeedFile != "" {
			f, err := os.Open(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			n, err := hosts.Seed(f)
			if err != nil {
				return nil, err
			}
			log.Printf("Seeded %d products and stores from %s", n, cfg.SeedFile)
		}
		log.Println("Using in-memory store")
		return &backend{
			orders:  memdb.NewOrders(),
			hosts:   hosts,
			catalog: hosts,
			keys:    memdb.NewIdempotency(),
			close:   func(context.Context) error { return nil },
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	m, err := db.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	if err := m.CreateIndexes(connectCtx); err != nil {
		log.Printf("Failed to create indexes: %v", err)
	}
	hosts := db.NewHostStore(m)
	return &backend{
		orders:  db.NewOrderStore(m),
		hosts:   hosts,
		catalog: hosts,
		keys:    db.NewIdempotencyStore(m),
		close:   m.Close,
	}, nil
}

func openPublisher(ctx context.Context, cfg globals.Config) (mq.Publisher, *redis.Client) {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set; events are only logged")
		return mq.LogPublisher{}, nil
	}
	conn, err := rdx.Connect(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Printf("Redis unavailable (%v); events are only logged", err)
		return mq.LogPublisher{}, nil
	}
	log.Printf("Publishing events to Redis channel %s", cfg.EventsChannel)
	return &mq.RedisPublisher{Conn: conn, Channel: cfg.EventsChannel}, conn
}

func setupRouter(oh *orders.Handlers, rh *reviews.Handlers, keys idempotency.Store, rateLimiter *ratelim.RateLimiter) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)
	routes.RoutesWrapper(router, oh, rh, keys, rateLimiter)
	return router
}

func main() {
	cfg := globals.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	ctx, stop := context.WithCancel(globals.Ctx)
	defer stop()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Storage init failed: %v", err)
	}
	events, redisConn := openPublisher(ctx, cfg)

	policy := auth.NewPolicy(nil)
	manager := orders.NewManager(store.orders, policy, orders.Options{
		Strict:  cfg.StrictTransitions,
		Catalog: store.catalog,
		Events:  events,
	})
	engine := reviews.NewEngine(store.hosts, policy, reviews.Options{Events: events})
	if cfg.StrictTransitions {
		log.Println("Strict order status transitions enabled")
	}

	rateLimiter := ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go rateLimiter.Run(ctx)

	router := setupRouter(
		&orders.Handlers{Manager: manager, Timeout: cfg.RequestTimeout, SlipSecret: globals.JwtSecret},
		&reviews.Handlers{Engine: engine, Timeout: cfg.RequestTimeout},
		store.keys,
		rateLimiter,
	)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", idempotency.Header},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		stop()
		if redisConn != nil {
			if err := redisConn.Close(); err != nil {
				log.Printf("Redis close: %v", err)
			}
		}
	})

	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}
	if err := store.close(shutdownCtx); err != nil {
		log.Printf("Storage close: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
