// Package main implements the movierec API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/leomillan/movierec/engine/catalog"
	"github.com/leomillan/movierec/engine/recommend"
	"github.com/leomillan/movierec/engine/vector"
	"github.com/leomillan/movierec/pkg/cache"
	"github.com/leomillan/movierec/pkg/metrics"
	"github.com/leomillan/movierec/pkg/mid"
	"github.com/leomillan/movierec/pkg/natsutil"
	"github.com/leomillan/movierec/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	QdrantURL      string
	NATSURL        string
	CORSOrigin     string
	Collection     string
	Neighbors      int
	Count          int
	CacheTTL       time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		Neo4jURL:       envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:      envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:      envOr("NEO4J_PASS", "password"),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		NATSURL:        envOr("NATS_URL", ""),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		Collection:     envOr("MOVIE_COLLECTION", "movies"),
		Neighbors:      envIntOr("DEFAULT_NEIGHBORS", 20),
		Count:          envIntOr("DEFAULT_COUNT", 5),
		CacheTTL:       time.Duration(envIntOr("CACHE_TTL_SECONDS", 60)) * time.Second,
		RateLimitRPS:   float64(envIntOr("RATE_LIMIT_RPS", 50)),
		RateLimitBurst: envIntOr("RATE_LIMIT_BURST", 100),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	catalogStore := catalog.New(driver)

	// --- Connect to Qdrant ---
	vectorStore, err := vector.New(cfg.QdrantURL)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Optional NATS for served-recommendation events ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("movierec-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	// --- Response cache ---
	respCache, err := cache.New(cache.DefaultOpts())
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer respCache.Close()

	// --- Build recommendation service ---
	opts := recommend.DefaultOptions()
	opts.Neighbors = cfg.Neighbors
	opts.Count = cfg.Count
	opts.CacheTTL = cfg.CacheTTL
	opts.MovieCollection = cfg.Collection

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	searcher := &breakingSearcher{inner: vectorStore, breaker: breaker}

	recSvc := recommend.New(catalogStore, searcher, respCache, opts, logger)

	srv := newServer(recSvc, catalogStore, publisher(nc), logger, metrics.Default)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/movies/{id}/recommendations", srv.handleMovieRecs)
	mux.HandleFunc("GET /api/users/{id}/recommendations", srv.handleUserRecs)
	mux.HandleFunc("GET /api/users/{id}", srv.handleGetUser)
	mux.HandleFunc("POST /api/users", srv.handleCreateUser)
	mux.Handle("GET /metrics", metrics.Default.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("movierec-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// publisher returns the event publish func, or nil when NATS is not
// configured.
func publisher(nc *nats.Conn) publishFunc {
	if nc == nil {
		return nil
	}
	return func(ctx context.Context, subject string, ev ServedEvent) error {
		return natsutil.Publish(ctx, nc, subject, ev)
	}
}

// breakingSearcher guards the vector index behind a circuit breaker so a
// down index sheds load fast instead of queueing timeouts.
type breakingSearcher struct {
	inner   *vector.Store
	breaker *resilience.Breaker
}

func (b *breakingSearcher) Search(ctx context.Context, collection string, embedding []float32, k int) ([]vector.Hit, error) {
	var hits []vector.Hit
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		hits, err = b.inner.Search(ctx, collection, embedding, k)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}
