// Command indexer loads the offline trainer's embedding exports into the
// vector index and backfills each embedding onto its catalog node. Both
// collections are dropped and recreated, so a run replaces the index
// wholesale rather than merging with stale vectors.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/leomillan/movierec/engine/catalog"
	"github.com/leomillan/movierec/engine/vector"
	"github.com/leomillan/movierec/pkg/fn"
)

type config struct {
	movieFile       string
	userFile        string
	neo4jURL        string
	neo4jUser       string
	neo4jPass       string
	qdrantAddr      string
	movieCollection string
	userCollection  string
	dims            int
	batchSize       int
	workers         int
}

func main() {
	var cfg config
	flag.StringVar(&cfg.movieFile, "movie-embeddings", "movie_embeddings.jsonl", "movie embedding JSONL export")
	flag.StringVar(&cfg.userFile, "user-embeddings", "user_embeddings.jsonl", "user embedding JSONL export")
	flag.StringVar(&cfg.neo4jURL, "neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
	flag.StringVar(&cfg.neo4jUser, "neo4j-user", "neo4j", "Neo4j username")
	flag.StringVar(&cfg.neo4jPass, "neo4j-pass", "password", "Neo4j password")
	flag.StringVar(&cfg.qdrantAddr, "qdrant", "localhost:6334", "Qdrant gRPC address")
	flag.StringVar(&cfg.movieCollection, "movie-collection", "movies", "movie collection name")
	flag.StringVar(&cfg.userCollection, "user-collection", "users", "user collection name")
	flag.IntVar(&cfg.dims, "dims", 5, "embedding dimensionality")
	flag.IntVar(&cfg.batchSize, "batch", 500, "points per upsert batch")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent embedding backfill writers")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("indexing failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	movieRows, err := readEmbeddingFile(cfg.movieFile, cfg.dims)
	if err != nil {
		return fmt.Errorf("movie embeddings: %w", err)
	}
	userRows, err := readEmbeddingFile(cfg.userFile, cfg.dims)
	if err != nil {
		return fmt.Errorf("user embeddings: %w", err)
	}
	logger.Info("parsed embedding exports", "movies", len(movieRows), "users", len(userRows))

	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	store := catalog.New(driver)

	vs, err := vector.New(cfg.qdrantAddr)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vs.Close()

	movies, err := fetchAllMovies(ctx, store)
	if err != nil {
		return fmt.Errorf("fetch movies: %w", err)
	}
	users, err := fetchAllUsers(ctx, store)
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}

	start := time.Now()

	// The two collections are independent; rebuild them concurrently.
	result := fn.FanOutResult(
		func() fn.Result[int] {
			return indexCollection(ctx, vs, cfg.movieCollection, cfg.dims, cfg.batchSize,
				movieDocs(movieRows, movies))
		},
		func() fn.Result[int] {
			return indexCollection(ctx, vs, cfg.userCollection, cfg.dims, cfg.batchSize,
				userDocs(userRows, users))
		},
	)
	counts, err := result.Unwrap()
	if err != nil {
		return err
	}
	logger.Info("rebuilt collections",
		"movies_indexed", counts[0], "users_indexed", counts[1], "took", time.Since(start).String())

	if err := backfill(ctx, cfg.workers, movieRows, store.SetMovieEmbedding); err != nil {
		return fmt.Errorf("backfill movie embeddings: %w", err)
	}
	if err := backfill(ctx, cfg.workers, userRows, store.SetUserEmbedding); err != nil {
		return fmt.Errorf("backfill user embeddings: %w", err)
	}
	logger.Info("backfilled embeddings to catalog")

	return nil
}

func readEmbeddingFile(path string, dims int) ([]embeddingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEmbeddings(f, dims)
}

func fetchAllMovies(ctx context.Context, store *catalog.Store) (map[int64]catalog.Movie, error) {
	out := make(map[int64]catalog.Movie)
	const page = 1000
	for offset := 0; ; offset += page {
		movies, err := store.ListMovies(ctx, offset, page)
		if err != nil {
			return nil, err
		}
		for _, m := range movies {
			out[m.ID] = m
		}
		if len(movies) < page {
			return out, nil
		}
	}
}

func fetchAllUsers(ctx context.Context, store *catalog.Store) (map[int64]catalog.User, error) {
	out := make(map[int64]catalog.User)
	const page = 1000
	for offset := 0; ; offset += page {
		users, err := store.ListUsers(ctx, offset, page)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			out[u.ID] = u
		}
		if len(users) < page {
			return out, nil
		}
	}
}

// movieDocs joins embedding rows to catalog metadata. Rows without a
// catalog entry are skipped; the trainer may know ids the loader dropped.
func movieDocs(rows []embeddingRow, movies map[int64]catalog.Movie) []vector.Document {
	return fn.FilterMap(rows, func(row embeddingRow) (vector.Document, bool) {
		m, ok := movies[row.ID]
		if !ok {
			return vector.Document{}, false
		}
		return vector.Document{ID: m.ID, Name: m.Name, URL: m.URL, Embedding: row.Embedding}, true
	})
}

func userDocs(rows []embeddingRow, users map[int64]catalog.User) []vector.Document {
	return fn.FilterMap(rows, func(row embeddingRow) (vector.Document, bool) {
		u, ok := users[row.ID]
		if !ok {
			return vector.Document{}, false
		}
		return vector.Document{ID: u.ID, Name: u.Name, Embedding: row.Embedding}, true
	})
}

// indexCollection drops, recreates, and refills one collection. Returns the
// number of documents written.
func indexCollection(ctx context.Context, vs *vector.Store, collection string, dims, batchSize int, docs []vector.Document) fn.Result[int] {
	if err := vs.RecreateCollection(ctx, collection, dims); err != nil {
		return fn.Err[int](err)
	}
	for _, batch := range fn.Chunk(docs, batchSize) {
		result := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[struct{}] {
			if err := vs.Upsert(ctx, collection, batch); err != nil {
				return fn.Err[struct{}](err)
			}
			return fn.Ok(struct{}{})
		})
		if _, err := result.Unwrap(); err != nil {
			return fn.Err[int](err)
		}
	}
	return fn.Ok(len(docs))
}

// backfill writes each embedding onto its catalog node with a bounded
// worker pool.
func backfill(ctx context.Context, workers int, rows []embeddingRow, set func(context.Context, int64, []float32) error) error {
	results := fn.ParMapResult(rows, workers, func(row embeddingRow) fn.Result[struct{}] {
		if err := set(ctx, row.ID, row.Embedding); err != nil {
			return fn.Err[struct{}](fmt.Errorf("id %d: %w", row.ID, err))
		}
		return fn.Ok(struct{}{})
	})
	_, err := fn.Collect(results).Unwrap()
	return err
}
