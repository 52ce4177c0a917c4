// Command loader bulk-loads the movie, user, and rating CSV exports into
// Neo4j. Ratings referencing an unknown movie or user are dropped, matching
// whatever referential holes exist in the raw exports.
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
	"github.com/leomillan/movierec/pkg/fn"
)

func main() {
	var (
		usersFile   = flag.String("users", "usuarios.csv", "user account export")
		peopleFile  = flag.String("people", "personas.csv", "person info export")
		moviesFile  = flag.String("movies", "peliculas.csv", "movie export")
		ratingsFile = flag.String("ratings", "scores.csv", "rating export")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		batchSize   = flag.Int("batch", 500, "rows per write batch")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *usersFile, *peopleFile, *moviesFile, *ratingsFile,
		*neo4jURL, *neo4jUser, *neo4jPass, *batchSize, logger); err != nil {
		logger.Error("load failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, usersFile, peopleFile, moviesFile, ratingsFile,
	neo4jURL, neo4jUser, neo4jPass string, batchSize int, logger *slog.Logger) error {

	users, err := loadUsers(usersFile, peopleFile)
	if err != nil {
		return err
	}
	logger.Info("parsed users", "count", len(users))

	movies, err := loadMovies(moviesFile)
	if err != nil {
		return err
	}
	logger.Info("parsed movies", "count", len(movies))

	ratings, err := loadRatings(ratingsFile)
	if err != nil {
		return err
	}
	total := len(ratings)
	ratings = filterRatings(ratings, movies, users)
	logger.Info("parsed ratings", "count", len(ratings), "dropped", total-len(ratings))

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	store := catalog.New(driver)

	start := time.Now()
	if err := writeBatches(ctx, fn.Chunk(users, batchSize), store.SaveUsers); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	logger.Info("loaded users", "count", len(users))

	if err := writeBatches(ctx, fn.Chunk(movies, batchSize), store.SaveMovies); err != nil {
		return fmt.Errorf("save movies: %w", err)
	}
	logger.Info("loaded movies", "count", len(movies))

	if err := writeBatches(ctx, fn.Chunk(ratings, batchSize), store.SaveRatings); err != nil {
		return fmt.Errorf("save ratings: %w", err)
	}
	logger.Info("loaded ratings", "count", len(ratings), "took", time.Since(start).String())

	return nil
}

func loadUsers(usersFile, peopleFile string) ([]catalog.User, error) {
	uf, err := os.Open(usersFile)
	if err != nil {
		return nil, err
	}
	defer uf.Close()

	pf, err := os.Open(peopleFile)
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	return parseUsers(uf, pf)
}

func loadMovies(path string) ([]catalog.Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMovies(f)
}

func loadRatings(path string) ([]catalog.Rating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseRatings(f)
}

// writeBatches saves each chunk with retries. Transient bolt errors are the
// common failure here, so every batch gets the default backoff.
func writeBatches[T any](ctx context.Context, batches [][]T, save func(context.Context, []T) error) error {
	for _, batch := range batches {
		result := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[struct{}] {
			if err := save(ctx, batch); err != nil {
				return fn.Err[struct{}](err)
			}
			return fn.Ok(struct{}{})
		})
		if _, err := result.Unwrap(); err != nil {
			return err
		}
	}
	return nil
}
