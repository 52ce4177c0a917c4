package catalog

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/leomillan/movierec/pkg/repo"
)

// Result is the subset of a Neo4j result the store reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// CypherRunner runs a single Cypher statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Session is the subset of a Neo4j session the store uses.
type Session interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener opens store sessions. Production code uses the driver-backed
// opener; tests substitute their own.
type SessionOpener interface {
	OpenSession(ctx context.Context) Session
}

// Store is the metadata gateway over Neo4j.
type Store struct {
	opener SessionOpener
	movies *repo.Neo4jRepo[Movie, int64]
	users  *repo.Neo4jRepo[User, int64]
}

// New creates a Store backed by a Neo4j driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{
		opener: &driverOpener{driver: driver},
		movies: newMovieRepo(driver),
		users:  newUserRepo(driver),
	}
}

// NewWithOpener creates a Store with a custom session opener. Lookups that
// go through the generic repositories are unavailable; intended for tests.
func NewWithOpener(opener SessionOpener) *Store {
	return &Store{opener: opener}
}

// GetMovie returns a movie by id, or ErrMovieNotFound.
func (s *Store) GetMovie(ctx context.Context, id int64) (Movie, error) {
	m, err := s.movies.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return Movie{}, ErrMovieNotFound
	}
	if err != nil {
		return Movie{}, storageErr("get movie", err)
	}
	return m, nil
}

// GetUser returns a user by id, or ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, storageErr("get user", err)
	}
	return u, nil
}

// CreateUser inserts a new user node.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	created, err := s.users.Create(ctx, u)
	if err != nil {
		return User{}, storageErr("create user", err)
	}
	return created, nil
}

// ListMovies returns a page of movies. Used by cmd/indexer to walk the
// catalog when rebuilding the vector index.
func (s *Store) ListMovies(ctx context.Context, offset, limit int) ([]Movie, error) {
	items, err := s.movies.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
	return items, storageErr("list movies", err)
}

// ListUsers returns a page of users.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]User, error) {
	items, err := s.users.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
	return items, storageErr("list users", err)
}

// GetMovies batch-fetches movie metadata by id in a single round trip.
// Ids absent from the catalog are simply missing from the result map.
func (s *Store) GetMovies(ctx context.Context, ids []int64) (map[int64]Movie, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `UNWIND $ids AS mid
	           MATCH (m:Movie {id: mid})
	           RETURN m.id AS id, m.name AS name, m.url AS url,
	                  m.genres AS genres, m.release_date AS release_date`
	result, err := sess.Run(ctx, cypher, map[string]any{"ids": ids})
	if err != nil {
		return nil, storageErr("get movies", err)
	}

	movies := make(map[int64]Movie, len(ids))
	for result.Next(ctx) {
		rec := result.Record()
		m := Movie{
			ID:          int64Val(rec, "id"),
			Name:        stringVal(rec, "name"),
			URL:         stringVal(rec, "url"),
			Genres:      stringsVal(rec, "genres"),
			ReleaseDate: timeVal(rec, "release_date"),
		}
		movies[m.ID] = m
	}
	if err := result.Err(); err != nil {
		return nil, storageErr("get movies", err)
	}
	return movies, nil
}

// LikedMovies returns movies the user rated at or above minScore, highest
// score first, ties broken by most recent rating, capped at limit. The
// movie's stored embedding rides along so callers can seed vector queries
// without another round trip.
func (s *Store) LikedMovies(ctx context.Context, userID int64, minScore float64, limit int) ([]LikedMovie, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (u:User {id: $id})-[r:RATED]->(m:Movie)
	           WHERE r.score >= $min
	           RETURN m.id AS id, r.score AS score, m.embedding AS embedding
	           ORDER BY r.score DESC, r.date DESC
	           LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"id": userID, "min": minScore, "limit": limit,
	})
	if err != nil {
		return nil, storageErr("liked movies", err)
	}

	var liked []LikedMovie
	for result.Next(ctx) {
		rec := result.Record()
		liked = append(liked, LikedMovie{
			MovieID:   int64Val(rec, "id"),
			Score:     floatVal(rec, "score"),
			Embedding: embeddingVal(rec, "embedding"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, storageErr("liked movies", err)
	}
	return liked, nil
}

// RatedMovieIDs returns the distinct set of movie ids a user has rated.
func (s *Store) RatedMovieIDs(ctx context.Context, userID int64) ([]int64, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (u:User {id: $id})-[:RATED]->(m:Movie)
	           RETURN DISTINCT m.id AS id`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": userID})
	if err != nil {
		return nil, storageErr("rated movie ids", err)
	}

	var ids []int64
	for result.Next(ctx) {
		ids = append(ids, int64Val(result.Record(), "id"))
	}
	if err := result.Err(); err != nil {
		return nil, storageErr("rated movie ids", err)
	}
	return ids, nil
}

// PopularMovies returns movies with at least minCount ratings, ordered by
// descending mean score, ties broken by descending rating count.
func (s *Store) PopularMovies(ctx context.Context, minCount, limit int) ([]PopularMovie, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (:User)-[r:RATED]->(m:Movie)
	           WITH m, avg(r.score) AS mean, count(r) AS cnt
	           WHERE cnt >= $min
	           RETURN m.id AS id, mean, cnt
	           ORDER BY mean DESC, cnt DESC
	           LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"min": minCount, "limit": limit})
	if err != nil {
		return nil, storageErr("popular movies", err)
	}

	var popular []PopularMovie
	for result.Next(ctx) {
		rec := result.Record()
		popular = append(popular, PopularMovie{
			MovieID:     int64Val(rec, "id"),
			MeanScore:   floatVal(rec, "mean"),
			RatingCount: int64Val(rec, "cnt"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, storageErr("popular movies", err)
	}
	return popular, nil
}

// SaveMovies merges movie nodes in a single write transaction.
func (s *Store) SaveMovies(ctx context.Context, movies []Movie) error {
	if len(movies) == 0 {
		return nil
	}
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	rows := make([]map[string]any, len(movies))
	for i, m := range movies {
		rows[i] = movieToMap(m)
	}

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		cypher := `UNWIND $rows AS row
		           MERGE (m:Movie {id: row.id})
		           SET m += row`
		return tx.Run(ctx, cypher, map[string]any{"rows": rows})
	})
	return storageErr("save movies", err)
}

// SaveUsers merges user nodes in a single write transaction.
func (s *Store) SaveUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	rows := make([]map[string]any, len(users))
	for i, u := range users {
		rows[i] = userToMap(u)
	}

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		cypher := `UNWIND $rows AS row
		           MERGE (u:User {id: row.id})
		           SET u += row`
		return tx.Run(ctx, cypher, map[string]any{"rows": rows})
	})
	return storageErr("save users", err)
}

// SaveRatings creates RATED relationships in a single write transaction.
// Ratings are appended, never merged: duplicate (user, movie) pairs exist in
// the source data and are kept.
func (s *Store) SaveRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	rows := make([]map[string]any, len(ratings))
	for i, r := range ratings {
		rows[i] = map[string]any{
			"user_id":  r.UserID,
			"movie_id": r.MovieID,
			"score":    r.Score,
			"date":     r.Date,
		}
	}

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		cypher := `UNWIND $rows AS row
		           MATCH (u:User {id: row.user_id}), (m:Movie {id: row.movie_id})
		           CREATE (u)-[:RATED {score: row.score, date: row.date}]->(m)`
		return tx.Run(ctx, cypher, map[string]any{"rows": rows})
	})
	return storageErr("save ratings", err)
}

// SetMovieEmbedding stores a trained embedding on a movie node.
func (s *Store) SetMovieEmbedding(ctx context.Context, movieID int64, embedding []float32) error {
	return s.setEmbedding(ctx, "Movie", movieID, embedding)
}

// SetUserEmbedding stores a trained embedding on a user node.
func (s *Store) SetUserEmbedding(ctx context.Context, userID int64, embedding []float32) error {
	return s.setEmbedding(ctx, "User", userID, embedding)
}

func (s *Store) setEmbedding(ctx context.Context, label string, id int64, embedding []float32) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := "MATCH (n:" + label + " {id: $id}) SET n.embedding = $embedding"
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":        id,
		"embedding": embeddingParam(embedding),
	})
	return storageErr("set embedding", err)
}

// --- driver-backed session plumbing ---

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o *driverOpener) OpenSession(ctx context.Context) Session {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (s *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	result, err := s.sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&txRunner{tx: tx})
	})
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t *txRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	result, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result, nil
}
