// Package recommend implements the recommendation retrieval engine: it
// turns stored embeddings and rating history into ranked, deduplicated,
// metadata-enriched movie lists, falling back to a popularity heuristic
// when no personalization signal exists.
package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leomillan/movierec/engine/catalog"
	"github.com/leomillan/movierec/engine/vector"
	"github.com/leomillan/movierec/pkg/fn"
)

// Searcher abstracts the vector index k-NN primitive.
type Searcher interface {
	Search(ctx context.Context, collection string, embedding []float32, k int) ([]vector.Hit, error)
}

// Catalog abstracts the relational metadata gateway.
type Catalog interface {
	GetMovie(ctx context.Context, id int64) (catalog.Movie, error)
	GetUser(ctx context.Context, id int64) (catalog.User, error)
	GetMovies(ctx context.Context, ids []int64) (map[int64]catalog.Movie, error)
	LikedMovies(ctx context.Context, userID int64, minScore float64, limit int) ([]catalog.LikedMovie, error)
	RatedMovieIDs(ctx context.Context, userID int64) ([]int64, error)
	PopularMovies(ctx context.Context, minCount, limit int) ([]catalog.PopularMovie, error)
}

// Service is the recommendation engine. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	catalog Catalog
	search  Searcher
	cache   Cache // may be nil
	opts    Options
	logger  *slog.Logger
}

// New creates a Service. cache may be nil to disable response caching.
func New(cat Catalog, search Searcher, cache Cache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: cat, search: search, cache: cache, opts: opts, logger: logger}
}

// ReasonNoEmbedding marks an empty-but-successful result for a movie whose
// embedding has not been trained yet.
const ReasonNoEmbedding = "no_embedding"

// Recommendation is one enriched entry of a ranked result list.
type Recommendation struct {
	MovieID int64    `json:"movie_id"`
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Year    int      `json:"year,omitempty"`
	Genres  []string `json:"genres,omitempty"`
	Score   float32  `json:"score,omitempty"`
}

// SeedMovie identifies the movie a movie-to-movie query started from.
type SeedMovie struct {
	ID     int64    `json:"movie_id"`
	Name   string   `json:"name"`
	Year   int      `json:"year,omitempty"`
	Genres []string `json:"genres,omitempty"`
}

// MovieResult is the response shape for movie-to-movie mode.
type MovieResult struct {
	Movie           SeedMovie        `json:"movie"`
	Recommendations []Recommendation `json:"recommendations"`
	Reason          string           `json:"reason,omitempty"`
}

// SeedUser identifies the user a personalized query ran for.
type SeedUser struct {
	ID   int64  `json:"user_id"`
	Name string `json:"name"`
}

// UserResult is the response shape for user mode.
type UserResult struct {
	User            SeedUser         `json:"user"`
	Recommendations []Recommendation `json:"recommendations"`
	FallbackUsed    bool             `json:"fallback_used"`
}

// ByMovie returns up to neighbors movies similar to the given one.
// A missing movie surfaces as catalog.ErrMovieNotFound; a movie without a
// trained embedding yields an empty result tagged ReasonNoEmbedding.
func (s *Service) ByMovie(ctx context.Context, movieID int64, neighbors int) (*MovieResult, error) {
	if neighbors < 1 {
		neighbors = s.opts.Neighbors
	}

	key := fmt.Sprintf("movie:%d:%d", movieID, neighbors)
	if cached, ok := s.cacheGet(key); ok {
		if result, ok := cached.(*MovieResult); ok {
			return result, nil
		}
	}

	movie, err := s.catalog.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	seed := SeedMovie{ID: movie.ID, Name: movie.Name, Year: movie.Year(), Genres: movie.Genres}

	if len(movie.Embedding) == 0 {
		result := &MovieResult{Movie: seed, Recommendations: []Recommendation{}, Reason: ReasonNoEmbedding}
		s.cacheSet(key, result)
		return result, nil
	}

	// Ask for one extra hit: the seed movie itself usually comes back as
	// its own nearest neighbor.
	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	hits, err := s.search.Search(searchCtx, s.opts.MovieCollection, movie.Embedding, neighbors+1)
	if err != nil {
		return nil, fmt.Errorf("recommend: neighbors of movie %d: %w", movieID, err)
	}

	hits = fn.Filter(hits, func(h vector.Hit) bool { return h.ID != movieID })
	if len(hits) > neighbors {
		hits = hits[:neighbors]
	}

	recs, err := s.enrichHits(ctx, hits, true)
	if err != nil {
		return nil, err
	}

	result := &MovieResult{Movie: seed, Recommendations: recs}
	s.cacheSet(key, result)
	return result, nil
}

// ByUser returns up to count movies for the given user. Users without any
// liked movie (or whose liked movies have no trained embeddings yet) get the
// popularity fallback instead of the vector path.
func (s *Service) ByUser(ctx context.Context, userID int64, count int) (*UserResult, error) {
	if count < 1 {
		count = s.opts.Count
	}

	key := fmt.Sprintf("user:%d:%d", userID, count)
	if cached, ok := s.cacheGet(key); ok {
		if result, ok := cached.(*UserResult); ok {
			return result, nil
		}
	}

	user, err := s.catalog.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seed := SeedUser{ID: user.ID, Name: user.Name}

	liked, err := s.catalog.LikedMovies(ctx, userID, s.opts.LikedThreshold, count)
	if err != nil {
		return nil, err
	}
	seeds := fn.Filter(liked, func(l catalog.LikedMovie) bool { return len(l.Embedding) > 0 })

	if len(seeds) == 0 {
		recs, err := s.fallback(ctx, count)
		if err != nil {
			return nil, err
		}
		result := &UserResult{User: seed, Recommendations: recs, FallbackUsed: true}
		s.cacheSet(key, result)
		return result, nil
	}

	// The exclusion set is computed once, up front, so the concurrent
	// workers only read it.
	ratedIDs, err := s.catalog.RatedMovieIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	rated := make(map[int64]struct{}, len(ratedIDs))
	for _, id := range ratedIDs {
		rated[id] = struct{}{}
	}

	picks := s.fanOut(ctx, seeds, rated)
	if ctx.Err() != nil {
		// Caller gave up; partial results are discarded, not merged.
		return nil, ctx.Err()
	}

	var hits []vector.Hit
	for _, p := range picks {
		if p.ok {
			hits = append(hits, p.hit)
		}
	}
	hits = fn.UniqueBy(hits, func(h vector.Hit) int64 { return h.ID })

	recs, err := s.enrichHits(ctx, hits, false)
	if err != nil {
		return nil, err
	}

	result := &UserResult{User: seed, Recommendations: recs}
	s.cacheSet(key, result)
	return result, nil
}

// seedPick is one seed's contribution to the merged candidate list.
type seedPick struct {
	hit vector.Hit
	ok  bool
}

// fanOut issues one k-NN query per seed concurrently and picks each seed's
// single best candidate not already rated by the user. A seed whose query
// fails or times out contributes nothing; the others proceed. Results come
// back in seed order after all workers have finished.
func (s *Service) fanOut(ctx context.Context, seeds []catalog.LikedMovie, rated map[int64]struct{}) []seedPick {
	return fn.ParMap(seeds, s.opts.MaxConcurrency, func(seed catalog.LikedMovie) seedPick {
		searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()

		hits, err := s.search.Search(searchCtx, s.opts.MovieCollection, seed.Embedding, s.opts.SeedCandidates)
		if err != nil {
			s.logger.Warn("seed query failed, contributing nothing",
				"seed_movie_id", seed.MovieID, "err", err)
			return seedPick{}
		}

		// Keep only the top eligible candidate: one pick per seed
		// diversifies the merged list across the user's taste instead of
		// flooding it with a single seed's neighborhood.
		for _, h := range hits {
			if _, seen := rated[h.ID]; !seen {
				return seedPick{hit: h, ok: true}
			}
		}
		return seedPick{}
	})
}

// fallback builds the cold-start list from rating aggregates alone. No
// vector query is involved, so it stays cheap enough to be the default path
// for every cold user.
func (s *Service) fallback(ctx context.Context, limit int) ([]Recommendation, error) {
	popular, err := s.catalog.PopularMovies(ctx, s.opts.MinRatingCount, limit)
	if err != nil {
		return nil, err
	}
	ids := fn.Map(popular, func(p catalog.PopularMovie) int64 { return p.MovieID })
	return s.enrichIDs(ctx, ids)
}

// enrichHits joins ranked hits back to catalog metadata with one batched
// fetch, preserving hit order. Hits whose movie has vanished from the
// catalog are dropped silently. Ranking is never revisited here.
func (s *Service) enrichHits(ctx context.Context, hits []vector.Hit, withScore bool) ([]Recommendation, error) {
	if len(hits) == 0 {
		return []Recommendation{}, nil
	}

	ids := fn.Map(hits, func(h vector.Hit) int64 { return h.ID })
	meta, err := s.catalog.GetMovies(ctx, ids)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(hits))
	for _, h := range hits {
		m, ok := meta[h.ID]
		if !ok {
			continue
		}
		rec := Recommendation{
			MovieID: h.ID,
			Name:    h.Name,
			URL:     h.URL,
			Year:    m.Year(),
			Genres:  m.Genres,
		}
		if withScore {
			rec.Score = h.Score
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// enrichIDs is the bare-id variant used by the fallback path, where there
// are no hits to carry display fields.
func (s *Service) enrichIDs(ctx context.Context, ids []int64) ([]Recommendation, error) {
	if len(ids) == 0 {
		return []Recommendation{}, nil
	}

	meta, err := s.catalog.GetMovies(ctx, ids)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, len(ids))
	for _, id := range ids {
		m, ok := meta[id]
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{
			MovieID: id,
			Name:    m.Name,
			URL:     m.URL,
			Year:    m.Year(),
			Genres:  m.Genres,
		})
	}
	return recs, nil
}

func (s *Service) cacheGet(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) cacheSet(key string, value any) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return
	}
	s.cache.Set(key, value, s.opts.CacheTTL)
}
