package recommend

import "time"

// Options configures the retrieval and ranking policy.
type Options struct {
	// Neighbors is the default result count for movie-to-movie queries.
	Neighbors int
	// Count is the default result count for user queries.
	Count int
	// LikedThreshold is the minimum rating (1-5 scale) for a movie to seed
	// a user's personalized query.
	LikedThreshold float64
	// MinRatingCount is the minimum number of ratings a movie needs before
	// the popularity fallback will recommend it. Filters out movies whose
	// mean score rests on too few ratings to trust.
	MinRatingCount int
	// SeedCandidates is how many neighbors each liked-movie seed requests;
	// only the top eligible one survives.
	SeedCandidates int
	// MaxConcurrency bounds the seed fan-out worker pool. Zero means one
	// worker per seed.
	MaxConcurrency int
	// SearchTimeout is the per-query deadline on index calls.
	SearchTimeout time.Duration
	// MovieCollection is the vector collection holding movie embeddings.
	MovieCollection string
	// CacheTTL bounds how long a final enriched result may be served from
	// the response cache.
	CacheTTL time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Neighbors:       20,
		Count:           5,
		LikedThreshold:  4.0,
		MinRatingCount:  10,
		SeedCandidates:  5,
		SearchTimeout:   5 * time.Second,
		MovieCollection: "movies",
		CacheTTL:        60 * time.Second,
	}
}
