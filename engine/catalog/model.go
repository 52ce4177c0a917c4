// Package catalog provides the relational metadata store for movies, users,
// and ratings, backed by Neo4j. Movies and users are nodes, ratings are
// RATED relationships carrying a score and a date.
package catalog

import "time"

// Movie is a catalog entry. Embedding is populated by the offline training
// pipeline via cmd/indexer; it is nil until that has run.
type Movie struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Genres      []string  `json:"genres"`
	ReleaseDate time.Time `json:"release_date"`
	Embedding   []float32 `json:"-"`
}

// Year returns the release year, or 0 if the release date is unset.
func (m Movie) Year() int {
	if m.ReleaseDate.IsZero() {
		return 0
	}
	return m.ReleaseDate.Year()
}

// User is a catalog entry for a viewer.
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	YearOfBirth int       `json:"year_of_birth"`
	Gender      string    `json:"gender"`
	Zipcode     string    `json:"zipcode"`
	Occupation  string    `json:"occupation"`
	ActiveSince time.Time `json:"active_since"`
	Embedding   []float32 `json:"-"`
}

// Rating is a single user-movie interaction. Duplicate (user, movie) pairs
// are possible in the source data and are stored as-is.
type Rating struct {
	UserID  int64     `json:"user_id"`
	MovieID int64     `json:"movie_id"`
	Score   float64   `json:"score"`
	Date    time.Time `json:"date"`
}

// LikedMovie is a movie a user rated at or above the liked threshold,
// together with the rating score and the movie's stored embedding.
type LikedMovie struct {
	MovieID   int64
	Score     float64
	Embedding []float32
}

// PopularMovie is an aggregate row from the popularity query.
type PopularMovie struct {
	MovieID     int64
	MeanScore   float64
	RatingCount int64
}
