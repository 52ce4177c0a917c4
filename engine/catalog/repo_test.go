package catalog

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{dbtype.Node{Props: props}},
	}
}

func TestMovieFromRecord(t *testing.T) {
	released := time.Date(1995, 12, 15, 0, 0, 0, 0, time.UTC)
	rec := nodeRecord(map[string]any{
		"id":           int64(42),
		"name":         "Heat",
		"url":          "http://films.example/heat",
		"genres":       []any{"Action", "Crime"},
		"release_date": released,
		"embedding":    []any{0.1, 0.2, 0.3},
	})

	m, err := movieFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != 42 || m.Name != "Heat" {
		t.Fatalf("unexpected movie: %+v", m)
	}
	if len(m.Genres) != 2 || m.Genres[1] != "Crime" {
		t.Fatalf("unexpected genres: %v", m.Genres)
	}
	if !m.ReleaseDate.Equal(released) {
		t.Fatalf("unexpected release date: %v", m.ReleaseDate)
	}
	if len(m.Embedding) != 3 || m.Embedding[0] != float32(0.1) {
		t.Fatalf("unexpected embedding: %v", m.Embedding)
	}
}

func TestMovieFromRecordMissingProps(t *testing.T) {
	m, err := movieFromRecord(nodeRecord(map[string]any{"id": int64(1)}))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "" || m.Genres != nil || m.Embedding != nil {
		t.Fatalf("expected zero values, got %+v", m)
	}
	if m.Year() != 0 {
		t.Fatalf("expected year 0 for unset date, got %d", m.Year())
	}
}

func TestMovieToMapOmitsNilEmbedding(t *testing.T) {
	props := movieToMap(Movie{ID: 1, Name: "Heat"})
	if _, ok := props["embedding"]; ok {
		t.Fatal("nil embedding must not be written")
	}

	props = movieToMap(Movie{ID: 1, Embedding: []float32{0.5}})
	emb, ok := props["embedding"].([]any)
	if !ok || len(emb) != 1 {
		t.Fatalf("unexpected embedding param: %v", props["embedding"])
	}
	if _, ok := emb[0].(float64); !ok {
		t.Fatalf("expected float64, got %T", emb[0])
	}
}

func TestUserRoundTrip(t *testing.T) {
	since := time.Date(1997, 9, 22, 0, 0, 0, 0, time.UTC)
	u := User{
		ID:          5,
		Name:        "alice",
		YearOfBirth: 1970,
		Gender:      "F",
		Zipcode:     "90210",
		Occupation:  "engineer",
		ActiveSince: since,
	}

	props := userToMap(u)
	// Simulate the int normalization the database applies.
	props["year_of_birth"] = int64(u.YearOfBirth)

	got, err := userFromRecord(nodeRecord(props))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Name != u.Name || got.YearOfBirth != u.YearOfBirth {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.ActiveSince.Equal(since) {
		t.Fatalf("unexpected active since: %v", got.ActiveSince)
	}
}
