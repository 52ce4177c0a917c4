package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/leomillan/movierec/engine/catalog"
)

// The source exports use a handful of date formats depending on which tool
// produced them.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// header maps column names to indexes for header-driven CSV files.
type header map[string]int

func readHeader(rec []string) header {
	h := make(header, len(rec))
	for i, name := range rec {
		h[strings.TrimSpace(name)] = i
	}
	return h
}

func (h header) get(rec []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseUsers joins the account export with the person export on id. Rows in
// either file without a matching counterpart are dropped.
func parseUsers(accounts, people io.Reader) ([]catalog.User, error) {
	type person struct {
		name        string
		yearOfBirth int
		gender      string
		zipcode     string
	}

	pr := csv.NewReader(people)
	persons := make(map[int64]person)
	var ph header
	for {
		rec, err := pr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("people csv: %w", err)
		}
		if ph == nil {
			ph = readHeader(rec)
			continue
		}
		id, err := strconv.ParseInt(ph.get(rec, "id"), 10, 64)
		if err != nil {
			continue
		}
		yob, _ := strconv.Atoi(ph.get(rec, "year of birth"))
		persons[id] = person{
			name:        ph.get(rec, "Full Name"),
			yearOfBirth: yob,
			gender:      ph.get(rec, "Gender"),
			zipcode:     ph.get(rec, "Zip Code"),
		}
	}

	ar := csv.NewReader(accounts)
	var users []catalog.User
	var ah header
	for {
		rec, err := ar.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("users csv: %w", err)
		}
		if ah == nil {
			ah = readHeader(rec)
			continue
		}
		id, err := strconv.ParseInt(ah.get(rec, "id"), 10, 64)
		if err != nil {
			continue
		}
		p, ok := persons[id]
		if !ok {
			continue
		}
		u := catalog.User{
			ID:          id,
			Name:        p.name,
			YearOfBirth: p.yearOfBirth,
			Gender:      p.gender,
			Zipcode:     p.zipcode,
			Occupation:  ah.get(rec, "Occupation"),
		}
		if t, err := parseDate(ah.get(rec, "Active Since")); err == nil {
			u.ActiveSince = t
		}
		users = append(users, u)
	}
	return users, nil
}

// movieFixedColumns are the non-genre columns of the movie export. Every
// other column is a 0/1 genre flag named after the genre.
var movieFixedColumns = map[string]bool{
	"id":           true,
	"Name":         true,
	"Release Date": true,
	"IMDB URL":     true,
}

// parseMovies reads the movie export, folding the one-hot genre columns
// into a genre list. Rows without a parseable release date are dropped.
func parseMovies(r io.Reader) ([]catalog.Movie, error) {
	cr := csv.NewReader(r)
	var movies []catalog.Movie
	var h header
	var genreCols []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("movies csv: %w", err)
		}
		if h == nil {
			h = readHeader(rec)
			for _, name := range rec {
				name = strings.TrimSpace(name)
				if !movieFixedColumns[name] {
					genreCols = append(genreCols, name)
				}
			}
			continue
		}
		id, err := strconv.ParseInt(h.get(rec, "id"), 10, 64)
		if err != nil {
			continue
		}
		released, err := parseDate(h.get(rec, "Release Date"))
		if err != nil {
			continue
		}
		var genres []string
		for _, g := range genreCols {
			if h.get(rec, g) == "1" {
				genres = append(genres, g)
			}
		}
		movies = append(movies, catalog.Movie{
			ID:          id,
			Name:        h.get(rec, "Name"),
			URL:         h.get(rec, "IMDB URL"),
			Genres:      genres,
			ReleaseDate: released,
		})
	}
	return movies, nil
}

// parseRatings reads the score export. Columns are positional:
// id, user_id, movie_id, rating, date.
func parseRatings(r io.Reader) ([]catalog.Rating, error) {
	cr := csv.NewReader(r)
	var ratings []catalog.Rating
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ratings csv: %w", err)
		}
		if first {
			first = false
			continue
		}
		if len(rec) < 5 {
			continue
		}
		userID, err1 := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		movieID, err2 := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64)
		score, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		rating := catalog.Rating{UserID: userID, MovieID: movieID, Score: score}
		if t, err := parseDate(rec[4]); err == nil {
			rating.Date = t
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

// filterRatings drops ratings that reference an unknown movie or user.
func filterRatings(ratings []catalog.Rating, movies []catalog.Movie, users []catalog.User) []catalog.Rating {
	movieIDs := make(map[int64]struct{}, len(movies))
	for _, m := range movies {
		movieIDs[m.ID] = struct{}{}
	}
	userIDs := make(map[int64]struct{}, len(users))
	for _, u := range users {
		userIDs[u.ID] = struct{}{}
	}

	kept := ratings[:0]
	for _, r := range ratings {
		if _, ok := movieIDs[r.MovieID]; !ok {
			continue
		}
		if _, ok := userIDs[r.UserID]; !ok {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
