package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leomillan/movierec/engine/catalog"
	"github.com/leomillan/movierec/engine/recommend"
	"github.com/leomillan/movierec/engine/vector"
	"github.com/leomillan/movierec/pkg/metrics"
	"github.com/leomillan/movierec/pkg/resilience"
)

type fakeRecs struct {
	movieFn func(ctx context.Context, id int64, n int) (*recommend.MovieResult, error)
	userFn  func(ctx context.Context, id int64, n int) (*recommend.UserResult, error)
}

func (f *fakeRecs) ByMovie(ctx context.Context, id int64, n int) (*recommend.MovieResult, error) {
	return f.movieFn(ctx, id, n)
}

func (f *fakeRecs) ByUser(ctx context.Context, id int64, n int) (*recommend.UserResult, error) {
	return f.userFn(ctx, id, n)
}

type fakeUsers struct {
	getFn    func(ctx context.Context, id int64) (catalog.User, error)
	createFn func(ctx context.Context, u catalog.User) (catalog.User, error)
}

func (f *fakeUsers) GetUser(ctx context.Context, id int64) (catalog.User, error) {
	return f.getFn(ctx, id)
}

func (f *fakeUsers) CreateUser(ctx context.Context, u catalog.User) (catalog.User, error) {
	return f.createFn(ctx, u)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(recs recommender, users userStore, publish publishFunc) *server {
	return newServer(recs, users, publish, testLogger(), metrics.New())
}

func getWithID(h http.HandlerFunc, path, id string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestMovieRecs(t *testing.T) {
	recs := &fakeRecs{
		movieFn: func(_ context.Context, id int64, n int) (*recommend.MovieResult, error) {
			if id != 42 {
				t.Fatalf("expected id 42, got %d", id)
			}
			if n != 10 {
				t.Fatalf("expected neighbors 10, got %d", n)
			}
			return &recommend.MovieResult{
				Movie: recommend.SeedMovie{ID: 42, Name: "Heat"},
				Recommendations: []recommend.Recommendation{
					{MovieID: 7, Name: "Ronin", Score: 0.9},
				},
			}, nil
		},
	}
	s := newTestServer(recs, nil, nil)

	w := getWithID(s.handleMovieRecs, "/api/movies/42/recommendations?neighbors=10", "42")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result recommend.MovieResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0].MovieID != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if s.servedMovie.Value() != 1 {
		t.Fatal("expected served counter increment")
	}
}

func TestMovieRecsNotFound(t *testing.T) {
	recs := &fakeRecs{
		movieFn: func(context.Context, int64, int) (*recommend.MovieResult, error) {
			return nil, catalog.ErrMovieNotFound
		},
	}
	s := newTestServer(recs, nil, nil)

	w := getWithID(s.handleMovieRecs, "/api/movies/999/recommendations", "999")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMovieRecsBadID(t *testing.T) {
	s := newTestServer(nil, nil, nil)
	w := getWithID(s.handleMovieRecs, "/api/movies/abc/recommendations", "abc")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMovieRecsIndexDown(t *testing.T) {
	recs := &fakeRecs{
		movieFn: func(context.Context, int64, int) (*recommend.MovieResult, error) {
			return nil, &vector.RetrievalError{Collection: "movies", Op: "search", Err: errors.New("unavailable")}
		},
	}
	s := newTestServer(recs, nil, nil)

	w := getWithID(s.handleMovieRecs, "/api/movies/1/recommendations", "1")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestMovieRecsCircuitOpen(t *testing.T) {
	recs := &fakeRecs{
		movieFn: func(context.Context, int64, int) (*recommend.MovieResult, error) {
			return nil, resilience.ErrCircuitOpen
		},
	}
	s := newTestServer(recs, nil, nil)

	w := getWithID(s.handleMovieRecs, "/api/movies/1/recommendations", "1")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestUserRecsPublishesEvent(t *testing.T) {
	recs := &fakeRecs{
		userFn: func(context.Context, int64, int) (*recommend.UserResult, error) {
			return &recommend.UserResult{
				User:            recommend.SeedUser{ID: 5, Name: "alice"},
				Recommendations: []recommend.Recommendation{{MovieID: 100}},
				FallbackUsed:    true,
			}, nil
		},
	}
	var published []ServedEvent
	publish := func(_ context.Context, subject string, ev ServedEvent) error {
		if subject != SubjectRecsServed {
			t.Fatalf("unexpected subject %q", subject)
		}
		published = append(published, ev)
		return nil
	}
	s := newTestServer(recs, nil, publish)

	w := getWithID(s.handleUserRecs, "/api/users/5/recommendations", "5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	ev := published[0]
	if ev.Mode != "user" || ev.EntityID != 5 || ev.Count != 1 || !ev.FallbackUsed {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if s.fallbacks.Value() != 1 {
		t.Fatal("expected fallback counter increment")
	}
}

func TestUserRecsPublishFailureIgnored(t *testing.T) {
	recs := &fakeRecs{
		userFn: func(context.Context, int64, int) (*recommend.UserResult, error) {
			return &recommend.UserResult{User: recommend.SeedUser{ID: 5}}, nil
		},
	}
	publish := func(context.Context, string, ServedEvent) error {
		return errors.New("nats down")
	}
	s := newTestServer(recs, nil, publish)

	w := getWithID(s.handleUserRecs, "/api/users/5/recommendations", "5")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite publish failure, got %d", w.Code)
	}
}

func TestGetUserNotFound(t *testing.T) {
	users := &fakeUsers{
		getFn: func(context.Context, int64) (catalog.User, error) {
			return catalog.User{}, catalog.ErrUserNotFound
		},
	}
	s := newTestServer(nil, users, nil)

	w := getWithID(s.handleGetUser, "/api/users/999", "999")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateUser(t *testing.T) {
	users := &fakeUsers{
		createFn: func(_ context.Context, u catalog.User) (catalog.User, error) {
			if u.Name != "bob" || u.ID != 7 {
				t.Fatalf("unexpected user: %+v", u)
			}
			if u.ActiveSince.IsZero() {
				t.Fatal("expected ActiveSince to be set")
			}
			return u, nil
		},
	}
	s := newTestServer(nil, users, nil)

	body := strings.NewReader(`{"id":7,"name":"bob","year_of_birth":1990,"gender":"M"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/users", body)
	w := httptest.NewRecorder()
	s.handleCreateUser(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateUserValidation(t *testing.T) {
	s := newTestServer(nil, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{broken`},
		{"missing name", `{"id":7}`},
		{"missing id", `{"name":"bob"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			s.handleCreateUser(w, r)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}
