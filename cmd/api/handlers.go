package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leomillan/movierec/engine/catalog"
	"github.com/leomillan/movierec/engine/recommend"
	"github.com/leomillan/movierec/engine/vector"
	"github.com/leomillan/movierec/pkg/metrics"
	"github.com/leomillan/movierec/pkg/mid"
	"github.com/leomillan/movierec/pkg/resilience"
)

// SubjectRecsServed is the NATS subject recommendation-served events are
// published on.
const SubjectRecsServed = "movierec.recs.served"

// ServedEvent records one recommendation response for downstream analytics.
type ServedEvent struct {
	Mode         string    `json:"mode"` // "movie" or "user"
	EntityID     int64     `json:"entity_id"`
	Count        int       `json:"count"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ServedAt     time.Time `json:"served_at"`
}

type publishFunc func(ctx context.Context, subject string, ev ServedEvent) error

// recommender is the slice of recommend.Service the handlers use.
type recommender interface {
	ByMovie(ctx context.Context, movieID int64, neighbors int) (*recommend.MovieResult, error)
	ByUser(ctx context.Context, userID int64, count int) (*recommend.UserResult, error)
}

// userStore is the slice of catalog.Store the user handlers use.
type userStore interface {
	GetUser(ctx context.Context, id int64) (catalog.User, error)
	CreateUser(ctx context.Context, u catalog.User) (catalog.User, error)
}

type server struct {
	recs    recommender
	users   userStore
	publish publishFunc // may be nil
	logger  *slog.Logger

	servedMovie *metrics.Counter
	servedUser  *metrics.Counter
	fallbacks   *metrics.Counter
	notFound    *metrics.Counter
	latency     *metrics.Histogram
}

func newServer(recs recommender, users userStore, publish publishFunc, logger *slog.Logger, reg *metrics.Registry) *server {
	return &server{
		recs:    recs,
		users:   users,
		publish: publish,
		logger:  logger,
		servedMovie: reg.Counter(
			metrics.WithLabels("recommendations_served_total", "mode", "movie"),
			"Recommendation responses served"),
		servedUser: reg.Counter(
			metrics.WithLabels("recommendations_served_total", "mode", "user"),
			"Recommendation responses served"),
		fallbacks: reg.Counter("recommendation_fallbacks_total",
			"User responses served from the popularity fallback"),
		notFound: reg.Counter("recommendation_not_found_total",
			"Requests for unknown movies or users"),
		latency: reg.Histogram("recommendation_duration_seconds",
			"Time to assemble a recommendation response", metrics.DefaultBuckets),
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMovieRecs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	neighbors := queryInt(r, "neighbors", 0)

	defer s.latency.Since(time.Now())
	result, err := s.recs.ByMovie(r.Context(), id, neighbors)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.servedMovie.Inc()
	s.emit(r, ServedEvent{
		Mode:     "movie",
		EntityID: id,
		Count:    len(result.Recommendations),
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleUserRecs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	count := queryInt(r, "count", 0)

	defer s.latency.Since(time.Now())
	result, err := s.recs.ByUser(r.Context(), id, count)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.servedUser.Inc()
	if result.FallbackUsed {
		s.fallbacks.Inc()
	}
	s.emit(r, ServedEvent{
		Mode:         "user",
		EntityID:     id,
		Count:        len(result.Recommendations),
		FallbackUsed: result.FallbackUsed,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := s.users.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateUserRequest is the JSON body for POST /api/users.
type CreateUserRequest struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	YearOfBirth int    `json:"year_of_birth"`
	Gender      string `json:"gender"`
	Zipcode     string `json:"zipcode"`
	Occupation  string `json:"occupation"`
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ID == 0 {
		writeJSONError(w, http.StatusBadRequest, "id is required")
		return
	}

	user, err := s.users.CreateUser(r.Context(), catalog.User{
		ID:          req.ID,
		Name:        req.Name,
		YearOfBirth: req.YearOfBirth,
		Gender:      req.Gender,
		Zipcode:     req.Zipcode,
		Occupation:  req.Occupation,
		ActiveSince: time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// emit publishes a served event if NATS is wired. Publish failures are
// logged, never surfaced to the client.
func (s *server) emit(r *http.Request, ev ServedEvent) {
	if s.publish == nil {
		return
	}
	ev.RequestID = mid.RequestIDFrom(r.Context())
	ev.ServedAt = time.Now().UTC()
	if err := s.publish(r.Context(), SubjectRecsServed, ev); err != nil {
		s.logger.Warn("event publish failed", "subject", SubjectRecsServed, "err", err)
	}
}

// writeError maps engine errors onto HTTP statuses.
func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		s.notFound.Inc()
		writeJSONError(w, http.StatusNotFound, "movie not found")
	case errors.Is(err, catalog.ErrUserNotFound):
		s.notFound.Inc()
		writeJSONError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, resilience.ErrCircuitOpen):
		s.logger.Warn("request rejected, vector index circuit open")
		writeJSONError(w, http.StatusServiceUnavailable, "recommendation index unavailable")
	case isRetrieval(err):
		s.logger.Error("vector retrieval failed", "err", err)
		writeJSONError(w, http.StatusBadGateway, "recommendation index unavailable")
	default:
		s.logger.Error("request failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isRetrieval(err error) bool {
	var re *vector.RetrievalError
	return errors.As(err, &re)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
