package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"trackrank/internal/app/albums"
	"trackrank/internal/app/library"
	"trackrank/internal/app/rankings"
	"trackrank/internal/auth"
	"trackrank/internal/catalog"
	"trackrank/internal/logging"
	"trackrank/internal/ranking"
	"trackrank/internal/store"
)

// UserService captures the account operations needed by the HTTP handlers.
type UserService interface {
	Signup(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) (string, error)
	Identify(ctx context.Context, token string) (int64, error)
}

// AlbumService exposes catalog browsing.
type AlbumService interface {
	Search(ctx context.Context, query string, limit int) ([]catalog.Album, error)
	Detail(ctx context.Context, albumID string, userID int64) (albums.Detail, error)
}

// RankingService runs ranking submission and result lookup.
type RankingService interface {
	Submit(ctx context.Context, actor rankings.Actor, albumID string, sub rankings.Submission) (rankings.Outcome, error)
	SaveRanking(ctx context.Context, actor rankings.Actor, albumID string, sub rankings.Submission) (store.Ranking, error)
	Result(ctx context.Context, actor rankings.Actor, albumID string) (rankings.Result, error)
}

// LibraryService manages a user's saved albums.
type LibraryService interface {
	Save(ctx context.Context, userID int64, albumID string, req library.SaveRequest) (store.SaveResult, error)
	Unsave(ctx context.Context, userID int64, albumID string) error
	List(ctx context.Context, userID int64) ([]store.LibraryEntry, error)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users    UserService
	albums   AlbumService
	rankings RankingService
	library  LibraryService
}

// New configures a Server with the given services.
func New(users UserService, albums AlbumService, rankings RankingService, library LibraryService) *Server {
	return &Server{
		users:    users,
		albums:   albums,
		rankings: rankings,
		library:  library,
	}
}

// Routes exposes the HTTP handlers for accounts, albums, rankings and the library.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/v1/auth/signup", s.handleSignup)
	mux.HandleFunc("/api/v1/auth/login", s.handleLogin)

	// Albums
	mux.HandleFunc("GET /api/v1/albums/search", s.handleSearchAlbums)
	mux.HandleFunc("GET /api/v1/albums/{albumID}", s.handleAlbumDetail)

	// Ranking
	mux.HandleFunc("POST /api/v1/rank/{albumID}/submit", s.handleSubmitRanking)
	mux.HandleFunc("GET /api/v1/rank/{albumID}/result", s.handleRankingResult)
	mux.HandleFunc("GET /api/v1/rank/{albumID}/result.csv", s.handleRankingCSV)

	// Library
	mux.HandleFunc("GET /api/v1/library", s.handleListLibrary)
	mux.HandleFunc("POST /api/v1/library/{albumID}/save", s.handleSaveAlbum)
	mux.HandleFunc("POST /api/v1/library/{albumID}/unsave", s.handleUnsaveAlbum)
	mux.HandleFunc("POST /api/v1/library/{albumID}/ranking", s.handleSaveRanking)

	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	if err := s.users.Signup(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "username already taken"})
		case errors.Is(err, store.ErrInvalidUser):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			logging.WithContext(r.Context()).Error().Err(err).Msg("signup failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	token, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, store.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// actor resolves the optional bearer token and the session id. A malformed or
// expired token is an error; an absent one yields an anonymous actor.
func (s *Server) actor(r *http.Request) (rankings.Actor, *http.Request, error) {
	actor := rankings.Actor{SessionID: logging.SessionID(r.Context())}

	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return actor, r, nil
	}

	userID, err := s.users.Identify(r.Context(), token)
	if err != nil {
		return rankings.Actor{}, r, err
	}
	actor.UserID = userID
	return actor, r.WithContext(logging.WithUserID(r.Context(), userID)), nil
}

// requireUser is actor for routes that need a signed-in user. It writes the
// 401 itself and reports false when the caller should stop.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (rankings.Actor, *http.Request, bool) {
	if parseBearerToken(r.Header.Get("Authorization")) == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return rankings.Actor{}, r, false
	}

	actor, r, err := s.actor(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
		return rankings.Actor{}, r, false
	}
	return actor, r, true
}

// writeServiceError maps service errors onto responses. upstreamStatus is used
// for catalog failures, which differ between JSON APIs and the result view.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, upstreamStatus int) {
	switch {
	case ranking.IsRejection(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, rankings.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrSavedAlbumNotFound), errors.Is(err, catalog.ErrAlbumNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrUpstreamUnavailable):
		logging.WithContext(r.Context()).Warn().Err(err).Msg("catalog request failed")
		writeJSON(w, upstreamStatus, errorResponse{Error: "music catalog is unavailable, please try again"})
	default:
		logging.WithContext(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
