package httpapi

import (
	"net/http"
	"strconv"

	"trackrank/internal/catalog"
)

func (s *Server) handleSearchAlbums(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	found, err := s.albums.Search(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Albums []catalog.Album `json:"albums"`
	}{Albums: found})
}

func (s *Server) handleAlbumDetail(w http.ResponseWriter, r *http.Request) {
	actor, r, err := s.actor(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
		return
	}

	detail, err := s.albums.Detail(r.Context(), r.PathValue("albumID"), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}
