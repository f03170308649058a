package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"trackrank/internal/app/library"
	"trackrank/internal/store"
)

type saveAlbumRequest struct {
	AlbumName        string          `json:"album_name"`
	ArtistName       string          `json:"artist_name"`
	CoverImage       *string         `json:"cover_image"`
	OrderedIDs       json.RawMessage `json:"ordered_ids"`
	Comparisons      json.RawMessage `json:"comparisons"`
	ComparisonsCount *int            `json:"comparisons_count"`
}

type saveAlbumResponse struct {
	Success      bool   `json:"success"`
	Created      bool   `json:"created"`
	SavedAlbumID int64  `json:"saved_album_id"`
	RankingID    *int64 `json:"ranking_id"`
}

func (s *Server) handleSaveAlbum(w http.ResponseWriter, r *http.Request) {
	actor, r, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req saveAlbumRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	saveReq := library.SaveRequest{
		Fallback: store.AlbumMetadata{
			Name:       req.AlbumName,
			Artist:     req.ArtistName,
			CoverImage: req.CoverImage,
		},
	}

	if hasValue(req.OrderedIDs) {
		sub, err := submitRequest{
			OrderedIDs:       req.OrderedIDs,
			Comparisons:      req.Comparisons,
			ComparisonsCount: req.ComparisonsCount,
		}.submission()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		saveReq.Submission = &sub
	}

	res, err := s.library.Save(r.Context(), actor.UserID, r.PathValue("albumID"), saveReq)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	resp := saveAlbumResponse{Success: true, Created: res.Created, SavedAlbumID: res.Album.ID}
	if res.Ranking != nil {
		id := res.Ranking.ID
		resp.RankingID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnsaveAlbum(w http.ResponseWriter, r *http.Request) {
	actor, r, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := s.library.Unsave(r.Context(), actor.UserID, r.PathValue("albumID")); err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func (s *Server) handleSaveRanking(w http.ResponseWriter, r *http.Request) {
	actor, r, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	sub, err := req.submission()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.rankings.SaveRanking(r.Context(), actor, r.PathValue("albumID"), sub)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success   bool  `json:"success"`
		RankingID int64 `json:"ranking_id"`
	}{Success: true, RankingID: saved.ID})
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	actor, r, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	entries, err := s.library.List(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Albums []store.LibraryEntry `json:"albums"`
	}{Albums: entries})
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
