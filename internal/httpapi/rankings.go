package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"trackrank/internal/app/rankings"
	"trackrank/internal/logging"
	"trackrank/internal/ranking"
)

type submitRequest struct {
	OrderedIDs       json.RawMessage `json:"ordered_ids"`
	Comparisons      json.RawMessage `json:"comparisons"`
	ComparisonsCount *int            `json:"comparisons_count"`
	SaveAfterSubmit  bool            `json:"save_after_submit"`
}

// submission converts the body into a Submission, rejecting ordered_ids that are
// not a non-empty list of strings.
func (req submitRequest) submission() (rankings.Submission, error) {
	ids, err := ranking.DecodeOrder(req.OrderedIDs)
	if err != nil {
		return rankings.Submission{}, err
	}
	return rankings.Submission{
		OrderedIDs:       ids,
		Comparisons:      req.Comparisons,
		ComparisonsCount: req.ComparisonsCount,
		SaveAfterSubmit:  req.SaveAfterSubmit,
	}, nil
}

func (s *Server) handleSubmitRanking(w http.ResponseWriter, r *http.Request) {
	actor, r, err := s.actor(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
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

	outcome, err := s.rankings.Submit(r.Context(), actor, r.PathValue("albumID"), sub)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRankingResult(w http.ResponseWriter, r *http.Request) {
	actor, r, err := s.actor(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
		return
	}

	result, err := s.rankings.Result(r.Context(), actor, r.PathValue("albumID"))
	if err != nil {
		writeServiceError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

var csvHeader = []string{"Rank", "Track Name", "Duration (ms)", "Duration (M:SS)", "Track Number"}

func (s *Server) handleRankingCSV(w http.ResponseWriter, r *http.Request) {
	actor, r, err := s.actor(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid bearer token"})
		return
	}

	albumID := r.PathValue("albumID")
	result, err := s.rankings.Result(r.Context(), actor, albumID)
	if err != nil {
		writeServiceError(w, r, err, http.StatusInternalServerError)
		return
	}
	if result.Status != rankings.StatusRanked {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no ranking for this album yet"})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "ranking-"+albumID+".csv"))
	w.WriteHeader(http.StatusOK)

	if err := writeRankingCSV(w, result.Tracks); err != nil {
		logging.WithContext(r.Context()).Error().Err(err).Str("album_id", albumID).Msg("write ranking csv")
	}
}

func writeRankingCSV(out io.Writer, tracks []ranking.DisplayTrack) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range tracks {
		record := []string{
			strconv.Itoa(t.Rank),
			t.Name,
			optionalInt(t.DurationMS),
			t.Duration,
			optionalInt(t.TrackNumber),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// decodeOptionalBody decodes a JSON body that may be empty.
func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
