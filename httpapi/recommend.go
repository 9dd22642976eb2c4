package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/moreskylab/Sentio/recommend"
)

type recommendResponse struct {
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "POST method required")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	q, err := recommend.ParseQuery(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	recs, err := s.recommender.Recommend(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, recommendResponse{Recommendations: recs})
	case errors.Is(err, recommend.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, recommend.ErrNotFound):
		writeError(w, http.StatusNotFound, "Article not found")
	default:
		s.logf("httpapi: recommend: %v", err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
	}
}
