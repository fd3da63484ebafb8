package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/campus-clubs/internal/service"
)

// RecommendationHandler serves GET /recommendations.
type RecommendationHandler struct {
	recommendations *service.RecommendationService
	logger          *slog.Logger
}

func NewRecommendationHandler(recs *service.RecommendationService, logger *slog.Logger) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recs, logger: logger}
}

// HandleList returns clubs matching the caller's interests. No match is an
// empty array with 200.
//
// HTTP: GET /recommendations
func (h *RecommendationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	clubs, err := h.recommendations.Recommend(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clubs)
}
