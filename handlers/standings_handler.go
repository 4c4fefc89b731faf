package handlers

import (
	"net/http"

	"github.com/courtflow/pickleball-system/services"
)

type StandingsHandler struct {
	standingsService services.StandingsService
}

func NewStandingsHandler(standingsService services.StandingsService) *StandingsHandler {
	return &StandingsHandler{standingsService: standingsService}
}

// GetDivisionStandings godoc
// @Summary      Get division pool standings
// @Tags         standings
// @Produce      json
// @Param        divisionID path int true "Division ID"
// @Param        pool query string false "Limit to a single pool"
// @Router       /divisions/{divisionID}/standings [get]
func (h *StandingsHandler) GetDivisionStandings(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	pool := r.URL.Query().Get("pool")

	var standings interface{}
	if pool != "" {
		standings, err = h.standingsService.GetPoolStandings(r.Context(), divisionID, pool)
	} else {
		standings, err = h.standingsService.GetDivisionStandings(r.Context(), divisionID)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
