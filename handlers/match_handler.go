package handlers

import (
	"errors"
	"net/http"

	"github.com/courtflow/pickleball-system/middleware"
	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/services"
)

type MatchHandler struct {
	matchService        services.MatchService
	verificationService services.VerificationService
	disputeService      services.DisputeService
}

func NewMatchHandler(
	matchService services.MatchService,
	verificationService services.VerificationService,
	disputeService services.DisputeService,
) *MatchHandler {
	return &MatchHandler{
		matchService:        matchService,
		verificationService: verificationService,
		disputeService:      disputeService,
	}
}

// GetMatchDetail godoc
// @Summary      Get match detail
// @Description  Returns the match with its score submissions and downstream bracket matches.
// @Tags         matches
// @Produce      json
// @Param        matchID path int true "Match ID"
// @Success      200 {object} services.MatchDetail
// @Router       /matches/{matchID} [get]
func (h *MatchHandler) GetMatchDetail(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	detail, err := h.matchService.GetMatchDetail(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match_detail": detail}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListDivisionMatches godoc
// @Summary      List division matches
// @Tags         matches
// @Produce      json
// @Param        divisionID path int true "Division ID"
// @Param        stage query string false "Filter by stage (pool, bracket)"
// @Param        status query string false "Filter by status"
// @Router       /divisions/{divisionID}/matches [get]
func (h *MatchHandler) ListDivisionMatches(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var stage *models.MatchStage
	if v := r.URL.Query().Get("stage"); v != "" {
		s := models.MatchStage(v)
		stage = &s
	}
	var status *models.MatchStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := models.MatchStatus(v)
		status = &s
	}

	matches, err := h.matchService.ListByDivision(r.Context(), divisionID, stage, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitScore godoc
// @Summary      Submit a match score
// @Description  Proposes a per-game score for the match and starts opponent verification.
// @Tags         matches
// @Accept       json
// @Produce      json
// @Param        matchID path int true "Match ID"
// @Security     BearerAuth
// @Router       /matches/{matchID}/score [post]
func (h *MatchHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	role, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var payload struct {
		Games models.GameScores `json:"games"`
	}
	if err := readJSON(w, r, &payload); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(payload.Games) == 0 {
		badRequestResponse(w, r, errors.New("games are required"))
		return
	}

	match, err := h.verificationService.SubmitScore(r.Context(), services.SubmitScoreInput{
		MatchID:     matchID,
		SubmitterID: userID,
		Games:       payload.Games,
		IsOrganizer: role == models.RoleOrganizer || role == models.RoleAdmin,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusAccepted, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConfirmScore godoc
// @Summary      Confirm a submitted score
// @Tags         matches
// @Produce      json
// @Param        matchID path int true "Match ID"
// @Security     BearerAuth
// @Router       /matches/{matchID}/confirm [post]
func (h *MatchHandler) ConfirmScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	match, err := h.verificationService.ConfirmScore(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DisputeScore godoc
// @Summary      Dispute a submitted score
// @Tags         matches
// @Accept       json
// @Produce      json
// @Param        matchID path int true "Match ID"
// @Security     BearerAuth
// @Router       /matches/{matchID}/dispute [post]
func (h *MatchHandler) DisputeScore(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var payload struct {
		Reason string `json:"reason"`
		Notes  string `json:"notes"`
	}
	if err := readJSON(w, r, &payload); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.verificationService.DisputeScore(r.Context(), services.DisputeInput{
		MatchID: matchID,
		UserID:  userID,
		Reason:  payload.Reason,
		Notes:   payload.Notes,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResolveDispute godoc
// @Summary      Resolve a disputed match
// @Description  Organizer decision: finalize the disputed score, edit it, or void the match for a replay.
// @Tags         matches
// @Accept       json
// @Produce      json
// @Param        matchID path int true "Match ID"
// @Security     BearerAuth
// @Router       /matches/{matchID}/resolve [post]
func (h *MatchHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}
	role, err := middleware.GetUserRoleFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	var payload struct {
		Action string            `json:"action"`
		Games  models.GameScores `json:"games"`
	}
	if err := readJSON(w, r, &payload); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.disputeService.ResolveDispute(r.Context(), services.ResolveDisputeInput{
		MatchID:     matchID,
		OrganizerID: userID,
		IsOrganizer: role == models.RoleOrganizer || role == models.RoleAdmin,
		Action:      services.DisputeAction(payload.Action),
		NewGames:    payload.Games,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
