package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codejam/backend/internal/models"
)

// TeamManager performs team and member changes requested by the chat bot.
type TeamManager interface {
	RegisterMember(ctx context.Context, req models.RegisterMemberRequest) (models.MemberResponse, error)
	CreateTeam(ctx context.Context, req models.CreateTeamRequest) (models.CreateTeamResponse, error)
	RenameTeam(ctx context.Context, teamID int64, name string) (models.TeamResponse, error)
	DeleteTeam(ctx context.Context, teamID int64) error
	JoinTeam(ctx context.Context, memberID int64, invite string) (models.MemberResponse, error)
	LeaveTeam(ctx context.Context, memberID int64) (models.MemberResponse, error)
}

// TeamHandler exposes team administration to the chat bot. All routes sit
// behind BackendAuth.
type TeamHandler struct {
	teams TeamManager
}

func NewTeamHandler(teams TeamManager) *TeamHandler {
	return &TeamHandler{teams: teams}
}

func (h *TeamHandler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.teams.RegisterMember(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	team, err := h.teams.CreateTeam(r.Context(), req)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) RenameTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "team_id")
	if !ok {
		return
	}
	var req models.RenameTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	team, err := h.teams.RenameTeam(r.Context(), teamID, req.Name)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "team_id")
	if !ok {
		return
	}

	if err := h.teams.DeleteTeam(r.Context(), teamID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMemberTeam joins the team named by the invite, or leaves the current
// team when no invite is given.
func (h *TeamHandler) SetMemberTeam(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "member_id")
	if !ok {
		return
	}
	var req models.SetMemberTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		member models.MemberResponse
		err    error
	)
	if req.Invite == "" {
		member, err = h.teams.LeaveTeam(r.Context(), memberID)
	} else {
		member, err = h.teams.JoinTeam(r.Context(), memberID, req.Invite)
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// pathID parses a numeric URL parameter, writing a 404 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
