package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/repository"
	"github.com/sakif/campus-clubs/internal/service"
)

// ClubHandler serves the /clubs routes. Browsing is public; creating,
// joining and anything touching the roster needs a bearer token.
type ClubHandler struct {
	clubs  *service.ClubService
	logger *slog.Logger
}

func NewClubHandler(clubs *service.ClubService, logger *slog.Logger) *ClubHandler {
	return &ClubHandler{clubs: clubs, logger: logger}
}

// HandleList returns clubs, optionally paged.
//
// HTTP: GET /clubs?limit=20&offset=40
func (h *ClubHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	clubs, err := h.clubs.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clubs)
}

// HandleSearch matches clubs by name, description or categories.
//
// HTTP: GET /clubs/search?query=chess
func (h *ClubHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	clubs, err := h.clubs.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clubs)
}

// HandleGet returns one club with its members.
//
// HTTP: GET /clubs/{id}
func (h *ClubHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	club, err := h.clubs.Get(r.Context(), clubID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleCreate founds a club. The caller becomes its first Admin.
//
// HTTP: POST /clubs
// REQUEST BODY: {"name": "Chess", "description": "...", "categories": "Games"}
// RESPONSE: 201 Created, Location: /clubs/{id}
func (h *ClubHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in service.ClubInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	club, err := h.clubs.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/clubs/%d", club.ID))
	writeJSON(w, http.StatusCreated, club)
}

// HandleJoin adds the caller to the club as a Member.
//
// HTTP: POST /clubs/{id}/join
func (h *ClubHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	clubID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	club, err := h.clubs.Join(r.Context(), clubID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

// HandleMembers lists the roster. Members only.
//
// HTTP: GET /clubs/{id}/members
func (h *ClubHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	clubID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	members, err := h.clubs.Members(r.Context(), clubID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandlePromote makes a member an Admin. Admins only.
//
// HTTP: PUT /clubs/{id}/promote/{userId}
// RESPONSE: the updated roster
func (h *ClubHandler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	requesterID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	clubID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	targetID := chi.URLParam(r, "userId")
	if targetID == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("userId", "userId is required"))
		return
	}

	members, err := h.clubs.Promote(r.Context(), clubID, targetID, requesterID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// listOptions reads ?limit and ?offset. Missing means zero.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed(p.name, fmt.Sprintf("%s must be a non-negative integer", p.name))
		}
		*p.dst = n
	}
	return opts, nil
}
