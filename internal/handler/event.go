package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/campus-clubs/internal/service"
)

// EventHandler serves the /events routes. Every route needs a bearer token
// and only ever shows events of clubs the caller belongs to.
type EventHandler struct {
	events *service.EventService
	logger *slog.Logger
}

func NewEventHandler(events *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// HandleList returns the caller's events, soonest first.
//
// HTTP: GET /events
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	events, err := h.events.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleSearch narrows HandleList by a text query.
//
// HTTP: GET /events/search?query=hike
func (h *EventHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	events, err := h.events.Search(r.Context(), r.URL.Query().Get("query"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGet returns one event if the caller is a member of its club.
//
// HTTP: GET /events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event, err := h.events.Get(r.Context(), eventID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// HandleCreate adds an event to a club the caller administers.
//
// HTTP: POST /events
// REQUEST BODY: {"clubId": 1, "title": "...", "description": "...", "location": "...", "dateTime": "2026-03-14T18:30:00Z"}
// RESPONSE: 201 Created, Location: /events/{id}
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in service.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event, err := h.events.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/events/%d", event.ID))
	writeJSON(w, http.StatusCreated, event)
}
