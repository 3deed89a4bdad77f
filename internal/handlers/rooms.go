package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jeff-Emmett/collective-boredom-dial/internal/logging"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/models"
	"github.com/Jeff-Emmett/collective-boredom-dial/internal/registry"
)

// RoomHandler serves the administrative surface: health, room creation, and
// room stats lookup. It never mutates participant tables.
type RoomHandler struct {
	reg *registry.Registry
}

// NewRoomHandler creates a RoomHandler over the given registry.
func NewRoomHandler(reg *registry.Registry) *RoomHandler {
	return &RoomHandler{reg: reg}
}

// Health reports process status, the total room count, and the global
// room's live participant count.
func (h *RoomHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:      "ok",
		Rooms:       h.reg.RoomCount(),
		GlobalUsers: h.reg.GlobalLiveCount(),
	})
}

// Create allocates a new room. The JSON body is optional; an empty body
// means no display name was requested.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorWithCause(r.Context(), w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	roomID, roomName := h.reg.CreateRoom(req.Name)
	if attrs := logging.GetRequestAttrs(r.Context()); attrs != nil {
		attrs.RoomID = roomID
	}
	writeJSON(w, http.StatusOK, models.CreateRoomResponse{
		RoomID:   roomID,
		RoomName: roomName,
	})
}

// GetStats returns the current aggregate for a room, or 404 when the room
// does not exist. Lookup is case-insensitive like joins; the response
// carries the room's canonical identifier.
func (h *RoomHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "roomID")

	stats, roomID, roomName, ok := h.reg.Stats(requested)
	if !ok {
		writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	if attrs := logging.GetRequestAttrs(r.Context()); attrs != nil {
		attrs.RoomID = roomID
	}
	writeJSON(w, http.StatusOK, models.RoomStatsResponse{
		RoomID:    roomID,
		RoomName:  roomName,
		RoomStats: stats,
	})
}
