package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/relay"
)

type Handler struct {
	gw       *relay.Gateway
	validate *validator.Validate
}

func NewHandler(gw *relay.Gateway) *Handler {
	v := validator.New()
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return domain.ValidRoomID(fl.Field().String())
	})
	return &Handler{gw: gw, validate: v}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRoom):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRoomID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Service:   "relay-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Features:  []string{"chat", "rooms", "signaling", "manual_clear"},
	})
}

// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Stats())
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoomsListResponse{Rooms: h.gw.Directory()})
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.gw.RoomSummary(id)
	if err != nil {
		writeJSON(w, toStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: domain.ErrInvalidRoomID.Error()})
		return
	}
	room, err := h.gw.CreateRoom(req.RoomID, req.RoomName)
	if err != nil {
		slog.Warn("handler.CreateRoom", "room", req.RoomID, "err", err)
		writeJSON(w, toStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// GET /rooms/{id}/messages?limit=&offset=
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			offset = n
		}
	}

	msgs, total, err := h.gw.RoomMessages(id, limit, offset)
	if err != nil {
		writeJSON(w, toStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{RoomID: id, Total: total, Messages: msgs})
}

// DELETE /rooms/{id}/messages
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.gw.ClearRoom(id); err != nil {
		writeJSON(w, toStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
