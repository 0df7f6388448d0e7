package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/emberchat/emberchat/broker"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Handler exposes the broker over HTTP: a JSON REST surface for the
// synchronous operations and websocket endpoints for the push streams. A
// fresh websocket connection always receives a snapshot frame first and the
// tail after it, so the no-gap/no-duplicate join holds per connection.
type Handler struct {
	Broker *broker.Broker

	upgrader websocket.Upgrader
	validate *validator.Validate
}

func NewHandler(b *broker.Broker) *Handler {
	return &Handler{
		Broker:   b,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		validate: validator.New(),
	}
}

func (h *Handler) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/rooms", h.createRoom).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms", h.listRooms).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{room}", h.getRoom).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{room}/messages", h.sendMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/rooms/{room}/messages", h.listMessages).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{room}/participants", h.countParticipants).Methods(http.MethodGet)
	router.HandleFunc("/ws/rooms", h.roomsSocket).Methods(http.MethodGet)
	router.HandleFunc("/ws/rooms/{room}", h.messagesSocket).Methods(http.MethodGet)
	return router
}

// CreateRoomRequest is the POST /api/rooms payload. Bounds mirror the
// broker's rules; values are trimmed before validation.
type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// SendMessageRequest is the POST /api/rooms/{room}/messages payload.
type SendMessageRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Content  string `json:"content" validate:"required,max=1000"`
}

type ParticipantsResponse struct {
	Count int `json:"count"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	req := CreateRoomRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorMessage{Error: "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorMessage{Error: err.Error()})
		return
	}
	room, err := h.Broker.CreateRoom(req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Broker.ListRooms())
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.Broker.GetRoom(mux.Vars(r)["room"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	req := SendMessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorMessage{Error: "invalid request body"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Content = strings.TrimSpace(req.Content)
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorMessage{Error: err.Error()})
		return
	}
	message, err := h.Broker.SendMessage(mux.Vars(r)["room"], req.Username, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.Broker.ListMessages(mux.Vars(r)["room"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) countParticipants(w http.ResponseWriter, r *http.Request) {
	count, err := h.Broker.CountParticipants(mux.Vars(r)["room"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Count: count})
}

// roomsSocket streams room creations. The first frame is a "rooms" snapshot
// equivalent to ListRooms, then one "room" frame per creation.
func (h *Handler) roomsSocket(w http.ResponseWriter, r *http.Request) {
	rooms, sub := h.Broker.SubscribeRoomCreated()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Cancel()
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()
	defer sub.Cancel()

	doneChan := make(chan struct{})
	c := NewClient(conn, h.Broker, "", doneChan)
	frame, err := types.NewWireMessage(types.WireEventRooms, rooms)
	if err != nil {
		globals.AppLogger.Error("could not marshal rooms snapshot", "error", err)
		return
	}
	// the send channel is empty here, the snapshot is guaranteed to be the
	// first frame on the wire
	c.Send <- frame
	go c.ForwardRooms(sub)
	go c.WriteLoop()
	c.ReadLoop()
}

// messagesSocket streams one room's messages. Snapshot and subscription are
// taken in a single critical section in the broker, then sent in order:
// "messages" snapshot, "info" with the room and participant count, then one
// "message" frame per append. Inbound "message" frames are append requests.
// The stream closes when the room is reclaimed.
func (h *Handler) messagesSocket(w http.ResponseWriter, r *http.Request) {
	roomId := mux.Vars(r)["room"]
	messages, sub, err := h.Broker.SubscribeMessages(roomId)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Cancel()
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()
	defer sub.Cancel()

	doneChan := make(chan struct{})
	c := NewClient(conn, h.Broker, roomId, doneChan)
	frame, err := types.NewWireMessage(types.WireEventMessages, messages)
	if err != nil {
		globals.AppLogger.Error("could not marshal message snapshot", "error", err)
		return
	}
	c.Send <- frame
	if room, err := h.Broker.GetRoom(roomId); err == nil {
		count, _ := h.Broker.CountParticipants(roomId)
		if frame, err := types.NewWireMessage(types.WireEventInfo, types.InfoMessage{Room: room, Participants: count}); err == nil {
			c.Send <- frame
		}
	}
	go c.ForwardMessages(sub)
	go c.WriteLoop()
	c.ReadLoop()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not write response", "error", err)
	}
}

// writeError maps the broker's error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrExpired):
		status = http.StatusGone
	}
	writeJSON(w, status, types.ErrorMessage{Error: err.Error()})
}
