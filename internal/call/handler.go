package call

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/pkg/logging"
)

// Handler wires HTTP requests to the call manager.
type Handler struct {
	manager  *Manager
	archive  *TranscriptArchive
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a call handler. archive may be nil.
func NewHandler(manager *Manager, archive *TranscriptArchive, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		manager: manager,
		archive: archive,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The demo UI runs on a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts the call endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{callID}", h.Get)
	r.Post("/{callID}/message", h.Message)
	r.Post("/{callID}/hangup", h.HangUp)
	r.Delete("/{callID}", h.Dismiss)
	r.Get("/{callID}/ws", h.Events)
	r.Get("/{callID}/turns/{index}/audio", h.TurnAudio)
	return r
}

// Start handles POST /appointments/{id}/call. It is mounted next to the
// appointment routes.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "id")
	session, err := h.manager.Start(r.Context(), appointmentID)
	if err != nil {
		switch {
		case errors.Is(err, appointments.ErrNotFound):
			http.Error(w, "Appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrCallInProgress):
			http.Error(w, "A call for this appointment is already in progress", http.StatusConflict)
		default:
			h.logger.Error("failed to start call", "appointment_id", appointmentID, "error", err)
			http.Error(w, "Failed to start call", http.StatusBadGateway)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, session.Snapshot())
}

// Get handles GET /calls/{callID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, session.Snapshot())
}

type messageRequest struct {
	Text string `json:"text"`
}

// Message handles POST /calls/{callID}/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "Message text is required", http.StatusBadRequest)
		return
	}

	turn, err := session.Submit(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotActive):
			http.Error(w, "Call is not accepting messages", http.StatusConflict)
		case errors.Is(err, ErrReplyPending):
			http.Error(w, "A reply is already pending", http.StatusConflict)
		default:
			h.logger.Error("failed to submit message", "call_id", session.ID(), "error", err)
			http.Error(w, "Failed to submit message", http.StatusBadGateway)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, turn)
}

// HangUp handles POST /calls/{callID}/hangup.
func (h *Handler) HangUp(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.HangUp()
	h.writeJSON(w, http.StatusOK, session.Snapshot())
}

// Dismiss handles DELETE /calls/{callID}, removing the call immediately.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "callID")
	if err := h.manager.Dismiss(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "Call not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to dismiss call", "call_id", id, "error", err)
		http.Error(w, "Failed to dismiss call", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TurnAudio handles GET /calls/{callID}/turns/{index}/audio.
func (h *Handler) TurnAudio(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		http.Error(w, "Invalid turn index", http.StatusBadRequest)
		return
	}
	audio, err := session.TurnAudio(index)
	if err != nil {
		http.Error(w, "No audio for this turn", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.logger.Error("failed to write audio response", "error", err)
	}
}

// Events handles GET /calls/{callID}/ws, streaming call events over a
// websocket. The first frame is a full snapshot so late subscribers can
// render the transcript so far.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade call events connection", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	if err := conn.WriteJSON(map[string]any{"type": "snapshot", "call": session.Snapshot()}); err != nil {
		return
	}

	// Reader goroutine detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// Transcripts handles GET /appointments/{id}/transcripts, returning the
// archived calls for an appointment. It is mounted next to the
// appointment routes.
func (h *Handler) Transcripts(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "id")
	if h.archive == nil {
		h.writeJSON(w, http.StatusOK, []TranscriptRecord{})
		return
	}
	records, err := h.archive.Recent(r.Context(), appointmentID)
	if err != nil {
		h.logger.Error("failed to load transcripts", "appointment_id", appointmentID, "error", err)
		http.Error(w, "Failed to load transcripts", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := chi.URLParam(r, "callID")
	session, err := h.manager.Get(id)
	if err != nil {
		http.Error(w, "Call not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
