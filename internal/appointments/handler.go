package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abdi2332/calender-app/pkg/logging"
)

// Handler wires HTTP requests to the appointment store.
type Handler struct {
	repo     Repository
	notifier ChangeNotifier
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates an appointments handler.
func NewHandler(repo Repository, notifier ChangeNotifier, logger *logging.Logger) *Handler {
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The demo UI runs on a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts the appointment endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/changes", h.Changes)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// List handles GET /appointments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	appts, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "Failed to load appointments", http.StatusBadGateway)
		return
	}
	if appts == nil {
		appts = []Appointment{}
	}
	h.writeJSON(w, http.StatusOK, appts)
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load appointment", "id", id, "error", err)
		http.Error(w, "Failed to load appointment", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	appt, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create appointment", "error", err)
		http.Error(w, "Failed to create appointment", http.StatusBadGateway)
		return
	}
	h.publishChange(r)
	h.writeJSON(w, http.StatusCreated, appt)
}

// Update handles PATCH /appointments/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch Update
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	appt, err := h.repo.Update(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "Appointment not found", http.StatusNotFound)
		case isValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to update appointment", "id", id, "error", err)
			http.Error(w, "Failed to update appointment", http.StatusBadGateway)
		}
		return
	}
	h.publishChange(r)
	h.writeJSON(w, http.StatusOK, appt)
}

// Delete handles DELETE /appointments/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete appointment", "id", id, "error", err)
		http.Error(w, "Failed to delete appointment", http.StatusBadGateway)
		return
	}
	h.publishChange(r)
	w.WriteHeader(http.StatusNoContent)
}

// Changes handles GET /appointments/changes, relaying change signals to the
// UI over a websocket so it knows when to re-fetch the list.
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade changes connection", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	signals := make(chan struct{}, 8)
	unsubscribe := h.notifier.Subscribe(r.Context(), func() {
		select {
		case signals <- struct{}{}:
		default: // coalesce: the UI only re-fetches, a backlog adds nothing
		}
	})
	defer unsubscribe()

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
		case <-signals:
			if err := conn.WriteJSON(map[string]string{"type": "changed"}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) publishChange(r *http.Request) {
	if err := h.notifier.Publish(r.Context()); err != nil {
		h.logger.Warn("failed to publish change signal", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrMissingPatientName) ||
		errors.Is(err, ErrMissingTime)
}
