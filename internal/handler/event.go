package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eventhub/eventhub/internal/handler/dto"
	"github.com/eventhub/eventhub/internal/middleware"
	"github.com/eventhub/eventhub/internal/service"
)

const (
	msgInvalidBody   = "invalid request body"
	msgInternalError = "internal server error"
	msgRegistered    = "registration successful"
	msgCancelled     = "registration cancelled"
)

// EventHandler handles HTTP requests for event operations.
type EventHandler struct {
	svc    *service.EventService
	logger *slog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(svc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		svc:    svc,
		logger: logger,
	}
}

// Routes returns the /events subrouter. The static /upcoming route is matched
// before /{id}.
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/upcoming", h.ListUpcoming)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/register", h.Register)
		r.Delete("/register", h.Cancel)
		r.Get("/stats", h.Stats)
	})
	return r
}

// Create handles POST /events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), service.CreateEventInput{
		Title:    req.Title,
		Datetime: req.Datetime,
		Location: req.Location,
		Capacity: req.Capacity,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("event_created",
		"event_id", event.ID,
		"capacity", event.Capacity,
	)

	writeJSON(w, h.logger, http.StatusCreated, dto.CreateEventResponse{EventID: event.ID})
}

// Get handles GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		h.handleServiceError(w, r, service.ErrEventNotFound)
		return
	}

	event, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, dto.ToEventResponse(event))
}

// Register handles POST /events/{id}/register.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.registrationParams(w, r)
	if !ok {
		return
	}

	if err := h.svc.Register(r.Context(), id, userID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("registration_created", "event_id", id, "user_id", userID)

	writeJSON(w, h.logger, http.StatusCreated, dto.MessageResponse{Message: msgRegistered})
}

// Cancel handles DELETE /events/{id}/register.
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.registrationParams(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), id, userID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("registration_cancelled", "event_id", id, "user_id", userID)

	writeJSON(w, h.logger, http.StatusOK, dto.MessageResponse{Message: msgCancelled})
}

// ListUpcoming handles GET /events/upcoming.
func (h *EventHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListUpcoming(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, dto.ToEventListResponse(events))
}

// Stats handles GET /events/{id}/stats.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(r)
	if !ok {
		h.handleServiceError(w, r, service.ErrEventNotFound)
		return
	}

	stats, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, dto.ToStatsResponse(stats))
}

// registrationParams extracts the event ID and user ID shared by register
// and cancel. A missing body is treated as a missing userId.
func (h *EventHandler) registrationParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	var req dto.RegistrationRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, msgInvalidBody)
		return 0, 0, false
	}

	userID := parseUserID(req.UserID)
	if userID == 0 {
		h.handleServiceError(w, r, service.ErrMissingUserID)
		return 0, 0, false
	}

	id, ok := eventID(r)
	if !ok {
		h.handleServiceError(w, r, service.ErrEventNotFound)
		return 0, 0, false
	}

	return id, userID, true
}

// handleServiceError maps service errors to HTTP responses.
func (h *EventHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrCapacity):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("internal_error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		h.writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// writeError writes an error response.
func (h *EventHandler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, h.logger, status, dto.MessageResponse{Message: message})
}

// eventID parses the {id} path parameter.
func eventID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseUserID reads a userId given as a whole JSON number or a numeric
// string. Anything else yields 0, which callers treat as missing.
func parseUserID(v any) int64 {
	switch id := v.(type) {
	case float64:
		if id != math.Trunc(id) || id < 1 || id >= math.MaxInt64 {
			return 0
		}
		return int64(id)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || n < 1 {
			return 0
		}
		return n
	default:
		return 0
	}
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst unchanged.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
