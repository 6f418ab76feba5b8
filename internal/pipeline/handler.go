package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/routeworks/escort/pkg/handlers"
	"github.com/routeworks/escort/pkg/routes"
)

// Handler request validation errors.
var (
	errInvalidBody  = errors.New("invalid request body")
	errMissingAppID = errors.New("application_id is required")
	errInvalidRunID = errors.New("invalid run id")
)

// Handler provides HTTP endpoints for launching and controlling runs.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a Handler over the pipeline service.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With("handler", "runs"),
	}
}

// Routes returns the route group definition for run endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/runs",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Launch},
			{Method: "GET", Pattern: "/{id}", Handler: h.Status},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
		},
	}
}

// LaunchRequest starts a run. RunID is optional: supplying the ID of an
// interrupted run resumes it.
type LaunchRequest struct {
	ApplicationID string `json:"application_id"`
	RunID         string `json:"run_id,omitempty"`
}

// LaunchResponse acknowledges an accepted run.
type LaunchResponse struct {
	RunID uuid.UUID `json:"run_id"`
}

// Launch accepts a run request and starts execution in the background.
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidBody)
		return
	}
	if req.ApplicationID == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errMissingAppID)
		return
	}

	runID := uuid.Nil
	if req.RunID != "" {
		parsed, err := uuid.Parse(req.RunID)
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidRunID)
			return
		}
		runID = parsed
	}

	id, err := h.service.Launch(req.ApplicationID, runID)
	if err != nil {
		handlers.RespondError(w, h.logger, mapServiceStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, LaunchResponse{RunID: id})
}

// Status reports live or archived state for a run.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidRunID)
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, mapServiceStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, status)
}

// Cancel requests cooperative cancellation of a run.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidRunID)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, mapServiceStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

func mapServiceStatus(err error) int {
	if errors.Is(err, ErrRunNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrRunActive) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
