package tools

import (
	"log/slog"
	"net/http"

	"github.com/routeworks/escort/pkg/handlers"
	"github.com/routeworks/escort/pkg/routes"
)

// Handler exposes tool server connection state over HTTP.
type Handler struct {
	invoker *Invoker
	logger  *slog.Logger
}

// NewHandler creates a Handler over the invoker's registry.
func NewHandler(invoker *Invoker, logger *slog.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		logger:  logger.With("handler", "servers"),
	}
}

// Routes returns the route group definition for server state endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/servers",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "/{name}/check", Handler: h.Check},
		},
	}
}

// List returns connection state for every configured tool server.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.invoker.Registry().Snapshot())
}

// Check performs an on-demand health probe against a named server and
// returns its refreshed state.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := h.invoker.Registry().Server(name); err != nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, err)
		return
	}

	h.invoker.CheckHealth(r.Context(), name)

	for _, state := range h.invoker.Registry().Snapshot() {
		if state.Name == name {
			handlers.RespondJSON(w, http.StatusOK, state)
			return
		}
	}
}
