// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/puzzlerank/internal/adapters/repository"
	"github.com/okian/puzzlerank/internal/domain/window"
)

// Default neighborhood radius for GET /around.
const defaultAroundRadius = 5

// AroundHandler handles neighborhood queries.
type AroundHandler struct {
	deps Dependencies
}

// NewAroundHandler creates a new around handler.
func NewAroundHandler(deps Dependencies) *AroundHandler {
	return &AroundHandler{deps: deps}
}

// HandleGetAround handles GET /around/{window}/{player}?radius=K requests.
func (h *AroundHandler) HandleGetAround(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_around"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/around/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	radius := defaultAroundRadius
	if radiusStr := r.URL.Query().Get("radius"); radiusStr != "" {
		n, err := strconv.Atoi(radiusStr)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		radius = n
	}

	entries, err := h.deps.Around(r.Context(), parts[0], parts[1], radius)
	if err != nil {
		switch {
		case errors.Is(err, window.ErrUnknownWindow):
			writeError(w, http.StatusNotFound, "unknown_window", err)
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
